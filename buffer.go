// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import "github.com/canonical-labs/tpm2engine/mu"

// Buffer is a TPM2B-style sized byte buffer: a 16-bit length prefix
// followed by that many bytes. Go slices already unify the teacher
// ecosystem's separate borrowed/owned buffer representations — a Buffer
// decoded from a response aliases the response's backing array (borrowed)
// until the caller copies it, and a Buffer built by application code for a
// command owns its storage either way. There is no separate interface for
// the two cases.
type Buffer []byte

func (b Buffer) Marshal(w *mu.Writer) error {
	return wrapMarshal(w.PutBuffer(b))
}

func (b *Buffer) Unmarshal(r *mu.Reader) error {
	v, err := r.GetBuffer()
	if err != nil {
		return wrapUnmarshal(err)
	}
	*b = Buffer(v)
	return nil
}

// Digest is a Buffer holding a hash output whose length is implied by
// context rather than carried alongside an algorithm ID; compare TaggedHash.
type Digest Buffer

func (d Digest) Marshal(w *mu.Writer) error { return Buffer(d).Marshal(w) }
func (d *Digest) Unmarshal(r *mu.Reader) error {
	return (*Buffer)(d).Unmarshal(r)
}

// Nonce is a Buffer carrying session freshness material in an auth record.
type Nonce Buffer

func (n Nonce) Marshal(w *mu.Writer) error { return Buffer(n).Marshal(w) }
func (n *Nonce) Unmarshal(r *mu.Reader) error {
	return (*Buffer)(n).Unmarshal(r)
}

// Auth is a Buffer carrying an HMAC or plaintext password value in an
// auth record.
type Auth Buffer

func (a Auth) Marshal(w *mu.Writer) error { return Buffer(a).Marshal(w) }
func (a *Auth) Unmarshal(r *mu.Reader) error {
	return (*Buffer)(a).Unmarshal(r)
}
