// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"fmt"

	"github.com/canonical-labs/tpm2engine/internal/errkind"
	"github.com/canonical-labs/tpm2engine/mu"
)

// AlgorithmId identifies a TPM algorithm (hash, symmetric cipher, scheme,
// object type, ...) by its registered 16-bit value.
type AlgorithmId uint16

func (a AlgorithmId) Size() int { return 2 }

func (a AlgorithmId) Marshal(w *mu.Writer) error {
	return wrapMarshal(w.PutUint16(uint16(a)))
}

func (a *AlgorithmId) Unmarshal(r *mu.Reader) error {
	v, err := r.GetUint16()
	if err != nil {
		return wrapUnmarshal(err)
	}
	*a = AlgorithmId(v)
	return nil
}

// HashAlgorithmId is an AlgorithmId restricted to the hash algorithms this
// package knows the digest size of.
type HashAlgorithmId AlgorithmId

const (
	HashAlgorithmNull   HashAlgorithmId = 0x0010
	HashAlgorithmSHA1   HashAlgorithmId = 0x0004
	HashAlgorithmSHA256 HashAlgorithmId = 0x000B
	HashAlgorithmSHA384 HashAlgorithmId = 0x000C
	HashAlgorithmSHA512 HashAlgorithmId = 0x000D
	HashAlgorithmSM3_256 HashAlgorithmId = 0x0012
	HashAlgorithmSHA3_256 HashAlgorithmId = 0x0027
	HashAlgorithmSHA3_384 HashAlgorithmId = 0x0028
	HashAlgorithmSHA3_512 HashAlgorithmId = 0x0029
)

// hashDigestSizes is the closed table of known hash algorithms to their
// digest size in bytes. HashAlgorithmNull is deliberately absent: it
// carries no digest at all, handled separately in TaggedHash.
var hashDigestSizes = map[HashAlgorithmId]int{
	HashAlgorithmSHA1:     20,
	HashAlgorithmSHA256:   32,
	HashAlgorithmSM3_256:  32,
	HashAlgorithmSHA3_256: 32,
	HashAlgorithmSHA384:   48,
	HashAlgorithmSHA3_384: 48,
	HashAlgorithmSHA512:   64,
	HashAlgorithmSHA3_512: 64,
}

// Size returns the digest size in bytes for alg, or 0 if alg is
// HashAlgorithmNull or not a hash algorithm this package recognizes.
func (alg HashAlgorithmId) Size() int {
	return hashDigestSizes[alg]
}

// IsValid reports whether alg is HashAlgorithmNull or a recognized hash
// algorithm.
func (alg HashAlgorithmId) IsValid() bool {
	if alg == HashAlgorithmNull {
		return true
	}
	_, ok := hashDigestSizes[alg]
	return ok
}

func (alg HashAlgorithmId) Marshal(w *mu.Writer) error {
	return AlgorithmId(alg).Marshal(w)
}

func (alg *HashAlgorithmId) Unmarshal(r *mu.Reader) error {
	return (*AlgorithmId)(alg).Unmarshal(r)
}

func (alg HashAlgorithmId) String() string {
	switch alg {
	case HashAlgorithmNull:
		return "null"
	case HashAlgorithmSHA1:
		return "sha1"
	case HashAlgorithmSHA256:
		return "sha256"
	case HashAlgorithmSHA384:
		return "sha384"
	case HashAlgorithmSHA512:
		return "sha512"
	case HashAlgorithmSM3_256:
		return "sm3_256"
	case HashAlgorithmSHA3_256:
		return "sha3_256"
	case HashAlgorithmSHA3_384:
		return "sha3_384"
	case HashAlgorithmSHA3_512:
		return "sha3_512"
	default:
		return fmt.Sprintf("HashAlgorithmId(0x%04x)", uint16(alg))
	}
}

// TaggedHash is a TPMT_HA-style tagged union: an algorithm discriminant
// followed by a digest whose length is fixed by that algorithm, with
// HashAlgorithmNull carrying no digest bytes at all.
type TaggedHash struct {
	Alg    HashAlgorithmId
	Digest Digest
}

func (h TaggedHash) Marshal(w *mu.Writer) error {
	if err := h.Alg.Marshal(w); err != nil {
		return err
	}
	if h.Alg == HashAlgorithmNull {
		return nil
	}
	want := h.Alg.Size()
	if want == 0 {
		return wrapMarshal(fmt.Errorf("%w: unsupported hash algorithm %s", errkind.MarshalInvalidValue, h.Alg))
	}
	if len(h.Digest) != want {
		return wrapMarshal(fmt.Errorf("%w: digest length %d does not match %s's digest size %d", errkind.MarshalInvalidValue, len(h.Digest), h.Alg, want))
	}
	return wrapMarshal(w.PutRaw(h.Digest))
}

func (h *TaggedHash) Unmarshal(r *mu.Reader) error {
	var alg HashAlgorithmId
	if err := alg.Unmarshal(r); err != nil {
		return err
	}
	h.Alg = alg
	if alg == HashAlgorithmNull {
		h.Digest = nil
		return nil
	}
	n := alg.Size()
	if n == 0 {
		return wrapUnmarshal(fmt.Errorf("%w: unsupported hash algorithm %s", errkind.UnmarshalInvalidValue, alg))
	}
	b, err := r.GetRaw(n)
	if err != nil {
		return wrapUnmarshal(err)
	}
	h.Digest = Digest(b)
	return nil
}
