// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import "github.com/canonical-labs/tpm2engine/mu"

// SessionAttributes is the 8-bit bitfield carried by an auth command or
// response record.
type SessionAttributes uint8

const (
	// AttrContinueSession means the session should persist after this
	// command completes rather than being flushed by the TPM.
	AttrContinueSession SessionAttributes = 1 << 0

	// AttrAuditExclusive marks a session as the sole exclusive auditor
	// for the current audit session.
	AttrAuditExclusive SessionAttributes = 1 << 1

	// AttrAuditReset resets the audit digest associated with a session.
	AttrAuditReset SessionAttributes = 1 << 2

	// bits 3 and 4 are reserved by the TPM spec and must round-trip
	// unchanged.

	// AttrDecrypt requests parameter decryption for the first
	// encryptable command parameter.
	AttrDecrypt SessionAttributes = 1 << 5

	// AttrEncrypt requests parameter encryption for the first
	// encryptable response parameter.
	AttrEncrypt SessionAttributes = 1 << 6

	// AttrAudit marks a session as an audit session.
	AttrAudit SessionAttributes = 1 << 7
)

// sessionAttrsReservedMask covers the bits the TPM spec reserves. Decoded
// values preserve these bits unchanged; nothing in this package ever sets
// them on encode.
const sessionAttrsReservedMask SessionAttributes = 1<<3 | 1<<4

// Marshal writes a as a single byte, preserving any reserved bits the
// caller may have set.
func (a SessionAttributes) Marshal(w *mu.Writer) error {
	return wrapMarshal(w.PutUint8(uint8(a)))
}

// Unmarshal reads a single byte into a, including any reserved bits; the
// TPM spec requires these round-trip unchanged rather than being
// rejected.
func (a *SessionAttributes) Unmarshal(r *mu.Reader) error {
	v, err := r.GetUint8()
	if err != nil {
		return wrapUnmarshal(err)
	}
	*a = SessionAttributes(v)
	return nil
}

// Has reports whether all bits in mask are set.
func (a SessionAttributes) Has(mask SessionAttributes) bool {
	return a&mask == mask
}
