// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"fmt"

	"github.com/canonical-labs/tpm2engine/mu"
)

// maxAuths is the wire protocol's limit on authorizations per command.
const maxAuths = 3

// authCommand is a single entry in a command frame's authorization area
// (TPMS_AUTH_COMMAND): the session handle, the caller's nonce, the
// session attributes in effect, and an HMAC (or, for the password
// pseudo-session, a plaintext password) authenticating the command.
type authCommand struct {
	Handle Handle
	Nonce  Nonce
	Attrs  SessionAttributes
	HMAC   Auth
}

func (a authCommand) Marshal(w *mu.Writer) error {
	if err := mu.PutFixed(w, a.Handle); err != nil {
		return wrapMarshal(err)
	}
	if err := a.Nonce.Marshal(w); err != nil {
		return err
	}
	if err := a.Attrs.Marshal(w); err != nil {
		return err
	}
	return a.HMAC.Marshal(w)
}

// authResponse is a single entry in a response frame's authorization area
// (TPMS_AUTH_RESPONSE): no handle, since the session handle is implied by
// command ordering rather than repeated on the wire.
type authResponse struct {
	Nonce Nonce
	Attrs SessionAttributes
	HMAC  Auth
}

func (a *authResponse) Unmarshal(r *mu.Reader) error {
	if err := a.Nonce.Unmarshal(r); err != nil {
		return err
	}
	if err := a.Attrs.Unmarshal(r); err != nil {
		return err
	}
	return a.HMAC.Unmarshal(r)
}

// Authorization is a single authorization a caller attaches to a command.
// It produces its wire-format authCommand before the command executes and
// validates the TPM's matching authResponse after it returns.
type Authorization interface {
	commandAuth() authCommand
	checkResponse(resp authResponse) error
}

// PasswordAuth is a plaintext-password authorization: the simplest of the
// wire protocol's session types, identified by the fixed handle HandlePW
// and carrying the password directly in the HMAC field rather than
// computing an HMAC over a session key. The TPM is expected to echo back
// an empty nonce and HMAC; checkResponse enforces that.
type PasswordAuth []byte

func (p PasswordAuth) commandAuth() authCommand {
	return authCommand{
		Handle: HandlePW,
		Nonce:  nil,
		Attrs:  AttrContinueSession,
		HMAC:   Auth(p),
	}
}

func (p PasswordAuth) checkResponse(resp authResponse) error {
	if len(resp.Nonce) != 0 {
		return fmt.Errorf("tpm2: password auth response carried a non-empty nonce")
	}
	// Reserved bits may differ from what was sent; the wire format
	// requires they round-trip unchanged through decode, not that they
	// match some expected value.
	if resp.Attrs&^sessionAttrsReservedMask != AttrContinueSession {
		return fmt.Errorf("tpm2: password auth response attributes 0x%02x do not match the command's", resp.Attrs)
	}
	if len(resp.HMAC) != 0 {
		return fmt.Errorf("tpm2: password auth response carried a non-empty HMAC")
	}
	return nil
}

// AuthList is a bounded set of authorizations attached to a command — the
// wire format allows at most 3.
type AuthList []Authorization

// WithAuth returns a new AuthList with auth appended, or a
// TooManyAuthsError if that would exceed the wire protocol's maximum of 3.
func (l AuthList) WithAuth(auth Authorization) (AuthList, error) {
	if len(l)+1 > maxAuths {
		return nil, TooManyAuthsError(len(l) + 1)
	}
	out := make(AuthList, len(l), len(l)+1)
	copy(out, l)
	return append(out, auth), nil
}

func (l AuthList) marshal(w *mu.Writer) error {
	for _, a := range l {
		if err := a.commandAuth().Marshal(w); err != nil {
			return err
		}
	}
	return nil
}

// checkResponses validates each session's authResponse against the
// matching Authorization, in the same order the authorizations were
// supplied.
func (l AuthList) checkResponses(resps []authResponse) error {
	if len(resps) != len(l) {
		return fmt.Errorf("tpm2: response carried %d auth entries, command sent %d", len(resps), len(l))
	}
	for i, a := range l {
		if err := a.checkResponse(resps[i]); err != nil {
			return err
		}
	}
	return nil
}
