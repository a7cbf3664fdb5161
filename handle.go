// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import (
	"fmt"

	"github.com/canonical-labs/tpm2engine/mu"
)

// Handle is an opaque 32-bit identifier for a TPM-resident object: a key,
// an NV index, a session, or a permanent handle. It is value-typed and
// freely copied; it does not own any TPM-side state.
type Handle uint32

// Size returns the marshalled size of a Handle. It implements mu.Fixed.
func (Handle) Size() int { return 4 }

// Marshal implements mu.Marshaler.
func (h Handle) Marshal(w *mu.Writer) error {
	return wrapMarshal(w.PutUint32(uint32(h)))
}

// Unmarshal implements mu.Unmarshaler.
func (h *Handle) Unmarshal(r *mu.Reader) error {
	v, err := r.GetUint32()
	if err != nil {
		return wrapUnmarshal(err)
	}
	*h = Handle(v)
	return nil
}

func (h Handle) String() string {
	return fmt.Sprintf("0x%08x", uint32(h))
}

const (
	// HandleNull is the TPM's null handle, used where an optional
	// handle slot is unused.
	HandleNull Handle = 0x40000007

	// HandlePW is the fixed handle of the password pseudo-session (see
	// PasswordAuth).
	HandlePW Handle = 0x40000009
)

// HandleList is a list of Handle values, as found in a command or response
// handle area.
type HandleList []Handle

// CommandCode identifies which TPM operation a command frame requests.
type CommandCode uint32

// ResponseCode is the raw 32-bit status value a TPM returns in a response
// header. Zero (ResponseSuccess) means the command succeeded.
type ResponseCode uint32

// ResponseSuccess is the response code indicating a command completed
// without error.
const ResponseSuccess ResponseCode = 0x000

// StructTag is the 16-bit session indicator in a command or response
// header.
type StructTag uint16

const (
	// TagNoSessions marks a command or response frame that carries no
	// authorization area.
	TagNoSessions StructTag = 0x8001

	// TagSessions marks a command or response frame that carries an
	// authorization area.
	TagSessions StructTag = 0x8002
)

func (t StructTag) String() string {
	switch t {
	case TagNoSessions:
		return "TPM_ST_NO_SESSIONS"
	case TagSessions:
		return "TPM_ST_SESSIONS"
	default:
		return fmt.Sprintf("StructTag(0x%04x)", uint16(t))
	}
}

// maxCommandSize is the TPM wire-protocol maximum frame size this package
// assumes by default (see §6's buffer-size configuration option).
const maxCommandSize = 4096

// headerSize is the byte length of a command or response header: a
// 16-bit tag, a 32-bit size, and a 32-bit code.
const headerSize = 2 + 4 + 4
