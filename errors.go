// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

// Package tpm2 implements a host-side command engine for driving a TPM 2.0
// device: typed command marshalling, request/response framing with
// authorization sessions, and an abstract device interface.
package tpm2

import (
	"errors"
	"fmt"

	"golang.org/x/xerrors"

	"github.com/canonical-labs/tpm2engine/internal/errkind"
)

// Kind identifies the broad category of failure reported by an *Error.
// The taxonomy is deliberately flat at this level; callers typically
// switch on Kind and only look at the kind-specific fields when they
// need more detail.
type Kind int

const (
	// KindTPM means the TPM returned a non-zero response code. Code
	// carries the raw 32-bit value; it is never zero for this kind.
	KindTPM Kind = iota

	// KindMarshal means encoding a value into the wire format failed.
	KindMarshal

	// KindUnmarshal means decoding a value from the wire format failed.
	KindUnmarshal

	// KindDriver means the transport layer failed.
	KindDriver

	// KindTooManyAuths means a caller composed more than 3
	// authorizations on a single command, the wire protocol maximum.
	KindTooManyAuths
)

func (k Kind) String() string {
	switch k {
	case KindTPM:
		return "tpm"
	case KindMarshal:
		return "marshal"
	case KindUnmarshal:
		return "unmarshal"
	case KindDriver:
		return "driver"
	case KindTooManyAuths:
		return "too many auths"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalKind is the structured detail carried by a KindMarshal error.
type MarshalKind int

const (
	// MarshalBufferOverflow means there wasn't enough room in the
	// destination buffer to write the value.
	MarshalBufferOverflow MarshalKind = iota

	// MarshalIntegerOverflow means a length field (a list count or a
	// sized-buffer length) overflowed its wire width.
	MarshalIntegerOverflow

	// MarshalInvalidValue means a value had no valid wire encoding, such
	// as a tagged union whose discriminant names a variant the supplied
	// payload doesn't match.
	MarshalInvalidValue
)

func (k MarshalKind) String() string {
	switch k {
	case MarshalBufferOverflow:
		return "buffer overflow"
	case MarshalIntegerOverflow:
		return "integer overflow"
	case MarshalInvalidValue:
		return "invalid value"
	default:
		return fmt.Sprintf("MarshalKind(%d)", int(k))
	}
}

// UnmarshalKind is the structured detail carried by a KindUnmarshal error.
type UnmarshalKind int

const (
	// UnmarshalBufferOverflow means a declared length reached past the
	// end of the input.
	UnmarshalBufferOverflow UnmarshalKind = iota

	// UnmarshalBufferRemaining means trailing bytes followed a
	// logically complete value.
	UnmarshalBufferRemaining

	// UnmarshalInvalidValue means a discriminant, boolean, or other
	// enumerated value had no valid interpretation.
	UnmarshalInvalidValue

	// UnmarshalPCRTooLarge means a PCR selection set a bit at index 24 or
	// above, past the fixed 24-PCR (3-byte) bit vector. A byte count over 3
	// whose extra bytes are all zero is accepted.
	UnmarshalPCRTooLarge
)

func (k UnmarshalKind) String() string {
	switch k {
	case UnmarshalBufferOverflow:
		return "buffer overflow"
	case UnmarshalBufferRemaining:
		return "buffer remaining"
	case UnmarshalInvalidValue:
		return "invalid value"
	case UnmarshalPCRTooLarge:
		return "pcr too large"
	default:
		return fmt.Sprintf("UnmarshalKind(%d)", int(k))
	}
}

// DriverKind is the structured detail carried by a KindDriver error.
type DriverKind int

const (
	// DriverIntegerOverflow means a size conversion (e.g. to the
	// transport's native size type) overflowed.
	DriverIntegerOverflow DriverKind = iota

	// DriverIO means the underlying transport returned an I/O error.
	DriverIO

	// DriverInUse means a device was constructed while the process
	// already held an exclusive handle to the same transport.
	DriverInUse

	// DriverNotFound means no transport could be located (e.g. neither
	// /dev/tpmrm0 nor /dev/tpm0 exists).
	DriverNotFound

	// DriverResponseBuffer means the transport produced a response
	// larger than the device's inbound buffer.
	DriverResponseBuffer
)

func (k DriverKind) String() string {
	switch k {
	case DriverIntegerOverflow:
		return "integer overflow"
	case DriverIO:
		return "i/o error"
	case DriverInUse:
		return "in use"
	case DriverNotFound:
		return "not found"
	case DriverResponseBuffer:
		return "response buffer"
	default:
		return fmt.Sprintf("DriverKind(%d)", int(k))
	}
}

// Error is the structured error type this package returns for TPM, codec,
// transport and authorization-count failures; the password-auth response
// checks and GetRandom's own argument and empty-reply checks return plain
// errors instead. It is flat at the Kind level and structured beneath via the kind-specific fields; only
// the fields relevant to Kind are meaningful.
type Error struct {
	Kind Kind

	// Code is set when Kind == KindTPM.
	Code ResponseCode

	// MarshalKind is set when Kind == KindMarshal.
	MarshalKind MarshalKind

	// UnmarshalKind is set when Kind == KindUnmarshal.
	UnmarshalKind UnmarshalKind

	// PCRIndex is set when Kind == KindUnmarshal and UnmarshalKind ==
	// UnmarshalPCRTooLarge: the first selected bit index at or past 24.
	PCRIndex int

	// DriverKind is set when Kind == KindDriver.
	DriverKind DriverKind

	// N is set when Kind == KindTooManyAuths: the number of
	// authorizations the caller attempted to compose.
	N int

	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTPM:
		return fmt.Sprintf("tpm: command returned response code 0x%08x", uint32(e.Code))
	case KindMarshal:
		if e.Err != nil {
			return fmt.Sprintf("marshal: %s: %v", e.MarshalKind, e.Err)
		}
		return fmt.Sprintf("marshal: %s", e.MarshalKind)
	case KindUnmarshal:
		if e.UnmarshalKind == UnmarshalPCRTooLarge {
			return fmt.Sprintf("unmarshal: %s: pcr index %d exceeds the 24-PCR selection", e.UnmarshalKind, e.PCRIndex)
		}
		if e.Err != nil {
			return fmt.Sprintf("unmarshal: %s: %v", e.UnmarshalKind, e.Err)
		}
		return fmt.Sprintf("unmarshal: %s", e.UnmarshalKind)
	case KindDriver:
		if e.Err != nil {
			return fmt.Sprintf("driver: %s: %v", e.DriverKind, e.Err)
		}
		return fmt.Sprintf("driver: %s", e.DriverKind)
	case KindTooManyAuths:
		return fmt.Sprintf("too many authorizations: %d exceeds the wire maximum of 3", e.N)
	default:
		return fmt.Sprintf("tpm2: error with unknown kind %d", int(e.Kind))
	}
}

// Unwrap returns the underlying cause, if any, so that errors.Is and
// errors.As see through an *Error the same way xerrors.Errorf("%w", ...)
// chains do elsewhere in this package.
func (e *Error) Unwrap() error {
	return e.Err
}

// TPMError wraps a non-zero TPM response code.
func TPMError(code ResponseCode) error {
	if code == ResponseSuccess {
		panic("tpm2: TPMError called with a success code")
	}
	return &Error{Kind: KindTPM, Code: code}
}

// MarshalError wraps a marshalling failure.
func MarshalError(kind MarshalKind, err error) error {
	return &Error{Kind: KindMarshal, MarshalKind: kind, Err: err}
}

// UnmarshalError wraps a decoding failure.
func UnmarshalError(kind UnmarshalKind, err error) error {
	return &Error{Kind: KindUnmarshal, UnmarshalKind: kind, Err: err}
}

// PCRTooLargeError wraps an out-of-range PCR selection.
func PCRTooLargeError(index int) error {
	return &Error{Kind: KindUnmarshal, UnmarshalKind: UnmarshalPCRTooLarge, PCRIndex: index}
}

// DriverError wraps a transport failure.
func DriverError(kind DriverKind, err error) error {
	return &Error{Kind: KindDriver, DriverKind: kind, Err: err}
}

// TooManyAuthsError reports that a caller composed more authorizations
// than the wire protocol's maximum of 3.
func TooManyAuthsError(n int) error {
	return &Error{Kind: KindTooManyAuths, N: n}
}

// IsTPM reports whether err is a *Error of KindTPM, optionally also
// matching a specific response code. Pass code == 0 to match any code.
func IsTPM(err error, code ResponseCode) bool {
	var e *Error
	return xerrors.As(err, &e) && e.Kind == KindTPM && (code == 0 || e.Code == code)
}

// IsMarshal reports whether err is a *Error of KindMarshal.
func IsMarshal(err error) bool {
	var e *Error
	return xerrors.As(err, &e) && e.Kind == KindMarshal
}

// IsUnmarshal reports whether err is a *Error of KindUnmarshal.
func IsUnmarshal(err error) bool {
	var e *Error
	return xerrors.As(err, &e) && e.Kind == KindUnmarshal
}

// IsDriver reports whether err is a *Error of KindDriver.
func IsDriver(err error) bool {
	var e *Error
	return xerrors.As(err, &e) && e.Kind == KindDriver
}

// IsTooManyAuths reports whether err is a *Error of KindTooManyAuths.
func IsTooManyAuths(err error) bool {
	var e *Error
	return xerrors.As(err, &e) && e.Kind == KindTooManyAuths
}

// wrapMarshal recognizes a sentinel error surfaced by the mu codec and
// re-wraps it as a *Error with the appropriate MarshalKind. It passes
// through an already-wrapped *Error (e.g. one a nested Marshal call
// already produced) unchanged.
func wrapMarshal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if xerrors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, errkind.MarshalIntegerOverflow):
		return MarshalError(MarshalIntegerOverflow, err)
	case errors.Is(err, errkind.MarshalInvalidValue):
		return MarshalError(MarshalInvalidValue, err)
	default:
		return MarshalError(MarshalBufferOverflow, err)
	}
}

// wrapUnmarshal recognizes a sentinel error surfaced by the mu codec and
// re-wraps it as a *Error with the appropriate UnmarshalKind. It passes
// through an already-wrapped *Error unchanged.
func wrapUnmarshal(err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if xerrors.As(err, &e) {
		return err
	}
	switch {
	case errors.Is(err, errkind.UnmarshalInvalidValue):
		return UnmarshalError(UnmarshalInvalidValue, err)
	default:
		return UnmarshalError(UnmarshalBufferOverflow, err)
	}
}
