// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

// Package errkind holds sentinel errors shared between the mu codec and
// the root tpm2 package. It exists to break the import cycle that would
// otherwise result from mu returning the root package's richer *Error
// type directly: mu is imported by tpm2, so it cannot import tpm2 back.
// The root package recognizes these sentinels with errors.Is and
// re-wraps them into a *tpm2.Error at the point where a Kind is known.
package errkind

import "errors"

var (
	// MarshalBufferOverflow means there wasn't enough room in the
	// destination buffer.
	MarshalBufferOverflow = errors.New("buffer overflow")

	// MarshalIntegerOverflow means a length field overflowed its wire
	// width.
	MarshalIntegerOverflow = errors.New("integer overflow")

	// MarshalInvalidValue means a value had no valid wire encoding (e.g.
	// a tagged union's discriminant selects a variant the caller's
	// payload doesn't match).
	MarshalInvalidValue = errors.New("invalid value")

	// UnmarshalBufferOverflow means a declared length reached past the
	// end of the input.
	UnmarshalBufferOverflow = errors.New("buffer overflow")

	// UnmarshalInvalidValue means a discriminant, boolean, or other
	// enumerated value had no valid interpretation.
	UnmarshalInvalidValue = errors.New("invalid value")
)
