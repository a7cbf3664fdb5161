// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2

import "fmt"

// minBufferSize is the smallest command/response buffer a Device
// implementation may offer; it must be large enough for the largest
// command this package constructs without a caller-supplied override.
const minBufferSize = maxCommandSize

// Device abstracts a transport capable of carrying exactly one
// outstanding TPM command/response exchange at a time: a Linux character
// device, an in-process simulator, or a mock used in tests.
type Device interface {
	// CommandBuf returns a scratch buffer of at least minBufferSize bytes
	// that the caller fills with a marshalled command before calling
	// Execute. The buffer is owned by the Device and is only valid to
	// write into until the next call to CommandBuf or Execute.
	CommandBuf() []byte

	// Execute submits the first n bytes of the buffer last returned by
	// CommandBuf as a command frame and blocks until the TPM's response
	// is available. The returned Response borrows the Device's inbound
	// buffer and must be Close()d before CommandBuf or Execute is called
	// again.
	Execute(n int) (*Response, error)
}

// BorrowTracker enforces a Device's at-most-one-outstanding-response
// invariant. A Device implementation holds one and calls NewResponse to
// hand a caller a Response; NewResponse fails if a previously issued
// Response hasn't been closed yet.
type BorrowTracker struct {
	outstanding bool
}

// NewBorrowTracker returns a tracker with no outstanding Response.
func NewBorrowTracker() *BorrowTracker {
	return &BorrowTracker{}
}

// NewResponse wraps buf as a Response borrowed from t, or returns a
// DriverInUse error if a Response obtained from t is still open.
func (t *BorrowTracker) NewResponse(buf []byte) (*Response, error) {
	if t.outstanding {
		return nil, DriverError(DriverInUse, fmt.Errorf("a previous response from this device has not been closed"))
	}
	t.outstanding = true
	return &Response{buf: buf, tracker: t}, nil
}

// Response is a TPM response frame borrowed from a Device's internal
// buffer. Reading Bytes after Close returns nil.
type Response struct {
	buf     []byte
	tracker *BorrowTracker
}

// Bytes returns the response frame's bytes. The slice aliases the
// Device's internal buffer and is invalid after Close.
func (r *Response) Bytes() []byte {
	return r.buf
}

// Close releases the borrow, allowing the Device to reuse its internal
// buffer for the next command. It is safe to call more than once.
func (r *Response) Close() error {
	if r.tracker != nil {
		r.tracker.outstanding = false
		r.tracker = nil
	}
	r.buf = nil
	return nil
}
