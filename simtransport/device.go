// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

// Package simtransport implements tpm2.Device as an in-process function
// call rather than a real character device. It stands in for the
// cgo-based TPM simulator the upstream ecosystem normally tests against,
// which this module does not depend on; tests supply a Handler that
// plays the TPM's part directly.
package simtransport

import (
	"github.com/canonical-labs/tpm2engine"
)

// Handler receives a marshalled command frame and returns a marshalled
// response frame. It plays the role a real TPM (or a cgo simulator)
// would play in the command/response exchange.
type Handler func(command []byte) (response []byte)

// Device is an in-process tpm2.Device. Each call to Execute invokes
// Handler synchronously; there is no real I/O.
type Device struct {
	handler Handler
	cmdBuf  []byte
	tracker *tpm2.BorrowTracker
}

// New returns a Device that dispatches every command to handler.
func New(handler Handler) *Device {
	return &Device{
		handler: handler,
		cmdBuf:  make([]byte, 4096),
		tracker: tpm2.NewBorrowTracker(),
	}
}

// CommandBuf implements tpm2.Device.
func (d *Device) CommandBuf() []byte {
	return d.cmdBuf
}

// Execute implements tpm2.Device.
func (d *Device) Execute(n int) (*tpm2.Response, error) {
	resp := d.handler(d.cmdBuf[:n])
	return d.tracker.NewResponse(resp)
}
