// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

// Package linux implements tpm2.Device over a Linux TPM character device
// (/dev/tpmrm0 or /dev/tpm0).
package linux

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"golang.org/x/xerrors"

	"github.com/canonical-labs/tpm2engine"
)

// defaultPaths are tried in order when no explicit path is supplied: the
// kernel-managed resource manager device first, falling back to the raw
// device for kernels that don't have tpmrm0.
var defaultPaths = []string{"/dev/tpmrm0", "/dev/tpm0"}

// inUse enforces that at most one Device in this process has a Linux TPM
// character device open at a time. Two Devices submitting commands
// concurrently would violate the single-outstanding-command invariant
// the hardware itself only half-enforces (the kernel driver serializes
// writes, but interleaved Read calls from two goroutines would see each
// other's responses).
var inUse atomic.Bool

// Option configures a Device constructed by Open.
type Option func(*config)

type config struct {
	path       string
	bufferSize int
}

// WithPath overrides device discovery with an explicit character device
// path instead of probing the default locations.
func WithPath(path string) Option {
	return func(c *config) { c.path = path }
}

// WithBufferSize overrides the command/response buffer size. It must be
// between 1024 and 65535 bytes; Open returns an error otherwise.
func WithBufferSize(n int) Option {
	return func(c *config) { c.bufferSize = n }
}

// Device is a tpm2.Device backed by a Linux TPM character device.
type Device struct {
	f       *os.File
	cmdBuf  []byte
	respBuf []byte
	tracker *tpm2.BorrowTracker
}

// Open opens a Linux TPM character device, trying /dev/tpmrm0 then
// /dev/tpm0 unless WithPath overrides discovery. It fails with a
// DriverInUse error if another Device is already open in this process,
// and DriverNotFound if no candidate path exists. Any other error opening
// a path fails with DriverIO without trying the next one.
func Open(opts ...Option) (*Device, error) {
	if !inUse.CompareAndSwap(false, true) {
		return nil, tpm2.DriverError(tpm2.DriverInUse, fmt.Errorf("a linux.Device is already open in this process"))
	}
	d, err := open(opts...)
	if err != nil {
		inUse.Store(false)
		return nil, err
	}
	return d, nil
}

func open(opts ...Option) (*Device, error) {
	cfg := config{bufferSize: 4096}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.bufferSize < 1024 || cfg.bufferSize > 0xFFFF {
		return nil, tpm2.DriverError(tpm2.DriverIntegerOverflow, fmt.Errorf("buffer size %d out of range [1024, 65535]", cfg.bufferSize))
	}

	paths := defaultPaths
	if cfg.path != "" {
		paths = []string{cfg.path}
	}

	var f *os.File
	var lastErr error
	for _, p := range paths {
		var err error
		f, err = os.OpenFile(p, os.O_RDWR, 0)
		if err == nil {
			break
		}
		if !os.IsNotExist(err) {
			return nil, tpm2.DriverError(tpm2.DriverIO, err)
		}
		lastErr = err
	}
	if f == nil {
		return nil, tpm2.DriverError(tpm2.DriverNotFound, lastErr)
	}

	s, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, tpm2.DriverError(tpm2.DriverIO, err)
	}
	if s.Mode()&os.ModeDevice == 0 {
		f.Close()
		return nil, tpm2.DriverError(tpm2.DriverNotFound, fmt.Errorf("%s is not a character device", f.Name()))
	}

	return &Device{
		f:       f,
		cmdBuf:  make([]byte, cfg.bufferSize),
		respBuf: make([]byte, cfg.bufferSize),
		tracker: tpm2.NewBorrowTracker(),
	}, nil
}

// CommandBuf implements tpm2.Device.
func (d *Device) CommandBuf() []byte {
	return d.cmdBuf
}

// Execute implements tpm2.Device. It writes the command and then polls
// the device for readability before reading the response, matching how
// the Linux TPM driver signals response availability.
func (d *Device) Execute(n int) (*tpm2.Response, error) {
	if _, err := d.f.Write(d.cmdBuf[:n]); err != nil {
		return nil, tpm2.DriverError(tpm2.DriverIO, xerrors.Errorf("writing command: %w", err))
	}

	fds := []unix.PollFd{{Fd: int32(d.f.Fd()), Events: unix.POLLIN}}
	if _, err := unix.Ppoll(fds, nil, nil); err != nil {
		return nil, tpm2.DriverError(tpm2.DriverIO, xerrors.Errorf("polling device: %w", err))
	}

	rn, err := d.f.Read(d.respBuf)
	if err != nil {
		return nil, tpm2.DriverError(tpm2.DriverIO, xerrors.Errorf("reading response: %w", err))
	}
	if err := checkResponseLen(rn, len(d.respBuf)); err != nil {
		return nil, err
	}

	return d.tracker.NewResponse(d.respBuf[:rn])
}

// checkResponseLen reports a DriverResponseBuffer error when a read fills
// the entire inbound buffer, the signal a single Read call used to
// detect that the TPM's response didn't fit: a real response frame is
// essentially never exactly bufLen bytes, so filling the buffer means
// the rest was discarded by the read.
func checkResponseLen(rn, bufLen int) error {
	if rn == bufLen {
		return tpm2.DriverError(tpm2.DriverResponseBuffer, fmt.Errorf("response may have been truncated at %d bytes", rn))
	}
	return nil
}

// Close closes the underlying character device and releases this
// process's exclusive claim on Linux TPM transports.
func (d *Device) Close() error {
	defer inUse.Store(false)
	return d.f.Close()
}
