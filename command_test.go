// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	"encoding/binary"

	. "gopkg.in/check.v1"

	. "github.com/canonical-labs/tpm2engine"
	"github.com/canonical-labs/tpm2engine/mu"
	"github.com/canonical-labs/tpm2engine/simtransport"
)

type commandSuite struct{}

var _ = Suite(&commandSuite{})

// buildNoSessionsResponse constructs a minimal TPM_ST_NO_SESSIONS response
// frame carrying a single TPM2B-style sized buffer as its sole parameter.
func buildNoSessionsResponse(code ResponseCode, param []byte) []byte {
	resp := make([]byte, 10)
	binary.BigEndian.PutUint16(resp[0:2], 0x8001) // TPM_ST_NO_SESSIONS
	binary.BigEndian.PutUint32(resp[6:10], uint32(code))
	if param != nil {
		lenPrefix := make([]byte, 2)
		binary.BigEndian.PutUint16(lenPrefix, uint16(len(param)))
		resp = append(resp, lenPrefix...)
		resp = append(resp, param...)
	}
	binary.BigEndian.PutUint32(resp[2:6], uint32(len(resp)))
	return resp
}

func (s *commandSuite) TestGetRandomEndToEnd(c *C) {
	fixed := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}

	device := simtransport.New(func(command []byte) []byte {
		return buildNoSessionsResponse(ResponseSuccess, fixed)
	})

	got, err := GetRandom(device, 16)
	c.Assert(err, IsNil)
	c.Check(got, DeepEquals, fixed)
}

// TestDispatchResponseParamsAliasInboundBuffer establishes that
// RunCommand hands resp.Unmarshal a reader over the device's own inbound
// buffer rather than a copy: a zero-copy Unmarshal implementation (like
// rawParams, via mu.Reader.GetBuffer) gets back a slice whose backing
// array is the handler's response buffer. GetRandom's own gather loop
// copies into a freshly allocated slice (it must, to splice results from
// multiple calls together), so this property belongs at the dispatch
// level, not at GetRandom's.
func (s *commandSuite) TestDispatchResponseParamsAliasInboundBuffer(c *C) {
	fixed := []byte{1, 2, 3, 4, 5, 6, 7, 8}

	var lastResponse []byte
	device := simtransport.New(func(command []byte) []byte {
		lastResponse = buildNoSessionsResponse(ResponseSuccess, fixed)
		return lastResponse
	})

	var resp rawParams
	c.Assert(RunCommand(device, noOpCommand{}, nil, nil, &resp), IsNil)
	c.Check(resp.Data, DeepEquals, fixed)

	c.Assert(len(lastResponse) >= len(resp.Data), Equals, true)
	c.Check(&lastResponse[len(lastResponse)-len(resp.Data)], Equals, &resp.Data[0])
}

func (s *commandSuite) TestGetRandomGathersAcrossMultipleCalls(c *C) {
	calls := 0
	device := simtransport.New(func(command []byte) []byte {
		calls++
		return buildNoSessionsResponse(ResponseSuccess, make([]byte, 0xFFFF))
	})

	got, err := GetRandom(device, 0xFFFF+10)
	c.Assert(err, IsNil)
	c.Check(len(got), Equals, 0xFFFF+10)
	c.Check(calls, Equals, 2)
}

func (s *commandSuite) TestDispatchSurfacesTPMError(c *C) {
	device := simtransport.New(func(command []byte) []byte {
		return buildNoSessionsResponse(ResponseCode(0x101), nil)
	})

	_, err := GetRandom(device, 4)
	c.Assert(err, NotNil)
	c.Check(IsTPM(err, ResponseCode(0x101)), Equals, true)
}

func (s *commandSuite) TestDispatchRejectsTrailingBytes(c *C) {
	device := simtransport.New(func(command []byte) []byte {
		resp := buildNoSessionsResponse(ResponseSuccess, []byte{1, 2, 3, 4})
		resp = append(resp, 0xFF) // extra byte not covered by any length field
		binary.BigEndian.PutUint32(resp[2:6], uint32(len(resp)))
		return resp
	})

	_, err := GetRandom(device, 4)
	c.Assert(err, NotNil)
	c.Check(IsUnmarshal(err), Equals, true)
}

// buildSessionsResponse constructs a minimal TPM_ST_SESSIONS response frame
// with a single sized-buffer parameter followed by one auth response
// record whose attributes are attrs.
func buildSessionsResponse(code ResponseCode, param []byte, attrs byte) []byte {
	resp := make([]byte, 10)
	binary.BigEndian.PutUint16(resp[0:2], 0x8002) // TPM_ST_SESSIONS
	binary.BigEndian.PutUint32(resp[6:10], uint32(code))

	paramArea := make([]byte, 2)
	binary.BigEndian.PutUint16(paramArea, uint16(len(param)))
	paramArea = append(paramArea, param...)

	paramSize := make([]byte, 4)
	binary.BigEndian.PutUint32(paramSize, uint32(len(paramArea)))
	resp = append(resp, paramSize...)
	resp = append(resp, paramArea...)

	resp = append(resp, 0x00, 0x00) // empty nonce
	resp = append(resp, attrs)
	resp = append(resp, 0x00, 0x00) // empty hmac

	binary.BigEndian.PutUint32(resp[2:6], uint32(len(resp)))
	return resp
}

// buildSessionsResponseNoParams is buildSessionsResponse for a command
// with no response parameters at all: the 4-byte parameter-area size is
// zero, with no TPM2B length prefix inside it (there is nothing to
// prefix), followed directly by the auth response record.
func buildSessionsResponseNoParams(code ResponseCode, attrs byte) []byte {
	resp := make([]byte, 10)
	binary.BigEndian.PutUint16(resp[0:2], 0x8002) // TPM_ST_SESSIONS
	binary.BigEndian.PutUint32(resp[6:10], uint32(code))

	resp = append(resp, 0x00, 0x00, 0x00, 0x00) // empty parameter area
	resp = append(resp, 0x00, 0x00)             // empty nonce
	resp = append(resp, attrs)
	resp = append(resp, 0x00, 0x00) // empty hmac

	binary.BigEndian.PutUint32(resp[2:6], uint32(len(resp)))
	return resp
}

func (s *commandSuite) TestDispatchAcceptsReservedAttributeBitsInAuthResponse(c *C) {
	device := simtransport.New(func(command []byte) []byte {
		return buildSessionsResponse(ResponseSuccess, []byte{1, 2, 3, 4}, byte(AttrContinueSession|1<<3))
	})

	authList, err := AuthList(nil).WithAuth(PasswordAuth("x"))
	c.Assert(err, IsNil)

	var resp rawParams
	c.Assert(RunCommand(device, noOpCommand{}, authList, nil, &resp), IsNil)
	c.Check(resp.Data, DeepEquals, []byte{1, 2, 3, 4})
}

func (s *commandSuite) TestDispatchRejectsResponseTagMismatch(c *C) {
	device := simtransport.New(func(command []byte) []byte {
		// The request carries no auths, so TagNoSessions is expected;
		// answer with TagSessions instead.
		return buildSessionsResponse(ResponseSuccess, []byte{1, 2, 3, 4}, byte(AttrContinueSession))
	})

	var resp rawParams
	err := RunCommand(device, noOpCommand{}, nil, nil, &resp)
	c.Assert(err, NotNil)
	c.Check(IsUnmarshal(err), Equals, true)
}

// rawParams is a minimal ResponseParams that reads a single sized buffer,
// used to isolate dispatcher framing tests from any particular command's
// response shape.
type rawParams struct {
	Data []byte
}

func (p *rawParams) Unmarshal(r *mu.Reader) error {
	b, err := r.GetBuffer()
	if err != nil {
		return err
	}
	p.Data = b
	return nil
}

func (s *commandSuite) TestPasswordAuthFraming(c *C) {
	password := []byte{0xAA, 0xBB, 0xCC} // p1 p2 p3

	var captured []byte
	device := simtransport.New(func(command []byte) []byte {
		captured = append([]byte(nil), command...)
		return buildSessionsResponseNoParams(ResponseSuccess, byte(AttrContinueSession))
	})

	authList, err := AuthList(nil).WithAuth(PasswordAuth(password))
	c.Assert(err, IsNil)

	c.Assert(RunCommand(device, noOpCommand{}, authList, nil, nil), IsNil)

	// Header is 10 bytes, then the handle area (none for this mock
	// command), then the 4-byte auth-area size, then the auth record
	// itself: handle(4) + nonce-len(2) + attrs(1) + hmac-len(2) + hmac(3).
	c.Assert(len(captured) >= 10+4, Equals, true)
	authAreaSize := binary.BigEndian.Uint32(captured[10:14])
	c.Check(authAreaSize, Equals, uint32(4+2+1+2+len(password)))

	rest := captured[14:]
	c.Check(binary.BigEndian.Uint32(rest[0:4]), Equals, uint32(HandlePW))
	c.Check(rest[4:6], DeepEquals, []byte{0x00, 0x00}) // empty nonce
	c.Check(rest[6], Equals, byte(AttrContinueSession))
	c.Check(binary.BigEndian.Uint16(rest[7:9]), Equals, uint16(len(password)))
	c.Check(rest[9:9+len(password)], DeepEquals, password)
}

// noOpCommand is a minimal Command with no handles and no parameters,
// used to isolate the auth-area framing from any particular command's
// own wire shape.
type noOpCommand struct{}

func (noOpCommand) CommandCode() CommandCode    { return CommandCodeGetRandom }
func (noOpCommand) Handles() HandleList         { return nil }
func (noOpCommand) Marshal(w *mu.Writer) error  { return nil }
