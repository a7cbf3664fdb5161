// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	. "gopkg.in/check.v1"

	. "github.com/canonical-labs/tpm2engine"
	"github.com/canonical-labs/tpm2engine/mu"
)

type pcrSuite struct{}

var _ = Suite(&pcrSuite{})

func (s *pcrSuite) TestMarshalAllFalse(c *C) {
	var sel PCRSelection
	buf := make([]byte, 8)
	w := mu.NewWriter(buf)
	c.Assert(sel.Marshal(w), IsNil)
	c.Check(w.Bytes(), DeepEquals, []byte{0x03, 0x00, 0x00, 0x00})
}

func (s *pcrSuite) TestMarshalFirstTrue(c *C) {
	var sel PCRSelection
	sel.Set(0)
	buf := make([]byte, 8)
	w := mu.NewWriter(buf)
	c.Assert(sel.Marshal(w), IsNil)
	c.Check(w.Bytes(), DeepEquals, []byte{0x03, 0x01, 0x00, 0x00})
}

func (s *pcrSuite) TestMarshalAllTrue(c *C) {
	var sel PCRSelection
	for i := 0; i < 24; i++ {
		sel.Set(i)
	}
	buf := make([]byte, 8)
	w := mu.NewWriter(buf)
	c.Assert(sel.Marshal(w), IsNil)
	c.Check(w.Bytes(), DeepEquals, []byte{0x03, 0xFF, 0xFF, 0xFF})
}

func (s *pcrSuite) TestUnmarshalRoundTrip(c *C) {
	var sel PCRSelection
	sel.Set(0)
	sel.Set(23)
	sel.Set(10)
	buf := make([]byte, 8)
	w := mu.NewWriter(buf)
	c.Assert(sel.Marshal(w), IsNil)

	var got PCRSelection
	r := mu.NewReader(w.Bytes())
	c.Assert(got.Unmarshal(r), IsNil)
	c.Check(got, Equals, sel)
}

func (s *pcrSuite) TestUnmarshalRejectsOutOfRangeBit(c *C) {
	// Byte count 4, with bit 0 of the 4th byte set: PCR index 24, the
	// first index past the 24-PCR bank.
	buf := []byte{0x04, 0x00, 0x00, 0x00, 0x01}
	var sel PCRSelection
	r := mu.NewReader(buf)
	err := sel.Unmarshal(r)
	c.Assert(err, NotNil)
	c.Check(IsUnmarshal(err), Equals, true)
}

func (s *pcrSuite) TestUnmarshalAllowsExtraZeroBytes(c *C) {
	// A byte count > 3 is fine as long as no PCR beyond 24 is actually
	// selected.
	buf := []byte{0x04, 0x01, 0x00, 0x00, 0x00}
	var sel PCRSelection
	r := mu.NewReader(buf)
	c.Assert(sel.Unmarshal(r), IsNil)
	c.Check(sel[0], Equals, true)
}
