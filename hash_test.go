// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	. "gopkg.in/check.v1"

	. "github.com/canonical-labs/tpm2engine"
	"github.com/canonical-labs/tpm2engine/mu"
)

type hashSuite struct{}

var _ = Suite(&hashSuite{})

func (s *hashSuite) TestTaggedHashRoundTripSHA256(c *C) {
	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}
	in := TaggedHash{Alg: HashAlgorithmSHA256, Digest: Digest(digest)}

	buf := make([]byte, 64)
	w := mu.NewWriter(buf)
	c.Assert(in.Marshal(w), IsNil)
	c.Check(w.Off(), Equals, 2+32)

	var out TaggedHash
	r := mu.NewReader(w.Bytes())
	c.Assert(out.Unmarshal(r), IsNil)
	c.Check(out, DeepEquals, in)
}

func (s *hashSuite) TestTaggedHashNullCarriesNoDigest(c *C) {
	in := TaggedHash{Alg: HashAlgorithmNull}

	buf := make([]byte, 8)
	w := mu.NewWriter(buf)
	c.Assert(in.Marshal(w), IsNil)
	c.Check(w.Off(), Equals, 2)

	var out TaggedHash
	r := mu.NewReader(w.Bytes())
	c.Assert(out.Unmarshal(r), IsNil)
	c.Check(out.Alg, Equals, HashAlgorithmNull)
	c.Check(len(out.Digest), Equals, 0)
}

func (s *hashSuite) TestTaggedHashMarshalRejectsWrongLength(c *C) {
	in := TaggedHash{Alg: HashAlgorithmSHA256, Digest: Digest(make([]byte, 20))}
	buf := make([]byte, 64)
	w := mu.NewWriter(buf)
	c.Assert(in.Marshal(w), NotNil)
}

func (s *hashSuite) TestTaggedHashUnsupportedAlgorithmIsInvalidValue(c *C) {
	in := TaggedHash{Alg: HashAlgorithmId(0xFFFF), Digest: Digest(make([]byte, 4))}
	buf := make([]byte, 64)
	w := mu.NewWriter(buf)
	err := in.Marshal(w)
	c.Assert(err, NotNil)
	c.Check(IsMarshal(err), Equals, true)

	raw := make([]byte, 2)
	w2 := mu.NewWriter(raw)
	c.Assert(HashAlgorithmId(0xFFFF).Marshal(w2), IsNil)
	var out TaggedHash
	err = out.Unmarshal(mu.NewReader(w2.Bytes()))
	c.Assert(err, NotNil)
	c.Check(IsUnmarshal(err), Equals, true)
}

func (s *hashSuite) TestDigestSizes(c *C) {
	c.Check(HashAlgorithmSHA1.Size(), Equals, 20)
	c.Check(HashAlgorithmSHA256.Size(), Equals, 32)
	c.Check(HashAlgorithmSM3_256.Size(), Equals, 32)
	c.Check(HashAlgorithmSHA3_256.Size(), Equals, 32)
	c.Check(HashAlgorithmSHA384.Size(), Equals, 48)
	c.Check(HashAlgorithmSHA3_384.Size(), Equals, 48)
	c.Check(HashAlgorithmSHA512.Size(), Equals, 64)
	c.Check(HashAlgorithmSHA3_512.Size(), Equals, 64)
	c.Check(HashAlgorithmNull.Size(), Equals, 0)
}
