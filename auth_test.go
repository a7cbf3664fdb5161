// Copyright 2024 The tpm2engine Authors.
// Licensed under the LGPLv3 with static-linking exception.
// See LICENCE file for details.

package tpm2_test

import (
	. "gopkg.in/check.v1"

	. "github.com/canonical-labs/tpm2engine"
)

type authSuite struct{}

var _ = Suite(&authSuite{})

func (s *authSuite) TestAuthListWithAuthBounds(c *C) {
	var l AuthList
	var err error
	for i := 0; i < 3; i++ {
		l, err = l.WithAuth(PasswordAuth("x"))
		c.Assert(err, IsNil)
	}
	c.Check(len(l), Equals, 3)

	_, err = l.WithAuth(PasswordAuth("x"))
	c.Assert(err, NotNil)
	c.Check(IsTooManyAuths(err), Equals, true)
}

func (s *authSuite) TestAuthListWithAuthDoesNotMutateReceiver(c *C) {
	base, err := AuthList(nil).WithAuth(PasswordAuth("a"))
	c.Assert(err, IsNil)

	extended, err := base.WithAuth(PasswordAuth("b"))
	c.Assert(err, IsNil)

	c.Check(len(base), Equals, 1)
	c.Check(len(extended), Equals, 2)
}
