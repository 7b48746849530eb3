// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"errors"

	"gopkg.in/check.v1"
)

type mstepSuite struct{}

var _ = check.Suite(&mstepSuite{})

func (s *mstepSuite) TestKnownUpdate(c *check.C) {
	m, err := NewModel(altRefCounts(), testConfig())
	c.Assert(err, check.IsNil)
	for bc, donor := range []int{0, 1, 0, 1} {
		m.posterior.Set(bc, donor, 1)
	}
	c.Assert(MStep(m), check.IsNil)
	for v := 0; v < 3; v++ {
		c.Check(m.maf.At(v, 0), check.Equals, 21.0/22)
		c.Check(m.maf.At(v, 1), check.Equals, 1.0/22)
	}
}

func (s *mstepSuite) TestSmoothingWithoutWeight(c *check.C) {
	// All-zero posterior (as right after initialization) leaves
	// only the pseudocounts.
	m, err := NewModel(altRefCounts(), testConfig())
	c.Assert(err, check.IsNil)
	c.Assert(MStep(m), check.IsNil)
	for v := 0; v < 3; v++ {
		c.Check(m.maf.At(v, 0), check.Equals, 0.5)
		c.Check(m.maf.At(v, 1), check.Equals, 0.5)
	}
}

func (s *mstepSuite) TestFrequenciesStayInside(c *check.C) {
	cfg := testConfig()
	cfg.Donors = 3
	m, err := NewModel(randomCounts(7, 100, 70), cfg)
	c.Assert(err, check.IsNil)
	for round := 0; round < cfg.Iterations; round++ {
		c.Assert(EStep(m), check.IsNil)
		c.Assert(MStep(m), check.IsNil)
		nsnv, donors := m.maf.Dims()
		for v := 0; v < nsnv; v++ {
			for k := 0; k < donors; k++ {
				f := m.maf.At(v, k)
				c.Check(f > 0 && f < 1, check.Equals, true, check.Commentf("round %d snv %d donor %d: %v", round, v, k, f))
			}
		}
	}
}

func (s *mstepSuite) TestDegenerate(c *check.C) {
	m, err := NewModel(altRefCounts(), testConfig())
	c.Assert(err, check.IsNil)
	// A negative posterior is impossible, but it pulls the
	// smoothed alt count at every SNV down to exactly zero.
	m.posterior.Set(0, 0, -0.1)
	before := m.maf.At(0, 0)
	err = MStep(m)
	c.Check(errors.Is(err, ErrDegenerateFrequency), check.Equals, true, check.Commentf("%v", err))
	c.Check(m.maf.At(0, 0), check.Equals, before)
}
