// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"math"

	"gopkg.in/check.v1"
)

type estepSuite struct{}

var _ = check.Suite(&estepSuite{})

func closeTo(c *check.C, got, want, tol float64, comment ...interface{}) {
	c.Check(math.Abs(got-want) <= tol, check.Equals, true, check.Commentf("got %v, want %v ± %v %v", got, want, tol, comment))
}

func (s *estepSuite) TestKnownLikelihood(c *check.C) {
	m, err := NewModel(altRefCounts(), testConfig())
	c.Assert(err, check.IsNil)
	for v := 0; v < 3; v++ {
		m.maf.Set(v, 0, 0.75)
		m.maf.Set(v, 1, 0.25)
	}
	c.Assert(EStep(m), check.IsNil)
	for _, bc := range []int{0, 2} {
		closeTo(c, m.loglik.At(bc, 0), 30*math.Log2(0.75), 1e-9)
		closeTo(c, m.loglik.At(bc, 1), -60, 1e-9)
		closeTo(c, m.posterior.At(bc, 0), 1/(1+math.Exp2(-60-30*math.Log2(0.75))), 1e-12)
	}
	for _, bc := range []int{1, 3} {
		closeTo(c, m.loglik.At(bc, 0), -60, 1e-9)
		closeTo(c, m.loglik.At(bc, 1), 30*math.Log2(0.75), 1e-9)
		c.Check(m.posterior.At(bc, 1) > 0.999999, check.Equals, true)
	}
}

func (s *estepSuite) TestZeroCountBarcode(c *check.C) {
	counts := altRefCounts()
	counts.Barcodes = append(counts.Barcodes, "empty")
	counts.Ref = csrFromRows(5, [][]float64{
		{0, 10, 0, 10, 0},
		{0, 10, 0, 10, 0},
		{0, 10, 0, 10, 0},
	})
	counts.Alt = csrFromRows(5, [][]float64{
		{10, 0, 10, 0, 0},
		{10, 0, 10, 0, 0},
		{10, 0, 10, 0, 0},
	})
	for donors := 1; donors <= 4; donors++ {
		cfg := testConfig()
		cfg.Donors = donors
		m, err := NewModel(counts, cfg)
		c.Assert(err, check.IsNil)
		for round := 0; round < 3; round++ {
			c.Assert(EStep(m), check.IsNil)
			for k := 0; k < donors; k++ {
				c.Check(m.loglik.At(4, k), check.Equals, 0.0)
				c.Check(m.posterior.At(4, k), check.Equals, 1/float64(donors))
			}
			c.Assert(MStep(m), check.IsNil)
		}
	}
}

func (s *estepSuite) TestPosteriorRowsSumToOne(c *check.C) {
	for _, donors := range []int{1, 2, 3, 5} {
		cfg := testConfig()
		cfg.Donors = donors
		m, err := NewModel(randomCounts(int64(donors), 80, 60), cfg)
		c.Assert(err, check.IsNil)
		for round := 0; round < cfg.Iterations; round++ {
			c.Assert(EStep(m), check.IsNil)
			nbc, _ := m.posterior.Dims()
			for i := 0; i < nbc; i++ {
				total := 0.0
				for k := 0; k < donors; k++ {
					p := m.posterior.At(i, k)
					c.Check(p >= 0 && p <= 1, check.Equals, true)
					total += p
				}
				closeTo(c, total, 1, 1e-9, "donors", donors, "round", round, "barcode", i)
			}
			c.Assert(MStep(m), check.IsNil)
		}
	}
}

func (s *estepSuite) TestManyInformativeSites(c *check.C) {
	// Likelihoods far below the float64 range must still give a
	// usable posterior.
	counts := &Counts{
		SNVs:     []string{"snv0", "snv1"},
		Barcodes: []string{"bc0"},
		Ref:      csrFromRows(1, [][]float64{{5000}, {1}}),
		Alt:      csrFromRows(1, [][]float64{{5000}, {1}}),
	}
	m, err := NewModel(counts, testConfig())
	c.Assert(err, check.IsNil)
	m.maf.Set(0, 0, 0.3)
	m.maf.Set(0, 1, 0.31)
	c.Assert(EStep(m), check.IsNil)
	c.Check(m.loglik.At(0, 0) < -1100, check.Equals, true)
	p0, p1 := m.posterior.At(0, 0), m.posterior.At(0, 1)
	c.Check(math.IsNaN(p0) || math.IsNaN(p1), check.Equals, false)
	closeTo(c, p0+p1, 1, 1e-9)
}
