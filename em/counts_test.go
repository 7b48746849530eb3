// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"errors"
	"math"

	"gopkg.in/check.v1"
)

type countsSuite struct{}

var _ = check.Suite(&countsSuite{})

func (s *countsSuite) TestRowBuilder(c *check.C) {
	b := NewRowBuilder(4)
	c.Check(b.AddRow([]float64{0, 3, 0, 1}), check.IsNil)
	c.Check(b.AddSparseRow([]int{0, 2}, []float64{5, 0}), check.IsNil)
	c.Check(b.AddRow(nil), check.IsNil)
	c.Check(b.Rows(), check.Equals, 3)
	mtx := b.CSR()
	r, cols := mtx.Dims()
	c.Check(r, check.Equals, 3)
	c.Check(cols, check.Equals, 4)
	c.Check(mtx.NNZ(), check.Equals, 3)
	c.Check(mtx.At(0, 1), check.Equals, 3.0)
	c.Check(mtx.At(0, 3), check.Equals, 1.0)
	c.Check(mtx.At(1, 0), check.Equals, 5.0)
	c.Check(mtx.At(1, 2), check.Equals, 0.0)
	c.Check(mtx.At(2, 3), check.Equals, 0.0)
}

func (s *countsSuite) TestRowBuilderErrors(c *check.C) {
	b := NewRowBuilder(2)
	c.Check(errors.Is(b.AddRow([]float64{1, 2, 3}), ErrInvalidInput), check.Equals, true)
	c.Check(errors.Is(b.AddSparseRow([]int{1, 0}, []float64{1, 1}), ErrInvalidInput), check.Equals, true)
	c.Check(errors.Is(b.AddSparseRow([]int{2}, []float64{1}), ErrInvalidInput), check.Equals, true)
}

func (s *countsSuite) TestTotals(c *check.C) {
	ref, alt := altRefCounts().Totals()
	c.Check(ref, check.Equals, 60.0)
	c.Check(alt, check.Equals, 60.0)
}

func (s *countsSuite) TestShapeMismatch(c *check.C) {
	counts := altRefCounts()
	counts.Alt = csrFromRows(5, [][]float64{
		{10, 0, 10, 0, 1},
		{10, 0, 10, 0, 1},
		{10, 0, 10, 0, 1},
	})
	_, err := NewModel(counts, testConfig())
	c.Check(errors.Is(err, ErrInvalidInput), check.Equals, true, check.Commentf("%v", err))
	_, err = Run(counts, testConfig())
	c.Check(errors.Is(err, ErrInvalidInput), check.Equals, true, check.Commentf("%v", err))
}

func (s *countsSuite) TestLabelMismatch(c *check.C) {
	counts := altRefCounts()
	counts.Barcodes = counts.Barcodes[:3]
	c.Check(errors.Is(counts.Validate(), ErrInvalidInput), check.Equals, true)

	counts = altRefCounts()
	counts.SNVs = append(counts.SNVs, "chr3:1")
	c.Check(errors.Is(counts.Validate(), ErrInvalidInput), check.Equals, true)
}

func (s *countsSuite) TestBadValues(c *check.C) {
	for _, bad := range []float64{-1, 0.5, math.NaN(), math.Inf(1)} {
		counts := altRefCounts()
		counts.Ref = csrFromRows(4, [][]float64{
			{0, 10, 0, 10},
			{0, bad, 0, 10},
			{0, 10, 0, 10},
		})
		err := counts.Validate()
		c.Check(errors.Is(err, ErrInvalidInput), check.Equals, true, check.Commentf("value %v: %v", bad, err))
	}
}

func (s *countsSuite) TestNoAltCounts(c *check.C) {
	counts := altRefCounts()
	counts.Alt = csrFromRows(4, [][]float64{{}, {}, {}})
	_, err := NewModel(counts, testConfig())
	c.Check(errors.Is(err, ErrInvalidInput), check.Equals, true, check.Commentf("%v", err))
}

func (s *countsSuite) TestBadConfig(c *check.C) {
	for _, trial := range []struct {
		donors     int
		iterations int
		threshold  float64
	}{
		{0, 15, 0.9},
		{-1, 15, 0.9},
		{2, 0, 0.9},
		{2, 15, 0.5},
		{2, 15, 0.2},
		{2, 15, 1.01},
	} {
		cfg := testConfig()
		cfg.Donors = trial.donors
		cfg.Iterations = trial.iterations
		cfg.Threshold = trial.threshold
		_, err := NewModel(altRefCounts(), cfg)
		c.Check(errors.Is(err, ErrInvalidInput), check.Equals, true, check.Commentf("%+v: %v", trial, err))
	}
}

func (s *countsSuite) TestInitialFrequencies(c *check.C) {
	cfg := testConfig()
	cfg.Donors = 3
	m, err := NewModel(randomCounts(1, 50, 40), cfg)
	c.Assert(err, check.IsNil)
	c.Check(m.State(), check.Equals, Iterating)
	nsnv, donors := m.maf.Dims()
	c.Check(nsnv, check.Equals, 50)
	c.Check(donors, check.Equals, 3)
	for v := 0; v < nsnv; v++ {
		for k := 0; k < donors; k++ {
			f := m.maf.At(v, k)
			c.Check(f > 0 && f < 1, check.Equals, true)
		}
	}
	// Columns are independent draws, not copies.
	c.Check(m.maf.At(0, 0) == m.maf.At(0, 1) && m.maf.At(1, 0) == m.maf.At(1, 1), check.Equals, false)
	nbc, _ := m.posterior.Dims()
	for i := 0; i < nbc; i++ {
		for k := 0; k < donors; k++ {
			c.Check(m.posterior.At(i, k), check.Equals, 0.0)
			c.Check(m.loglik.At(i, k), check.Equals, 0.0)
		}
	}
	for _, a := range m.assigned {
		c.Check(a, check.HasLen, 0)
	}
}
