// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"fmt"
	"math"

	"github.com/james-bowman/sparse"
)

// Counts is the input of a run: ref and alt allele counts, one row
// per SNV and one column per barcode.
type Counts struct {
	SNVs     []string
	Barcodes []string
	Ref      *sparse.CSR
	Alt      *sparse.CSR
}

// Validate returns ErrInvalidInput if the matrices disagree with each
// other or with the SNV/barcode lists, or contain anything other
// than non-negative integers.
func (counts *Counts) Validate() error {
	if counts.Ref == nil || counts.Alt == nil {
		return fmt.Errorf("%w: missing count matrix", ErrInvalidInput)
	}
	rr, rc := counts.Ref.Dims()
	ar, ac := counts.Alt.Dims()
	if rr != ar || rc != ac {
		return fmt.Errorf("%w: ref counts are %dx%d but alt counts are %dx%d", ErrInvalidInput, rr, rc, ar, ac)
	}
	if rr != len(counts.SNVs) {
		return fmt.Errorf("%w: count matrices have %d rows but there are %d SNVs", ErrInvalidInput, rr, len(counts.SNVs))
	}
	if rc != len(counts.Barcodes) {
		return fmt.Errorf("%w: count matrices have %d columns but there are %d barcodes", ErrInvalidInput, rc, len(counts.Barcodes))
	}
	for _, m := range []struct {
		name string
		mtx  *sparse.CSR
	}{{"ref", counts.Ref}, {"alt", counts.Alt}} {
		var err error
		m.mtx.DoNonZero(func(i, j int, v float64) {
			if err == nil && (v < 0 || v != math.Trunc(v) || math.IsInf(v, 0)) {
				err = fmt.Errorf("%w: %s count %v at SNV %q barcode %q is not a non-negative integer", ErrInvalidInput, m.name, v, counts.SNVs[i], counts.Barcodes[j])
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// Totals returns the sum of all ref counts and the sum of all alt
// counts.
func (counts *Counts) Totals() (ref, alt float64) {
	counts.Ref.DoNonZero(func(_, _ int, v float64) { ref += v })
	counts.Alt.DoNonZero(func(_, _ int, v float64) { alt += v })
	return
}

// RowBuilder assembles a CSR count matrix one SNV row at a time,
// storing only non-zero entries.
type RowBuilder struct {
	cols int
	ia   []int
	ja   []int
	data []float64
}

// NewRowBuilder returns a builder for a matrix with the given number
// of columns (barcodes).
func NewRowBuilder(cols int) *RowBuilder {
	return &RowBuilder{cols: cols, ia: []int{0}}
}

// AddRow appends a row. Values beyond the column count are an error.
func (b *RowBuilder) AddRow(row []float64) error {
	if len(row) > b.cols {
		return fmt.Errorf("%w: row %d has %d values, expected %d", ErrInvalidInput, len(b.ia)-1, len(row), b.cols)
	}
	for j, v := range row {
		if v != 0 {
			b.ja = append(b.ja, j)
			b.data = append(b.data, v)
		}
	}
	b.ia = append(b.ia, len(b.ja))
	return nil
}

// AddSparseRow appends a row given as parallel column/value slices
// with strictly increasing column indices.
func (b *RowBuilder) AddSparseRow(cols []int, vals []float64) error {
	last := -1
	for i, j := range cols {
		if j <= last || j >= b.cols {
			return fmt.Errorf("%w: row %d: column index %d out of order or out of range", ErrInvalidInput, len(b.ia)-1, j)
		}
		last = j
		if vals[i] != 0 {
			b.ja = append(b.ja, j)
			b.data = append(b.data, vals[i])
		}
	}
	b.ia = append(b.ia, len(b.ja))
	return nil
}

// Rows returns the number of rows added so far.
func (b *RowBuilder) Rows() int {
	return len(b.ia) - 1
}

// CSR returns the assembled matrix. The builder must not be used
// afterwards.
func (b *RowBuilder) CSR() *sparse.CSR {
	return sparse.NewCSR(b.Rows(), b.cols, b.ia, b.ja, b.data)
}
