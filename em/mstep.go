// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// MStep re-estimates every donor's allele frequencies as the
// posterior-weighted alt fraction with Laplace smoothing:
//
//	maf[v,k] = (sum_c alt[v,c]*P[c,k] + 1) / (sum_c (alt+ref)[v,c]*P[c,k] + 2)
//
// The sums are sparse matrix / dense column products. MAF is only
// overwritten if every column is valid.
func MStep(m *Model) error {
	nsnv, donors := m.maf.Dims()
	cols := make([][]float64, donors)
	err := eachDonor(donors, m.cfg.Threads, func(k int) error {
		post := mat.Col(nil, k, m.posterior)
		alt := make([]float64, nsnv)
		total := make([]float64, nsnv)
		m.counts.Alt.DoNonZero(func(v, c int, n float64) {
			w := n * post[c]
			alt[v] += w
			total[v] += w
		})
		m.counts.Ref.DoNonZero(func(v, c int, n float64) {
			total[v] += n * post[c]
		})
		for v := range alt {
			denom := total[v] + 2
			if denom == 0 {
				return fmt.Errorf("%w: zero denominator at SNV %q donor %d", ErrDegenerateFrequency, m.counts.SNVs[v], k)
			}
			f := (alt[v] + 1) / denom
			if !(f > 0 && f < 1) {
				return fmt.Errorf("%w: frequency %v at SNV %q donor %d", ErrDegenerateFrequency, f, m.counts.SNVs[v], k)
			}
			alt[v] = f
		}
		cols[k] = alt
		return nil
	})
	if err != nil {
		return err
	}
	for k, f := range cols {
		m.maf.SetCol(k, f)
	}
	return nil
}
