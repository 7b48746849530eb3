// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// EStep recomputes the per-barcode log2 likelihood under each
// donor's current allele frequencies,
//
//	lP[c,k] = sum_v alt[v,c]*log2(maf[v,k]) + ref[v,c]*log2(1-maf[v,k])
//
// and the posterior donor probabilities derived from it. Both
// matrices are fully overwritten.
func EStep(m *Model) error {
	nsnv, _ := m.maf.Dims()
	nbc, donors := m.loglik.Dims()
	cols := make([][]float64, donors)
	err := eachDonor(donors, m.cfg.Threads, func(k int) error {
		logp := make([]float64, nsnv)
		logq := make([]float64, nsnv)
		for v := range logp {
			f := m.maf.At(v, k)
			logp[v] = math.Log2(f)
			logq[v] = math.Log2(1 - f)
		}
		lp := make([]float64, nbc)
		m.counts.Alt.DoNonZero(func(v, c int, n float64) {
			lp[c] += n * logp[v]
		})
		m.counts.Ref.DoNonZero(func(v, c int, n float64) {
			lp[c] += n * logq[v]
		})
		cols[k] = lp
		return nil
	})
	if err != nil {
		return err
	}
	for k, lp := range cols {
		m.loglik.SetCol(k, lp)
	}
	updatePosterior(m.posterior, m.loglik)
	return nil
}

// updatePosterior sets each row of post to the softmax of the
// corresponding row of loglik (base 2). Likelihoods are never
// exponentiated directly: P[c,i] = 1 / sum_j 2^(lP[c,j]-lP[c,i]).
// The j==i term is 1, so the denominator is never below 1, and a
// huge difference just drives the entry to 0.
func updatePosterior(post, loglik *mat.Dense) {
	nbc, donors := loglik.Dims()
	row := make([]float64, donors)
	for c := 0; c < nbc; c++ {
		mat.Row(row, c, loglik)
		for i, li := range row {
			denom := 0.0
			for _, lj := range row {
				denom += math.Exp2(lj - li)
			}
			post.Set(c, i, 1/denom)
		}
	}
}
