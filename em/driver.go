// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Result is what a finished run exposes.
type Result struct {
	SNVs     []string
	Barcodes []string
	// Assigned[k] is the sorted list of barcodes assigned to
	// donor k. A barcode appears in at most one list.
	Assigned [][]string
	// SNVs x donors.
	MAF *mat.Dense
	// Barcodes x donors, rows sum to 1.
	Posterior *mat.Dense
	// Total log2 likelihood after each round.
	LogLikelihood []float64
}

// Unassigned returns the number of barcodes that did not reach the
// threshold for any donor.
func (r *Result) Unassigned() int {
	n := len(r.Barcodes)
	for _, a := range r.Assigned {
		n -= len(a)
	}
	return n
}

// Iterate runs one E-step followed by one M-step and records the
// total log-likelihood. After the configured number of rounds the
// model moves to the Assigning state.
func (m *Model) Iterate() error {
	if m.state != Iterating {
		return fmt.Errorf("cannot iterate in state %s", m.state)
	}
	if err := EStep(m); err != nil {
		return err
	}
	if err := MStep(m); err != nil {
		return err
	}
	m.round++
	total := mat.Sum(m.loglik)
	if math.IsNaN(total) || math.IsInf(total, 0) {
		return fmt.Errorf("%w: total log-likelihood %v after round %d", ErrDegenerateFrequency, total, m.round)
	}
	m.loglikHist = append(m.loglikHist, total)
	m.cfg.Logger.WithFields(logrus.Fields{
		"iteration":     m.round,
		"loglikelihood": total,
	}).Infof("iteration %d", m.round)
	for k := 0; k < m.cfg.Donors; k++ {
		m.cfg.Logger.Debugf("donor %d: mean allele frequency %.4f, posterior mass %.2f", k, stat.Mean(mat.Col(nil, k, m.maf), nil), floats.Sum(mat.Col(nil, k, m.posterior)))
	}
	if m.round >= m.cfg.Iterations {
		m.state = Assigning
	}
	return nil
}

// Fit runs all remaining rounds.
func (m *Model) Fit() error {
	for m.state == Iterating {
		if err := m.Iterate(); err != nil {
			return err
		}
	}
	return nil
}

// Assign builds the per-donor barcode lists from the final
// posterior: barcode c goes to donor k if P[c,k] >= threshold. With
// threshold above 0.5 and rows summing to 1, no barcode can qualify
// for two donors. Barcodes that qualify for none are left out.
func (m *Model) Assign() error {
	if m.state != Assigning {
		return fmt.Errorf("cannot assign in state %s", m.state)
	}
	nbc, donors := m.posterior.Dims()
	for k := 0; k < donors; k++ {
		var bcs []string
		for c := 0; c < nbc; c++ {
			if m.posterior.At(c, k) >= m.cfg.Threshold {
				bcs = append(bcs, m.counts.Barcodes[c])
			}
		}
		sort.Strings(bcs)
		if len(bcs) == 0 {
			m.cfg.Logger.Warnf("no barcodes assigned to donor %d at threshold %v", k, m.cfg.Threshold)
		}
		m.assigned[k] = bcs
	}
	m.state = Done
	return nil
}

// Result returns the outputs of a finished run. The matrices are
// shared with the model.
func (m *Model) Result() (*Result, error) {
	if m.state != Done {
		return nil, fmt.Errorf("no result available in state %s", m.state)
	}
	return &Result{
		SNVs:          m.counts.SNVs,
		Barcodes:      m.counts.Barcodes,
		Assigned:      m.assigned,
		MAF:           m.maf,
		Posterior:     m.posterior,
		LogLikelihood: m.loglikHist,
	}, nil
}

// Run initializes a model, runs the configured number of rounds,
// and assigns barcodes to donors.
func Run(counts *Counts, cfg Config) (*Result, error) {
	m, err := NewModel(counts, cfg)
	if err != nil {
		return nil, err
	}
	err = m.Fit()
	if err != nil {
		return nil, err
	}
	err = m.Assign()
	if err != nil {
		return nil, err
	}
	return m.Result()
}
