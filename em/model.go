// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package em

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Model is the mutable state of one run. It is owned by a single
// driver; EStep and MStep read and overwrite its matrices in place.
type Model struct {
	cfg    Config
	counts *Counts
	state  State
	round  int

	maf        *mat.Dense // SNVs x donors
	loglik     *mat.Dense // barcodes x donors, log2
	posterior  *mat.Dense // barcodes x donors
	assigned   [][]string
	loglikHist []float64
}

// NewModel validates the input and draws the initial allele
// frequencies. Every donor column gets an independent per-SNV draw
// from Beta(total ref, total alt), stored as 1-r so the column
// estimates the alt allele frequency.
func NewModel(counts *Counts, cfg Config) (*Model, error) {
	if err := cfg.check(); err != nil {
		return nil, err
	}
	if counts == nil {
		return nil, fmt.Errorf("%w: no counts", ErrInvalidInput)
	}
	if err := counts.Validate(); err != nil {
		return nil, err
	}
	nsnv, nbc := len(counts.SNVs), len(counts.Barcodes)
	if nsnv == 0 || nbc == 0 {
		return nil, fmt.Errorf("%w: empty count matrix (%d SNVs, %d barcodes)", ErrInvalidInput, nsnv, nbc)
	}
	totalRef, totalAlt := counts.Totals()
	if totalRef <= 0 || totalAlt <= 0 {
		return nil, fmt.Errorf("%w: need both ref and alt counts to seed allele frequencies (total ref %v, total alt %v)", ErrInvalidInput, totalRef, totalAlt)
	}

	m := &Model{
		cfg:       cfg,
		counts:    counts,
		state:     Initializing,
		maf:       mat.NewDense(nsnv, cfg.Donors, nil),
		loglik:    mat.NewDense(nbc, cfg.Donors, nil),
		posterior: mat.NewDense(nbc, cfg.Donors, nil),
		assigned:  make([][]string, cfg.Donors),
	}
	beta := distuv.Beta{Alpha: totalRef, Beta: totalAlt, Src: rand.NewSource(cfg.Seed)}
	for k := 0; k < cfg.Donors; k++ {
		for v := 0; v < nsnv; v++ {
			f := 1 - beta.Rand()
			if !(f > 0 && f < 1) {
				return nil, fmt.Errorf("%w: initial frequency %v for SNV %q donor %d", ErrDegenerateFrequency, f, counts.SNVs[v], k)
			}
			m.maf.Set(v, k, f)
		}
	}
	cfg.Logger.WithFields(logrus.Fields{
		"snvs":     nsnv,
		"barcodes": nbc,
		"donors":   cfg.Donors,
		"ref":      totalRef,
		"alt":      totalAlt,
	}).Info("initialized model allele frequencies")
	m.state = Iterating
	return m, nil
}

// State returns the current lifecycle state.
func (m *Model) State() State { return m.state }

// Round returns the number of completed E/M rounds.
func (m *Model) Round() int { return m.round }

// Donors returns K.
func (m *Model) Donors() int { return m.cfg.Donors }
