// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

// Package em assigns pooled single-cell barcodes to donors by
// expectation-maximization over per-donor alternate allele
// frequencies, using only per-cell ref/alt allele counts at a panel
// of SNVs.
package em

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidInput indicates inconsistent counts or config. It is
	// detected before any iteration runs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegenerateFrequency indicates an allele frequency estimate
	// reached 0, 1, or NaN. With non-negative counts the Laplace
	// smoothing in MStep makes this unreachable, so it always means
	// bad data upstream.
	ErrDegenerateFrequency = errors.New("degenerate allele frequency")
)

// Config holds the tunables of a run.
type Config struct {
	// Number of donors (K).
	Donors int
	// Number of E/M rounds. There is no convergence check.
	Iterations int
	// Minimum posterior for a barcode to be assigned to a
	// donor. Must be above 0.5 so assignments are disjoint.
	Threshold float64
	// PRNG seed for the initial allele frequencies.
	Seed uint64
	// Maximum number of donor columns computed concurrently.
	Threads int
	Logger  logrus.FieldLogger
}

// DefaultConfig returns the configuration used by the demux command
// when no flags are given.
func DefaultConfig() Config {
	return Config{
		Donors:     2,
		Iterations: 15,
		Threshold:  0.9,
		Seed:       1,
		Threads:    runtime.NumCPU(),
	}
}

func (cfg *Config) check() error {
	if cfg.Donors < 1 {
		return fmt.Errorf("%w: number of donors %d < 1", ErrInvalidInput, cfg.Donors)
	}
	if cfg.Iterations < 1 {
		return fmt.Errorf("%w: number of iterations %d < 1", ErrInvalidInput, cfg.Iterations)
	}
	if !(cfg.Threshold > 0.5 && cfg.Threshold <= 1) {
		return fmt.Errorf("%w: assignment threshold %v not in (0.5, 1]", ErrInvalidInput, cfg.Threshold)
	}
	if cfg.Threads < 1 {
		cfg.Threads = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return nil
}

// State is the position of a Model in its lifecycle.
type State int

const (
	Initializing State = iota
	Iterating
	Assigning
	Done
)

func (s State) String() string {
	switch s {
	case Initializing:
		return "initializing"
	case Iterating:
		return "iterating"
	case Assigning:
		return "assigning"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
