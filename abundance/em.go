// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package abundance implements the set-cover pruner and the
// equivalence-class EM engine, together forming one subsystem:
// estimating each reference's relative abundance from the equivalence
// classes ingest built.
package abundance

import (
	"math"

	"github.com/grailbio/base/log"
	"github.com/grailbio/mora/internal/parallel"
	"github.com/grailbio/mora/refalign"
)

// Config tunes the EM loop and its embedded pruning passes. See
// config.Options for the CLI-level defaults these mirror.
type Config struct {
	MaxIterations        int
	Eps                  float32
	MinCnt               float32
	ThresholdingIterStep int
	Workers              int
}

// Result is the EM engine's output: a normalised abundance vector and the
// final validity mask, both 1-indexed and aligned with the reference table
// ingest.Result carries.
type Result struct {
	Abundance  []float32
	Valid      []bool
	Iterations int
}

// Run executes the EM loop: alternate an M-step (spread each equivalence
// class's weight across its still-valid members, proportional to score ×
// current abundance × coverage) and an E-step (check max per-strain delta
// against Eps), invoking the pruner every ThresholdingIterStep iterations
// until either the pruner stops changing anything or it converges, then
// normalises the surviving strain counts into an abundance distribution.
//
// Grounded on cedar.rs::parallel_em.
func Run(classes []refalign.EquivalenceClass, coverage []float32, initial []float32, numRefs int, cfg Config) *Result {
	n := numRefs + 1
	strainCnt := make([]float32, n)
	copy(strainCnt, initial)

	valid := make([]bool, n)
	removable := make([]bool, n)
	for i := 1; i < n; i++ {
		valid[i] = true
	}

	canHelp := true
	converged := false
	iter := 0
	for iter < cfg.MaxIterations && !converged {
		if cfg.ThresholdingIterStep > 0 && iter%cfg.ThresholdingIterStep == 0 && canHelp {
			canHelp = prune(classes, strainCnt, valid, removable, cfg.MinCnt, coverage)
		}

		newStrainCnt := mStep(classes, strainCnt, valid, coverage, n, cfg.Workers)

		converged = true
		var maxDiff float32
		for i := 1; i < n; i++ {
			d := newStrainCnt[i] - strainCnt[i]
			if d < 0 {
				d = -d
			}
			if d > maxDiff {
				maxDiff = d
			}
			if d > cfg.Eps {
				converged = false
			}
		}
		strainCnt = newStrainCnt
		iter++
		log.Debug.Printf("abundance: EM iteration %d max_diff=%.6f", iter, maxDiff)
	}

	abundance := make([]float32, n)
	var sum float32
	for i := 1; i < n; i++ {
		if valid[i] {
			sum += strainCnt[i]
		}
	}
	if sum > 0 {
		for i := 1; i < n; i++ {
			if valid[i] {
				abundance[i] = strainCnt[i] / sum
			}
		}
	}

	log.Debug.Printf("abundance: EM converged after %d iterations (valid=%d/%d)", iter, countValid(valid), numRefs)
	return &Result{Abundance: abundance, Valid: valid, Iterations: iter}
}

// mStep redistributes each equivalence class's weight across its currently
// valid members, using per-worker local accumulators combined by a single
// sequential reduction at the end, avoiding a shared-write hazard across
// the M-step's concurrent class processing.
func mStep(classes []refalign.EquivalenceClass, strainCnt []float32, valid []bool, coverage []float32, n, workers int) []float32 {
	ranges := parallel.Partition(len(classes), workers)
	partials := make([][]float32, len(ranges))

	_ = parallel.ForEachIndex(len(ranges), workers, func(i int) error {
		local := make([]float32, n)
		for idx := ranges[i].Start; idx < ranges[i].End; idx++ {
			accumulateClass(&classes[idx], strainCnt, valid, coverage, local)
		}
		partials[i] = local
		return nil
	})

	total := make([]float32, n)
	for _, local := range partials {
		for i := 1; i < n; i++ {
			total[i] += local[i]
		}
	}
	return total
}

func accumulateClass(ec *refalign.EquivalenceClass, strainCnt []float32, valid []bool, coverage []float32, local []float32) {
	targets := ec.Group.Targets
	w := ec.Value.Combined
	tmp := make([]float32, len(targets))
	var denom float32
	for j, t := range targets {
		if !valid[t] {
			continue
		}
		v := w[j] * strainCnt[t] * coverage[t]
		tmp[j] = v
		denom += v
	}
	if denom == 0 {
		return
	}
	count := float32(ec.Value.Count)
	for j, t := range targets {
		if !valid[t] {
			continue
		}
		contrib := count * (tmp[j] / denom)
		if !math.IsNaN(float64(contrib)) {
			local[t] += contrib
		}
	}
}

func countValid(valid []bool) int {
	n := 0
	for _, v := range valid {
		if v {
			n++
		}
	}
	return n
}
