// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package config holds MORA's run options and their validation, kept
// independent of any flag-parsing library so it can be exercised directly
// from tests, the same split markduplicates.Opts/validate(opts) uses.
package config

import (
	"fmt"

	"github.com/grailbio/mora/refalign"
)

// Options collects every documented tunable and the CLI flags of the
// original `main.rs`.
type Options struct {
	// SamPath is the input SAM file. Required.
	SamPath string
	// OutputPath is where the assignment table is written. Required.
	OutputPath string
	// AbundanceOutputPath, if set, writes the per-reference abundance
	// table there.
	AbundanceOutputPath string
	// TaxonomyDir, if set, points at a directory containing nodes.dmp,
	// names.dmp, and an accession-to-taxid map; enables per-read
	// lineage rendering. The abundance table is per reference whether or
	// not it is set; no per-taxon abundance is produced (SUPPLEMENTED
	// FEATURES #2).
	TaxonomyDir string
	// CompareGroundTruth, when true and TaxonomyDir is set, adds the
	// TrueSpecies..TrueSuperkingdom columns resolved from the query name
	// (SUPPLEMENTED FEATURES #3).
	CompareGroundTruth bool

	// Method selects the AS:i score transform only; the Phase 5 fallback
	// policy is FallbackMethod.
	Method refalign.Method
	// FallbackMethod is Phase 5's policy: "none" or "prob". Defaults to
	// "none".
	FallbackMethod refalign.Method

	// MinCnt is the per-strain abundance threshold below which a strain
	// becomes a set-cover pruning candidate. Default 0.1.
	MinCnt float32
	// MaxEMIterations bounds the EM loop. Default 300.
	MaxEMIterations int
	// AbundanceEps is the EM convergence threshold on max per-strain
	// delta. Default 0.001.
	AbundanceEps float32
	// ThresholdingIterStep is how often (in EM iterations) the pruner
	// runs. Default 10.
	ThresholdingIterStep int
	// SegmentSize is the coverage-bin width in bases. Default 100.
	SegmentSize int
	// ScoreMaxDiff is the assignment engine's dominance threshold for
	// its early-commit phase. Default 0.5.
	ScoreMaxDiff float32
	// BatchSize bounds how many bytes of SAM text ingest reads per
	// buffered chunk. Default 1e8.
	BatchSize int

	// Threads caps every internal/parallel fan-out's worker count
	// (SUPPLEMENTED FEATURES #4). Default 3.
	Threads int
}

// Default returns the options populated with the documented defaults;
// callers still must set SamPath and OutputPath.
func Default() Options {
	return Options{
		Method:                refalign.MethodPufferfish,
		FallbackMethod:        refalign.MethodNone,
		MinCnt:                0.1,
		MaxEMIterations:       300,
		AbundanceEps:          0.001,
		ThresholdingIterStep:  10,
		SegmentSize:           100,
		ScoreMaxDiff:          0.5,
		BatchSize:             100000000,
		Threads:               3,
	}
}

// InvalidError reports one invalid option: its name, the value it
// received, and why that value is rejected.
type InvalidError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("config: %s=%v invalid: %s", e.Field, e.Value, e.Reason)
}

// Validate checks every option against its documented constraints,
// returning the first violation found as an *InvalidError.
func (o Options) Validate() error {
	if o.SamPath == "" {
		return &InvalidError{Field: "SamPath", Value: o.SamPath, Reason: "required"}
	}
	if o.OutputPath == "" {
		return &InvalidError{Field: "OutputPath", Value: o.OutputPath, Reason: "required"}
	}
	switch o.Method {
	case refalign.MethodPufferfish, refalign.MethodBowtie2, refalign.MethodMinimap2:
	default:
		return &InvalidError{Field: "Method", Value: o.Method, Reason: "must be one of pufferfish, bowtie2, minimap2"}
	}
	switch o.FallbackMethod {
	case refalign.MethodNone, refalign.MethodProb:
	default:
		return &InvalidError{Field: "FallbackMethod", Value: o.FallbackMethod, Reason: `must be "none" or "prob"`}
	}
	if o.MinCnt < 0 {
		return &InvalidError{Field: "MinCnt", Value: o.MinCnt, Reason: "must be >= 0"}
	}
	if o.MaxEMIterations <= 0 {
		return &InvalidError{Field: "MaxEMIterations", Value: o.MaxEMIterations, Reason: "must be > 0"}
	}
	if o.AbundanceEps <= 0 {
		return &InvalidError{Field: "AbundanceEps", Value: o.AbundanceEps, Reason: "must be > 0"}
	}
	if o.ThresholdingIterStep <= 0 {
		return &InvalidError{Field: "ThresholdingIterStep", Value: o.ThresholdingIterStep, Reason: "must be > 0"}
	}
	if o.SegmentSize <= 0 {
		return &InvalidError{Field: "SegmentSize", Value: o.SegmentSize, Reason: "must be > 0"}
	}
	if o.ScoreMaxDiff <= 0 || o.ScoreMaxDiff > 1 {
		return &InvalidError{Field: "ScoreMaxDiff", Value: o.ScoreMaxDiff, Reason: "must be in (0, 1]"}
	}
	if o.BatchSize <= 0 {
		return &InvalidError{Field: "BatchSize", Value: o.BatchSize, Reason: "must be > 0"}
	}
	if o.Threads <= 0 {
		return &InvalidError{Field: "Threads", Value: o.Threads, Reason: "must be > 0"}
	}
	if o.CompareGroundTruth && o.TaxonomyDir == "" {
		return &InvalidError{Field: "CompareGroundTruth", Value: o.CompareGroundTruth, Reason: "requires TaxonomyDir to be set"}
	}
	return nil
}
