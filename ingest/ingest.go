// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"io"
	"sort"

	"github.com/grailbio/base/log"
	"github.com/grailbio/mora/refalign"
	"github.com/pkg/errors"
)

// Stats carries the supplemented read statistics (SPEC_FULL.md
// "Multi-mapped / unmapped read statistics logging"), grounded on
// cedar.rs's Stats/process_reads_parallel.
type Stats struct {
	TotalReads  int
	MultiMapped int
	Unmapped    int
}

// Options configures a single Load call.
type Options struct {
	Method      refalign.Method
	SegmentSize int
}

// Result is everything a single ingest pass produces: the dense reference
// and read tables, the aggregated equivalence classes, each reference's
// estimated coverage fraction, the initial per-strain count estimate the EM
// engine starts from, and read statistics.
type Result struct {
	// References is 1-indexed; References[0] is the unused "no
	// reference" slot.
	References []refalign.Reference
	// Reads is 1-indexed; Reads[0] is nil.
	Reads []*refalign.Read
	// Classes is the finished, normalised equivalence-class table.
	Classes []refalign.EquivalenceClass
	// Coverage is 1-indexed, aligned with References.
	Coverage []float32
	// InitialStrainCount is 1-indexed, aligned with References: the
	// EM engine's starting point, each mapping contributing
	// 1/|read.Mappings| to its reference.
	InitialStrainCount []float32
	// MappedReadCount is Q, the number of reads with at least one
	// mapping -- the denominator the assignment engine's capacity rule
	// uses.
	MappedReadCount int
	Stats           Stats
}

// Load runs the full ingest pass over src: parse every record, build the
// dense reference/read tables, accumulate equivalence classes and coverage
// bins, and compute the EM engine's initial per-strain estimate.
func Load(src AlignmentSource, opts Options) (*Result, error) {
	headers, err := src.Header()
	if err != nil {
		return nil, errors.Wrap(err, "ingest: reading header")
	}

	references := make([]refalign.Reference, len(headers)+1)
	nameToID := make(map[string]int, len(headers))
	for i, h := range headers {
		id := i + 1
		references[id] = refalign.Reference{ID: id, Name: h.Name, Length: h.Length}
		nameToID[h.Name] = id
	}

	reads := []*refalign.Read{nil}
	readIndex := make(map[string]int)

	for {
		rec, err := src.Next()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, errors.Wrap(err, "ingest: reading record")
		}

		id, ok := readIndex[rec.QName]
		if !ok {
			id = len(reads)
			reads = append(reads, &refalign.Read{ID: id, Name: rec.QName})
			readIndex[rec.QName] = id
		}

		if rec.RName == "" {
			continue
		}
		refID, ok := nameToID[rec.RName]
		if !ok {
			return nil, &FormatError{Token: rec.RName, Msg: "record references unknown reference name"}
		}
		score := refalign.TransformScore(opts.Method, rec.AS, rec.HasAS)
		reads[id].AddMapping(refalign.Mapping{ReferenceID: refID, Score: score, Position: rec.Pos})
	}

	result := process(references, reads, opts.SegmentSize)
	log.Debug.Printf(
		"ingest: %d reads (%d multi-mapped, %d unmapped), %d references, %d equivalence classes",
		result.Stats.TotalReads, result.Stats.MultiMapped, result.Stats.Unmapped,
		len(references)-1, len(result.Classes))
	return result, nil
}

// process builds equivalence classes, coverage, and the initial per-strain
// estimate from already-parsed reads. Grounded on cedar.rs's
// process_reads_parallel and update_bins/calculate_coverage.
func process(references []refalign.Reference, reads []*refalign.Read, segmentSize int) *Result {
	builder := NewEquivalenceClassBuilder()
	cov := NewCoverageEstimator(references, segmentSize)
	strainInit := make([]float32, len(references))

	var stats Stats
	mapped := 0
	for _, r := range reads[1:] {
		stats.TotalReads++
		n := r.Count()
		if n == 0 {
			stats.Unmapped++
			continue
		}
		mapped++
		if n > 1 {
			stats.MultiMapped++
		}

		ids := make([]int, n)
		weights := make([]float32, n)
		for i, m := range r.Mappings {
			ids[i] = m.ReferenceID
			weights[i] = float32(m.Score) / float32(references[m.ReferenceID].Length)
			strainInit[m.ReferenceID] += 1.0 / float32(n)
			cov.Add(m)
		}
		sortByID(ids, weights)
		builder.AddGroup(refalign.NewTargetGroup(ids), weights)
	}

	return &Result{
		References:         references,
		Reads:              reads,
		Classes:            builder.Finish(),
		Coverage:           cov.Coverage(),
		InitialStrainCount: strainInit,
		MappedReadCount:    mapped,
		Stats:              stats,
	}
}

// sortByID sorts ids ascending, permuting weights in lock-step.
func sortByID(ids []int, weights []float32) {
	idx := make([]int, len(ids))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return ids[idx[a]] < ids[idx[b]] })
	sortedIDs := make([]int, len(ids))
	sortedWeights := make([]float32, len(weights))
	for i, j := range idx {
		sortedIDs[i] = ids[j]
		sortedWeights[i] = weights[j]
	}
	copy(ids, sortedIDs)
	copy(weights, sortedWeights)
}
