// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package assign

import (
	"github.com/grailbio/mora/refalign"
)

// uniqueMappingScore is the synthetic commit score Phase 1 records for a
// uniquely-mapped read in place of its raw alignment score. It is large
// enough that Phase 4's swap inequality never displaces a unique mapping in
// favor of an ambiguous one.
const uniqueMappingScore = 1000

// Config tunes the assignment engine.
type Config struct {
	// ScoreMaxDiff is Phase 2's dominance threshold: (best-second)/best
	// must exceed this for a read to commit early on its best mapping.
	ScoreMaxDiff float32
	// FallbackMethod selects Phase 5's policy for reads that never find
	// space: MethodNone commits them UNASSIGNED-BY-POLICY, MethodProb
	// draws one reference weighted by mapping score.
	FallbackMethod refalign.Method
	// Workers bounds Phase 4's swap-search concurrency.
	Workers int
}

// Run executes all five assignment phases in order and returns each read's
// final commit.
//
// Grounded on assignment.rs::assign_mappings.
func Run(reads []*refalign.Read, refs []refalign.Reference, abundance []float32, mappedCount int, cfg Config) *Outcome {
	st := newState(abundance, mappedCount, reads)

	remaining := initialAssignment(st, reads)
	remaining = secondaryAssignment(st, remaining, cfg.ScoreMaxDiff)
	remaining = greedyAbundanceAssignment(st, remaining)
	remaining = swapAssignment(st, remaining, cfg.Workers)
	fallbackAssignment(st, remaining, cfg.FallbackMethod)

	return st.outcome(reads, refs)
}

// initialAssignment is Phase 1: unique mappings and unmapped reads commit
// immediately; reads needing further disambiguation are returned.
func initialAssignment(st *state, reads []*refalign.Read) []*refalign.Read {
	var remaining []*refalign.Read
	for _, r := range reads {
		if r == nil {
			continue
		}
		switch r.Count() {
		case 0:
			st.addAssignment(r.ID, refalign.UnmappedByAligner, 0)
		case 1:
			st.addAssignment(r.ID, r.Mappings[0].ReferenceID, uniqueMappingScore)
		default:
			remaining = append(remaining, r)
		}
	}
	return remaining
}

// secondaryAssignment is Phase 2: a read whose best mapping dominates its
// second-best by more than scoreMaxDiff commits immediately if its
// reference still has space.
func secondaryAssignment(st *state, reads []*refalign.Read, scoreMaxDiff float32) []*refalign.Read {
	var remaining []*refalign.Read
	for _, r := range reads {
		bestRef, bestScore, _, secondScore := r.BestMappings()
		if bestScore > 0 {
			diff := (bestScore - secondScore) / bestScore
			if diff > scoreMaxDiff && st.hasSpace(bestRef) {
				st.addAssignment(r.ID, bestRef, int(bestScore))
				continue
			}
		}
		remaining = append(remaining, r)
	}
	return remaining
}
