// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package assign

import (
	"sort"
	"sync"

	"github.com/grailbio/mora/internal/parallel"
	"github.com/grailbio/mora/refalign"
)

// swapProposal describes displacing a committed read to make room for a
// new one.
type swapProposal struct {
	readID int
	ref    int
	score  int

	victimReadID   int
	victimOldRef   int
	victimOldScore int
	victimNewRef   int
	victimNewScore int
}

// swapAssignment is Phase 4: for each still-uncommitted read, search for a
// committed read whose displacement to one of its own other mappings would
// free up space at a reference this read wants, and where doing so is a net
// improvement by the swap inequality. Reads with total_score == 0 are
// numerically degenerate for the swap's normalised arithmetic and commit
// straight to UNASSIGNED-BY-POLICY instead of searching.
//
// Proposals are searched in parallel (internal/parallel.ForEach) and
// applied one at a time by a single goroutine (internal/parallel.Collect),
// matching SPEC_FULL.md's concurrency note and markduplicates.generatePAM's
// single-writer/parallel-producer shape.
//
// Grounded on assignment.rs::try_open_up_space.
func swapAssignment(st *state, reads []*refalign.Read, workers int) []*refalign.Read {
	var toSearch []*refalign.Read
	for _, r := range reads {
		if r.TotalScore() == 0 {
			st.addAssignment(r.ID, refalign.UnassignedByPolicy, 0)
			continue
		}
		toSearch = append(toSearch, r)
	}

	committed := make(map[int]bool, len(toSearch))
	var mu sync.Mutex

	parallel.Collect(func(out chan<- swapProposal) {
		_ = parallel.ForEach(toSearch, workers, func(r *refalign.Read) error {
			if p, ok := findSwap(st, r); ok {
				out <- p
			}
			return nil
		})
	}, func(p swapProposal) {
		mu.Lock()
		defer mu.Unlock()
		if committed[p.readID] {
			return
		}
		st.mu.Lock()
		defer st.mu.Unlock()
		if !st.stillCommittedLocked(p.victimReadID, p.victimOldRef, p.victimOldScore) {
			return
		}
		if !st.hasSpace(p.victimNewRef) {
			return
		}
		st.removeAssignmentLocked(p.victimReadID, p.victimOldRef, p.victimOldScore)
		st.addAssignmentLocked(p.victimReadID, p.victimNewRef, p.victimNewScore)
		st.addAssignmentLocked(p.readID, p.ref, p.score)
		committed[p.readID] = true
	})

	var remaining []*refalign.Read
	for _, r := range toSearch {
		if !committed[r.ID] {
			remaining = append(remaining, r)
		}
	}
	return remaining
}

// findSwap looks for one profitable swap for r, examining committed reads
// at each of r's candidate references in score-descending order, and within
// each reference, committed reads by committed-score ascending (the
// cheapest ones to displace first).
func findSwap(st *state, r *refalign.Read) (swapProposal, bool) {
	total := r.TotalScore()
	sorted := r.SortedByScoreDesc()

	st.mu.Lock()
	defer st.mu.Unlock()

	for _, m := range sorted {
		ref := m.ReferenceID
		newNorm := float32(m.Score) / total

		byScore, ok := st.byRefScore[ref]
		if !ok {
			continue
		}
		keys := make([]int, 0, len(byScore))
		for k := range byScore {
			keys = append(keys, k)
		}
		sort.Ints(keys)

		for _, k := range keys {
			kNorm := func(totalPrime float32) float32 { return float32(k) / totalPrime }
			for victimID := range byScore[k] {
				if victimID == r.ID {
					continue
				}
				victim := st.reads[victimID]
				if victim == nil {
					continue
				}
				totalPrime := victim.TotalScore()
				if totalPrime == 0 {
					continue
				}
				for _, mPrime := range victim.Mappings {
					if mPrime.ReferenceID == ref {
						continue
					}
					if !st.hasSpace(mPrime.ReferenceID) {
						continue
					}
					kn := kNorm(totalPrime)
					deltaLoss := kn - float32(mPrime.Score)/totalPrime
					deltaGain := newNorm - kn
					if deltaLoss < deltaGain {
						return swapProposal{
							readID: r.ID, ref: ref, score: m.Score,
							victimReadID: victimID, victimOldRef: ref, victimOldScore: k,
							victimNewRef: mPrime.ReferenceID, victimNewScore: mPrime.Score,
						}, true
					}
				}
			}
		}
	}
	return swapProposal{}, false
}
