// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package assign implements the abundance-constrained read assignment
// engine: five phases that commit each read to exactly one reference (or a
// sentinel). Phases 2-4 commit to a real reference only while its committed
// share is below its estimated abundance plus one read's worth of slack;
// Phase 1's uniquely-mapped reads and Phase 5's "prob" draws are committed
// without that check.
package assign

import (
	"sync"

	"github.com/grailbio/mora/refalign"
)

// scoredSet is the set of read ids committed to a reference at one exact
// committed score, mirroring assignment.rs's
// HashMap<reference, HashMap<score, HashSet<query>>>.
type scoredSet map[int]map[int]map[int]bool

// state tracks every committed assignment and the abundance-derived
// capacity each real reference has left. It is shared across phases and
// guarded by mu whenever a phase may run its candidate search concurrently
// (Phase 4).
type state struct {
	mu sync.Mutex

	abundance []float32 // 1-indexed
	capacity  []float32 // 1-indexed: abundance[r] + 1/Q
	committed []float32 // 1-indexed running committed share

	byRefScore scoredSet
	output     map[int]int // readID -> committed reference id (real or sentinel)
	reads      map[int]*refalign.Read

	q int // mapped read count, Q
}

func newState(abundance []float32, q int, reads []*refalign.Read) *state {
	n := len(abundance)
	capacity := make([]float32, n)
	inc := float32(0)
	if q > 0 {
		inc = 1.0 / float32(q)
	}
	for i := 1; i < n; i++ {
		capacity[i] = abundance[i] + inc
	}
	byID := make(map[int]*refalign.Read, len(reads))
	for _, r := range reads {
		if r != nil {
			byID[r.ID] = r
		}
	}
	return &state{
		abundance:  abundance,
		capacity:   capacity,
		committed:  make([]float32, n),
		byRefScore: scoredSet{},
		output:     make(map[int]int),
		reads:      byID,
		q:          q,
	}
}

func (s *state) perReadShare() float32 {
	if s.q <= 0 {
		return 0
	}
	return 1.0 / float32(s.q)
}

// hasSpace reports whether ref still has committed capacity left.
// Sentinel targets (UNASSIGNED-BY-POLICY, UNMAPPED-BY-ALIGNER) always have
// space: they are not abundance-bounded.
func (s *state) hasSpace(ref int) bool {
	if ref <= 0 {
		return true
	}
	if ref >= len(s.capacity) {
		return false
	}
	return s.committed[ref] < s.capacity[ref]
}

// addAssignment commits readID to ref at the given score. Safe for
// concurrent use.
func (s *state) addAssignment(readID, ref, score int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addAssignmentLocked(readID, ref, score)
}

func (s *state) addAssignmentLocked(readID, ref, score int) {
	if ref > 0 && ref < len(s.committed) {
		s.committed[ref] += s.perReadShare()
	}
	if s.byRefScore[ref] == nil {
		s.byRefScore[ref] = map[int]map[int]bool{}
	}
	if s.byRefScore[ref][score] == nil {
		s.byRefScore[ref][score] = map[int]bool{}
	}
	s.byRefScore[ref][score][readID] = true
	s.output[readID] = ref
}

// removeAssignmentLocked undoes a prior commit, used by Phase 4's swap.
// Caller must hold mu.
func (s *state) removeAssignmentLocked(readID, ref, score int) {
	if ref > 0 && ref < len(s.committed) {
		s.committed[ref] -= s.perReadShare()
	}
	if byScore, ok := s.byRefScore[ref]; ok {
		if set, ok := byScore[score]; ok {
			delete(set, readID)
		}
	}
	delete(s.output, readID)
}

// stillCommittedLocked reports whether readID is still committed to ref at
// score. Caller must hold mu.
func (s *state) stillCommittedLocked(readID, ref, score int) bool {
	byScore, ok := s.byRefScore[ref]
	if !ok {
		return false
	}
	set, ok := byScore[score]
	if !ok {
		return false
	}
	return set[readID]
}

// Outcome is assign.Run's result: the committed reference id per read id,
// and the same mapping keyed by query name for writing the output table.
type Outcome struct {
	ByReadID map[int]int
	ByName   map[string]string
}

func (s *state) outcome(reads []*refalign.Read, refs []refalign.Reference) *Outcome {
	byName := make(map[string]string, len(s.output))
	for readID, ref := range s.output {
		name := reads[readID].Name
		if sentinel, ok := refalign.SentinelName(ref); ok {
			byName[name] = sentinel
		} else {
			byName[name] = refs[ref].Name
		}
	}
	byReadID := make(map[int]int, len(s.output))
	for k, v := range s.output {
		byReadID[k] = v
	}
	return &Outcome{ByReadID: byReadID, ByName: byName}
}
