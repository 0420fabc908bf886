// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package assign

import (
	"sort"

	"github.com/grailbio/mora/refalign"
)

type candidate struct {
	read  *refalign.Read
	ref   int
	score int
}

// greedyAbundanceAssignment is Phase 3: walk every still-uncommitted read's
// mappings from highest score to lowest, committing a read to the first
// reference encountered (in score order) that still has abundance-bounded
// capacity. Reads whose total score is 0 are not binned; they pass on to
// Phase 4, which commits them UNASSIGNED-BY-POLICY.
//
// Grounded on assignment.rs::assign_based_on_abundance's score-bin walk.
func greedyAbundanceAssignment(st *state, reads []*refalign.Read) []*refalign.Read {
	bins := map[int][]candidate{}
	for _, r := range reads {
		if r.TotalScore() == 0 {
			continue
		}
		for _, m := range r.Mappings {
			bins[m.Score] = append(bins[m.Score], candidate{read: r, ref: m.ReferenceID, score: m.Score})
		}
	}
	scores := make([]int, 0, len(bins))
	for s := range bins {
		scores = append(scores, s)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(scores)))

	committed := make(map[int]bool, len(reads))
	for _, s := range scores {
		for _, c := range bins[s] {
			if committed[c.read.ID] {
				continue
			}
			if st.hasSpace(c.ref) {
				st.addAssignment(c.read.ID, c.ref, c.score)
				committed[c.read.ID] = true
			}
		}
	}

	var remaining []*refalign.Read
	for _, r := range reads {
		if !committed[r.ID] {
			remaining = append(remaining, r)
		}
	}
	return remaining
}
