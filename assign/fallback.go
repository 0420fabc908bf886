// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package assign

import (
	"github.com/grailbio/mora/refalign"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// fallbackAssignment is Phase 5: every read that survived Phases 1-4
// uncommitted is resolved by config.Options.FallbackMethod. "none" leaves
// it UNASSIGNED-BY-POLICY; "prob" draws one reference from its mappings,
// weighted by score, replacing the original's rand_distr::WeightedAliasIndex
// draw.
//
// Grounded on assignment.rs::assign_based_on_prob / leave_left_overs.
func fallbackAssignment(st *state, reads []*refalign.Read, method refalign.Method) {
	if method != refalign.MethodProb {
		for _, r := range reads {
			st.addAssignment(r.ID, refalign.UnassignedByPolicy, 0)
		}
		return
	}

	for _, r := range reads {
		weights := make([]float64, len(r.Mappings))
		for i, m := range r.Mappings {
			weights[i] = float64(m.Score)
		}
		w := sampleuv.NewWeighted(weights, nil)
		idx, ok := w.Take()
		if !ok {
			st.addAssignment(r.ID, refalign.UnassignedByPolicy, 0)
			continue
		}
		m := r.Mappings[idx]
		st.addAssignment(r.ID, m.ReferenceID, m.Score)
	}
}
