// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"sort"

	"github.com/grailbio/mora/refalign"
)

// EquivalenceClassBuilder accumulates per-read (TargetGroup, weights) pairs
// into one aggregated class per distinct target
// set, its weight vector summed across every read that shares that set.
//
// Grounded on cedar/equivalence_class_builder.rs's add_group/finish, with
// one deliberate simplification: the Rust original keeps both a HashMap
// (count_map) and a parallel Vec (count_vec) that add_group searches with
// position_any, but count_vec is never populated until finish() runs, which
// makes that search always miss for classes added before finish — a latent
// dead branch. Go's version uses a single map the way the dead branch's
// intent reads: look up by key, aggregate in place, or insert.
type EquivalenceClassBuilder struct {
	index   map[string]int
	classes []refalign.EquivalenceClass
}

// NewEquivalenceClassBuilder returns an empty builder.
func NewEquivalenceClassBuilder() *EquivalenceClassBuilder {
	return &EquivalenceClassBuilder{index: make(map[string]int)}
}

// AddGroup records one read's contribution: its TargetGroup (already sorted
// ascending by reference id) and the per-target weight vector aligned to
// Targets. Weights is copied; the caller's slice is free to be reused.
func (b *EquivalenceClassBuilder) AddGroup(g refalign.TargetGroup, weights []float32) {
	key := g.Key()
	if idx, ok := b.index[key]; ok {
		c := &b.classes[idx]
		c.Value.Count++
		for i, w := range weights {
			c.Value.Weights[i] += w
		}
		return
	}
	b.index[key] = len(b.classes)
	w := append([]float32(nil), weights...)
	b.classes = append(b.classes, refalign.EquivalenceClass{
		Group: g,
		Value: refalign.TGValue{Weights: w, Count: 1},
	})
}

// Finish normalises every class's weight vector and returns the classes
// sorted by TargetGroup hash, so the result is reproducible regardless of
// the order AddGroup was called in.
func (b *EquivalenceClassBuilder) Finish() []refalign.EquivalenceClass {
	sort.Slice(b.classes, func(i, j int) bool {
		if b.classes[i].Group.Hash != b.classes[j].Group.Hash {
			return b.classes[i].Group.Hash < b.classes[j].Group.Hash
		}
		return b.classes[i].Group.Key() < b.classes[j].Group.Key()
	})
	for i := range b.classes {
		b.classes[i].Value.Finish()
	}
	return b.classes
}
