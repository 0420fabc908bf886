// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package abundance

import (
	"testing"

	"github.com/grailbio/mora/refalign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eqClass(targets []int, weights []float32, count int) refalign.EquivalenceClass {
	tg := refalign.NewTargetGroup(targets)
	v := refalign.TGValue{Weights: weights, Count: count}
	v.Finish()
	return refalign.EquivalenceClass{Group: tg, Value: v}
}

func TestRunConvergesAndNormalises(t *testing.T) {
	// Two references; ref 1 gets a unique-supporting class plus a
	// shared ambiguous class, ref 2 only the shared class -- ref 1
	// should end up with the larger share.
	classes := []refalign.EquivalenceClass{
		eqClass([]int{1}, []float32{1}, 10),
		eqClass([]int{1, 2}, []float32{0.6, 0.4}, 5),
	}
	coverage := []float32{0, 1, 1}
	initial := []float32{0, 10, 5}

	res := Run(classes, coverage, initial, 2, DefaultConfig)
	require.Len(t, res.Abundance, 3)

	var sum float32
	for _, a := range res.Abundance {
		sum += a
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
	assert.Greater(t, res.Abundance[1], res.Abundance[2])
	assert.True(t, res.Valid[1])
}

func TestRunSkipsZeroCoverageClasses(t *testing.T) {
	classes := []refalign.EquivalenceClass{
		eqClass([]int{1}, []float32{1}, 3),
	}
	coverage := []float32{0, 0}
	initial := []float32{0, 3}
	cfg := DefaultConfig
	cfg.MaxIterations = 5

	res := Run(classes, coverage, initial, 1, cfg)
	assert.Equal(t, float32(0), res.Abundance[1])
}

func TestPruneRemovesLowAbundanceAmbiguousStrain(t *testing.T) {
	classes := []refalign.EquivalenceClass{
		eqClass([]int{1}, []float32{1}, 100),
		eqClass([]int{1, 2}, []float32{0.5, 0.5}, 1),
	}
	valid := []bool{false, true, true}
	removable := make([]bool, 3)
	strainCnt := []float32{0, 100, 0.01}
	coverage := []float32{0, 1, 1}

	changed := prune(classes, strainCnt, valid, removable, 0.1, coverage)
	assert.True(t, changed)
	assert.True(t, valid[1])
	assert.False(t, valid[2])
}

func TestPruneProtectsUniqueSupport(t *testing.T) {
	// Reference 2 is the sole valid member of the second class, so it
	// must never be pruned even though its count is below minCnt.
	classes := []refalign.EquivalenceClass{
		eqClass([]int{1, 2}, []float32{0.5, 0.5}, 1),
		eqClass([]int{2}, []float32{1}, 1),
	}
	valid := []bool{false, true, true}
	removable := make([]bool, 3)
	strainCnt := []float32{0, 100, 0.01}
	coverage := []float32{0, 1, 1}

	prune(classes, strainCnt, valid, removable, 0.1, coverage)
	assert.True(t, valid[2])
}

func TestGreedySetCoverCoversEveryElement(t *testing.T) {
	sets := [][]int{{0, 1}, {1, 2}, {2, 3}}
	weights := [][]float32{{1, 1}, {1, 1}, {1, 1}}
	chosen := greedySetCover(sets, weights, 4)
	covered := map[int]bool{}
	for _, idx := range chosen {
		for _, e := range sets[idx] {
			covered[e] = true
		}
	}
	for e := 0; e < 4; e++ {
		assert.True(t, covered[e], "element %d not covered", e)
	}
}
