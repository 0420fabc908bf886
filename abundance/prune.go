// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package abundance

import (
	"sort"

	"github.com/grailbio/mora/refalign"
)

// prune runs one set-cover pruning pass: mark low-abundance
// strains as pruning candidates, protect any strain that is the sole valid
// member of some equivalence class, then run a weighted set cover over the
// remaining ambiguous classes to decide which candidate strains can safely
// be dropped without losing coverage of any class those candidates alone
// explain. It mutates valid and removable in place and reports whether the
// valid set actually changed.
//
// Grounded on cedar.rs::apply_set_cover.
func prune(classes []refalign.EquivalenceClass, strainCount []float32, valid []bool, removable []bool, minCnt float32, coverage []float32) bool {
	n := len(valid)
	previouslyValid := 0
	for i := 1; i < n; i++ {
		if valid[i] {
			previouslyValid++
		}
		removable[i] = valid[i] && strainCount[i] <= minCnt
	}

	// A strain that is the only valid member of some equivalence class
	// can never be removed: doing so would strand that class.
	for _, ec := range classes {
		var validCount, lastValid int
		for _, tgt := range ec.Group.Targets {
			if valid[tgt] {
				validCount++
				lastValid = tgt
			}
		}
		if validCount == 1 {
			removable[lastValid] = false
		}
	}

	// Build, for each removable strain, the set of "ambiguous" class
	// indices whose valid membership is entirely removable candidates
	// (i.e. classes that would lose no support from a strain that
	// survives pruning).
	refToClasses := map[int]map[int]bool{}
	for ci, ec := range classes {
		var totalValid, totalRemovable int
		for _, tgt := range ec.Group.Targets {
			if valid[tgt] {
				totalValid++
			}
			if removable[tgt] {
				totalRemovable++
			}
		}
		if totalRemovable == 0 || totalRemovable < totalValid {
			continue
		}
		for _, tgt := range ec.Group.Targets {
			if valid[tgt] && removable[tgt] {
				if refToClasses[tgt] == nil {
					refToClasses[tgt] = map[int]bool{}
				}
				refToClasses[tgt][ci] = true
			}
		}
	}

	refs := make([]int, 0, len(refToClasses))
	for ref := range refToClasses {
		refs = append(refs, ref)
	}
	sort.Ints(refs)

	classIDs := map[int]int{}
	nextID := 0
	for _, ref := range refs {
		cis := make([]int, 0, len(refToClasses[ref]))
		for ci := range refToClasses[ref] {
			cis = append(cis, ci)
		}
		sort.Ints(cis)
		for _, ci := range cis {
			if _, ok := classIDs[ci]; !ok {
				classIDs[ci] = nextID
				nextID++
			}
		}
	}

	sets := make([][]int, 0, len(refs))
	weights := make([][]float32, 0, len(refs))
	setRefs := make([]int, 0, len(refs))
	for _, ref := range refs {
		members := refToClasses[ref]
		size := len(members)
		mw := int(coverage[ref] * 10000)
		quotient := mw
		if size > 0 {
			quotient = mw / size
		}
		perElement := float32(quotient)
		if perElement < 1 {
			perElement = 1
		}
		cis := make([]int, 0, size)
		for ci := range members {
			cis = append(cis, ci)
		}
		sort.Ints(cis)
		elems := make([]int, size)
		w := make([]float32, size)
		for i, ci := range cis {
			elems[i] = classIDs[ci]
			w[i] = perElement
		}
		sets = append(sets, elems)
		weights = append(weights, w)
		setRefs = append(setRefs, ref)
	}

	chosen := greedySetCover(sets, weights, nextID)
	kept := make(map[int]bool, len(chosen))
	for _, c := range chosen {
		kept[setRefs[c]] = true
	}

	// Every candidate the cover did not retain is dropped, including
	// candidates that belong to no ambiguous class at all.
	for i := 1; i < n; i++ {
		if removable[i] && !kept[i] {
			valid[i] = false
		}
	}

	nowValid := 0
	for i := 1; i < n; i++ {
		if valid[i] {
			nowValid++
		}
	}
	return nowValid != previouslyValid
}
