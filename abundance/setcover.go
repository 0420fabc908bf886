// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package abundance

import "math"

// greedySetCover implements cedar/set_covers.rs::greedy_set_cover: a binned
// greedy weighted set cover over numElements elements (ids 0..numElements),
// returning the indices into sets/weights chosen to cover them.
//
// Sets are scored by weight-per-uncovered-element; scores are bucketed into
// discrete bins (bin = floor(score*2)) and consumed lowest-bin-first, at
// most max(1, |uncovered|/20) sets per outer pass, before scores are
// recomputed against the updated coverage. This bin-and-batch shape (rather
// than a plain priority queue) is preserved from the original because it
// changes which near-tied sets get picked in a given pass, and spec.md does
// not ask for that behavior to be "improved".
func greedySetCover(sets [][]int, weights [][]float32, numElements int) []int {
	if numElements == 0 || len(sets) == 0 {
		return nil
	}

	covered := make(map[int]bool, numElements)
	leftover := make(map[int]bool, numElements)
	for i := 0; i < numElements; i++ {
		leftover[i] = true
	}
	candidates := make([]int, len(sets))
	for i := range sets {
		candidates[i] = i
	}

	var chosen []int
	for len(leftover) > 0 && len(candidates) > 0 {
		scoreBins := map[int][]int{}
		for _, idx := range candidates {
			bin := scoreBin(coverScore(covered, sets[idx], weights[idx]))
			scoreBins[bin] = append(scoreBins[bin], idx)
		}

		loopLen := len(leftover) / 20
		if loopLen < 1 {
			loopLen = 1
		}

		cnt := 0
		bin := 0
		maxBin := 0
		for b := range scoreBins {
			if b > maxBin {
				maxBin = b
			}
		}
		for len(leftover) > 0 && cnt < loopLen && bin <= maxBin {
			binFinished := true
			for len(scoreBins[bin]) > 0 {
				if cnt >= loopLen || len(leftover) == 0 {
					binFinished = false
					break
				}
				setIdx := scoreBins[bin][0]
				scoreBins[bin] = scoreBins[bin][1:]
				cnt++

				var coveredAny bool
				for _, e := range sets[setIdx] {
					if leftover[e] {
						delete(leftover, e)
						covered[e] = true
						coveredAny = true
					}
				}
				if coveredAny {
					chosen = append(chosen, setIdx)
				}
			}
			if binFinished {
				bin++
			}
		}

		candidates = candidates[:0]
		for b, lst := range scoreBins {
			_ = b
			candidates = append(candidates, lst...)
		}
	}
	return chosen
}

// coverScore is Σweights(set) / |elements of set not yet covered|, +Inf
// when the set covers nothing new (sent to the last bin, picked only if
// nothing better remains).
func coverScore(covered map[int]bool, set []int, weights []float32) float32 {
	var sum float32
	for _, w := range weights {
		sum += w
	}
	var novel float32
	for _, e := range set {
		if !covered[e] {
			novel++
		}
	}
	if novel == 0 {
		return float32(math.Inf(1))
	}
	return sum / novel
}

func scoreBin(score float32) int {
	if math.IsInf(float64(score), 1) {
		return math.MaxInt32
	}
	return int(math.Floor(float64(score) * 2))
}
