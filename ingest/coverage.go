// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import "github.com/grailbio/mora/refalign"

// CoverageEstimator divides each reference into ⌈Length / segmentSize⌉
// bins, and treats the fraction of bins any mapping ever lands in as that
// reference's approximate coverage fraction.
type CoverageEstimator struct {
	segmentSize int
	bins        [][]int // index by reference id; nil only at index 0, the "no reference" slot
}

// NewCoverageEstimator allocates bins for every reference in refs (refs[0]
// is the unused "no reference" slot and is skipped).
func NewCoverageEstimator(refs []refalign.Reference, segmentSize int) *CoverageEstimator {
	if segmentSize <= 0 {
		segmentSize = 100
	}
	bins := make([][]int, len(refs))
	for _, r := range refs {
		if r.ID == refalign.NoReference {
			continue
		}
		n := (r.Length + segmentSize - 1) / segmentSize
		if n == 0 {
			n = 1
		}
		bins[r.ID] = make([]int, n)
	}
	return &CoverageEstimator{segmentSize: segmentSize, bins: bins}
}

// Add records one mapping's contribution to its reference's bin histogram.
func (c *CoverageEstimator) Add(m refalign.Mapping) {
	if m.ReferenceID == refalign.NoReference || m.ReferenceID >= len(c.bins) {
		return
	}
	bins := c.bins[m.ReferenceID]
	if bins == nil {
		return
	}
	bin := int(m.Position) / c.segmentSize
	if bin < 0 {
		bin = 0
	}
	if bin >= len(bins) {
		bin = len(bins) - 1
	}
	bins[bin]++
}

// Coverage returns, for every reference id with allocated bins, the
// fraction of bins that saw at least one mapping.
func (c *CoverageEstimator) Coverage() []float32 {
	out := make([]float32, len(c.bins))
	for id, bins := range c.bins {
		if bins == nil {
			continue
		}
		var hit int
		for _, v := range bins {
			if v > 0 {
				hit++
			}
		}
		out[id] = float32(hit) / float32(len(bins))
	}
	return out
}
