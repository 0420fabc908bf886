// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package refalign defines the data model shared by every MORA subsystem:
// references, reads, mappings, and the equivalence classes that group reads
// by their target set. Nothing in this package does I/O or algorithmic work;
// it exists so ingest, abundance, and assign can agree on one vocabulary.
package refalign

import (
	"encoding/binary"

	farm "github.com/dgryski/go-farm"
)

// Reference ids are dense and 1-based. 0 is reserved for "no reference".
// Assignment uses two additional out-of-band sentinels for reads that never
// land on a real reference.
const (
	// NoReference marks a Mapping or slot that does not refer to any
	// reference.
	NoReference = 0

	// UnassignedByPolicy is the commit target for a read that the
	// assignment engine's final fallback phase leaves unresolved under
	// method "none".
	UnassignedByPolicy = -1

	// UnmappedByAligner is the commit target for a read with zero
	// mappings from the primary aligner.
	UnmappedByAligner = -2
)

// SentinelName renders an assignment sentinel for the output table.
func SentinelName(refID int) (name string, ok bool) {
	switch refID {
	case UnassignedByPolicy, UnmappedByAligner:
		return "NOT ALIGNED", true
	default:
		return "", false
	}
}

// Bowtie2ScoreOffset is added to a bowtie2 AS:i score before clamping. The
// offset is not justified anywhere in the original implementation; it is
// kept here as a named constant rather than an inline magic number.
const Bowtie2ScoreOffset = 160

// Method selects how a raw AS:i score is turned into Mapping.Score, and,
// independently, which fallback policy assign.Run uses in Phase 5.
type Method string

const (
	MethodPufferfish Method = "pufferfish"
	MethodBowtie2    Method = "bowtie2"
	MethodMinimap2   Method = "minimap2"
	MethodNone       Method = "none"
	MethodProb       Method = "prob"
)

// TransformScore applies the per-method score transform to a raw AS:i
// value. hasAS is false when the record carried no AS tag at all, in which
// case the mapping is scored 0; ingest still records it, as a zero-weight
// mapping.
func TransformScore(method Method, rawAS int, hasAS bool) int {
	if !hasAS {
		return 0
	}
	switch method {
	case MethodBowtie2:
		score := rawAS + Bowtie2ScoreOffset
		if score <= 0 {
			return 1
		}
		return score
	default:
		return rawAS
	}
}

// Reference is a single target genome in the database. Immutable after
// ingest.
type Reference struct {
	ID     int
	Name   string
	Length int
}

// Mapping is one alignment record: a read mapped to a reference at a
// position with a score.
type Mapping struct {
	ReferenceID int
	Score       int
	Position    int64
}

// Read is a distinct query name observed in the input, together with every
// mapping recorded for it. A Read with no Mappings is "unmapped".
type Read struct {
	ID       int
	Name     string
	Mappings []Mapping

	// totalScore caches the sum of Mappings[*].Score, kept current by
	// AddMapping.
	totalScore float32
}

// AddMapping appends a mapping and updates the cached total score. It is the
// only mutator Read exposes after construction, matching the ingest-time-
// only mutation the data model documents.
func (r *Read) AddMapping(m Mapping) {
	r.Mappings = append(r.Mappings, m)
	r.totalScore += float32(m.Score)
}

// Count returns the number of mappings recorded for the read.
func (r *Read) Count() int { return len(r.Mappings) }

// Unmapped reports whether the read has zero mappings.
func (r *Read) Unmapped() bool { return len(r.Mappings) == 0 }

// TotalScore returns the cached sum of all mapping scores.
func (r *Read) TotalScore() float32 { return r.totalScore }

// BestMappings returns the best and second-best (reference id, score) pairs
// among the read's mappings, 0 where there is no such mapping. Ties are
// broken by mapping order, matching the original's "strictly greater"
// comparisons.
func (r *Read) BestMappings() (bestRef int, bestScore float32, secondRef int, secondScore float32) {
	for _, m := range r.Mappings {
		s := float32(m.Score)
		switch {
		case s > bestScore:
			secondRef, secondScore = bestRef, bestScore
			bestRef, bestScore = m.ReferenceID, s
		case s > secondScore:
			secondRef, secondScore = m.ReferenceID, s
		}
	}
	return
}

// SortedByScoreDesc returns the read's mappings ordered from highest to
// lowest score. The input slice is not modified.
func (r *Read) SortedByScoreDesc() []Mapping {
	out := make([]Mapping, len(r.Mappings))
	copy(out, r.Mappings)
	// Small, fixed-size per-read slices: insertion sort is both simple and
	// fast here, and keeps equal-score order stable like a stable sort
	// would, which matters for reproducibility.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Score > out[j-1].Score; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// TargetGroup is an equivalence-class key: the length-sorted, ascending
// sequence of reference ids a read's mappings project onto. Two reads are
// equivalent iff their TargetGroups are equal.
type TargetGroup struct {
	Targets []int
	// Hash is a cached content hash of Targets, purely a micro-
	// optimization: equality and map-keying both use the sequence
	// itself, not this field.
	Hash uint64
}

// NewTargetGroup builds a TargetGroup from an already ascending-sorted id
// slice and computes its cached hash.
func NewTargetGroup(sortedIDs []int) TargetGroup {
	tgts := make([]int, len(sortedIDs))
	copy(tgts, sortedIDs)
	return TargetGroup{Targets: tgts, Hash: hashIDs(tgts)}
}

func hashIDs(ids []int) uint64 {
	buf := make([]byte, 8*len(ids))
	for i, id := range ids {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(id))
	}
	return farm.Hash64(buf)
}

// Key returns a value usable as a Go map key that is equal iff the two
// TargetGroups contain the same ids in the same order.
func (tg TargetGroup) Key() string {
	buf := make([]byte, 8*len(tg.Targets))
	for i, id := range tg.Targets {
		binary.LittleEndian.PutUint64(buf[i*8:], uint64(id))
	}
	return string(buf)
}

// TGValue is the payload of one equivalence class: a weights vector aligned
// to the owning TargetGroup's Targets, a member-read count, and (after
// Finish) a normalised copy of Weights summing to 1.
type TGValue struct {
	Weights  []float32
	Count    int
	Combined []float32
}

// Finish normalises Weights into Combined so that Σ Combined == 1. If the
// weights sum to zero (every member mapping scored 0), Combined is a plain
// copy of Weights and stays all zero.
func (v *TGValue) Finish() {
	v.Combined = make([]float32, len(v.Weights))
	var sum float32
	for _, w := range v.Weights {
		sum += w
	}
	if sum == 0 {
		copy(v.Combined, v.Weights)
		return
	}
	inv := 1 / sum
	for i, w := range v.Weights {
		v.Combined[i] = w * inv
	}
}

// EquivalenceClass pairs a TargetGroup with its aggregated TGValue, the unit
// the EM engine and pruner iterate over.
type EquivalenceClass struct {
	Group TargetGroup
	Value TGValue
}
