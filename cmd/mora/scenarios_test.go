// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"strings"
	"testing"

	"github.com/grailbio/mora/abundance"
	"github.com/grailbio/mora/assign"
	"github.com/grailbio/mora/ingest"
	"github.com/grailbio/mora/refalign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadAndRun(t *testing.T, sam string, abundCfg abundance.Config, assignCfg assign.Config) (*ingest.Result, *abundance.Result, *assign.Outcome) {
	t.Helper()
	src := ingest.NewSAMSource(strings.NewReader(sam), 0)
	loaded, err := ingest.Load(src, ingest.Options{Method: refalign.MethodPufferfish, SegmentSize: 100})
	require.NoError(t, err)

	abundResult := abundance.Run(loaded.Classes, loaded.Coverage, loaded.InitialStrainCount, len(loaded.References), abundCfg)
	outcome := assign.Run(loaded.Reads, loaded.References, abundResult.Abundance, loaded.MappedReadCount, assignCfg)
	return loaded, abundResult, outcome
}

// Single reference; three reads each uniquely mapped with equal score.
// Abundance converges to 1.0, and every read commits to that reference.
func TestScenarioSingleReferenceUniqueReads(t *testing.T) {
	sam := `@HD	VN:1.6
@SQ	SN:R1	LN:1000
r1	0	R1	1	60	10M	*	0	0	*	*	AS:i:60
r2	0	R1	1	60	10M	*	0	0	*	*	AS:i:60
r3	0	R1	1	60	10M	*	0	0	*	*	AS:i:60
`
	_, abundResult, outcome := loadAndRun(t, sam, abundance.DefaultConfig, assign.Config{ScoreMaxDiff: 0.5, FallbackMethod: refalign.MethodNone})
	assert.InDelta(t, 1.0, abundResult.Abundance[1], 1e-6)
	for _, name := range []string{"r1", "r2", "r3"} {
		assert.Equal(t, "R1", outcome.ByName[name])
	}
}

// One read ambiguous between two equal-length, equal-score references.
// The equivalence class normalises to [0.5, 0.5]; abundance splits evenly;
// the read commits to one reference or the other.
func TestScenarioAmbiguousReadSplitsAbundanceEvenly(t *testing.T) {
	sam := `@HD	VN:1.6
@SQ	SN:R1	LN:1000
@SQ	SN:R2	LN:1000
r1	0	R1	1	60	10M	*	0	0	*	*	AS:i:60
r1	0	R2	1	60	10M	*	0	0	*	*	AS:i:60
`
	loaded, abundResult, outcome := loadAndRun(t, sam, abundance.DefaultConfig, assign.Config{ScoreMaxDiff: 0.5, FallbackMethod: refalign.MethodNone})
	require.Len(t, loaded.Classes, 1)
	assert.InDelta(t, 0.5, float64(loaded.Classes[0].Value.Combined[0]), 1e-6)
	assert.InDelta(t, 0.5, float64(abundResult.Abundance[1]), 0.1)
	assert.InDelta(t, 0.5, float64(abundResult.Abundance[2]), 0.1)
	assert.True(t, outcome.ByName["r1"] == "R1" || outcome.ByName["r1"] == "R2")
}

// Three reads with a dominant best mapping commit in the early-commit
// phase under a permissive score_max_diff.
func TestScenarioDominantBestCommitsEarly(t *testing.T) {
	sam := `@HD	VN:1.6
@SQ	SN:R1	LN:1000
@SQ	SN:R2	LN:1000
r1	0	R1	1	60	10M	*	0	0	*	*	AS:i:100
r1	0	R2	1	60	10M	*	0	0	*	*	AS:i:40
r2	0	R1	1	60	10M	*	0	0	*	*	AS:i:100
r2	0	R2	1	60	10M	*	0	0	*	*	AS:i:40
r3	0	R1	1	60	10M	*	0	0	*	*	AS:i:100
r3	0	R2	1	60	10M	*	0	0	*	*	AS:i:40
`
	_, _, outcome := loadAndRun(t, sam, abundance.DefaultConfig, assign.Config{ScoreMaxDiff: 0.5, FallbackMethod: refalign.MethodNone})
	for _, name := range []string{"r1", "r2", "r3"} {
		assert.Equal(t, "R1", outcome.ByName[name])
	}
}

// Two reads each ambiguous between the same two references with equal
// scores; capacity after the early phases is 1/Q on each, so the greedy
// abundance phase splits them one-to-a-reference.
func TestScenarioCapacitySplitsTwoReadsAcrossTwoReferences(t *testing.T) {
	sam := `@HD	VN:1.6
@SQ	SN:R1	LN:1000
@SQ	SN:R2	LN:1000
r1	0	R1	1	60	10M	*	0	0	*	*	AS:i:50
r1	0	R2	1	60	10M	*	0	0	*	*	AS:i:50
r2	0	R1	1	60	10M	*	0	0	*	*	AS:i:50
r2	0	R2	1	60	10M	*	0	0	*	*	AS:i:50
`
	_, _, outcome := loadAndRun(t, sam, abundance.DefaultConfig, assign.Config{ScoreMaxDiff: 0.5, FallbackMethod: refalign.MethodNone})
	committed := map[string]bool{outcome.ByName["r1"]: true, outcome.ByName["r2"]: true}
	assert.True(t, committed["R1"])
	assert.True(t, committed["R2"])
}

// Four strains A,B,C,D; only A has unique support. After pruning, B,C,D
// are invalid and A retains the mass.
func TestScenarioPrunerKeepsOnlyUniquelySupportedStrain(t *testing.T) {
	sam := `@HD	VN:1.6
@SQ	SN:A	LN:1000
@SQ	SN:B	LN:1000
@SQ	SN:C	LN:1000
@SQ	SN:D	LN:1000
r1	0	A	1	60	10M	*	0	0	*	*	AS:i:1
r2	0	A	1	60	10M	*	0	0	*	*	AS:i:1
r3	0	B	1	60	10M	*	0	0	*	*	AS:i:1
r3	0	A	1	60	10M	*	0	0	*	*	AS:i:1
r4	0	B	1	60	10M	*	0	0	*	*	AS:i:1
r4	0	A	1	60	10M	*	0	0	*	*	AS:i:1
r5	0	C	1	60	10M	*	0	0	*	*	AS:i:1
r5	0	A	1	60	10M	*	0	0	*	*	AS:i:1
r6	0	C	1	60	10M	*	0	0	*	*	AS:i:1
r6	0	A	1	60	10M	*	0	0	*	*	AS:i:1
r7	0	D	1	60	10M	*	0	0	*	*	AS:i:1
r7	0	A	1	60	10M	*	0	0	*	*	AS:i:1
r8	0	D	1	60	10M	*	0	0	*	*	AS:i:1
r8	0	A	1	60	10M	*	0	0	*	*	AS:i:1
`
	cfg := abundance.DefaultConfig
	cfg.MinCnt = 1000
	cfg.ThresholdingIterStep = 1
	loaded, abundResult, _ := loadAndRun(t, sam, cfg, assign.Config{ScoreMaxDiff: 0.5, FallbackMethod: refalign.MethodNone})

	aID := refIDByName(loaded.References, "A")
	bID := refIDByName(loaded.References, "B")
	assert.True(t, abundResult.Valid[aID])
	assert.False(t, abundResult.Valid[bID])
}

// One read with two mappings whose references are both already saturated:
// method "prob" draws a weighted sample, method "none" leaves it
// UNASSIGNED-BY-POLICY and renders "NOT ALIGNED".
func TestScenarioFallbackPolicies(t *testing.T) {
	sam := `@HD	VN:1.6
@SQ	SN:R1	LN:1000
@SQ	SN:R2	LN:1000
filler1	0	R1	1	60	10M	*	0	0	*	*	AS:i:100
filler2	0	R2	1	60	10M	*	0	0	*	*	AS:i:100
leftover	0	R1	1	60	10M	*	0	0	*	*	AS:i:1
leftover	0	R2	1	60	10M	*	0	0	*	*	AS:i:1
`
	cfg := abundance.DefaultConfig
	abundNone, _ := runAbundance(t, sam, cfg)
	_, outcomeNone := runAssign(t, sam, abundNone, assign.Config{ScoreMaxDiff: 0.5, FallbackMethod: refalign.MethodNone})
	assert.Equal(t, "NOT ALIGNED", outcomeNone.ByName["leftover"])

	abundProb, loadedProb := runAbundance(t, sam, cfg)
	_, outcomeProb := runAssign(t, sam, abundProb, assign.Config{ScoreMaxDiff: 0.5, FallbackMethod: refalign.MethodProb})
	_ = loadedProb
	assert.True(t, outcomeProb.ByName["leftover"] == "R1" || outcomeProb.ByName["leftover"] == "R2" || outcomeProb.ByName["leftover"] == "NOT ALIGNED")
}

func runAbundance(t *testing.T, sam string, cfg abundance.Config) (*abundance.Result, *ingest.Result) {
	t.Helper()
	src := ingest.NewSAMSource(strings.NewReader(sam), 0)
	loaded, err := ingest.Load(src, ingest.Options{Method: refalign.MethodPufferfish, SegmentSize: 100})
	require.NoError(t, err)
	return abundance.Run(loaded.Classes, loaded.Coverage, loaded.InitialStrainCount, len(loaded.References), cfg), loaded
}

func runAssign(t *testing.T, sam string, abundResult *abundance.Result, cfg assign.Config) (*ingest.Result, *assign.Outcome) {
	t.Helper()
	src := ingest.NewSAMSource(strings.NewReader(sam), 0)
	loaded, err := ingest.Load(src, ingest.Options{Method: refalign.MethodPufferfish, SegmentSize: 100})
	require.NoError(t, err)
	return loaded, assign.Run(loaded.Reads, loaded.References, abundResult.Abundance, loaded.MappedReadCount, cfg)
}

func refIDByName(refs []refalign.Reference, name string) int {
	for _, r := range refs {
		if r.Name == name {
			return r.ID
		}
	}
	return -1
}
