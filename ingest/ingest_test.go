// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package ingest

import (
	"io"
	"strings"
	"testing"

	"github.com/grailbio/mora/refalign"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSAM = "" +
	"@HD\tVN:1.6\n" +
	"@SQ\tSN:chr1\tLN:1000\n" +
	"@SQ\tSN:chr2\tLN:500\n" +
	"r1\t0\tchr1\t10\t60\t50M\t*\t0\t0\tACGT\tIIII\tAS:i:45\n" +
	"r2\t0\tchr1\t20\t60\t50M\t*\t0\t0\tACGT\tIIII\tAS:i:40\n" +
	"r2\t0\tchr2\t30\t60\t50M\t*\t0\t0\tACGT\tIIII\tAS:i:38\n" +
	"r3\t4\t*\t0\t0\t*\t*\t0\t0\tACGT\tIIII\n"

func TestSAMSourceHeaderAndRecords(t *testing.T) {
	src := NewSAMSource(strings.NewReader(sampleSAM), 64)
	headers, err := src.Header()
	require.NoError(t, err)
	require.Len(t, headers, 2)
	assert.Equal(t, "chr1", headers[0].Name)
	assert.Equal(t, 1000, headers[0].Length)
	assert.Equal(t, "chr2", headers[1].Name)

	var recs []AlignmentRecord
	for {
		r, err := src.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		recs = append(recs, r)
	}
	require.Len(t, recs, 4)
	assert.Equal(t, "r1", recs[0].QName)
	assert.Equal(t, "chr1", recs[0].RName)
	assert.Equal(t, 45, recs[0].AS)
	assert.True(t, recs[0].HasAS)
	assert.Equal(t, "", recs[3].RName)
	assert.False(t, recs[3].HasAS)
}

func TestLoadBuildsEquivalenceClassesAndStats(t *testing.T) {
	src := NewSAMSource(strings.NewReader(sampleSAM), 64)
	res, err := Load(src, Options{Method: refalign.MethodPufferfish, SegmentSize: 100})
	require.NoError(t, err)

	assert.Equal(t, 3, res.Stats.TotalReads)
	assert.Equal(t, 1, res.Stats.MultiMapped)
	assert.Equal(t, 1, res.Stats.Unmapped)
	assert.Equal(t, 2, res.MappedReadCount)

	require.Len(t, res.Classes, 2)
	var singleton, pair *refalign.EquivalenceClass
	for i := range res.Classes {
		c := &res.Classes[i]
		if len(c.Group.Targets) == 1 {
			singleton = c
		} else {
			pair = c
		}
	}
	require.NotNil(t, singleton)
	require.NotNil(t, pair)
	assert.Equal(t, []int{1}, singleton.Group.Targets)
	assert.Equal(t, []int{1, 2}, pair.Group.Targets)
	assert.Equal(t, 1, singleton.Value.Count)
	assert.Equal(t, 1, pair.Value.Count)

	var sum float32
	for _, w := range pair.Value.Combined {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	// r1 contributes 1.0 to chr1, r2 contributes 0.5 to each of chr1/chr2.
	assert.InDelta(t, 1.5, res.InitialStrainCount[1], 1e-5)
	assert.InDelta(t, 0.5, res.InitialStrainCount[2], 1e-5)
}

func TestLoadRejectsUnknownReferenceName(t *testing.T) {
	sam := "@SQ\tSN:chr1\tLN:100\n" +
		"r1\t0\tchrX\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\tAS:i:10\n"
	src := NewSAMSource(strings.NewReader(sam), 64)
	_, err := Load(src, Options{Method: refalign.MethodPufferfish, SegmentSize: 10})
	require.Error(t, err)
	var fe *FormatError
	require.ErrorAs(t, err, &fe)
}

func TestLoadToleratesInterleavedDuplicateQueryNames(t *testing.T) {
	sam := "@SQ\tSN:chr1\tLN:100\n" +
		"@SQ\tSN:chr2\tLN:100\n" +
		"r1\t0\tchr1\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\tAS:i:10\n" +
		"r2\t0\tchr1\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\tAS:i:10\n" +
		"r1\t0\tchr2\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\tAS:i:8\n"
	src := NewSAMSource(strings.NewReader(sam), 64)
	res, err := Load(src, Options{Method: refalign.MethodPufferfish, SegmentSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Reads, 3)
	assert.Equal(t, "r1", res.Reads[1].Name)
	assert.Equal(t, 2, res.Reads[1].Count())
}

func TestBowtie2ScoreTransformAppliedDuringIngest(t *testing.T) {
	sam := "@SQ\tSN:chr1\tLN:100\n" +
		"r1\t0\tchr1\t1\t60\t10M\t*\t0\t0\tACGTACGTAC\tIIIIIIIIII\tAS:i:-200\n"
	src := NewSAMSource(strings.NewReader(sam), 64)
	res, err := Load(src, Options{Method: refalign.MethodBowtie2, SegmentSize: 10})
	require.NoError(t, err)
	require.Len(t, res.Reads[1].Mappings, 1)
	assert.Equal(t, 1, res.Reads[1].Mappings[0].Score)
}

func TestCoverageEstimator(t *testing.T) {
	refs := []refalign.Reference{{}, {ID: 1, Name: "chr1", Length: 250}}
	cov := NewCoverageEstimator(refs, 100)
	cov.Add(refalign.Mapping{ReferenceID: 1, Position: 5})
	cov.Add(refalign.Mapping{ReferenceID: 1, Position: 250})
	c := cov.Coverage()
	// 3 bins (0-99, 100-199, 200-249); hits in bin 0 and, at 250/100, bin 2.
	assert.InDelta(t, 2.0/3.0, c[1], 1e-6)
}
