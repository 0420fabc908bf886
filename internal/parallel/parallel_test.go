// Copyright 2020 Grail Inc.  All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestPartitionCoversEveryIndexExactlyOnce(t *testing.T) {
	for n := 0; n <= 23; n++ {
		for workers := 1; workers <= 8; workers++ {
			ranges := Partition(n, workers)
			seen := make([]bool, n)
			for _, r := range ranges {
				for i := r.Start; i < r.End; i++ {
					assert.False(t, seen[i], "index %d covered twice (n=%d workers=%d)", i, n, workers)
					seen[i] = true
				}
			}
			for i, s := range seen {
				assert.Truef(t, s, "index %d never covered (n=%d workers=%d)", i, n, workers)
			}
		}
	}
}

func TestForEachRunsEveryItem(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	var sum int64
	err := ForEach(items, 2, func(v int) error {
		atomic.AddInt64(&sum, int64(v))
		return nil
	})
	assert.NoError(t, err)
	assert.EqualValues(t, 15, sum)
}

func TestForEachPropagatesFirstError(t *testing.T) {
	sentinel := errors.New("boom")
	err := ForEach([]int{1, 2, 3}, 1, func(v int) error {
		if v == 2 {
			return sentinel
		}
		return nil
	})
	assert.ErrorIs(t, err, sentinel)
}

func TestForEachIndex(t *testing.T) {
	n := 10
	hits := make([]int32, n)
	err := ForEachIndex(n, 4, func(i int) error {
		atomic.AddInt32(&hits[i], 1)
		return nil
	})
	assert.NoError(t, err)
	for i, h := range hits {
		assert.EqualValues(t, 1, h, "index %d", i)
	}
}

func TestCollectAppliesSequentially(t *testing.T) {
	var applied []int
	Collect(func(out chan<- int) {
		for i := 0; i < 5; i++ {
			out <- i
		}
	}, func(v int) {
		applied = append(applied, v)
	})
	assert.Len(t, applied, 5)
}
