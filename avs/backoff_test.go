// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"math/rand"
	"testing"
)

func TestRetryTableDelayBounds(t *testing.T) {
	rnd := rand.New(rand.NewSource(1))
	table := DefaultTransportRetryTable

	for attempt := 0; attempt < 4; attempt++ {
		idx := attempt
		if idx > len(table)-1 {
			idx = len(table) - 1
		}
		base := float64(table[idx])
		lo := base * 2 / 3
		hi := base * 3 / 2

		for i := 0; i < 200; i++ {
			d := table.Delay(attempt, rnd)
			ms := float64(d.Milliseconds())
			if ms < lo || ms > hi {
				t.Fatalf("attempt %d: delay %v ms out of bounds [%v, %v]", attempt, ms, lo, hi)
			}
		}
	}
}

func TestRetryTableDelayClampsToLastEntry(t *testing.T) {
	rnd := rand.New(rand.NewSource(2))
	table := DefaultTransportRetryTable
	last := table[len(table)-1]

	for _, attempt := range []int{len(table), len(table) + 10, 1000} {
		d := table.Delay(attempt, rnd)
		ms := float64(d.Milliseconds())
		lo := float64(last) * 2 / 3
		hi := float64(last) * 3 / 2
		if ms < lo || ms > hi {
			t.Fatalf("attempt %d: delay %v ms out of clamp bounds [%v, %v]", attempt, ms, lo, hi)
		}
	}
}

func TestRetryTableEmpty(t *testing.T) {
	var table RetryTable
	if d := table.Delay(0, nil); d != 0 {
		t.Fatalf("empty table: want 0 delay, got %v", d)
	}
}
