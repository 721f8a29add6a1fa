// Copyright 2026 The Go AVS SDK Authors. All rights reserved.
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package avs

import (
	"math"
	"math/rand"
	"time"
)

// RetryTable is an ordered list of base delays in milliseconds. Entry i is
// used for attempt i; attempts beyond the last entry reuse the last entry
// (spec.md §4.3: "use entry min(n, len-1)").
type RetryTable []int64

// DefaultTransportRetryTable is the 8-entry table governing C3's connect
// backoff (spec.md §4.3, Open Question 2: this table is distinct from
// DefaultPostConnectRetryTable and must not be merged with it).
var DefaultTransportRetryTable = RetryTable{250, 1000, 3000, 5000, 10000, 20000, 30000, 60000}

// DefaultPostConnectRetryTable is the 6-entry table governing C4's
// post-connect-operation retries. Values mirror the transport table's early
// entries, per the source file documented in spec.md Open Question 2; kept
// as a distinct configurable slice rather than reusing
// DefaultTransportRetryTable so the two can diverge independently.
var DefaultPostConnectRetryTable = RetryTable{250, 1000, 3000, 5000, 10000, 20000}

// Delay returns the jittered backoff duration for attempt (0-indexed). The
// base entry is table[min(attempt, len(table)-1)]; the actual delay is drawn
// uniformly from base*2/3 to base*3/2 (spec.md §8 invariant 6) using rnd, or
// math/rand's package source when rnd is nil, and rounded up to a whole
// millisecond so it never falls below base*2/3.
func (t RetryTable) Delay(attempt int, rnd *rand.Rand) time.Duration {
	if len(t) == 0 {
		return 0
	}
	idx := attempt
	if idx > len(t)-1 {
		idx = len(t) - 1
	}
	if idx < 0 {
		idx = 0
	}
	base := float64(t[idx])
	lo := base * 2 / 3
	hi := base * 3 / 2

	var frac float64
	if rnd != nil {
		frac = rnd.Float64()
	} else {
		frac = rand.Float64()
	}
	ms := lo + frac*(hi-lo)
	return time.Duration(math.Ceil(ms)) * time.Millisecond
}
