// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import "time"

// MaxBackoff caps the delay between retry attempts.
const MaxBackoff = time.Hour

// Backoff returns the delay before retry number attempt:
// base × multiplier^(attempt−1), capped at MaxBackoff. Attempt zero
// (the first execution) runs immediately. The schedule is
// deterministic; there is no jitter.
func Backoff(base time.Duration, multiplier float64, attempt int) time.Duration {
	if attempt <= 0 || base <= 0 {
		return 0
	}
	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(MaxBackoff) {
			return MaxBackoff
		}
	}
	if delay >= float64(MaxBackoff) {
		return MaxBackoff
	}
	return time.Duration(delay)
}
