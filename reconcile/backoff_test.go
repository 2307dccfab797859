// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"testing"
	"time"
)

func TestBackoffSchedule(t *testing.T) {
	base := 5 * time.Second
	multiplier := 5.0

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 5000 * time.Millisecond},
		{2, 25000 * time.Millisecond},
		{3, 125000 * time.Millisecond},
		{4, 625000 * time.Millisecond},
		{5, 3125000 * time.Millisecond},
		{6, 3600000 * time.Millisecond},
		{7, 3600000 * time.Millisecond},
	}
	for _, test := range tests {
		if got := Backoff(base, multiplier, test.attempt); got != test.want {
			t.Errorf("Backoff(5s, 5, %d) = %v, want %v", test.attempt, got, test.want)
		}
	}
}

func TestBackoffNonPositiveAttempt(t *testing.T) {
	if got := Backoff(5*time.Second, 5, 0); got != 0 {
		t.Errorf("Backoff(5s, 5, 0) = %v, want 0", got)
	}
	if got := Backoff(5*time.Second, 5, -3); got != 0 {
		t.Errorf("Backoff(5s, 5, -3) = %v, want 0", got)
	}
}

func TestBackoffNonPositiveBase(t *testing.T) {
	if got := Backoff(0, 5, 3); got != 0 {
		t.Errorf("Backoff(0, 5, 3) = %v, want 0", got)
	}
}

// Huge attempt counts must land exactly on the cap rather than
// overflow time.Duration.
func TestBackoffLargeAttemptCapsCleanly(t *testing.T) {
	for _, attempt := range []int{10, 100, 100000} {
		if got := Backoff(5*time.Second, 5, attempt); got != MaxBackoff {
			t.Errorf("Backoff(5s, 5, %d) = %v, want %v", attempt, got, MaxBackoff)
		}
	}
}

func TestBackoffBaseAboveCap(t *testing.T) {
	if got := Backoff(2*time.Hour, 5, 1); got != MaxBackoff {
		t.Errorf("Backoff(2h, 5, 1) = %v, want %v", got, MaxBackoff)
	}
}
