// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared helpers for Seam package tests.
//
// RequireReceive, RequireSend, and RequireClosed wrap the
// select-with-deadline pattern so tests never hang forever on a
// channel; these are the only sanctioned real wall-clock waits in the
// test suite. UniqueID hands out process-unique identifiers for user
// IDs and payload markers.
package testutil

import (
	"fmt"
	"sync/atomic"
)

var uniqueCounter atomic.Uint64

// UniqueID returns "prefix-N" with N monotonically increasing for the
// life of the process. Use it instead of time-derived identifiers when
// a test needs distinguishable user IDs or payload values.
func UniqueID(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, uniqueCounter.Add(1))
}
