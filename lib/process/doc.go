// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for Seam
// binaries. It centralizes the raw stderr write that happens when
// main() fails, where the structured logger may not be initialized
// yet, so service code never prints directly.
package process
