// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package store wraps the shared Redis instance behind the handful of
// primitives the reconciliation queue coordinates on: lists, sorted
// sets, plain sets, hashes, and string values with expiry.
//
// The wrapper is deliberately thin. Its two jobs are error wrapping
// (every failure names the command and key) and nil-reply
// normalization: commands that Redis answers with a nil reply, such
// as LPOP on an empty list or GET on a missing key, return a
// found=false boolean rather than an error, so callers distinguish
// "nothing there" from "store broken" without inspecting sentinel
// errors.
//
// Atomicity claims elsewhere in the codebase rest on these being
// single Redis commands: LPOP, ZPOPMAX, and ZREM each observe or
// mutate one key in one server-side step, which is what lets several
// processes poll one queue without double-claiming an operation.
package store
