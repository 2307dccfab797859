// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Seam's standard CBOR encoding.
//
// All persisted records (operation envelopes, dead-letter entries)
// encode through this package so every writer produces byte-identical
// output for the same logical value. Consumers use codec.Marshal and
// codec.Unmarshal instead of importing the CBOR library directly;
// the deterministic encoder configuration lives here and nowhere else.
package codec
