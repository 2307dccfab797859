// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package httpx provides bounded HTTP response-read helpers.
//
// ReadBody, DecodeBody, and ErrorBody cap response reads at
// MaxBodySize so a misbehaving identity provider cannot make the
// reconciler allocate without bound. They are for JSON API responses,
// not streaming transfers.
package httpx

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxBodySize bounds JSON API response reads: 32 MB. Identity-provider
// responses are tiny; the bound exists only to stop a pathological
// response from exhausting memory.
const MaxBodySize int64 = 32 << 20

// ReadBody reads a response body up to MaxBodySize bytes. Use instead
// of io.ReadAll on HTTP response bodies.
func ReadBody(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxBodySize))
}

// DecodeBody reads a response body (bounded) and JSON-decodes it into v.
func DecodeBody(body io.Reader, v any) error {
	data, err := ReadBody(body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body for diagnostic messages.
// Read errors are ignored; a partial body is still useful in an error.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxBodySize))
	return string(data)
}
