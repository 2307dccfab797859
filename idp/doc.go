// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

// Package idp provides the HTTP client for the remote identity
// provider's user API.
//
// The client speaks plain JSON REST: create returns the provider's id
// for the new user, update and delete address users by that id, and
// deleting an already-absent user counts as success so retried deletes
// stay idempotent. Every call passes through a client-side rate
// limiter before it reaches the wire.
//
// Non-2xx responses surface as [*APIError], which carries the HTTP
// status code. The reconciler's retry classification inspects that
// code, so provider throttling and outages are retried while
// validation rejections dead-letter immediately.
package idp
