// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package idp

import "fmt"

// maxErrorBody caps how much of a provider error response is carried
// in an APIError. Error strings end up in operation records and user
// status hashes, so they must stay small.
const maxErrorBody = 2048

// APIError is a non-2xx response from the identity provider.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Body is the response body, truncated to maxErrorBody bytes.
	Body string
}

func (err *APIError) Error() string {
	if err.Body == "" {
		return fmt.Sprintf("idp: HTTP %d", err.StatusCode)
	}
	return fmt.Sprintf("idp: HTTP %d: %s", err.StatusCode, err.Body)
}

// HTTPStatus returns the response status code. Retry classification
// reads it to decide whether the failure is worth another attempt.
func (err *APIError) HTTPStatus() int {
	return err.StatusCode
}

// newAPIError builds an APIError from a status code and raw body.
func newAPIError(statusCode int, body []byte) *APIError {
	text := string(body)
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody]
	}
	return &APIError{StatusCode: statusCode, Body: text}
}
