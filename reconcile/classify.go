// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrNonRecoverable marks an error as permanent regardless of any
// transient-looking message it carries. Wrap with
// fmt.Errorf("...: %w", ErrNonRecoverable) or errors.Join to force an
// operation straight to the dead-letter list.
var ErrNonRecoverable = errors.New("non-recoverable")

// httpStatusError is any error that carries an HTTP status code from
// the identity provider. When present, the status decides
// recoverability; message patterns are not consulted.
type httpStatusError interface {
	HTTPStatus() int
}

// messagePatterns maps transient-failure message fragments to the
// error kind reported in metrics. Matching is case-insensitive and
// ordered: the first fragment found in the message decides the kind.
var messagePatterns = []struct {
	fragment string
	kind     string
}{
	{"timed out", "timeout"},
	{"timeout", "timeout"},
	{"too many requests", "rate_limit"},
	{"rate limit", "rate_limit"},
	{"connection refused", "conn_refused"},
	{"connection reset", "conn_reset"},
	{"no such host", "dns"},
	{"dns", "dns"},
	{"service unavailable", "unavailable"},
	{"temporarily unavailable", "unavailable"},
	{"network error", "network"},
	{"broken pipe", "network"},
	{"try again", "network"},
	{"eof", "network"},
}

// Recoverable reports whether an execution error is transient and
// worth retrying. Explicit ErrNonRecoverable wraps always lose; a
// provider HTTP status, when present, is authoritative (408, 425,
// 429, and 5xx retry); otherwise deadline expiry, net.Error timeouts,
// and known transient message fragments retry. Everything else is
// permanent.
func Recoverable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrNonRecoverable) {
		return false
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return recoverableStatus(statusErr.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	message := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		if strings.Contains(message, p.fragment) {
			return true
		}
	}
	return false
}

// ErrorKind labels an execution error for metrics and the monitor's
// per-kind breakdown. Kinds mirror the Recoverable classification;
// unmatched errors report "other".
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrNonRecoverable) {
		return "non_recoverable"
	}

	var statusErr httpStatusError
	if errors.As(err, &statusErr) {
		return statusKind(statusErr.HTTPStatus())
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	message := strings.ToLower(err.Error())
	for _, p := range messagePatterns {
		if strings.Contains(message, p.fragment) {
			return p.kind
		}
	}
	return "other"
}

func recoverableStatus(code int) bool {
	switch code {
	case 408, 425, 429:
		return true
	}
	return code >= 500 && code <= 599
}

func statusKind(code int) string {
	switch {
	case code == 408:
		return "timeout"
	case code == 429:
		return "rate_limit"
	case code == 503:
		return "unavailable"
	case recoverableStatus(code):
		return "network"
	default:
		return "other"
	}
}
