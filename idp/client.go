// Copyright 2026 The Seam Authors
// SPDX-License-Identifier: Apache-2.0

package idp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/time/rate"

	"github.com/seam-foundation/seam/lib/httpx"
)

// usersPath is the collection endpoint for provider users.
const usersPath = "/api/v1/users"

// healthPath is the provider's liveness endpoint.
const healthPath = "/api/v1/health"

// Default rate limiter settings. The reconciler runs a handful of
// workers, so these bounds exist for hygiene against a shared
// provider, not as a throughput ceiling.
const (
	defaultRequestsPerSecond = 50
	defaultBurst             = 10
)

// Config holds configuration for creating an identity provider Client.
type Config struct {
	// BaseURL is the root URL for API requests, for example
	// "https://idp.internal.example.com". Required.
	BaseURL string

	// Token is sent as a bearer token on every request. When empty no
	// Authorization header is set, for providers fronted by ambient
	// auth such as a service mesh.
	Token string

	// HTTPClient is used for all HTTP requests. Defaults to
	// http.DefaultClient.
	HTTPClient *http.Client

	// Logger is used for structured logging. Defaults to a discard
	// logger.
	Logger *slog.Logger

	// RequestsPerSecond caps the steady-state request rate to the
	// provider. Defaults to 50.
	RequestsPerSecond float64

	// Burst is the rate limiter's burst allowance. Defaults to 10.
	Burst int
}

// Client is a JSON REST client for the identity provider's user API.
// It satisfies the reconciler's provider contract: create reports the
// provider-assigned id, and all methods honor context cancellation.
//
// Client is safe for concurrent use.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates an identity provider client from the given
// configuration. Returns an error if BaseURL is missing or not an
// absolute URL.
func NewClient(config Config) (*Client, error) {
	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("idp: BaseURL is required")
	}
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("idp: BaseURL %q is not an absolute URL", config.BaseURL)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	requestsPerSecond := config.RequestsPerSecond
	if requestsPerSecond <= 0 {
		requestsPerSecond = defaultRequestsPerSecond
	}
	burst := config.Burst
	if burst <= 0 {
		burst = defaultBurst
	}

	return &Client{
		baseURL:    baseURL,
		token:      config.Token,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
		logger:     logger,
	}, nil
}

// CreateUser provisions a user and returns the provider-assigned id.
func (client *Client) CreateUser(ctx context.Context, payload map[string]any) (string, error) {
	statusCode, body, err := client.do(ctx, http.MethodPost, usersPath, payload)
	if err != nil {
		return "", err
	}
	if statusCode < 200 || statusCode >= 300 {
		return "", newAPIError(statusCode, body)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("idp: decoding create response: %w", err)
	}
	return created.ID, nil
}

// UpdateUser replaces the remote user's attributes.
func (client *Client) UpdateUser(ctx context.Context, userID string, payload map[string]any) error {
	if userID == "" {
		return fmt.Errorf("idp: userID is required")
	}
	statusCode, body, err := client.do(ctx, http.MethodPut, usersPath+"/"+url.PathEscape(userID), payload)
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode >= 300 {
		return newAPIError(statusCode, body)
	}
	return nil
}

// DeleteUser removes the remote user. A 404 counts as success: the
// user is gone either way, and delete operations may be retried.
func (client *Client) DeleteUser(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("idp: userID is required")
	}
	statusCode, body, err := client.do(ctx, http.MethodDelete, usersPath+"/"+url.PathEscape(userID), nil)
	if err != nil {
		return err
	}
	if statusCode == http.StatusNotFound {
		client.logger.Debug("remote user already absent on delete", "user_id", userID)
		return nil
	}
	if statusCode < 200 || statusCode >= 300 {
		return newAPIError(statusCode, body)
	}
	return nil
}

// Ping checks the provider's health endpoint.
func (client *Client) Ping(ctx context.Context) error {
	statusCode, body, err := client.do(ctx, http.MethodGet, healthPath, nil)
	if err != nil {
		return err
	}
	if statusCode < 200 || statusCode >= 300 {
		return newAPIError(statusCode, body)
	}
	return nil
}

// do executes one provider request: waits on the rate limiter, sends
// the JSON-encoded body (nil for none), and returns the status code
// with the bounded response body. Non-2xx statuses are returned to the
// caller to interpret, since delete treats 404 specially.
func (client *Client) do(ctx context.Context, method, path string, requestBody any) (int, []byte, error) {
	if err := client.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("idp: rate limiter: %w", err)
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return 0, nil, fmt.Errorf("idp: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, client.baseURL+path, bodyReader)
	if err != nil {
		return 0, nil, fmt.Errorf("idp: creating request: %w", err)
	}
	request.Header.Set("Accept", "application/json")
	if client.token != "" {
		request.Header.Set("Authorization", "Bearer "+client.token)
	}
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := client.httpClient.Do(request)
	if err != nil {
		return 0, nil, fmt.Errorf("idp: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	body, err := httpx.ReadBody(response.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("idp: reading response body: %w", err)
	}

	client.logger.Debug("identity provider request",
		"method", method,
		"path", path,
		"status", response.StatusCode,
	)
	return response.StatusCode, body, nil
}
