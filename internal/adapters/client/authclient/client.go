// Package authclient calls the authentication service's validation endpoint
// on behalf of the gateway.
package authclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	GatewayClientHeader = "X-Gateway-Client"
	GatewayClientName   = "api-gateway"
	ForwardedForHeader  = "X-Forwarded-For"

	// maxBodyBytes caps what is read from the validation endpoint. A 2xx or
	// 4xx answer beyond it cannot be decoded or relayed intact and counts
	// as unavailable.
	maxBodyBytes = 64 << 10
)

// ErrUnavailable covers transport failures, timeouts, non-4xx error statuses,
// 2xx bodies that cannot be decoded and bodies over maxBodyBytes.
var ErrUnavailable = errors.New("authentication service is unavailable")

// RemoteError is a 4xx answer; its status and body are authoritative.
type RemoteError struct {
	Status      int
	ContentType string
	Body        []byte
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("validation rejected with status %d", e.Status)
}

type Result struct {
	Valid  bool
	UserID int64
}

type validatedResponse struct {
	Valid  bool   `json:"valid"`
	UserID *int64 `json:"userId"`
}

type Client struct {
	httpClient *http.Client
	url        string
	timeout    time.Duration
}

func New(baseURL, validatePath string, timeout time.Duration) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = 32

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		url:     baseURL + validatePath,
		timeout: timeout,
	}
}

// Validate forwards the Authorization header value unchanged and names the
// original caller in X-Forwarded-For so the authentication service limits
// per client rather than per gateway. It never retries.
func (c *Client) Validate(ctx context.Context, authorization, clientIP string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set("Authorization", authorization)
	req.Header.Set(GatewayClientHeader, GatewayClientName)
	req.Header.Set("Accept", "application/json")
	if clientIP != "" {
		req.Header.Set(ForwardedForHeader, clientIP)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Result{}, fmt.Errorf("%w: read body: %w", ErrUnavailable, err)
	}
	oversized := len(body) > maxBodyBytes
	if oversized {
		body = body[:maxBodyBytes]
	}

	switch {
	case oversized && resp.StatusCode >= 200 && resp.StatusCode < 500:
		return Result{}, fmt.Errorf("%w: status %d body exceeds %d bytes", ErrUnavailable, resp.StatusCode, maxBodyBytes)

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var out validatedResponse
		if err := json.Unmarshal(body, &out); err != nil {
			return Result{}, fmt.Errorf("%w: decode body: %w", ErrUnavailable, err)
		}
		if !out.Valid || out.UserID == nil {
			return Result{Valid: false}, nil
		}
		return Result{Valid: true, UserID: *out.UserID}, nil

	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return Result{}, &RemoteError{
			Status:      resp.StatusCode,
			ContentType: resp.Header.Get("Content-Type"),
			Body:        body,
		}

	default:
		return Result{}, &StatusError{Status: resp.StatusCode, Body: body}
	}
}

// StatusError is a non-2xx, non-4xx answer. It matches ErrUnavailable.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%v: status %d", ErrUnavailable, e.Status)
}

func (e *StatusError) Unwrap() error { return ErrUnavailable }
