package genservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Compile-time interface check.
var _ Client = (*HTTPClient)(nil)

// HTTPClient implements Client over HTTP/JSON-RPC. Transient transport
// failures (connection errors, HTTP 5xx) are retried a small number of times
// with short exponential backoff before the error is surfaced; JSON-RPC
// errors are semantic and never retried here.
type HTTPClient struct {
	endpoint         string
	http             *http.Client
	requestID        atomic.Int64
	transientRetries int
	retryInterval    time.Duration
}

// ClientOption configures an HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets the HTTP client timeout. Per-attempt deadlines from the
// orchestrator are applied via context and take precedence when shorter.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.http.Timeout = d
	}
}

// WithHTTPClient replaces the underlying *http.Client entirely.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// WithTransientRetries sets how many times a transport-level failure is
// retried within a single Generate call.
func WithTransientRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.transientRetries = n
	}
}

// WithRetryInterval sets the initial backoff interval for transient retries.
func WithRetryInterval(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryInterval = d
	}
}

// NewHTTPClient creates a generation-service client for the given endpoint.
func NewHTTPClient(endpoint string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 5 * time.Minute,
		},
		transientRetries: 2,
		retryInterval:    250 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate performs one generation attempt via the generation/generate
// JSON-RPC method.
func (c *HTTPClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	var result GenerateResult

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var lastErr error
	for attempt := 0; attempt <= c.transientRetries; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(bo.NextBackOff())
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		err := c.call(ctx, MethodGenerate, req, &result)
		if err == nil {
			return &result, nil
		}
		lastErr = err

		if !isTransient(err) || ctx.Err() != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("genservice: generate %s: retries exhausted: %w", req.StageID, lastErr)
}

// transportError marks a transport-level failure eligible for in-call retry.
type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

// isTransient reports whether err is a retryable transport failure.
func isTransient(err error) bool {
	var te *transportError
	return errors.As(err, &te)
}

// RPCError represents a JSON-RPC error returned by the generation service.
type RPCError struct {
	Method  string
	Code    int
	Message string
	Data    json.RawMessage
}

// Error implements the error interface.
func (e *RPCError) Error() string {
	if len(e.Data) > 0 {
		return fmt.Sprintf("genservice: %s: rpc error %d: %s (data: %s)", e.Method, e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("genservice: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
}

// nextID returns a monotonically increasing request ID for JSON-RPC calls.
func (c *HTTPClient) nextID() int64 {
	return c.requestID.Add(1)
}

// call performs a JSON-RPC 2.0 call over HTTP POST.
func (c *HTTPClient) call(ctx context.Context, method string, params any, result any) error {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("genservice: marshal params: %w", err)
	}

	rpcReq := JSONRPCRequest{
		JSONRPC: JSONRPCVersion,
		ID:      c.nextID(),
		Method:  method,
		Params:  paramsJSON,
	}

	body, err := json.Marshal(rpcReq)
	if err != nil {
		return fmt.Errorf("genservice: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("genservice: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &transportError{err: fmt.Errorf("genservice: %s: %w", method, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &transportError{err: fmt.Errorf("genservice: read response: %w", err)}
	}

	if resp.StatusCode >= 500 {
		return &transportError{err: fmt.Errorf("genservice: %s: HTTP %d: %s", method, resp.StatusCode, string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("genservice: %s: HTTP %d: %s", method, resp.StatusCode, string(respBody))
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		return fmt.Errorf("genservice: decode response: %w", err)
	}

	if rpcResp.Error != nil {
		return &RPCError{
			Method:  method,
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    rpcResp.Error.Data,
		}
	}

	if result != nil && rpcResp.Result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("genservice: decode result: %w", err)
		}
	}

	return nil
}
