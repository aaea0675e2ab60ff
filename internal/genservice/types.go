// Package genservice is the boundary to the external generation backend.
// It is the only package in the orchestrator that performs network I/O.
// The orchestrator treats the backend as a black box: a structured request
// goes in, a structured output or an error comes back.
package genservice

import (
	"context"
	"encoding/json"
)

// GenerateRequest is the structured per-stage input sent to the generation
// service: the session's business parameters plus the slice of accepted
// prior-stage outputs the stage depends on.
type GenerateRequest struct {
	SessionID string `json:"sessionId"`
	StageID   string `json:"stageId"`

	// Params are the business parameters the session was created with.
	Params json.RawMessage `json:"params,omitempty"`

	// Inputs are accepted prior-stage outputs keyed by stage ID.
	Inputs map[string]json.RawMessage `json:"inputs,omitempty"`

	// Deficiencies lists the quality-gate findings from the previous
	// attempt, when there was one, so the backend can self-correct.
	Deficiencies []string `json:"deficiencies,omitempty"`
}

// GenerateResult is the structured output returned by the backend for one
// stage attempt.
type GenerateResult struct {
	StageID string          `json:"stageId"`
	Output  json.RawMessage `json:"output"`
	Model   string          `json:"model,omitempty"`
	Usage   *Usage          `json:"usage,omitempty"`
}

// Usage reports token accounting for one generation call.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
}

// Client sends generation requests to the backend. Implementations own
// connection management, serialization, and provider-level retry for
// transient network errors; the orchestrator's stage-level retry policy is
// layered on top and additionally covers quality-gate failures.
type Client interface {
	// Generate performs one generation attempt. The caller bounds the
	// attempt with a context deadline; exceeding it is reported as an
	// ordinary error.
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}
