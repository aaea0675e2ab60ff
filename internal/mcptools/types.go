package mcptools

// --- MCP tool types for the orchestrator server mode (--serve-mcp) ---
// These tools expose the session lifecycle to MCP clients so agents can
// drive a generation pipeline with structured calls instead of raw HTTP.

import "encoding/json"

// CreateSessionInput is the input for the create_session MCP tool.
type CreateSessionInput struct {
	Params json.RawMessage `json:"params" jsonschema:"business parameters seeding the first stage (JSON object)"`
}

// CreateSessionOutput is the result of the create_session MCP tool.
type CreateSessionOutput struct {
	SessionID string   `json:"sessionId"`
	Status    string   `json:"status"`
	Stages    []string `json:"stages"`
}

// RunSessionInput is the input for the run_session MCP tool.
type RunSessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"ID of the session to start"`
}

// GetStatusInput is the input for the get_status MCP tool.
type GetStatusInput struct {
	SessionID string `json:"sessionId" jsonschema:"ID of the session to inspect"`
}

// CancelSessionInput is the input for the cancel_session MCP tool.
type CancelSessionInput struct {
	SessionID string `json:"sessionId" jsonschema:"ID of the session to cancel"`
}

// CancelSessionOutput is the result of the cancel_session MCP tool.
type CancelSessionOutput struct {
	SessionID string `json:"sessionId"`
	Cancelled bool   `json:"cancelled"`
	Message   string `json:"message,omitempty"`
}

// ListSessionsInput is the input for the list_sessions MCP tool.
type ListSessionsInput struct{}

// SessionSummary is a brief overview of one session.
type SessionSummary struct {
	SessionID    string `json:"sessionId"`
	Status       string `json:"status"`
	CurrentStage int    `json:"currentStage"` // -1 when no stage is in flight
	StagesDone   int    `json:"stagesDone"`
	StagesTotal  int    `json:"stagesTotal"`
}

// ListSessionsOutput is the result of the list_sessions MCP tool.
type ListSessionsOutput struct {
	Sessions []SessionSummary `json:"sessions"`
}

// StageStatusOutput describes one stage within a status result.
type StageStatusOutput struct {
	ID           string   `json:"id"`
	Status       string   `json:"status"`
	Attempts     int      `json:"attempts,omitempty"`
	Score        *int     `json:"score,omitempty"`
	Deficiencies []string `json:"deficiencies,omitempty"`
	Reason       string   `json:"reason,omitempty"`
}

// StatusOutput is the result of the run_session and get_status MCP tools.
type StatusOutput struct {
	SessionID    string              `json:"sessionId"`
	Status       string              `json:"status"`
	CurrentStage int                 `json:"currentStage"`
	Stages       []StageStatusOutput `json:"stages"`
	FinalResult  json.RawMessage     `json:"finalResult,omitempty"`
}
