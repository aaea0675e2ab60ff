package pipeline

import (
	"encoding/json"
	"time"
)

// SessionStatus is the overall lifecycle state of a generation session.
type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
	SessionCancelled SessionStatus = "cancelled"
)

// IsTerminal returns true if the session has reached a final state.
func (s SessionStatus) IsTerminal() bool {
	switch s {
	case SessionCompleted, SessionFailed, SessionCancelled:
		return true
	}
	return false
}

// StageStatus is the state of a single stage execution within a session.
type StageStatus string

const (
	StagePending         StageStatus = "pending"
	StageRunning         StageStatus = "running"
	StageSucceeded       StageStatus = "succeeded"
	StageFailedRetryable StageStatus = "failed_retryable"
	StageFailedTerminal  StageStatus = "failed_terminal"
)

// FailureReason classifies why a stage attempt did not succeed. It lets
// clients distinguish a flaky backend from output that was rejected by the
// quality gate, and both from an orchestrator bug.
type FailureReason string

const (
	ReasonNone         FailureReason = ""
	ReasonServiceError FailureReason = "service_error"
	ReasonQualityGate  FailureReason = "quality_gate"
	ReasonInternal     FailureReason = "internal"
)

// Session is one end-to-end run of the stage sequence for a single
// generation request. The stage list is fixed at creation.
type Session struct {
	ID          string          `json:"id"`
	StageIDs    []string        `json:"stageIds"`
	Status      SessionStatus   `json:"status"`
	Params      json.RawMessage `json:"params,omitempty"` // business parameters seeding stage 1
	Result      json.RawMessage `json:"result,omitempty"` // aggregated output, set on completion
	CreatedAt   time.Time       `json:"createdAt"`
	CompletedAt time.Time       `json:"completedAt,omitzero"`
}

// StageExecutionRecord tracks the execution of one stage within a session.
// It is mutated only by the session's worker goroutine.
type StageExecutionRecord struct {
	SessionID    string          `json:"sessionId"`
	StageID      string          `json:"stageId"`
	Status       StageStatus     `json:"status"`
	Attempts     int             `json:"attempts"`
	Score        int             `json:"score"`
	Scored       bool            `json:"scored"` // false until the gate has run at least once
	Deficiencies []string        `json:"deficiencies,omitempty"`
	Reason       FailureReason   `json:"reason,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"` // accepted output, set on success
	StartedAt    time.Time       `json:"startedAt"`
	EndedAt      time.Time       `json:"endedAt,omitzero"`
}

// ProgressEvent is an immutable, append-only record of a status transition.
// The ordered event log for a session is the authoritative progress trace.
type ProgressEvent struct {
	SessionID string        `json:"sessionId"`
	StageID   string        `json:"stageId,omitempty"` // empty for session-level events
	Status    string        `json:"status"`            // StageStatus or SessionStatus value
	Reason    FailureReason `json:"reason,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Score     *int          `json:"score,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
	Message   string        `json:"message,omitempty"`
}

// StageSnapshot is the externally visible state of one stage.
type StageSnapshot struct {
	ID           string        `json:"id"`
	Status       StageStatus   `json:"status"`
	Attempts     int           `json:"attempts,omitempty"`
	Score        *int          `json:"score,omitempty"`
	Deficiencies []string      `json:"deficiencies,omitempty"`
	Reason       FailureReason `json:"reason,omitempty"`
}

// SessionSnapshot is a consistent point-in-time view of a session, suitable
// for polling clients. CurrentStage is the index of the stage currently
// executing, or -1 when no stage is in flight.
type SessionSnapshot struct {
	SessionID    string          `json:"sessionId"`
	Status       SessionStatus   `json:"status"`
	CurrentStage int             `json:"currentStage"`
	Stages       []StageSnapshot `json:"stages"`
	FinalResult  json.RawMessage `json:"finalResult,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	CompletedAt  time.Time       `json:"completedAt,omitzero"`
}
