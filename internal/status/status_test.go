package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/draftforge/contentplan/internal/pipeline"
)

func intPtr(v int) *int { return &v }

func TestFormatSnapshot(t *testing.T) {
	snap := &pipeline.SessionSnapshot{
		SessionID:    "sess-1",
		Status:       pipeline.SessionRunning,
		CurrentStage: 1,
		Stages: []pipeline.StageSnapshot{
			{ID: "brand-brief", Status: pipeline.StageSucceeded, Attempts: 1, Score: intPtr(92)},
			{ID: "audience-personas", Status: pipeline.StageFailedRetryable, Attempts: 2, Score: intPtr(40),
				Deficiencies: []string{"personas-present: field \"personas\" has 1 items, need at least 2"}},
			{ID: "content-themes", Status: pipeline.StagePending},
		},
	}

	out := FormatSnapshot(snap)

	assert.Contains(t, out, "Session sess-1 [running]")
	assert.Contains(t, out, "brand-brief")
	assert.Contains(t, out, "[done]")
	assert.Contains(t, out, "score 92")
	assert.Contains(t, out, "-> audience-personas")
	assert.Contains(t, out, "[retrying]")
	assert.Contains(t, out, "attempt 2")
	assert.Contains(t, out, "personas-present")
	assert.Contains(t, out, "[pending]")
	assert.NotContains(t, out, "All stages complete")
}

func TestFormatSnapshot_Completed(t *testing.T) {
	snap := &pipeline.SessionSnapshot{
		SessionID:    "sess-2",
		Status:       pipeline.SessionCompleted,
		CurrentStage: -1,
		Stages: []pipeline.StageSnapshot{
			{ID: "brand-brief", Status: pipeline.StageSucceeded, Attempts: 1, Score: intPtr(100)},
		},
	}

	out := FormatSnapshot(snap)
	assert.Contains(t, out, "[completed]")
	assert.Contains(t, out, "All stages complete")
	assert.NotContains(t, out, "->")
}

func TestFormatSnapshot_TerminalFailureShowsReason(t *testing.T) {
	snap := &pipeline.SessionSnapshot{
		SessionID:    "sess-3",
		Status:       pipeline.SessionFailed,
		CurrentStage: -1,
		Stages: []pipeline.StageSnapshot{
			{ID: "brand-brief", Status: pipeline.StageFailedTerminal, Attempts: 3,
				Score: intPtr(0), Reason: pipeline.ReasonQualityGate},
		},
	}

	out := FormatSnapshot(snap)
	assert.Contains(t, out, "[failed]")
	assert.Contains(t, out, "(quality_gate)")
	assert.Contains(t, out, "attempt 3")
}

func TestFormatEvent(t *testing.T) {
	ts := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)

	out := FormatEvent(pipeline.ProgressEvent{
		SessionID: "sess-1",
		StageID:   "brand-brief",
		Status:    string(pipeline.StageFailedRetryable),
		Reason:    pipeline.ReasonServiceError,
		Attempt:   2,
		Timestamp: ts,
		Message:   "upstream 503",
	})

	assert.Contains(t, out, "14:30:05")
	assert.Contains(t, out, "brand-brief")
	assert.Contains(t, out, "failed_retryable")
	assert.Contains(t, out, "(attempt 2)")
	assert.Contains(t, out, "reason=service_error")
	assert.Contains(t, out, "upstream 503")

	sessionLevel := FormatEvent(pipeline.ProgressEvent{
		SessionID: "sess-1",
		Status:    string(pipeline.SessionCompleted),
		Timestamp: ts,
		Score:     intPtr(88),
	})
	assert.Contains(t, sessionLevel, "session")
	assert.Contains(t, sessionLevel, "completed")
	assert.Contains(t, sessionLevel, "score=88")
}

func TestFormatSessionList(t *testing.T) {
	assert.Equal(t, "No sessions found.\n", FormatSessionList(nil))

	out := FormatSessionList([]pipeline.SessionSnapshot{
		{
			SessionID: "sess-1",
			Status:    pipeline.SessionRunning,
			Stages: []pipeline.StageSnapshot{
				{Status: pipeline.StageSucceeded},
				{Status: pipeline.StageRunning},
				{Status: pipeline.StagePending},
			},
		},
	})
	assert.Contains(t, out, "sess-1")
	assert.Contains(t, out, "[running]")
	assert.Contains(t, out, "1/3 stages")
}
