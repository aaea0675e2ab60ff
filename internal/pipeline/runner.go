package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/draftforge/contentplan/internal/genservice"
)

// stageOutcome is the result of executing one stage to completion.
type stageOutcome int

const (
	stageSucceeded stageOutcome = iota
	stageFailed
	stageCancelled
)

// sessionRunner drives one session through its stage sequence. It is the
// only goroutine that writes the session's store records, so stage execution
// needs no locking of its own. Cancellation is cooperative: the stop channel
// is checked before committing to the next stage and before each retry
// sleep, and an in-flight generation call is always allowed to return.
type sessionRunner struct {
	m         *Manager
	sessionID string
	params    json.RawMessage
	flow      *DataFlowContext
	log       zerolog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func newSessionRunner(m *Manager, sess *Session) *sessionRunner {
	return &sessionRunner{
		m:         m,
		sessionID: sess.ID,
		params:    sess.Params,
		flow:      NewDataFlowContext(),
		log:       m.log.With().Str("session", sess.ID).Logger(),
		stop:      make(chan struct{}),
	}
}

// requestCancel asks the runner to stop at its next cancellation point.
func (r *sessionRunner) requestCancel() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})
}

// cancelled reports whether cancellation has been requested.
func (r *sessionRunner) cancelled() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// run executes the session's stages in registry order until every stage
// succeeds, a stage fails terminally, or cancellation is observed.
func (r *sessionRunner) run(ctx context.Context) {
	r.emitSession(SessionRunning, "session started")
	r.log.Info().Msg("session started")

	for _, def := range r.m.registry.Stages() {
		if r.cancelled() {
			r.finish(ctx, SessionCancelled, nil, "cancelled before stage "+def.ID)
			return
		}

		switch r.runStage(ctx, def) {
		case stageSucceeded:
			continue
		case stageFailed:
			r.finish(ctx, SessionFailed, nil, "stage "+def.ID+" failed")
			return
		case stageCancelled:
			r.finish(ctx, SessionCancelled, nil, "cancelled during stage "+def.ID)
			return
		}
	}

	result, err := r.assembleResult()
	if err != nil {
		r.log.Error().Err(err).Msg("final result assembly failed")
		r.finish(ctx, SessionFailed, nil, "final result assembly failed")
		return
	}

	r.finish(ctx, SessionCompleted, result, "all stages completed")
}

// runStage executes one stage, retrying per its budget. A stage with
// MaxRetries N gets at most N+1 attempts.
func (r *sessionRunner) runStage(ctx context.Context, def StageDefinition) stageOutcome {
	log := r.log.With().Str("stage", def.ID).Logger()

	// Data-flow invariant: every declared dependency must already hold an
	// accepted output. A miss here is an orchestrator bug, never retried.
	if missing := r.flow.Missing(def.Requires); len(missing) > 0 {
		depErr := &DependencyError{StageID: def.ID, Missing: missing}
		log.Error().Strs("missing", missing).Msg("dependency invariant violated")

		now := time.Now().UTC()
		r.putStage(ctx, StageExecutionRecord{
			SessionID: r.sessionID,
			StageID:   def.ID,
			Status:    StageFailedTerminal,
			Reason:    ReasonInternal,
			StartedAt: now,
			EndedAt:   now,
		})
		r.emitStage(ProgressEvent{
			StageID: def.ID,
			Status:  string(StageFailedTerminal),
			Reason:  ReasonInternal,
			Message: depErr.Error(),
		})
		return stageFailed
	}

	rec := StageExecutionRecord{
		SessionID: r.sessionID,
		StageID:   def.ID,
		Status:    StageRunning,
		StartedAt: time.Now().UTC(),
	}
	r.putStage(ctx, rec)
	r.emitStage(ProgressEvent{
		StageID: def.ID,
		Status:  string(StageRunning),
		Attempt: 1,
	})
	log.Info().Msg("stage started")

	bo := r.m.policy.newBackOff()
	maxAttempts := def.MaxRetries + 1
	var deficiencies []string

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		rec.Attempts = attempt

		result, err := r.generate(ctx, def, deficiencies, attempt)
		if err != nil {
			log.Warn().Err(err).Int("attempt", attempt).Msg("generation attempt failed")

			if attempt == maxAttempts {
				rec.Status = StageFailedTerminal
				rec.Reason = ReasonServiceError
				rec.EndedAt = time.Now().UTC()
				r.putStage(ctx, rec)
				r.emitStage(ProgressEvent{
					StageID: def.ID,
					Status:  string(StageFailedTerminal),
					Reason:  ReasonServiceError,
					Attempt: attempt,
					Message: err.Error(),
				})
				return stageFailed
			}

			rec.Status = StageFailedRetryable
			rec.Reason = ReasonServiceError
			r.putStage(ctx, rec)
			r.emitStage(ProgressEvent{
				StageID: def.ID,
				Status:  string(StageFailedRetryable),
				Reason:  ReasonServiceError,
				Attempt: attempt,
				Message: err.Error(),
			})

			if !sleepBackoff(r.stop, bo.NextBackOff()) {
				return stageCancelled
			}
			rec.Status = StageRunning
			rec.Reason = ReasonNone
			r.putStage(ctx, rec)
			continue
		}

		gate := r.m.gate.Validate(result.Output, def.Rubric, r.flow.Slice(def.Requires))
		score := gate.Score
		rec.Score = score
		rec.Scored = true
		rec.Deficiencies = gate.Deficiencies

		if gate.Passed {
			if err := r.flow.Put(def.ID, result.Output); err != nil {
				// Write-once violated: orchestrator bug.
				log.Error().Err(err).Msg("duplicate stage output")
				rec.Status = StageFailedTerminal
				rec.Reason = ReasonInternal
				rec.EndedAt = time.Now().UTC()
				r.putStage(ctx, rec)
				r.emitStage(ProgressEvent{
					StageID: def.ID,
					Status:  string(StageFailedTerminal),
					Reason:  ReasonInternal,
					Attempt: attempt,
					Message: err.Error(),
				})
				return stageFailed
			}

			rec.Status = StageSucceeded
			rec.Reason = ReasonNone
			rec.Output = result.Output
			rec.EndedAt = time.Now().UTC()
			r.putStage(ctx, rec)
			r.emitStage(ProgressEvent{
				StageID: def.ID,
				Status:  string(StageSucceeded),
				Attempt: attempt,
				Score:   &score,
			})
			log.Info().Int("attempt", attempt).Int("score", score).Msg("stage succeeded")
			return stageSucceeded
		}

		gateErr := &GateError{
			StageID:      def.ID,
			Score:        score,
			MinScore:     def.Rubric.MinScore,
			Deficiencies: gate.Deficiencies,
		}
		log.Warn().Int("attempt", attempt).Int("score", score).
			Strs("deficiencies", gate.Deficiencies).Msg("quality gate rejected output")

		if attempt == maxAttempts {
			rec.Status = StageFailedTerminal
			rec.Reason = ReasonQualityGate
			rec.EndedAt = time.Now().UTC()
			r.putStage(ctx, rec)
			r.emitStage(ProgressEvent{
				StageID: def.ID,
				Status:  string(StageFailedTerminal),
				Reason:  ReasonQualityGate,
				Attempt: attempt,
				Score:   &score,
				Message: gateErr.Error(),
			})
			return stageFailed
		}

		// Deficiencies feed into the next attempt's request so the backend
		// can address them.
		deficiencies = gate.Deficiencies
		rec.Status = StageFailedRetryable
		rec.Reason = ReasonQualityGate
		r.putStage(ctx, rec)
		r.emitStage(ProgressEvent{
			StageID: def.ID,
			Status:  string(StageFailedRetryable),
			Reason:  ReasonQualityGate,
			Attempt: attempt,
			Score:   &score,
			Message: gateErr.Error(),
		})

		if !sleepBackoff(r.stop, bo.NextBackOff()) {
			return stageCancelled
		}
		rec.Status = StageRunning
		rec.Reason = ReasonNone
		r.putStage(ctx, rec)
	}

	// Unreachable: every path through the loop returns.
	return stageFailed
}

// generate performs one generation call with the stage's attempt timeout.
func (r *sessionRunner) generate(ctx context.Context, def StageDefinition, deficiencies []string, attempt int) (*genservice.GenerateResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, def.AttemptTimeout.Std())
	defer cancel()

	result, err := r.m.client.Generate(callCtx, genservice.GenerateRequest{
		SessionID:    r.sessionID,
		StageID:      def.ID,
		Params:       r.params,
		Inputs:       r.flow.Slice(def.Requires),
		Deficiencies: deficiencies,
	})
	if err != nil {
		return nil, fmt.Errorf("attempt %d: %w", attempt, err)
	}
	if result == nil || len(result.Output) == 0 {
		return nil, fmt.Errorf("attempt %d: generation service returned empty output", attempt)
	}
	return result, nil
}

// assembleResult builds the session's aggregated result from the accepted
// stage outputs. Key order in the marshalled map is alphabetical, so the
// document is deterministic for a given set of outputs.
func (r *sessionRunner) assembleResult() (json.RawMessage, error) {
	doc := struct {
		Stages map[string]json.RawMessage `json:"stages"`
	}{
		Stages: r.flow.Outputs(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("pipeline: assemble result: %w", err)
	}
	return data, nil
}

// finish records the session's terminal status, emits the closing event, and
// completes the progress log.
func (r *sessionRunner) finish(ctx context.Context, status SessionStatus, result json.RawMessage, message string) {
	now := time.Now().UTC()
	if err := r.m.store.UpdateSession(ctx, r.sessionID, func(s *Session) {
		s.Status = status
		s.Result = result
		s.CompletedAt = now
	}); err != nil {
		r.log.Error().Err(err).Msg("persist terminal status failed")
	}

	r.emitSession(status, message)
	r.m.tracker.Close(r.sessionID)
	r.log.Info().Str("status", string(status)).Msg("session finished")
}

// putStage persists a stage record, logging rather than failing the run on
// store errors so progress reporting stays best-effort.
func (r *sessionRunner) putStage(ctx context.Context, rec StageExecutionRecord) {
	if err := r.m.store.PutStage(ctx, rec); err != nil {
		r.log.Error().Err(err).Str("stage", rec.StageID).Msg("persist stage record failed")
	}
}

// emitStage records a stage-level progress event.
func (r *sessionRunner) emitStage(ev ProgressEvent) {
	ev.SessionID = r.sessionID
	ev.Timestamp = time.Now().UTC()
	r.m.tracker.Record(ev)
}

// emitSession records a session-level progress event.
func (r *sessionRunner) emitSession(status SessionStatus, message string) {
	r.m.tracker.Record(ProgressEvent{
		SessionID: r.sessionID,
		Status:    string(status),
		Timestamp: time.Now().UTC(),
		Message:   message,
	})
}
