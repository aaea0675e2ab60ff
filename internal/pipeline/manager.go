package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/draftforge/contentplan/internal/genservice"
)

// Manager owns the session lifecycle: it creates sessions, drives each one
// through the stage sequence on its own worker goroutine, and serves status
// snapshots and progress subscriptions. Sessions execute fully concurrently
// with each other, but never more than one stage runs at a time within a
// session; the per-session loop is single-threaded by construction.
type Manager struct {
	registry *Registry
	store    Store
	client   genservice.Client
	tracker  *ProgressTracker
	gate     *QualityGate
	policy   RetryPolicy
	log      zerolog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	runners map[string]*sessionRunner
	wg      sync.WaitGroup
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithRetryPolicy overrides the backoff applied between stage attempts.
func WithRetryPolicy(p RetryPolicy) ManagerOption {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithLogger sets the manager's logger.
func WithLogger(log zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.log = log
	}
}

// NewManager creates a Manager wired with a registry, store, and generation
// client.
func NewManager(registry *Registry, store Store, client genservice.Client, opts ...ManagerOption) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		registry: registry,
		store:    store,
		client:   client,
		tracker:  NewProgressTracker(),
		gate:     NewQualityGate(),
		policy:   DefaultRetryPolicy(),
		log:      zerolog.Nop(),
		baseCtx:  ctx,
		cancel:   cancel,
		runners:  make(map[string]*sessionRunner),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSessionRequest carries the business parameters that seed the first
// stage's input.
type CreateSessionRequest struct {
	Params json.RawMessage `json:"params"`
}

// CreateSession validates the request, allocates a pending session with the
// registry's full stage list, and stores it.
func (m *Manager) CreateSession(ctx context.Context, req CreateSessionRequest) (*Session, error) {
	if len(req.Params) == 0 {
		return nil, fmt.Errorf("pipeline: create session: params are required")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(req.Params, &obj); err != nil {
		return nil, fmt.Errorf("pipeline: create session: params must be a JSON object: %w", err)
	}

	sess := &Session{
		ID:        uuid.NewString(),
		StageIDs:  m.registry.IDs(),
		Status:    SessionPending,
		Params:    req.Params,
		CreatedAt: time.Now().UTC(),
	}

	if err := m.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}

	m.tracker.Record(ProgressEvent{
		SessionID: sess.ID,
		Status:    string(SessionPending),
		Timestamp: sess.CreatedAt,
		Message:   "session created",
	})
	m.log.Info().Str("session", sess.ID).Int("stages", m.registry.Len()).Msg("session created")

	return sess, nil
}

// RunSession starts executing a pending session on its own worker goroutine
// and returns the current snapshot. It is idempotent: calling it on a
// session that is already running or terminal performs no work and returns
// the session's current status.
func (m *Manager) RunSession(ctx context.Context, id string) (*SessionSnapshot, error) {
	m.mu.Lock()
	if _, inFlight := m.runners[id]; inFlight {
		m.mu.Unlock()
		return m.GetStatus(ctx, id)
	}

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	if sess.Status != SessionPending {
		// Already terminal, or marked running by a previous call.
		m.mu.Unlock()
		return m.GetStatus(ctx, id)
	}

	if err := m.store.UpdateSession(ctx, id, func(s *Session) {
		s.Status = SessionRunning
	}); err != nil {
		m.mu.Unlock()
		return nil, err
	}

	r := newSessionRunner(m, sess)
	m.runners[id] = r
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		r.run(m.baseCtx)
		m.mu.Lock()
		delete(m.runners, id)
		m.mu.Unlock()
	}()
	m.mu.Unlock()

	return m.GetStatus(ctx, id)
}

// CancelSession requests cancellation of a session. It returns true when the
// request was accepted: a running session stops before its next stage or
// retry attempt (an in-flight generation call is allowed to return first),
// and a pending session is cancelled immediately. It returns false for
// sessions that already reached a terminal status.
func (m *Manager) CancelSession(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	r, inFlight := m.runners[id]
	m.mu.Unlock()

	if inFlight {
		r.requestCancel()
		// The runner persists its terminal status before it deregisters, so
		// a request landing in that window arrived too late to take effect.
		sess, err := m.store.GetSession(ctx, id)
		if err != nil {
			return false, err
		}
		if sess.Status.IsTerminal() {
			return false, nil
		}
		m.log.Info().Str("session", id).Msg("cancellation requested")
		return true, nil
	}

	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return false, err
	}
	if sess.Status.IsTerminal() {
		return false, nil
	}

	// Pending (or orphaned running) session with no worker: cancel directly.
	now := time.Now().UTC()
	if err := m.store.UpdateSession(ctx, id, func(s *Session) {
		s.Status = SessionCancelled
		s.CompletedAt = now
	}); err != nil {
		return false, err
	}
	m.tracker.Record(ProgressEvent{
		SessionID: id,
		Status:    string(SessionCancelled),
		Timestamp: now,
		Message:   "session cancelled before start",
	})
	m.tracker.Close(id)
	m.log.Info().Str("session", id).Msg("session cancelled before start")
	return true, nil
}

// GetStatus returns the latest consistent snapshot of a session.
func (m *Manager) GetStatus(ctx context.Context, id string) (*SessionSnapshot, error) {
	sess, err := m.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	records, err := m.store.GetStages(ctx, id)
	if err != nil {
		return nil, err
	}

	byStage := make(map[string]StageExecutionRecord, len(records))
	for _, rec := range records {
		byStage[rec.StageID] = rec
	}

	current := -1
	stages := make([]StageSnapshot, len(sess.StageIDs))
	for i, stageID := range sess.StageIDs {
		rec, executed := byStage[stageID]
		if !executed {
			stages[i] = StageSnapshot{ID: stageID, Status: StagePending}
			continue
		}

		snap := StageSnapshot{
			ID:           stageID,
			Status:       rec.Status,
			Attempts:     rec.Attempts,
			Deficiencies: rec.Deficiencies,
			Reason:       rec.Reason,
		}
		if rec.Scored {
			score := rec.Score
			snap.Score = &score
		}
		stages[i] = snap

		if rec.Status == StageRunning || rec.Status == StageFailedRetryable {
			current = i
		}
	}

	return &SessionSnapshot{
		SessionID:    sess.ID,
		Status:       sess.Status,
		CurrentStage: current,
		Stages:       stages,
		FinalResult:  sess.Result,
		CreatedAt:    sess.CreatedAt,
		CompletedAt:  sess.CompletedAt,
	}, nil
}

// ListSessions returns snapshots for all live sessions.
func (m *Manager) ListSessions(ctx context.Context) ([]SessionSnapshot, error) {
	sessions, err := m.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SessionSnapshot, 0, len(sessions))
	for _, sess := range sessions {
		snap, err := m.GetStatus(ctx, sess.ID)
		if err != nil {
			continue // expired between list and read
		}
		out = append(out, *snap)
	}
	return out, nil
}

// Events returns the session's progress trace so far.
func (m *Manager) Events(ctx context.Context, id string) ([]ProgressEvent, error) {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return m.tracker.Snapshot(id), nil
}

// Subscribe returns the session's event log so far plus a channel of future
// events. The channel closes when the session reaches a terminal status.
func (m *Manager) Subscribe(ctx context.Context, id string) ([]ProgressEvent, <-chan ProgressEvent, func(), error) {
	if _, err := m.store.GetSession(ctx, id); err != nil {
		return nil, nil, nil, err
	}
	replay, events, cancel := m.tracker.Subscribe(id)
	return replay, events, cancel, nil
}

// Forget drops tracker state for an expired session. Wired as the store's
// eviction callback.
func (m *Manager) Forget(sessionID string) {
	m.tracker.Forget(sessionID)
}

// SweepTracker drops tracker state for sessions the store no longer knows.
// Stores whose entries expire natively (Redis key TTLs) have no eviction
// callback to drive Forget, so tracker retention relies on a periodic sweep.
// Sessions with a live worker are never swept.
func (m *Manager) SweepTracker(ctx context.Context) {
	for _, id := range m.tracker.Sessions() {
		m.mu.Lock()
		_, inFlight := m.runners[id]
		m.mu.Unlock()
		if inFlight {
			continue
		}

		if _, err := m.store.GetSession(ctx, id); errors.Is(err, ErrSessionNotFound) {
			m.tracker.Forget(id)
			m.log.Debug().Str("session", id).Msg("tracker state swept for expired session")
		}
	}
}

// Close stops all session workers (aborting in-flight generation calls) and
// waits for them to wind down.
func (m *Manager) Close() {
	m.mu.Lock()
	for _, r := range m.runners {
		r.requestCancel()
	}
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
}
