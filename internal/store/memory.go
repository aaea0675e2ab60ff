// Package store provides Store implementations for session persistence: an
// in-memory store with TTL expiry for single-process deployments and tests,
// and a Redis-backed store for durable multi-instance reads.
package store

import (
	"context"
	"sync"
	"time"

	"github.com/draftforge/contentplan/internal/pipeline"
)

// DefaultTTL is the session retention window unless configured otherwise.
const DefaultTTL = 40 * time.Minute

// Compile-time interface check.
var _ pipeline.Store = (*MemoryStore)(nil)

// entry bundles a session with its stage records and expiry deadline.
type entry struct {
	session    pipeline.Session
	stages     map[string]pipeline.StageExecutionRecord
	stageOrder []string // first-write order
	expiresAt  time.Time
}

// MemoryStore is a concurrency-safe in-memory Store. Sessions are kept in a
// map keyed by ID with a separate slice maintaining creation order for
// deterministic listing. Every write refreshes the session's TTL; expired
// sessions are dropped lazily on read and by the janitor.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	order   []string
	ttl     time.Duration

	// onEvict, if set, is called (outside the lock) with the IDs of
	// sessions removed by the janitor.
	onEvict func(sessionID string)
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithTTL sets the retention window.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		s.ttl = ttl
	}
}

// WithEvictFunc registers a callback invoked when the janitor evicts an
// expired session.
func WithEvictFunc(fn func(sessionID string)) MemoryOption {
	return func(s *MemoryStore) {
		s.onEvict = fn
	}
}

// NewMemoryStore returns an initialized MemoryStore.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateSession stores a new session.
func (s *MemoryStore) CreateSession(ctx context.Context, sess *pipeline.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.entries[sess.ID]
	if exists && !s.expired(e) {
		return pipeline.ErrSessionExists
	}

	s.entries[sess.ID] = &entry{
		session:   *copySession(sess),
		stages:    make(map[string]pipeline.StageExecutionRecord),
		expiresAt: time.Now().Add(s.ttl),
	}
	if !exists {
		// An expired entry keeps its original order slot.
		s.order = append(s.order, sess.ID)
	}
	return nil
}

// GetSession returns a copy of the stored session.
func (s *MemoryStore) GetSession(ctx context.Context, id string) (*pipeline.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok || s.expired(e) {
		return nil, pipeline.ErrSessionNotFound
	}
	return copySession(&e.session), nil
}

// UpdateSession applies fn to the stored session and refreshes its TTL.
func (s *MemoryStore) UpdateSession(ctx context.Context, id string, fn func(*pipeline.Session)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || s.expired(e) {
		return pipeline.ErrSessionNotFound
	}
	fn(&e.session)
	e.expiresAt = time.Now().Add(s.ttl)
	return nil
}

// ListSessions returns copies of all live sessions in creation order.
func (s *MemoryStore) ListSessions(ctx context.Context) ([]pipeline.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]pipeline.Session, 0, len(s.order))
	for _, id := range s.order {
		e, ok := s.entries[id]
		if !ok || s.expired(e) {
			continue
		}
		out = append(out, *copySession(&e.session))
	}
	return out, nil
}

// PutStage upserts a stage execution record and refreshes the session TTL.
func (s *MemoryStore) PutStage(ctx context.Context, rec pipeline.StageExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[rec.SessionID]
	if !ok || s.expired(e) {
		return pipeline.ErrSessionNotFound
	}

	if _, seen := e.stages[rec.StageID]; !seen {
		e.stageOrder = append(e.stageOrder, rec.StageID)
	}
	e.stages[rec.StageID] = *copyStage(&rec)
	e.expiresAt = time.Now().Add(s.ttl)
	return nil
}

// GetStages returns the session's stage records in first-write order.
func (s *MemoryStore) GetStages(ctx context.Context, sessionID string) ([]pipeline.StageExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[sessionID]
	if !ok || s.expired(e) {
		return nil, pipeline.ErrSessionNotFound
	}

	out := make([]pipeline.StageExecutionRecord, 0, len(e.stageOrder))
	for _, stageID := range e.stageOrder {
		rec := e.stages[stageID]
		out = append(out, *copyStage(&rec))
	}
	return out, nil
}

// Close implements Store. The memory store holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}

// RunJanitor evicts expired sessions every interval until ctx is cancelled.
func (s *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

// evictExpired removes expired entries and fires the eviction callback.
func (s *MemoryStore) evictExpired() {
	now := time.Now()

	s.mu.Lock()
	var evicted []string
	live := s.order[:0]
	for _, id := range s.order {
		e, ok := s.entries[id]
		if !ok {
			continue
		}
		if now.After(e.expiresAt) {
			delete(s.entries, id)
			evicted = append(evicted, id)
			continue
		}
		live = append(live, id)
	}
	s.order = live
	cb := s.onEvict
	s.mu.Unlock()

	if cb != nil {
		for _, id := range evicted {
			cb(id)
		}
	}
}

// expired reports whether an entry's retention window has lapsed. Caller
// holds at least a read lock.
func (s *MemoryStore) expired(e *entry) bool {
	return time.Now().After(e.expiresAt)
}

// copySession returns a deep copy of a session. Slice and RawMessage fields
// are independently copied so callers can mutate freely.
func copySession(src *pipeline.Session) *pipeline.Session {
	dst := *src
	if src.StageIDs != nil {
		dst.StageIDs = append([]string(nil), src.StageIDs...)
	}
	if src.Params != nil {
		dst.Params = append([]byte(nil), src.Params...)
	}
	if src.Result != nil {
		dst.Result = append([]byte(nil), src.Result...)
	}
	return &dst
}

// copyStage returns a deep copy of a stage execution record.
func copyStage(src *pipeline.StageExecutionRecord) *pipeline.StageExecutionRecord {
	dst := *src
	if src.Deficiencies != nil {
		dst.Deficiencies = append([]string(nil), src.Deficiencies...)
	}
	if src.Output != nil {
		dst.Output = append([]byte(nil), src.Output...)
	}
	return &dst
}
