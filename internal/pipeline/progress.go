package pipeline

import (
	"sync"
)

// subscriberBuffer is the channel buffer for each progress subscriber.
// Events are dropped for a subscriber that falls this far behind; the
// append-only log remains complete and can be re-read via Snapshot.
const subscriberBuffer = 256

// ProgressTracker keeps an append-only event log per session and fans events
// out to push-style subscribers. Events for a session are recorded by its
// single worker goroutine, so the log is totally ordered by emission;
// Snapshot always returns a consistent prefix.
type ProgressTracker struct {
	mu     sync.RWMutex
	logs   map[string][]ProgressEvent
	subs   map[string][]chan ProgressEvent
	closed map[string]bool
}

// NewProgressTracker returns an empty tracker.
func NewProgressTracker() *ProgressTracker {
	return &ProgressTracker{
		logs:   make(map[string][]ProgressEvent),
		subs:   make(map[string][]chan ProgressEvent),
		closed: make(map[string]bool),
	}
}

// Record appends an event to the session's log and delivers it to live
// subscribers. Delivery is non-blocking; a full subscriber buffer drops the
// event for that subscriber only.
func (t *ProgressTracker) Record(ev ProgressEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.logs[ev.SessionID] = append(t.logs[ev.SessionID], ev)

	for _, ch := range t.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
			// Subscriber is not keeping up; it can recover via Snapshot.
		}
	}
}

// Snapshot returns a copy of the session's event log so far.
func (t *ProgressTracker) Snapshot(sessionID string) []ProgressEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	log := t.logs[sessionID]
	out := make([]ProgressEvent, len(log))
	copy(out, log)
	return out
}

// Subscribe returns the events recorded so far together with a channel of
// future events, captured atomically so no event is missed or duplicated
// between replay and live delivery. The channel is closed when the session
// reaches a terminal status (or, if it already has, immediately). The
// returned cancel function detaches the subscriber early.
func (t *ProgressTracker) Subscribe(sessionID string) (replay []ProgressEvent, events <-chan ProgressEvent, cancel func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	log := t.logs[sessionID]
	replay = make([]ProgressEvent, len(log))
	copy(replay, log)

	ch := make(chan ProgressEvent, subscriberBuffer)

	if t.closed[sessionID] {
		close(ch)
		return replay, ch, func() {}
	}

	t.subs[sessionID] = append(t.subs[sessionID], ch)

	cancel = func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.removeSubscriber(sessionID, ch)
	}
	return replay, ch, cancel
}

// Close marks a session's log complete and closes all subscriber channels.
// Called by the orchestrator once the session reaches a terminal status.
func (t *ProgressTracker) Close(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed[sessionID] {
		return
	}
	t.closed[sessionID] = true

	for _, ch := range t.subs[sessionID] {
		close(ch)
	}
	delete(t.subs, sessionID)
}

// Sessions returns the IDs of every session with tracker state. Used by the
// reconciliation sweep to find sessions that have expired out of the store.
func (t *ProgressTracker) Sessions() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, 0, len(t.logs))
	for id := range t.logs {
		ids = append(ids, id)
	}
	return ids
}

// Forget drops all state for a session. Used when a session expires out of
// the store.
func (t *ProgressTracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, ch := range t.subs[sessionID] {
		close(ch)
	}
	delete(t.subs, sessionID)
	delete(t.logs, sessionID)
	delete(t.closed, sessionID)
}

// removeSubscriber detaches one channel without closing it. Caller holds the
// lock.
func (t *ProgressTracker) removeSubscriber(sessionID string, ch chan ProgressEvent) {
	subs := t.subs[sessionID]
	for i, c := range subs {
		if c == ch {
			t.subs[sessionID] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
