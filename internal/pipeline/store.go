package pipeline

import "context"

// Store is the durable home of sessions and their stage execution records.
// It is the only resource shared across session workers: many concurrent
// readers (status polling), exactly one writer per session (the owning
// worker). Implementations enforce a retention window after which sessions
// expire.
type Store interface {
	// CreateSession persists a new session. Returns ErrSessionExists if the
	// ID is already present.
	CreateSession(ctx context.Context, s *Session) error

	// GetSession returns a copy of the session. Returns ErrSessionNotFound
	// for unknown or expired IDs.
	GetSession(ctx context.Context, id string) (*Session, error)

	// UpdateSession applies fn to the stored session under the store's
	// write lock for that session.
	UpdateSession(ctx context.Context, id string, fn func(*Session)) error

	// ListSessions returns copies of all live sessions in creation order.
	ListSessions(ctx context.Context) ([]Session, error)

	// PutStage upserts the execution record for (rec.SessionID, rec.StageID).
	PutStage(ctx context.Context, rec StageExecutionRecord) error

	// GetStages returns the session's stage records in first-write order.
	GetStages(ctx context.Context, sessionID string) ([]StageExecutionRecord, error)

	// Close releases any resources held by the store.
	Close() error
}
