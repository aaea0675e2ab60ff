package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"github.com/draftforge/contentplan/internal/pipeline"
)

// Compile-time interface check.
var _ pipeline.Store = (*RedisStore)(nil)

// keyPrefix namespaces all orchestrator keys in a shared Redis.
const keyPrefix = "contentplan:session:"

// sessionDoc is the Redis value for one session: the session itself plus its
// stage records, stored as a single document because the session's worker is
// the only writer and always touches both together.
type sessionDoc struct {
	Session pipeline.Session                `json:"session"`
	Stages  []pipeline.StageExecutionRecord `json:"stages"`
}

// RedisStore is a Redis-backed Store with TTL-based retention. Each write
// refreshes the session's TTL, so sessions expire a retention window after
// their last activity.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to Redis using the given URL
// (e.g. redis://localhost:6379/0) and verifies the connection.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("store: connect to redis: %w", err)
	}

	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// CreateSession stores a new session document.
func (s *RedisStore) CreateSession(ctx context.Context, sess *pipeline.Session) error {
	doc := sessionDoc{Session: *sess}
	data, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal session: %w", err)
	}

	ok, err := s.client.SetNX(ctx, keyPrefix+sess.ID, data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	if !ok {
		return pipeline.ErrSessionExists
	}
	return nil
}

// GetSession returns the stored session.
func (s *RedisStore) GetSession(ctx context.Context, id string) (*pipeline.Session, error) {
	doc, err := s.getDoc(ctx, id)
	if err != nil {
		return nil, err
	}
	return &doc.Session, nil
}

// UpdateSession applies fn to the stored session. The session's worker is
// the only writer, so a read-modify-write without CAS is sufficient.
func (s *RedisStore) UpdateSession(ctx context.Context, id string, fn func(*pipeline.Session)) error {
	doc, err := s.getDoc(ctx, id)
	if err != nil {
		return err
	}
	fn(&doc.Session)
	return s.putDoc(ctx, id, doc)
}

// ListSessions scans for live session keys and returns their sessions in
// creation order.
func (s *RedisStore) ListSessions(ctx context.Context) ([]pipeline.Session, error) {
	var sessions []pipeline.Session

	iter := s.client.Scan(ctx, 0, keyPrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.client.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // expired between SCAN and GET
			}
			return nil, fmt.Errorf("store: list sessions: %w", err)
		}
		var doc sessionDoc
		if err := sonic.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("store: unmarshal session: %w", err)
		}
		sessions = append(sessions, doc.Session)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("store: scan sessions: %w", err)
	}

	sortSessionsByCreation(sessions)
	return sessions, nil
}

// PutStage upserts a stage execution record within the session document.
func (s *RedisStore) PutStage(ctx context.Context, rec pipeline.StageExecutionRecord) error {
	doc, err := s.getDoc(ctx, rec.SessionID)
	if err != nil {
		return err
	}

	replaced := false
	for i := range doc.Stages {
		if doc.Stages[i].StageID == rec.StageID {
			doc.Stages[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		doc.Stages = append(doc.Stages, rec)
	}

	return s.putDoc(ctx, rec.SessionID, doc)
}

// GetStages returns the session's stage records in first-write order.
func (s *RedisStore) GetStages(ctx context.Context, sessionID string) ([]pipeline.StageExecutionRecord, error) {
	doc, err := s.getDoc(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return doc.Stages, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// getDoc loads and unmarshals a session document.
func (s *RedisStore) getDoc(ctx context.Context, id string) (*sessionDoc, error) {
	data, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, pipeline.ErrSessionNotFound
		}
		return nil, fmt.Errorf("store: get session: %w", err)
	}

	var doc sessionDoc
	if err := sonic.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("store: unmarshal session: %w", err)
	}
	return &doc, nil
}

// putDoc marshals and stores a session document, refreshing the TTL.
func (s *RedisStore) putDoc(ctx context.Context, id string, doc *sessionDoc) error {
	data, err := sonic.Marshal(doc)
	if err != nil {
		return fmt.Errorf("store: marshal session: %w", err)
	}
	if err := s.client.Set(ctx, keyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store: put session: %w", err)
	}
	return nil
}

// sortSessionsByCreation orders sessions oldest first.
func sortSessionsByCreation(sessions []pipeline.Session) {
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
