package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/draftforge/contentplan/internal/pipeline"
)

func newSession(id string) *pipeline.Session {
	return &pipeline.Session{
		ID:        id,
		StageIDs:  []string{"a", "b"},
		Status:    pipeline.SessionPending,
		Params:    json.RawMessage(`{"topic":"x"}`),
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_CreateGetRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, []string{"a", "b"}, got.StageIDs)
	assert.Equal(t, pipeline.SessionPending, got.Status)
}

func TestMemoryStore_DuplicateCreate(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))
	err := s.CreateSession(ctx, newSession("s1"))
	require.ErrorIs(t, err, pipeline.ErrSessionExists)
}

func TestMemoryStore_GetUnknown(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.GetSession(context.Background(), "ghost")
	require.ErrorIs(t, err, pipeline.ErrSessionNotFound)

	_, err = s.GetStages(context.Background(), "ghost")
	require.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestMemoryStore_GetReturnsDeepCopy(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	got.Status = pipeline.SessionFailed
	got.StageIDs[0] = "mutated"
	got.Params[0] = '!'

	again, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.SessionPending, again.Status)
	assert.Equal(t, "a", again.StageIDs[0])
	assert.JSONEq(t, `{"topic":"x"}`, string(again.Params))
}

func TestMemoryStore_UpdateSession(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))

	require.NoError(t, s.UpdateSession(ctx, "s1", func(sess *pipeline.Session) {
		sess.Status = pipeline.SessionRunning
	}))

	got, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, pipeline.SessionRunning, got.Status)

	err = s.UpdateSession(ctx, "ghost", func(*pipeline.Session) {})
	require.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestMemoryStore_ListSessionsInCreationOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, s.CreateSession(ctx, newSession(id)))
	}

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	assert.Equal(t, "s1", sessions[0].ID)
	assert.Equal(t, "s3", sessions[2].ID)
}

func TestMemoryStore_StageRecords(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))

	require.NoError(t, s.PutStage(ctx, pipeline.StageExecutionRecord{
		SessionID: "s1", StageID: "a", Status: pipeline.StageRunning, Attempts: 1,
	}))
	require.NoError(t, s.PutStage(ctx, pipeline.StageExecutionRecord{
		SessionID: "s1", StageID: "b", Status: pipeline.StageRunning, Attempts: 1,
	}))

	// Upsert replaces in place without disturbing first-write order.
	require.NoError(t, s.PutStage(ctx, pipeline.StageExecutionRecord{
		SessionID: "s1", StageID: "a", Status: pipeline.StageSucceeded, Attempts: 2,
	}))

	records, err := s.GetStages(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "a", records[0].StageID)
	assert.Equal(t, pipeline.StageSucceeded, records[0].Status)
	assert.Equal(t, 2, records[0].Attempts)
	assert.Equal(t, "b", records[1].StageID)

	err = s.PutStage(ctx, pipeline.StageExecutionRecord{SessionID: "ghost", StageID: "a"})
	require.ErrorIs(t, err, pipeline.ErrSessionNotFound)
}

func TestMemoryStore_TTLExpiry(t *testing.T) {
	s := NewMemoryStore(WithTTL(30 * time.Millisecond))
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))

	_, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = s.GetSession(ctx, "s1")
	require.ErrorIs(t, err, pipeline.ErrSessionNotFound)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestMemoryStore_WritesRefreshTTL(t *testing.T) {
	s := NewMemoryStore(WithTTL(60 * time.Millisecond))
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))

	// Keep touching the session past its original deadline.
	for i := 0; i < 4; i++ {
		time.Sleep(30 * time.Millisecond)
		require.NoError(t, s.UpdateSession(ctx, "s1", func(*pipeline.Session) {}))
	}

	_, err := s.GetSession(ctx, "s1")
	require.NoError(t, err)
}

func TestMemoryStore_JanitorEvicts(t *testing.T) {
	var evicted []string
	s := NewMemoryStore(
		WithTTL(10*time.Millisecond),
		WithEvictFunc(func(id string) { evicted = append(evicted, id) }),
	)
	ctx := context.Background()

	require.NoError(t, s.CreateSession(ctx, newSession("s1")))

	time.Sleep(20 * time.Millisecond)
	s.evictExpired()

	assert.Equal(t, []string{"s1"}, evicted)

	sessions, err := s.ListSessions(ctx)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
