package repository

import (
	"context"
	"testing"
	"time"

	"ncert-tutor-go/internal/model"
	"ncert-tutor-go/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStoreCurrentSession(t *testing.T) {
	ctx := context.Background()
	rdb, mr := testutil.NewRedis(t)
	store := NewSessionStore(rdb, 30*time.Minute, 6)

	id, err := store.CurrentSession(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, id)

	require.NoError(t, store.SetCurrentSession(ctx, 7, "abc"))
	id, err = store.CurrentSession(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "abc", id)

	mr.FastForward(31 * time.Minute)
	id, err = store.CurrentSession(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, id, "expires after the session timeout")

	require.NoError(t, store.SetCurrentSession(ctx, 7, "def"))
	require.NoError(t, store.ClearCurrentSession(ctx, 7))
	id, err = store.CurrentSession(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, id)
}

func TestSessionStoreTurnsAreCapped(t *testing.T) {
	ctx := context.Background()
	rdb, _ := testutil.NewRedis(t)
	store := NewSessionStore(rdb, time.Minute, 2)

	require.NoError(t, store.AppendTurns(ctx, "s",
		model.ChatTurn{Role: model.RoleUser, Content: "q1"},
		model.ChatTurn{Role: model.RoleAssistant, Content: "a1"},
	))
	require.NoError(t, store.AppendTurns(ctx, "s",
		model.ChatTurn{Role: model.RoleUser, Content: "q2"},
		model.ChatTurn{Role: model.RoleAssistant, Content: "a2"},
	))

	turns, err := store.RecentTurns(ctx, "s")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "q2", turns[0].Content)
	assert.Equal(t, "a2", turns[1].Content)
}

func TestAttemptCounter(t *testing.T) {
	ctx := context.Background()
	rdb, mr := testutil.NewRedis(t)
	c := NewAttemptCounter(rdb)

	n, err := c.Incr(ctx, "kafka:attempts:x")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	n, err = c.Incr(ctx, "kafka:attempts:x")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
	assert.Equal(t, 24*time.Hour, mr.TTL("kafka:attempts:x"))

	require.NoError(t, c.Reset(ctx, "kafka:attempts:x"))
	assert.False(t, mr.Exists("kafka:attempts:x"))
}
