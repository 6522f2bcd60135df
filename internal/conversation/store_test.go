package conversation

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"admin-gateway/internal/common/logger"
	"admin-gateway/internal/guardrail"
)

func newMiniredisStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewStore(client, 0, logger.NewNoOpLogger())
}

func TestStore_RoundTrip(t *testing.T) {
	store := newMiniredisStore(t)
	ctx := context.Background()

	state := NewSessionState("sess-1")
	state.AppendMessage(RoleUser, "Comment renouveler mon visa ?")
	state.AppendMessage(RoleAssistant, "Quelle est votre nationalité ?")
	state.Profile.Nationality = "vietnamese"
	state.Profile.Language = "French"
	state.LockedTopic = "immigration"
	state.Outstanding = &guardrail.OutstandingClarification{
		Variable: "visa_type",
		Question: "Quel type de visa détenez-vous ?",
	}

	require.NoError(t, store.Save(ctx, state))

	loaded, err := store.Load(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "sess-1", loaded.SessionID)
	assert.Len(t, loaded.Messages, 2)
	assert.Equal(t, "vietnamese", loaded.Profile.Nationality)
	assert.Equal(t, "immigration", loaded.LockedTopic)
	require.NotNil(t, loaded.Outstanding)
	assert.Equal(t, "visa_type", loaded.Outstanding.Variable)
}

func TestStore_UnknownSessionIsFresh(t *testing.T) {
	store := newMiniredisStore(t)

	state, err := store.Load(context.Background(), "never-seen")
	require.NoError(t, err)
	assert.Equal(t, "never-seen", state.SessionID)
	assert.Empty(t, state.Messages)
	assert.Nil(t, state.Outstanding)
}

func TestStore_CorruptStateStartsFresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, 0, logger.NewNoOpLogger())

	require.NoError(t, mr.Set("agent_state:bad", "{not json"))

	state, err := store.Load(context.Background(), "bad")
	require.NoError(t, err)
	assert.Empty(t, state.Messages)
}

func TestStore_Delete(t *testing.T) {
	store := newMiniredisStore(t)
	ctx := context.Background()

	state := NewSessionState("gone")
	state.AppendMessage(RoleUser, "hello")
	require.NoError(t, store.Save(ctx, state))
	require.NoError(t, store.Delete(ctx, "gone"))

	loaded, err := store.Load(ctx, "gone")
	require.NoError(t, err)
	assert.Empty(t, loaded.Messages)
}

func TestStore_RedisFailureYieldsStateStoreError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewStore(client, 0, logger.NewNoOpLogger())

	mock.ExpectGet("agent_state:sess-err").SetErr(assert.AnError)

	_, err := store.Load(context.Background(), "sess-err")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STATE_STORE_FAILED")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_SaveUsesTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewStore(client, time.Hour, logger.NewNoOpLogger())

	require.NoError(t, store.Save(context.Background(), NewSessionState("ttl-sess")))
	assert.Greater(t, mr.TTL("agent_state:ttl-sess"), time.Duration(0))
}

func TestSessionState_TurnContext(t *testing.T) {
	state := NewSessionState("s")
	state.Profile.Nationality = "french"
	state.Profile.VisaType = "None"
	state.Profile.Language = "French"
	state.LockedTopic = "immigration"

	turn := state.TurnContext("labor")
	assert.Equal(t, "immigration", turn.LockedTopic)
	assert.Equal(t, "labor", turn.IntentHint)
	assert.Equal(t, "french", turn.Profile["nationality"])
	_, hasVisa := turn.Profile["visa_type"]
	assert.False(t, hasVisa, "None values are unknown")
}

func TestSessionState_RecentHistory(t *testing.T) {
	state := NewSessionState("s")
	for i := 0; i < 5; i++ {
		state.AppendMessage(RoleUser, "q")
		state.AppendMessage(RoleAssistant, "a")
	}
	recent := state.RecentHistory(3)
	require.Len(t, recent, 3)
	assert.Equal(t, "assistant: a", recent[2])
}
