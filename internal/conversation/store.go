package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"admin-gateway/internal/common/errors"
	"admin-gateway/internal/common/logger"
)

const stateKeyPrefix = "agent_state:"

// Store persists session state in Redis as JSON under agent_state:<session>.
type Store struct {
	client *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

// NewStore builds a store. A zero ttl means sessions never expire.
func NewStore(client *redis.Client, ttl time.Duration, log logger.Logger) *Store {
	return &Store{
		client: client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"component": "conversation_store"}),
	}
}

func stateKey(sessionID string) string {
	return stateKeyPrefix + sessionID
}

// Load returns the stored state for a session, or a fresh state when the
// session is unknown.
func (s *Store) Load(ctx context.Context, sessionID string) (*SessionState, error) {
	data, err := s.client.Get(ctx, stateKey(sessionID)).Result()
	if err == redis.Nil {
		return NewSessionState(sessionID), nil
	}
	if err != nil {
		return nil, errors.NewStateStoreFailedError(fmt.Errorf("load session %s: %w", sessionID, err))
	}

	var state SessionState
	if err := json.Unmarshal([]byte(data), &state); err != nil {
		// Corrupt state is unrecoverable for the session; a fresh state is
		// safer than failing every subsequent turn.
		s.logger.Error("corrupt session state, starting fresh", map[string]interface{}{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return NewSessionState(sessionID), nil
	}
	state.SessionID = sessionID
	return &state, nil
}

// Save persists the state for a session.
func (s *Store) Save(ctx context.Context, state *SessionState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return errors.NewStateStoreFailedError(fmt.Errorf("marshal session %s: %w", state.SessionID, err))
	}
	if err := s.client.Set(ctx, stateKey(state.SessionID), data, s.ttl).Err(); err != nil {
		return errors.NewStateStoreFailedError(fmt.Errorf("save session %s: %w", state.SessionID, err))
	}
	return nil
}

// Delete drops a session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, stateKey(sessionID)).Err(); err != nil {
		return errors.NewStateStoreFailedError(fmt.Errorf("delete session %s: %w", sessionID, err))
	}
	return nil
}
