// Package oauth implements the Google consent flow: short-lived state
// tokens in Redis, the HTTPS callback server, and the initiate API the bot
// uses to mint consent links.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/redis/rueidis"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

// StateTTL bounds how long a consent link stays valid.
const StateTTL = 10 * time.Minute

// ErrStateNotFound is returned for unknown, expired, or already-used state
// tokens.
var ErrStateNotFound = errors.New("state token not found or expired")

const statePrefix = "auth_state:"

// StateEntry ties a state token to the Discord user and flow kind that
// requested it.
type StateEntry struct {
	DiscordUserID uint64         `json:"discord_user_id"`
	Kind          types.AuthKind `json:"kind"`
}

// StateStore keeps consent state tokens in Redis with a fixed TTL so
// abandoned flows clean themselves up.
type StateStore struct {
	client rueidis.Client
	logger *zap.Logger
}

// NewStateStore creates a state store over an existing Redis client.
func NewStateStore(client rueidis.Client, logger *zap.Logger) *StateStore {
	return &StateStore{
		client: client,
		logger: logger.Named("auth_state"),
	}
}

// Create mints a new state token for a user and flow kind.
func (s *StateStore) Create(ctx context.Context, discordUserID uint64, kind types.AuthKind) (string, error) {
	state := uuid.NewString()

	payload, err := sonic.Marshal(StateEntry{DiscordUserID: discordUserID, Kind: kind})
	if err != nil {
		return "", fmt.Errorf("failed to marshal state entry: %w", err)
	}

	err = s.client.Do(ctx, s.client.B().Set().
		Key(statePrefix+state).
		Value(string(payload)).
		Ex(StateTTL).
		Build()).Error()
	if err != nil {
		return "", fmt.Errorf("failed to store state token: %w", err)
	}

	s.logger.Debug("Created state token",
		zap.Uint64("discordUserID", discordUserID),
		zap.String("kind", string(kind)))

	return state, nil
}

// Peek returns the entry for a state token without consuming it.
func (s *StateStore) Peek(ctx context.Context, state string) (*StateEntry, error) {
	resp := s.client.Do(ctx, s.client.B().Get().Key(statePrefix+state).Build())

	return decodeEntry(resp)
}

// Consume returns the entry for a state token and deletes it atomically, so
// a token authorizes exactly one callback.
func (s *StateStore) Consume(ctx context.Context, state string) (*StateEntry, error) {
	resp := s.client.Do(ctx, s.client.B().Getdel().Key(statePrefix+state).Build())

	return decodeEntry(resp)
}

func decodeEntry(resp rueidis.RedisResult) (*StateEntry, error) {
	payload, err := resp.ToString()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, ErrStateNotFound
		}

		return nil, fmt.Errorf("failed to read state token: %w", err)
	}

	var entry StateEntry
	if err := sonic.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state entry: %w", err)
	}

	return &entry, nil
}
