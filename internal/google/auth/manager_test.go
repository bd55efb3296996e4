package auth_test

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"github.com/veilbreaker/sheetgate/internal/google/auth"
	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
)

// memoryStore is an in-memory credential store for tests.
type memoryStore struct {
	mu     sync.Mutex
	tokens map[string]*types.AdminToken
}

func newMemoryStore() *memoryStore {
	return &memoryStore{tokens: make(map[string]*types.AdminToken)}
}

func (s *memoryStore) Upsert(_ context.Context, token *types.AdminToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *token
	s.tokens[token.GoogleEmail] = &clone

	return nil
}

func (s *memoryStore) List(_ context.Context) ([]*types.AdminToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []*types.AdminToken

	for _, token := range s.tokens {
		clone := *token
		tokens = append(tokens, &clone)
	}

	return tokens, nil
}

func (s *memoryStore) Delete(_ context.Context, googleEmail string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.tokens[googleEmail]
	delete(s.tokens, googleEmail)

	return ok, nil
}

func (s *memoryStore) accessToken(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tokens[email].AccessToken
}

// stubRefresher returns a canned bundle or error.
type stubRefresher struct {
	mu     sync.Mutex
	bundle types.TokenBundle
	err    error
	calls  int
}

func (r *stubRefresher) Refresh(_ context.Context, _ types.TokenBundle) (types.TokenBundle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls++

	if r.err != nil {
		return types.TokenBundle{}, r.err
	}

	return r.bundle, nil
}

func (r *stubRefresher) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.calls
}

func ownerToken(email string) *types.AdminToken {
	return &types.AdminToken{
		GoogleEmail:   email,
		DiscordUserID: 42,
		AccessToken:   "access-old",
		RefreshToken:  "refresh-1",
		TokenType:     "Bearer",
		Expiry:        time.Now().Add(time.Hour),
	}
}

func unauthorized() error {
	return &googleapi.Error{Code: http.StatusUnauthorized, Message: "Invalid Credentials"}
}

func TestManagerDoUnknownEmail(t *testing.T) {
	t.Parallel()

	manager := auth.NewManager(newMemoryStore(), &stubRefresher{}, zap.NewNop())

	err := manager.Do(context.Background(), "nobody@example.com", func(_ context.Context, _ *http.Client) error {
		t.Fatal("op must not run without a credential")

		return nil
	})
	require.ErrorIs(t, err, auth.ErrNotAuthenticated)
}

func TestManagerDoSuccessNoRefresh(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	refresher := &stubRefresher{}
	manager := auth.NewManager(store, refresher, zap.NewNop())

	require.NoError(t, manager.Register(context.Background(), ownerToken("owner@example.com")))

	calls := 0

	err := manager.Do(context.Background(), "owner@example.com", func(_ context.Context, client *http.Client) error {
		calls++

		require.NotNil(t, client)

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, refresher.callCount())
}

func TestManagerDoRefreshesOnceOn401(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	refresher := &stubRefresher{
		bundle: types.TokenBundle{
			AccessToken: "access-new",
			TokenType:   "Bearer",
			Expiry:      time.Now().Add(time.Hour),
		},
	}
	manager := auth.NewManager(store, refresher, zap.NewNop())

	require.NoError(t, manager.Register(context.Background(), ownerToken("owner@example.com")))

	calls := 0

	err := manager.Do(context.Background(), "owner@example.com", func(_ context.Context, _ *http.Client) error {
		calls++

		if calls == 1 {
			return unauthorized()
		}

		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, refresher.callCount())

	// The refreshed credential is persisted and the refresh token kept.
	assert.Equal(t, "access-new", store.accessToken("owner@example.com"))

	token, err := manager.Token("owner@example.com")
	require.NoError(t, err)
	assert.Equal(t, "access-new", token.AccessToken)
	assert.Equal(t, "refresh-1", token.RefreshToken)
}

func TestManagerDoRetriesOnlyOnce(t *testing.T) {
	t.Parallel()

	refresher := &stubRefresher{
		bundle: types.TokenBundle{AccessToken: "access-new", TokenType: "Bearer"},
	}
	manager := auth.NewManager(newMemoryStore(), refresher, zap.NewNop())

	require.NoError(t, manager.Register(context.Background(), ownerToken("owner@example.com")))

	calls := 0

	err := manager.Do(context.Background(), "owner@example.com", func(_ context.Context, _ *http.Client) error {
		calls++

		return unauthorized()
	})

	// Still unauthorized after the retry: the error surfaces as-is.
	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, refresher.callCount())
}

func TestManagerDoReauthRequired(t *testing.T) {
	t.Parallel()

	t.Run("refresh rejected", func(t *testing.T) {
		t.Parallel()

		refresher := &stubRefresher{err: assert.AnError}
		manager := auth.NewManager(newMemoryStore(), refresher, zap.NewNop())

		require.NoError(t, manager.Register(context.Background(), ownerToken("owner@example.com")))

		err := manager.Do(context.Background(), "owner@example.com", func(_ context.Context, _ *http.Client) error {
			return unauthorized()
		})
		require.ErrorIs(t, err, auth.ErrReauthRequired)
	})

	t.Run("no refresh token stored", func(t *testing.T) {
		t.Parallel()

		manager := auth.NewManager(newMemoryStore(), &stubRefresher{}, zap.NewNop())

		token := ownerToken("owner@example.com")
		token.RefreshToken = ""
		require.NoError(t, manager.Register(context.Background(), token))

		err := manager.Do(context.Background(), "owner@example.com", func(_ context.Context, _ *http.Client) error {
			return unauthorized()
		})
		require.ErrorIs(t, err, auth.ErrReauthRequired)
	})
}

func TestManagerNonAuthErrorsPassThrough(t *testing.T) {
	t.Parallel()

	refresher := &stubRefresher{}
	manager := auth.NewManager(newMemoryStore(), refresher, zap.NewNop())

	require.NoError(t, manager.Register(context.Background(), ownerToken("owner@example.com")))

	apiErr := &googleapi.Error{Code: http.StatusForbidden, Message: "insufficient permissions"}

	err := manager.Do(context.Background(), "owner@example.com", func(_ context.Context, _ *http.Client) error {
		return apiErr
	})
	require.ErrorIs(t, err, apiErr)
	assert.Equal(t, 0, refresher.callCount())
}

func TestManagerLoadAll(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	require.NoError(t, store.Upsert(context.Background(), ownerToken("a@example.com")))
	require.NoError(t, store.Upsert(context.Background(), ownerToken("b@example.com")))

	manager := auth.NewManager(store, &stubRefresher{}, zap.NewNop())
	require.NoError(t, manager.LoadAll(context.Background()))

	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, manager.Emails())
}

func TestManagerRemove(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	manager := auth.NewManager(store, &stubRefresher{}, zap.NewNop())

	require.NoError(t, manager.Register(context.Background(), ownerToken("owner@example.com")))

	existed, err := manager.Remove(context.Background(), "owner@example.com")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Empty(t, manager.Emails())

	existed, err = manager.Remove(context.Background(), "owner@example.com")
	require.NoError(t, err)
	assert.False(t, existed)
}
