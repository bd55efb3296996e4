package oauth_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"github.com/veilbreaker/sheetgate/internal/oauth"
	"go.uber.org/zap"
)

func newTestStore(t *testing.T) (*oauth.StateStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{mr.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	t.Cleanup(client.Close)

	return oauth.NewStateStore(client, zap.NewNop()), mr
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)
	ctx := context.Background()

	state, err := store.Create(ctx, 12345, types.AuthKindAdmin)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	// Peek does not consume.
	entry, err := store.Peek(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), entry.DiscordUserID)
	assert.Equal(t, types.AuthKindAdmin, entry.Kind)

	entry, err = store.Consume(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, uint64(12345), entry.DiscordUserID)

	// A consumed token is gone.
	_, err = store.Consume(ctx, state)
	require.ErrorIs(t, err, oauth.ErrStateNotFound)
}

func TestStateUnknownToken(t *testing.T) {
	t.Parallel()

	store, _ := newTestStore(t)

	_, err := store.Peek(context.Background(), "bogus")
	require.ErrorIs(t, err, oauth.ErrStateNotFound)

	_, err = store.Consume(context.Background(), "bogus")
	require.ErrorIs(t, err, oauth.ErrStateNotFound)
}

func TestStateExpires(t *testing.T) {
	t.Parallel()

	store, mr := newTestStore(t)
	ctx := context.Background()

	state, err := store.Create(ctx, 12345, types.AuthKindUser)
	require.NoError(t, err)

	mr.FastForward(oauth.StateTTL + time.Second)

	_, err = store.Consume(ctx, state)
	require.ErrorIs(t, err, oauth.ErrStateNotFound)
}
