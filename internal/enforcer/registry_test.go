package enforcer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"github.com/veilbreaker/sheetgate/internal/enforcer"
	"go.uber.org/zap"
)

func pendingRow(guildID, userID uint64, expiresIn time.Duration) *types.PendingMember {
	now := time.Now()

	return &types.PendingMember{
		GuildID:        guildID,
		DiscordUserID:  userID,
		Username:       "tester",
		JoinedAt:       now,
		TimerExpiresAt: now.Add(expiresIn),
	}
}

func TestRegistryScheduleFires(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	registry := enforcer.NewRegistry(store, zap.NewNop())

	t.Cleanup(registry.Stop)

	var (
		mu    sync.Mutex
		fired []uint64
	)

	registry.Bind(func(_ context.Context, _, memberID uint64) error {
		mu.Lock()
		defer mu.Unlock()

		fired = append(fired, memberID)

		return nil
	})

	require.NoError(t, registry.Schedule(context.Background(), pendingRow(1, 100, 20*time.Millisecond)))
	assert.Equal(t, 1, store.count())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(fired) == 1
	}, time.Second, 5*time.Millisecond)

	// Row is cleared once the timer has fired.
	require.Eventually(t, func() bool {
		return store.count() == 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []uint64{100}, fired)
}

func TestRegistryRescheduleReplacesTimer(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	registry := enforcer.NewRegistry(store, zap.NewNop())

	t.Cleanup(registry.Stop)

	var (
		mu    sync.Mutex
		fires int
	)

	registry.Bind(func(_ context.Context, _, _ uint64) error {
		mu.Lock()
		defer mu.Unlock()

		fires++

		return nil
	})

	ctx := context.Background()

	// Two schedules for the same key must collapse to one callback.
	require.NoError(t, registry.Schedule(ctx, pendingRow(1, 100, 30*time.Millisecond)))
	require.NoError(t, registry.Schedule(ctx, pendingRow(1, 100, 60*time.Millisecond)))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return fires == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, 1, fires)
}

func TestRegistryCancelAfterImmediateReschedule(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	registry := enforcer.NewRegistry(store, zap.NewNop())

	t.Cleanup(registry.Stop)

	var (
		mu    sync.Mutex
		fires int
	)

	registry.Bind(func(_ context.Context, _, _ uint64) error {
		mu.Lock()
		defer mu.Unlock()

		fires++

		return nil
	})

	ctx := context.Background()

	// Rescheduling while the previous timer's callback is already in flight
	// must leave the replacement timer registered, so the cancel below can
	// still stop it. Iterate to give the in-flight callback a chance to
	// overlap the replacement.
	for range 25 {
		require.NoError(t, registry.Schedule(ctx, pendingRow(1, 100, 0)))
		require.NoError(t, registry.Schedule(ctx, pendingRow(1, 100, 60*time.Millisecond)))

		_, err := registry.Cancel(ctx, 1, 100)
		require.NoError(t, err)
	}

	// Let in-flight callbacks settle, then verify no orphaned timer fires
	// after the final cancel.
	time.Sleep(40 * time.Millisecond)

	mu.Lock()
	settled := fires
	mu.Unlock()

	time.Sleep(120 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, settled, fires)
}

func TestRegistryCancel(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	registry := enforcer.NewRegistry(store, zap.NewNop())

	t.Cleanup(registry.Stop)

	var (
		mu    sync.Mutex
		fires int
	)

	registry.Bind(func(_ context.Context, _, _ uint64) error {
		mu.Lock()
		defer mu.Unlock()

		fires++

		return nil
	})

	ctx := context.Background()

	require.NoError(t, registry.Schedule(ctx, pendingRow(1, 100, 40*time.Millisecond)))

	existed, err := registry.Cancel(ctx, 1, 100)
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, 0, store.count())

	// Cancelling again is a harmless no-op.
	existed, err = registry.Cancel(ctx, 1, 100)
	require.NoError(t, err)
	assert.False(t, existed)

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, 0, fires)
}

func TestRegistryReconcile(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	ctx := context.Background()

	// Seed the store directly, as if a previous process had crashed.
	require.NoError(t, store.Upsert(ctx, pendingRow(1, 100, -time.Minute)))
	require.NoError(t, store.Upsert(ctx, pendingRow(1, 101, 30*time.Millisecond)))
	require.NoError(t, store.Upsert(ctx, pendingRow(2, 200, time.Hour)))

	registry := enforcer.NewRegistry(store, zap.NewNop())

	t.Cleanup(registry.Stop)

	var (
		mu    sync.Mutex
		fired []uint64
	)

	registry.Bind(func(_ context.Context, _, memberID uint64) error {
		mu.Lock()
		defer mu.Unlock()

		fired = append(fired, memberID)

		return nil
	})

	require.NoError(t, registry.Reconcile(ctx))

	// The expired row fires during reconcile, the near-future one shortly
	// after, and the far-future one keeps its row.
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()

		return len(fired) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.ElementsMatch(t, []uint64{100, 101}, fired)
	mu.Unlock()

	require.Eventually(t, func() bool {
		return store.count() == 1
	}, time.Second, 5*time.Millisecond)

	row, err := store.Get(ctx, 2, 200)
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestRegistryStopKeepsRows(t *testing.T) {
	t.Parallel()

	store := newMemoryStore()
	registry := enforcer.NewRegistry(store, zap.NewNop())

	var (
		mu    sync.Mutex
		fires int
	)

	registry.Bind(func(_ context.Context, _, _ uint64) error {
		mu.Lock()
		defer mu.Unlock()

		fires++

		return nil
	})

	require.NoError(t, registry.Schedule(context.Background(), pendingRow(1, 100, 30*time.Millisecond)))

	registry.Stop()

	time.Sleep(80 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 0, fires)
	mu.Unlock()

	// Rows survive a stop so the next reconcile can restore them.
	assert.Equal(t, 1, store.count())
}
