package enforcer_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilbreaker/sheetgate/internal/enforcer"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, provider *fakeProvider, store *memoryStore) *enforcer.Engine {
	t.Helper()

	registry := enforcer.NewRegistry(store, zap.NewNop())

	t.Cleanup(registry.Stop)

	engine := enforcer.NewEngine(provider, store, registry, time.Hour, time.Millisecond, zap.NewNop())
	registry.Bind(engine.KickMemberIfNeeded)

	return engine
}

func TestIsCompliant(t *testing.T) {
	t.Parallel()

	tests := []struct {
		displayName string
		want        bool
	}{
		{"Handle@Tag", true},
		{"handle@", true},
		{"@tag", true},
		{"plainname", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.displayName, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, enforcer.IsCompliant(tt.displayName))
		})
	}
}

func TestKickMemberIfNeeded(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("removes non-compliant member after DM", func(t *testing.T) {
		t.Parallel()

		provider := newFakeProvider()
		provider.addMember(&enforcer.Member{GuildID: 1, UserID: 100, Username: "tester", DisplayName: "plainname"})

		store := newMemoryStore()
		engine := newTestEngine(t, provider, store)

		require.NoError(t, engine.KickMemberIfNeeded(ctx, 1, 100))
		assert.Equal(t, 1, provider.kickedCount())
		assert.Equal(t, 1, provider.dmCount())
	})

	t.Run("skips member that renamed", func(t *testing.T) {
		t.Parallel()

		provider := newFakeProvider()
		provider.addMember(&enforcer.Member{GuildID: 1, UserID: 100, DisplayName: "plainname"})
		provider.rename(1, 100, "handle@tag")

		store := newMemoryStore()
		engine := newTestEngine(t, provider, store)

		require.NoError(t, engine.KickMemberIfNeeded(ctx, 1, 100))
		assert.Equal(t, 0, provider.kickedCount())
	})

	t.Run("skips member that already left", func(t *testing.T) {
		t.Parallel()

		provider := newFakeProvider()
		store := newMemoryStore()
		engine := newTestEngine(t, provider, store)

		require.NoError(t, engine.KickMemberIfNeeded(ctx, 1, 100))
		assert.Equal(t, 0, provider.kickedCount())
	})

	t.Run("closed DMs do not block the removal", func(t *testing.T) {
		t.Parallel()

		provider := newFakeProvider()
		provider.addMember(&enforcer.Member{GuildID: 1, UserID: 100, DisplayName: "plainname"})
		provider.dmErr = assert.AnError

		store := newMemoryStore()
		engine := newTestEngine(t, provider, store)

		require.NoError(t, engine.KickMemberIfNeeded(ctx, 1, 100))
		assert.Equal(t, 1, provider.kickedCount())
	})

	t.Run("removal failure surfaces to the caller", func(t *testing.T) {
		t.Parallel()

		provider := newFakeProvider()
		provider.addMember(&enforcer.Member{GuildID: 1, UserID: 100, DisplayName: "plainname"})
		provider.kickErr = assert.AnError

		store := newMemoryStore()
		engine := newTestEngine(t, provider, store)

		require.Error(t, engine.KickMemberIfNeeded(ctx, 1, 100))
	})
}

func TestHandleJoin(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	joinedAt := time.Now()

	tests := []struct {
		name          string
		member        *enforcer.Member
		wantScheduled bool
	}{
		{
			name:          "non-compliant member gets a timer",
			member:        &enforcer.Member{GuildID: 1, UserID: 100, Username: "tester", DisplayName: "plainname", JoinedAt: joinedAt},
			wantScheduled: true,
		},
		{
			name:   "compliant member is ignored",
			member: &enforcer.Member{GuildID: 1, UserID: 101, DisplayName: "handle@tag", JoinedAt: joinedAt},
		},
		{
			name:   "bots are exempt",
			member: &enforcer.Member{GuildID: 1, UserID: 102, DisplayName: "plainname", JoinedAt: joinedAt, Bot: true},
		},
		{
			name:   "guild managers are exempt",
			member: &enforcer.Member{GuildID: 1, UserID: 103, DisplayName: "plainname", JoinedAt: joinedAt, ManagesGuild: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			provider := newFakeProvider()
			provider.addMember(tt.member)

			store := newMemoryStore()
			engine := newTestEngine(t, provider, store)

			require.NoError(t, engine.HandleJoin(ctx, tt.member))

			row, err := store.Get(ctx, tt.member.GuildID, tt.member.UserID)
			require.NoError(t, err)

			if tt.wantScheduled {
				require.NotNil(t, row)
				assert.Equal(t, joinedAt.Add(time.Hour).Unix(), row.TimerExpiresAt.Unix())
				assert.Equal(t, 1, provider.dmCount())
			} else {
				assert.Nil(t, row)
				assert.Equal(t, 0, provider.dmCount())
			}
		})
	}
}

func TestHandleLeaveClearsTimer(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	provider := newFakeProvider()
	member := &enforcer.Member{GuildID: 1, UserID: 100, DisplayName: "plainname", JoinedAt: time.Now()}
	provider.addMember(member)

	store := newMemoryStore()
	engine := newTestEngine(t, provider, store)

	require.NoError(t, engine.HandleJoin(ctx, member))
	assert.Equal(t, 1, store.count())

	require.NoError(t, engine.HandleLeave(ctx, 1, 100))
	assert.Equal(t, 0, store.count())
}

func TestSweep(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	now := time.Now()

	provider := newFakeProvider()
	provider.addMember(&enforcer.Member{GuildID: 1, UserID: 100, Username: "alpha", DisplayName: "plainname", JoinedAt: now})
	provider.addMember(&enforcer.Member{GuildID: 1, UserID: 101, Username: "beta", DisplayName: "handle@tag", JoinedAt: now})
	provider.addMember(&enforcer.Member{GuildID: 1, UserID: 102, Username: "gamma", DisplayName: "plainname", JoinedAt: now, Bot: true})
	provider.addMember(&enforcer.Member{GuildID: 1, UserID: 103, Username: "delta", DisplayName: "plainname", JoinedAt: now, ManagesGuild: true})
	provider.addMember(&enforcer.Member{GuildID: 1, UserID: 104, Username: "echo", DisplayName: "noat", JoinedAt: now})

	store := newMemoryStore()
	engine := newTestEngine(t, provider, store)

	// One member is already tracked from a previous pass.
	require.NoError(t, store.Upsert(ctx, pendingRow(1, 104, time.Hour)))

	result, err := engine.Sweep(ctx, 1)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Total)
	assert.Equal(t, 1, result.Compliant)
	assert.Equal(t, 2, result.Exempt)
	assert.Equal(t, 1, result.AlreadyPending)
	assert.Equal(t, 1, result.Scheduled)
	assert.Equal(t, 0, result.DMFailed)

	assert.Equal(t, 1, provider.dmCount())
	assert.Equal(t, 2, store.count())
}

func TestSweepCountsFailedDMs(t *testing.T) {
	t.Parallel()

	provider := newFakeProvider()
	provider.addMember(&enforcer.Member{GuildID: 1, UserID: 100, DisplayName: "plainname", JoinedAt: time.Now()})
	provider.dmErr = assert.AnError

	store := newMemoryStore()
	engine := newTestEngine(t, provider, store)

	result, err := engine.Sweep(context.Background(), 1)
	require.NoError(t, err)

	// The timer is still scheduled even when the warning DM fails.
	assert.Equal(t, 1, result.Scheduled)
	assert.Equal(t, 1, result.DMFailed)
	assert.Equal(t, 1, store.count())
}
