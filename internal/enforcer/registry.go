package enforcer

import (
	"context"
	"sync"
	"time"

	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

// enforceTimeout bounds a single timer-fire enforcement pass.
const enforceTimeout = 2 * time.Minute

// EnforceFunc is invoked when a member's timer expires.
type EnforceFunc func(ctx context.Context, guildID, memberID uint64) error

type timerKey struct {
	guildID uint64
	userID  uint64
}

// Registry maintains one scheduled callback per active pending member. Rows
// in the store are authoritative; the in-memory timer set is rebuilt from
// them by Reconcile on every start.
type Registry struct {
	store   PendingStore
	enforce EnforceFunc
	logger  *zap.Logger

	mu     sync.Mutex
	timers map[timerKey]*time.Timer
}

// NewRegistry creates a timer registry over the given store. Bind must be
// called with the enforcement callback before any timer is scheduled.
func NewRegistry(store PendingStore, logger *zap.Logger) *Registry {
	return &Registry{
		store:  store,
		logger: logger.Named("timer_registry"),
		timers: make(map[timerKey]*time.Timer),
	}
}

// Bind sets the enforcement callback invoked when timers fire.
func (r *Registry) Bind(fn EnforceFunc) {
	r.enforce = fn
}

// Schedule persists the pending row and arms its timer. Scheduling the same
// (guild, member) key again replaces the previous in-memory timer so a key
// never has two parallel callbacks.
func (r *Registry) Schedule(ctx context.Context, member *types.PendingMember) error {
	if err := r.store.Upsert(ctx, member); err != nil {
		return err
	}

	r.arm(member.GuildID, member.DiscordUserID, time.Until(member.TimerExpiresAt))

	r.logger.Info("Scheduled compliance timer",
		zap.Uint64("guildID", member.GuildID),
		zap.Uint64("userID", member.DiscordUserID),
		zap.String("username", member.Username),
		zap.Time("expiresAt", member.TimerExpiresAt))

	return nil
}

// Cancel deletes the pending row if present and drops the in-memory timer.
// Cancelling an unknown member is a no-op; reports whether a row existed.
// A timer that already fired concurrently is harmless because enforcement
// re-checks compliance and row deletion is idempotent.
func (r *Registry) Cancel(ctx context.Context, guildID, memberID uint64) (bool, error) {
	key := timerKey{guildID: guildID, userID: memberID}

	r.mu.Lock()
	if timer, ok := r.timers[key]; ok {
		timer.Stop()
		delete(r.timers, key)
	}
	r.mu.Unlock()

	existed, err := r.store.Delete(ctx, guildID, memberID)
	if err != nil {
		return false, err
	}

	if existed {
		r.logger.Info("Cancelled compliance timer",
			zap.Uint64("guildID", guildID),
			zap.Uint64("userID", memberID))
	}

	return existed, nil
}

// Reconcile rebuilds the timer set from the store: expired rows are enforced
// immediately and deleted, the rest are re-armed with their remaining delay.
// Each guild is processed independently so one guild's enumeration failure
// does not abort the others.
func (r *Registry) Reconcile(ctx context.Context) error {
	guildIDs, err := r.store.GuildIDs(ctx)
	if err != nil {
		return err
	}

	for _, guildID := range guildIDs {
		r.reconcileGuild(ctx, guildID)
	}

	return nil
}

func (r *Registry) reconcileGuild(ctx context.Context, guildID uint64) {
	rows, err := r.store.ListByGuild(ctx, guildID)
	if err != nil {
		r.logger.Error("Failed to load pending members for guild",
			zap.Uint64("guildID", guildID),
			zap.Error(err))

		return
	}

	now := time.Now()

	restored, expired := 0, 0

	for _, row := range rows {
		remaining := row.Remaining(now)
		if remaining <= 0 {
			// Already overdue; enforce now and continue with the next row.
			r.fireNow(ctx, row.GuildID, row.DiscordUserID)

			expired++

			continue
		}

		r.arm(row.GuildID, row.DiscordUserID, remaining)

		restored++
	}

	r.logger.Info("Reconciled guild timers",
		zap.Uint64("guildID", guildID),
		zap.Int("restored", restored),
		zap.Int("expiredOnBoot", expired))
}

// arm registers the deferred callback for a key, replacing any previous one.
func (r *Registry) arm(guildID, userID uint64, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}

	key := timerKey{guildID: guildID, userID: userID}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.timers[key]; ok {
		old.Stop()
	}

	// The callback may already be running and blocked on r.mu when this key
	// is re-armed or cancelled. It only clears the map entry and enforces if
	// the entry still points at its own timer; otherwise it was superseded
	// and the newer owner of the key is authoritative.
	var timer *time.Timer

	timer = time.AfterFunc(delay, func() {
		r.mu.Lock()
		current, live := r.timers[key]
		if live && current == timer {
			delete(r.timers, key)
		}
		r.mu.Unlock()

		if !live || current != timer {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), enforceTimeout)
		defer cancel()

		r.fireNow(ctx, guildID, userID)
	})

	r.timers[key] = timer
}

// fireNow runs enforcement for a key and deletes its row. Enforcement errors
// are terminal for this invocation; the row is deleted either way so a
// failed removal is not retried on the next boot.
func (r *Registry) fireNow(ctx context.Context, guildID, userID uint64) {
	if err := r.enforce(ctx, guildID, userID); err != nil {
		r.logger.Error("Enforcement failed",
			zap.Uint64("guildID", guildID),
			zap.Uint64("userID", userID),
			zap.Error(err))
	}

	if _, err := r.store.Delete(ctx, guildID, userID); err != nil {
		r.logger.Error("Failed to delete pending member after enforcement",
			zap.Uint64("guildID", guildID),
			zap.Uint64("userID", userID),
			zap.Error(err))
	}
}

// Stop cancels every in-memory timer. Rows stay in the store so the next
// Reconcile restores them.
func (r *Registry) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, timer := range r.timers {
		timer.Stop()
		delete(r.timers, key)
	}
}
