package enforcer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

const (
	// KickReason is attached to the audit log entry of every removal.
	KickReason = "Display name does not follow the naming convention"

	embedColorWarning = 0xE67E22
	embedColorRemoval = 0xE74C3C
)

// Engine applies the naming convention: it schedules timers for
// non-compliant members, re-checks compliance when timers fire, and removes
// members that never renamed.
type Engine struct {
	provider MembershipProvider
	store    PendingStore
	registry *Registry
	logger   *zap.Logger

	window  time.Duration
	dmDelay time.Duration
}

// SweepResult summarizes one full-guild compliance pass.
type SweepResult struct {
	Total          int
	Compliant      int
	Exempt         int
	AlreadyPending int
	Scheduled      int
	DMFailed       int
}

// NewEngine creates the enforcement engine. The registry must be bound to
// the engine's KickMemberIfNeeded before timers are scheduled.
func NewEngine(
	provider MembershipProvider, store PendingStore, registry *Registry,
	window, dmDelay time.Duration, logger *zap.Logger,
) *Engine {
	return &Engine{
		provider: provider,
		store:    store,
		registry: registry,
		logger:   logger.Named("enforcer"),
		window:   window,
		dmDelay:  dmDelay,
	}
}

// KickMemberIfNeeded is the timer callback. It re-fetches the member and
// removes them only if they are still present and still non-compliant. A
// member that left or renamed in the meantime is a no-op.
func (e *Engine) KickMemberIfNeeded(ctx context.Context, guildID, memberID uint64) error {
	member, err := e.provider.FetchMember(ctx, guildID, memberID)
	if err != nil {
		if errors.Is(err, ErrMemberNotFound) {
			e.logger.Info("Member left before timer expired",
				zap.Uint64("guildID", guildID),
				zap.Uint64("userID", memberID))

			return nil
		}

		return fmt.Errorf("failed to fetch member %d in guild %d: %w", memberID, guildID, err)
	}

	if IsCompliant(member.DisplayName) {
		e.logger.Info("Member renamed before timer expired",
			zap.Uint64("guildID", guildID),
			zap.Uint64("userID", memberID),
			zap.String("displayName", member.DisplayName))

		return nil
	}

	guildName, err := e.provider.GuildName(ctx, guildID)
	if err != nil {
		guildName = "the server"
	}

	// DM before removal; a closed-DM failure does not block the kick.
	if err := e.provider.SendDirectMessage(ctx, memberID, e.removalNotice(guildName)); err != nil {
		e.logger.Warn("Failed to send removal notice",
			zap.Uint64("userID", memberID),
			zap.Error(err))
	}

	if err := e.provider.RemoveMember(ctx, guildID, memberID, KickReason); err != nil {
		return fmt.Errorf("failed to remove member %d from guild %d: %w", memberID, guildID, err)
	}

	e.logger.Info("Removed non-compliant member",
		zap.Uint64("guildID", guildID),
		zap.Uint64("userID", memberID),
		zap.String("username", member.Username))

	return nil
}

// HandleJoin evaluates a newly joined member. Bots, members with guild
// management permission, and compliant names are left alone; everyone else
// gets a timer anchored to their join time plus the kick window, and a
// welcome DM explaining the convention.
func (e *Engine) HandleJoin(ctx context.Context, member *Member) error {
	if member.Bot || member.ManagesGuild || IsCompliant(member.DisplayName) {
		return nil
	}

	expiresAt := member.JoinedAt.Add(e.window)

	err := e.registry.Schedule(ctx, &types.PendingMember{
		GuildID:        member.GuildID,
		DiscordUserID:  member.UserID,
		Username:       member.Username,
		JoinedAt:       member.JoinedAt,
		TimerExpiresAt: expiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to schedule timer for member %d: %w", member.UserID, err)
	}

	guildName, err := e.provider.GuildName(ctx, member.GuildID)
	if err != nil {
		guildName = "the server"
	}

	if err := e.provider.SendDirectMessage(ctx, member.UserID, e.welcomeNotice(guildName, expiresAt)); err != nil {
		e.logger.Warn("Failed to send welcome notice",
			zap.Uint64("userID", member.UserID),
			zap.Error(err))
	}

	return nil
}

// HandleLeave clears any pending timer for a member that left on their own.
func (e *Engine) HandleLeave(ctx context.Context, guildID, memberID uint64) error {
	_, err := e.registry.Cancel(ctx, guildID, memberID)

	return err
}

// Sweep walks every member of a guild and schedules timers for the
// non-compliant ones that are not already tracked. Timers anchor to the
// sweep time, not the join time, so long-standing members get the full
// window. DMs are sent sequentially with a small delay to stay under rate
// limits.
func (e *Engine) Sweep(ctx context.Context, guildID uint64) (*SweepResult, error) {
	members, err := e.provider.ListMembers(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of guild %d: %w", guildID, err)
	}

	guildName, err := e.provider.GuildName(ctx, guildID)
	if err != nil {
		guildName = "the server"
	}

	result := &SweepResult{Total: len(members)}
	now := time.Now()

	for _, member := range members {
		switch {
		case member.Bot, member.ManagesGuild:
			result.Exempt++

			continue
		case IsCompliant(member.DisplayName):
			result.Compliant++

			continue
		}

		existing, err := e.store.Get(ctx, guildID, member.UserID)
		if err != nil {
			return result, fmt.Errorf("failed to check pending state for member %d: %w", member.UserID, err)
		}

		if existing != nil {
			result.AlreadyPending++

			continue
		}

		expiresAt := now.Add(e.window)

		err = e.registry.Schedule(ctx, &types.PendingMember{
			GuildID:        guildID,
			DiscordUserID:  member.UserID,
			Username:       member.Username,
			JoinedAt:       member.JoinedAt,
			TimerExpiresAt: expiresAt,
		})
		if err != nil {
			return result, fmt.Errorf("failed to schedule timer for member %d: %w", member.UserID, err)
		}

		result.Scheduled++

		if err := e.provider.SendDirectMessage(ctx, member.UserID, e.warningNotice(guildName, expiresAt)); err != nil {
			result.DMFailed++

			e.logger.Warn("Failed to send compliance warning",
				zap.Uint64("userID", member.UserID),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-time.After(e.dmDelay):
		}
	}

	e.logger.Info("Completed compliance sweep",
		zap.Uint64("guildID", guildID),
		zap.Int("total", result.Total),
		zap.Int("scheduled", result.Scheduled),
		zap.Int("alreadyPending", result.AlreadyPending))

	return result, nil
}

func (e *Engine) welcomeNotice(guildName string, expiresAt time.Time) discord.MessageCreate {
	embed := discord.NewEmbedBuilder().
		SetTitle("Welcome to " + guildName).
		SetDescription(fmt.Sprintf(
			"Your display name must include your in-game handle in the form `handle@tag`.\n\n"+
				"Please update your server nickname before %s or you will be removed from the server.",
			discordTimestamp(expiresAt))).
		SetColor(embedColorWarning).
		Build()

	return discord.NewMessageCreateBuilder().SetEmbeds(embed).Build()
}

func (e *Engine) warningNotice(guildName string, expiresAt time.Time) discord.MessageCreate {
	embed := discord.NewEmbedBuilder().
		SetTitle("Action required in " + guildName).
		SetDescription(fmt.Sprintf(
			"Your display name does not include an in-game handle in the form `handle@tag`.\n\n"+
				"Please update your server nickname before %s or you will be removed from the server.",
			discordTimestamp(expiresAt))).
		SetColor(embedColorWarning).
		Build()

	return discord.NewMessageCreateBuilder().SetEmbeds(embed).Build()
}

func (e *Engine) removalNotice(guildName string) discord.MessageCreate {
	embed := discord.NewEmbedBuilder().
		SetTitle("Removed from " + guildName).
		SetDescription(
			"You were removed because your display name was not updated to the `handle@tag` form in time.\n\n" +
				"You are welcome to rejoin once your name follows the convention.").
		SetColor(embedColorRemoval).
		Build()

	return discord.NewMessageCreateBuilder().SetEmbeds(embed).Build()
}

func discordTimestamp(t time.Time) string {
	return fmt.Sprintf("<t:%d:F>", t.Unix())
}
