package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/veilbreaker/sheetgate/internal/database/dbretry"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

// PendingMemberModel handles database operations for nickname-compliance timers.
type PendingMemberModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPendingMember creates a new pending member model instance.
func NewPendingMember(db *bun.DB, logger *zap.Logger) *PendingMemberModel {
	return &PendingMemberModel{
		db:     db,
		logger: logger.Named("db_pending_member"),
	}
}

// Upsert inserts or replaces the timer row for a (guild, member) pair.
func (m *PendingMemberModel) Upsert(ctx context.Context, member *types.PendingMember) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(member).
			On("CONFLICT (guild_id, discord_user_id) DO UPDATE").
			Set("username = EXCLUDED.username").
			Set("joined_at = EXCLUDED.joined_at").
			Set("timer_expires_at = EXCLUDED.timer_expires_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert pending member: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted pending member",
		zap.Uint64("guildID", member.GuildID),
		zap.Uint64("userID", member.DiscordUserID),
		zap.Time("expiresAt", member.TimerExpiresAt))

	return nil
}

// Get retrieves the timer row for a (guild, member) pair, or nil if none exists.
func (m *PendingMemberModel) Get(
	ctx context.Context, guildID, discordUserID uint64,
) (*types.PendingMember, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.PendingMember, error) {
		var member types.PendingMember

		err := m.db.NewSelect().
			Model(&member).
			Where("guild_id = ?", guildID).
			Where("discord_user_id = ?", discordUserID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get pending member: %w", err)
		}

		return &member, nil
	})
}

// ListByGuild returns every timer row for a guild.
func (m *PendingMemberModel) ListByGuild(ctx context.Context, guildID uint64) ([]*types.PendingMember, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.PendingMember, error) {
		var members []*types.PendingMember

		err := m.db.NewSelect().
			Model(&members).
			Where("guild_id = ?", guildID).
			Order("timer_expires_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending members: %w", err)
		}

		return members, nil
	})
}

// GuildIDs returns the distinct guilds that have outstanding timer rows.
func (m *PendingMemberModel) GuildIDs(ctx context.Context) ([]uint64, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]uint64, error) {
		var guildIDs []uint64

		err := m.db.NewSelect().
			Model((*types.PendingMember)(nil)).
			ColumnExpr("DISTINCT guild_id").
			Scan(ctx, &guildIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending guilds: %w", err)
		}

		return guildIDs, nil
	})
}

// Delete removes the timer row if present and reports whether one existed.
// Deleting an absent row is not an error; cancellation must be idempotent.
func (m *PendingMemberModel) Delete(ctx context.Context, guildID, discordUserID uint64) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		res, err := m.db.NewDelete().
			Model((*types.PendingMember)(nil)).
			Where("guild_id = ?", guildID).
			Where("discord_user_id = ?", discordUserID).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete pending member: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read affected rows: %w", err)
		}

		return rows > 0, nil
	})
}

// Count returns the number of outstanding timer rows for a guild.
func (m *PendingMemberModel) Count(ctx context.Context, guildID uint64) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.PendingMember)(nil)).
			Where("guild_id = ?", guildID).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count pending members: %w", err)
		}

		return count, nil
	})
}
