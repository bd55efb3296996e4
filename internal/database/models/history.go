package models

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/veilbreaker/sheetgate/internal/database/dbretry"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

// HistoryModel handles the append-only account audit log. Rows are never
// mutated or deleted.
type HistoryModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewHistory creates a new history model instance.
func NewHistory(db *bun.DB, logger *zap.Logger) *HistoryModel {
	return &HistoryModel{
		db:     db,
		logger: logger.Named("db_history"),
	}
}

// Append records a register or remove action.
func (m *HistoryModel) Append(ctx context.Context, entry *types.AccountHistory) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().Model(entry).Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to append account history: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Appended account history",
		zap.Uint64("discordUserID", entry.DiscordUserID),
		zap.String("email", entry.GoogleEmail),
		zap.String("action", string(entry.Action)))

	return nil
}

// ByDiscordUser returns the audit entries for a Discord user, newest first.
func (m *HistoryModel) ByDiscordUser(
	ctx context.Context, discordUserID uint64, limit int,
) ([]*types.AccountHistory, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.AccountHistory, error) {
		var entries []*types.AccountHistory

		err := m.db.NewSelect().
			Model(&entries).
			Where("discord_user_id = ?", discordUserID).
			Order("created_at DESC", "id DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get history by discord user: %w", err)
		}

		return entries, nil
	})
}

// ByEmail returns the audit entries for a Google email, case-insensitive,
// newest first.
func (m *HistoryModel) ByEmail(ctx context.Context, googleEmail string, limit int) ([]*types.AccountHistory, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.AccountHistory, error) {
		var entries []*types.AccountHistory

		err := m.db.NewSelect().
			Model(&entries).
			Where("LOWER(google_email) = LOWER(?)", googleEmail).
			Order("created_at DESC", "id DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get history by email: %w", err)
		}

		return entries, nil
	})
}
