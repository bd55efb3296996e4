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

// PendingAuthModel handles database operations for unconfirmed OAuth grants.
type PendingAuthModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewPendingAuth creates a new pending auth model instance.
func NewPendingAuth(db *bun.DB, logger *zap.Logger) *PendingAuthModel {
	return &PendingAuthModel{
		db:     db,
		logger: logger.Named("db_pending_auth"),
	}
}

// Upsert stores a completed OAuth handshake awaiting confirmation, replacing
// any earlier outstanding one for the same Discord user.
func (m *PendingAuthModel) Upsert(ctx context.Context, auth *types.PendingAuth) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(auth).
			On("CONFLICT (discord_user_id) DO UPDATE").
			Set("kind = EXCLUDED.kind").
			Set("google_email = EXCLUDED.google_email").
			Set("tokens = EXCLUDED.tokens").
			Set("authenticated_at = EXCLUDED.authenticated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert pending auth: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted pending auth",
		zap.Uint64("userID", auth.DiscordUserID),
		zap.String("kind", string(auth.Kind)),
		zap.String("email", auth.GoogleEmail))

	return nil
}

// Consume reads and deletes the pending auth for a Discord user in one
// transaction so the confirmation step commits it at most once. Returns nil
// if no row exists.
func (m *PendingAuthModel) Consume(ctx context.Context, discordUserID uint64) (*types.PendingAuth, error) {
	var auth *types.PendingAuth

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		var row types.PendingAuth

		err := tx.NewSelect().
			Model(&row).
			Where("discord_user_id = ?", discordUserID).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}

			return fmt.Errorf("failed to get pending auth: %w", err)
		}

		_, err = tx.NewDelete().
			Model((*types.PendingAuth)(nil)).
			Where("discord_user_id = ?", discordUserID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete pending auth: %w", err)
		}

		auth = &row

		return nil
	})
	if err != nil {
		return nil, err
	}

	return auth, nil
}

// Delete removes the pending auth for a Discord user if present.
func (m *PendingAuthModel) Delete(ctx context.Context, discordUserID uint64) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.PendingAuth)(nil)).
			Where("discord_user_id = ?", discordUserID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete pending auth: %w", err)
		}

		return nil
	})
}
