package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/veilbreaker/sheetgate/internal/database/dbretry"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

// AdminTokenModel handles database operations for sheet-owner credentials.
type AdminTokenModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewAdminToken creates a new admin token model instance.
func NewAdminToken(db *bun.DB, logger *zap.Logger) *AdminTokenModel {
	return &AdminTokenModel{
		db:     db,
		logger: logger.Named("db_admin_token"),
	}
}

// Upsert stores or refreshes an owner credential. Called after every
// successful initial auth and every refresh, so it must be idempotent.
func (m *AdminTokenModel) Upsert(ctx context.Context, token *types.AdminToken) error {
	token.UpdatedAt = time.Now()

	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(token).
			On("CONFLICT (google_email) DO UPDATE").
			Set("discord_user_id = EXCLUDED.discord_user_id").
			Set("access_token = EXCLUDED.access_token").
			Set("refresh_token = EXCLUDED.refresh_token").
			Set("token_type = EXCLUDED.token_type").
			Set("expiry = EXCLUDED.expiry").
			Set("scope = EXCLUDED.scope").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert admin token: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted admin token",
		zap.String("email", token.GoogleEmail),
		zap.Uint64("discordUserID", token.DiscordUserID))

	return nil
}

// Get retrieves the credential for an owner email, or nil if none exists.
func (m *AdminTokenModel) Get(ctx context.Context, googleEmail string) (*types.AdminToken, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.AdminToken, error) {
		var token types.AdminToken

		err := m.db.NewSelect().
			Model(&token).
			Where("google_email = ?", googleEmail).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get admin token: %w", err)
		}

		return &token, nil
	})
}

// GetByDiscordUser retrieves the credential linked to a Discord admin, or nil.
func (m *AdminTokenModel) GetByDiscordUser(ctx context.Context, discordUserID uint64) (*types.AdminToken, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.AdminToken, error) {
		var token types.AdminToken

		err := m.db.NewSelect().
			Model(&token).
			Where("discord_user_id = ?", discordUserID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get admin token by discord user: %w", err)
		}

		return &token, nil
	})
}

// List returns every registered owner credential; used to populate the token
// manager eagerly at startup.
func (m *AdminTokenModel) List(ctx context.Context) ([]*types.AdminToken, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) ([]*types.AdminToken, error) {
		var tokens []*types.AdminToken

		err := m.db.NewSelect().
			Model(&tokens).
			Order("created_at ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list admin tokens: %w", err)
		}

		return tokens, nil
	})
}

// Delete removes an owner credential and reports whether one existed.
func (m *AdminTokenModel) Delete(ctx context.Context, googleEmail string) (bool, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (bool, error) {
		res, err := m.db.NewDelete().
			Model((*types.AdminToken)(nil)).
			Where("google_email = ?", googleEmail).
			Exec(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to delete admin token: %w", err)
		}

		rows, err := res.RowsAffected()
		if err != nil {
			return false, fmt.Errorf("failed to read affected rows: %w", err)
		}

		return rows > 0, nil
	})
}
