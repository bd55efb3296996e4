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

// UserAccountModel handles database operations for registered end-user
// Google accounts and their tokens.
type UserAccountModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewUserAccount creates a new user account model instance.
func NewUserAccount(db *bun.DB, logger *zap.Logger) *UserAccountModel {
	return &UserAccountModel{
		db:     db,
		logger: logger.Named("db_user_account"),
	}
}

// Register stores the account link and its token in one transaction. Called
// only after the multi-sheet grant fully succeeded.
func (m *UserAccountModel) Register(
	ctx context.Context, discordUserID uint64, googleEmail string, tokens types.TokenBundle,
) error {
	now := time.Now()

	account := &types.UserAccount{
		DiscordUserID: discordUserID,
		GoogleEmail:   googleEmail,
		RegisteredAt:  now,
	}

	token := &types.UserToken{
		GoogleEmail:   googleEmail,
		DiscordUserID: discordUserID,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		TokenType:     tokens.TokenType,
		Expiry:        tokens.Expiry,
		Scope:         tokens.Scope,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(account).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert user account: %w", err)
		}

		if _, err := tx.NewInsert().Model(token).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert user token: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Registered user account",
		zap.Uint64("discordUserID", discordUserID),
		zap.String("email", googleEmail))

	return nil
}

// Get retrieves the account link for a Discord user, or nil if none exists.
func (m *UserAccountModel) Get(ctx context.Context, discordUserID uint64) (*types.UserAccount, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserAccount, error) {
		var account types.UserAccount

		err := m.db.NewSelect().
			Model(&account).
			Where("discord_user_id = ?", discordUserID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get user account: %w", err)
		}

		return &account, nil
	})
}

// GetByEmail retrieves the account link for a Google email, or nil. The
// lookup is case-insensitive.
func (m *UserAccountModel) GetByEmail(ctx context.Context, googleEmail string) (*types.UserAccount, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (*types.UserAccount, error) {
		var account types.UserAccount

		err := m.db.NewSelect().
			Model(&account).
			Where("LOWER(google_email) = LOWER(?)", googleEmail).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}

			return nil, fmt.Errorf("failed to get user account by email: %w", err)
		}

		return &account, nil
	})
}

// Remove deletes the token and account rows in one transaction, token first
// to satisfy the reference between them. Reports whether a link existed.
func (m *UserAccountModel) Remove(ctx context.Context, discordUserID uint64) (bool, error) {
	var existed bool

	err := dbretry.Transaction(ctx, m.db, func(ctx context.Context, tx bun.Tx) error {
		var account types.UserAccount

		err := tx.NewSelect().
			Model(&account).
			Where("discord_user_id = ?", discordUserID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil
			}

			return fmt.Errorf("failed to get user account: %w", err)
		}

		// Token row references the account row, so it goes first.
		_, err = tx.NewDelete().
			Model((*types.UserToken)(nil)).
			Where("google_email = ?", account.GoogleEmail).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete user token: %w", err)
		}

		_, err = tx.NewDelete().
			Model((*types.UserAccount)(nil)).
			Where("discord_user_id = ?", discordUserID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete user account: %w", err)
		}

		existed = true

		return nil
	})
	if err != nil {
		return false, err
	}

	if existed {
		m.logger.Debug("Removed user account", zap.Uint64("discordUserID", discordUserID))
	}

	return existed, nil
}

// Count returns the number of registered user accounts.
func (m *UserAccountModel) Count(ctx context.Context) (int, error) {
	return dbretry.Operation(ctx, func(ctx context.Context) (int, error) {
		count, err := m.db.NewSelect().
			Model((*types.UserAccount)(nil)).
			Count(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to count user accounts: %w", err)
		}

		return count, nil
	})
}
