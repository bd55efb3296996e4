package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/veilbreaker/sheetgate/internal/database/types"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []struct {
			model any
			name  string
		}{
			{(*types.PendingMember)(nil), "pending_members"},
			{(*types.PendingAuth)(nil), "pending_auths"},
			{(*types.AdminToken)(nil), "admin_tokens"},
			{(*types.UserAccount)(nil), "user_accounts"},
			{(*types.UserToken)(nil), "user_tokens"},
			{(*types.AccountHistory)(nil), "account_histories"},
		}

		for _, m := range models {
			_, err := db.NewCreateTable().
				Model(m.model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table %s: %w", m.name, err)
			}
		}

		// User tokens cannot outlive the account link they belong to.
		_, err := db.ExecContext(ctx, `
			ALTER TABLE user_tokens
			ADD CONSTRAINT fk_user_tokens_account
			FOREIGN KEY (discord_user_id) REFERENCES user_accounts (discord_user_id)
		`)
		if err != nil {
			return fmt.Errorf("failed to add user token constraint: %w", err)
		}

		indexes := []struct {
			name    string
			table   string
			columns string
		}{
			{"idx_pending_members_expires", "pending_members", "timer_expires_at"},
			{"idx_admin_tokens_discord_user", "admin_tokens", "discord_user_id"},
			{"idx_account_histories_user", "account_histories", "discord_user_id, created_at DESC"},
			{"idx_account_histories_email", "account_histories", "LOWER(google_email), created_at DESC"},
		}

		for _, idx := range indexes {
			_, err := db.ExecContext(ctx, fmt.Sprintf(
				"CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns,
			))
			if err != nil {
				return fmt.Errorf("failed to create index %s: %w", idx.name, err)
			}
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		tables := []string{
			"user_tokens",
			"user_accounts",
			"account_histories",
			"admin_tokens",
			"pending_auths",
			"pending_members",
		}

		for _, table := range tables {
			_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
			if err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}
