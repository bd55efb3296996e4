package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilbreaker/sheetgate/internal/setup/config"
)

func validConfig() *config.Config {
	return &config.Config{
		Bot: config.Bot{Token: "token"},
		Google: config.Google{
			ClientID:     "client-id",
			ClientSecret: "client-secret",
			SheetIDs:     []string{"sheet-a", "sheet-b"},
			OwnerEmail:   "owner@example.com",
		},
		OAuthServer: config.OAuthServer{PublicURL: "https://auth.example.com"},
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr error
	}{
		{
			name:   "valid config",
			mutate: func(*config.Config) {},
		},
		{
			name:    "missing bot token",
			mutate:  func(c *config.Config) { c.Bot.Token = "" },
			wantErr: config.ErrMissingBotToken,
		},
		{
			name:    "missing client secret",
			mutate:  func(c *config.Config) { c.Google.ClientSecret = "" },
			wantErr: config.ErrMissingCredentials,
		},
		{
			name:    "empty sheet list",
			mutate:  func(c *config.Config) { c.Google.SheetIDs = nil },
			wantErr: config.ErrMissingSheets,
		},
		{
			name:    "missing owner email",
			mutate:  func(c *config.Config) { c.Google.OwnerEmail = "" },
			wantErr: config.ErrMissingOwnerEmail,
		},
		{
			name:    "missing public url",
			mutate:  func(c *config.Config) { c.OAuthServer.PublicURL = "" },
			wantErr: config.ErrMissingPublicURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}

			assert.NoError(t, err)
		})
	}
}
