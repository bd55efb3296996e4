package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/veilbreaker/sheetgate/internal/database/types"
	"golang.org/x/oauth2"
)

// OAuthRefresher redeems refresh tokens against the real OAuth endpoint.
type OAuthRefresher struct {
	config *oauth2.Config
}

// NewOAuthRefresher wraps an OAuth client configuration.
func NewOAuthRefresher(config *oauth2.Config) *OAuthRefresher {
	return &OAuthRefresher{config: config}
}

// Refresh exchanges the stored refresh token for a fresh access token. The
// expired access token is deliberately left out of the seed token so the
// token source always performs a real exchange.
func (r *OAuthRefresher) Refresh(ctx context.Context, bundle types.TokenBundle) (types.TokenBundle, error) {
	seed := &oauth2.Token{
		RefreshToken: bundle.RefreshToken,
		Expiry:       time.Now().Add(-time.Minute),
	}

	fresh, err := r.config.TokenSource(ctx, seed).Token()
	if err != nil {
		return types.TokenBundle{}, fmt.Errorf("failed to refresh token: %w", err)
	}

	return types.BundleFromToken(fresh, bundle.Scope), nil
}
