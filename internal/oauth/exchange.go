package oauth

import (
	"context"
	"fmt"

	"github.com/veilbreaker/sheetgate/internal/database/types"
	"github.com/veilbreaker/sheetgate/internal/setup/config"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// AdminScopes cover sheet-owner accounts: full Drive access for permission
// management plus the email identity.
var AdminScopes = []string{
	drive.DriveScope,
	"https://www.googleapis.com/auth/spreadsheets",
	oauth2api.UserinfoEmailScope,
}

// UserScopes cover end users. Only the email identity is needed; access is
// granted to them, never performed by them.
var UserScopes = []string{
	oauth2api.UserinfoEmailScope,
}

// ScopesFor returns the scope set for a flow kind.
func ScopesFor(kind types.AuthKind) []string {
	if kind == types.AuthKindAdmin {
		return AdminScopes
	}

	return UserScopes
}

// Exchanger turns an authorization code into a token and the verified email
// behind it.
type Exchanger interface {
	Exchange(ctx context.Context, kind types.AuthKind, code string) (*oauth2.Token, string, error)
	AuthCodeURL(kind types.AuthKind, state string) string
}

// GoogleExchanger is the production Exchanger backed by Google's OAuth and
// userinfo endpoints.
type GoogleExchanger struct {
	adminConfig *oauth2.Config
	userConfig  *oauth2.Config
}

// NewGoogleExchanger builds the per-kind OAuth client configurations from
// the application config.
func NewGoogleExchanger(cfg *config.Config) *GoogleExchanger {
	base := oauth2.Config{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		Endpoint:     google.Endpoint,
		RedirectURL:  cfg.OAuthServer.PublicURL + "/callback",
	}

	adminConfig := base
	adminConfig.Scopes = AdminScopes

	userConfig := base
	userConfig.Scopes = UserScopes

	return &GoogleExchanger{
		adminConfig: &adminConfig,
		userConfig:  &userConfig,
	}
}

// Config returns the OAuth client configuration for a flow kind.
func (e *GoogleExchanger) Config(kind types.AuthKind) *oauth2.Config {
	if kind == types.AuthKindAdmin {
		return e.adminConfig
	}

	return e.userConfig
}

// AuthCodeURL builds the Google consent URL for a flow. Offline access and
// the consent prompt force a refresh token on every authorization.
func (e *GoogleExchanger) AuthCodeURL(kind types.AuthKind, state string) string {
	return e.Config(kind).AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// Exchange redeems the authorization code and resolves the account email
// from the userinfo endpoint.
func (e *GoogleExchanger) Exchange(ctx context.Context, kind types.AuthKind, code string) (*oauth2.Token, string, error) {
	conf := e.Config(kind)

	token, err := conf.Exchange(ctx, code)
	if err != nil {
		return nil, "", fmt.Errorf("failed to exchange authorization code: %w", err)
	}

	service, err := oauth2api.NewService(ctx, option.WithTokenSource(conf.TokenSource(ctx, token)))
	if err != nil {
		return nil, "", fmt.Errorf("failed to create userinfo service: %w", err)
	}

	info, err := service.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch userinfo: %w", err)
	}

	if info.Email == "" {
		return nil, "", fmt.Errorf("userinfo response contained no email")
	}

	return token, info.Email, nil
}
