package types

import (
	"time"

	"golang.org/x/oauth2"
)

// AuthKind distinguishes the two OAuth registration flows.
type AuthKind string

const (
	AuthKindUser  AuthKind = "user"
	AuthKindAdmin AuthKind = "admin"
)

// HistoryAction is the kind of event recorded in the account history log.
type HistoryAction string

const (
	HistoryActionRegister HistoryAction = "register"
	HistoryActionRemove   HistoryAction = "remove"
)

// TokenBundle is the opaque credential set returned by a token exchange or
// refresh, stored verbatim.
type TokenBundle struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
	Scope        string    `json:"scope,omitempty"`
}

// OAuth2Token converts the bundle into the token type used by the OAuth
// client libraries.
func (b *TokenBundle) OAuth2Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  b.AccessToken,
		RefreshToken: b.RefreshToken,
		TokenType:    b.TokenType,
		Expiry:       b.Expiry,
	}
}

// BundleFromToken builds a storable bundle from an OAuth client token.
func BundleFromToken(tok *oauth2.Token, scope string) TokenBundle {
	return TokenBundle{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		Scope:        scope,
	}
}

// PendingAuth is a completed-but-unconfirmed Google OAuth grant awaiting the
// Discord-side confirmation click. At most one outstanding row per Discord
// user; written by the consent callback server and consumed exactly once by
// the confirmation handler.
type PendingAuth struct {
	DiscordUserID   uint64      `bun:",pk"`
	Kind            AuthKind    `bun:",notnull"`
	GoogleEmail     string      `bun:",notnull"`
	Tokens          TokenBundle `bun:"type:jsonb,notnull"`
	AuthenticatedAt time.Time   `bun:",notnull"`
}

// AdminToken is a registered sheet-owner credential, one per Google account,
// linked to exactly one Discord admin. Access and refresh fields are mutated
// in place on refresh.
type AdminToken struct {
	GoogleEmail   string    `bun:",pk"`
	DiscordUserID uint64    `bun:",notnull"`
	AccessToken   string    `bun:",notnull"`
	RefreshToken  string    `bun:",nullzero"`
	TokenType     string    `bun:",notnull"`
	Expiry        time.Time `bun:",nullzero"`
	Scope         string    `bun:",nullzero"`
	CreatedAt     time.Time `bun:",notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:",notnull,default:current_timestamp"`
}

// Bundle returns the stored credential set.
func (t *AdminToken) Bundle() TokenBundle {
	return TokenBundle{
		AccessToken:  t.AccessToken,
		RefreshToken: t.RefreshToken,
		TokenType:    t.TokenType,
		Expiry:       t.Expiry,
		Scope:        t.Scope,
	}
}

// UserAccount links a Discord user to their registered Google account.
type UserAccount struct {
	DiscordUserID uint64    `bun:",pk"`
	GoogleEmail   string    `bun:",notnull,unique"`
	RegisteredAt  time.Time `bun:",notnull"`
}

// UserToken is the credential set for a registered end-user account. It
// references UserAccount and must be deleted before it on teardown.
type UserToken struct {
	GoogleEmail   string    `bun:",pk"`
	DiscordUserID uint64    `bun:",notnull"`
	AccessToken   string    `bun:",notnull"`
	RefreshToken  string    `bun:",nullzero"`
	TokenType     string    `bun:",notnull"`
	Expiry        time.Time `bun:",nullzero"`
	Scope         string    `bun:",nullzero"`
	CreatedAt     time.Time `bun:",notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:",notnull,default:current_timestamp"`
}

// AccountHistory is an append-only audit record of register/remove actions.
type AccountHistory struct {
	ID            int64         `bun:",pk,autoincrement"`
	DiscordUserID uint64        `bun:",notnull"`
	GoogleEmail   string        `bun:",notnull"`
	Action        HistoryAction `bun:",notnull"`
	ActorID       uint64        `bun:",nullzero"` // Admin who triggered the action, 0 if self-service
	CreatedAt     time.Time     `bun:",notnull,default:current_timestamp"`
}
