// Package auth manages the pool of sheet-owner Google credentials. Each
// registered owner email gets one account entry whose token is refreshed
// transparently and persisted after every refresh.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
)

var (
	// ErrNotAuthenticated is returned when no credential exists for an email.
	ErrNotAuthenticated = errors.New("no credential registered for this account")

	// ErrReauthRequired is returned when a stored refresh token was rejected
	// and the owner must complete the consent flow again.
	ErrReauthRequired = errors.New("stored credential rejected, re-authentication required")
)

// Store is the persistence surface for owner credentials.
type Store interface {
	Upsert(ctx context.Context, token *types.AdminToken) error
	List(ctx context.Context) ([]*types.AdminToken, error)
	Delete(ctx context.Context, googleEmail string) (bool, error)
}

// Refresher exchanges a refresh token for a fresh access token.
type Refresher interface {
	Refresh(ctx context.Context, bundle types.TokenBundle) (types.TokenBundle, error)
}

// account is the in-memory state for one owner email. Its mutex serializes
// every API call and refresh for that email so two callers never race a
// refresh against each other.
type account struct {
	mu    sync.Mutex
	token *types.AdminToken
}

// Manager owns the credential pool. All mutations go through it so the
// database and the in-memory view never diverge.
type Manager struct {
	store     Store
	refresher Refresher
	logger    *zap.Logger

	mu       sync.RWMutex
	accounts map[string]*account
}

// NewManager creates an empty credential pool. Call LoadAll before serving
// requests.
func NewManager(store Store, refresher Refresher, logger *zap.Logger) *Manager {
	return &Manager{
		store:     store,
		refresher: refresher,
		logger:    logger.Named("token_manager"),
		accounts:  make(map[string]*account),
	}
}

// LoadAll populates the pool from the database.
func (m *Manager) LoadAll(ctx context.Context) error {
	tokens, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to load owner credentials: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, token := range tokens {
		m.accounts[token.GoogleEmail] = &account{token: token}
	}

	m.logger.Info("Loaded owner credentials", zap.Int("count", len(tokens)))

	return nil
}

// Register persists a new or re-authenticated owner credential and installs
// it in the pool, replacing any previous entry for the same email.
func (m *Manager) Register(ctx context.Context, token *types.AdminToken) error {
	if err := m.store.Upsert(ctx, token); err != nil {
		return err
	}

	m.mu.Lock()
	m.accounts[token.GoogleEmail] = &account{token: token}
	m.mu.Unlock()

	m.logger.Info("Registered owner credential",
		zap.String("email", token.GoogleEmail),
		zap.Uint64("discordUserID", token.DiscordUserID))

	return nil
}

// Remove deletes a credential from the pool and the database. Reports
// whether one existed.
func (m *Manager) Remove(ctx context.Context, googleEmail string) (bool, error) {
	m.mu.Lock()
	delete(m.accounts, googleEmail)
	m.mu.Unlock()

	return m.store.Delete(ctx, googleEmail)
}

// Emails lists the registered owner emails.
func (m *Manager) Emails() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emails := make([]string, 0, len(m.accounts))
	for email := range m.accounts {
		emails = append(emails, email)
	}

	return emails
}

// Token returns the stored credential for an email without touching the
// network, or ErrNotAuthenticated.
func (m *Manager) Token(googleEmail string) (*types.AdminToken, error) {
	acct, err := m.lookup(googleEmail)
	if err != nil {
		return nil, err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	clone := *acct.token

	return &clone, nil
}

// Do runs op with an HTTP client authenticated as the given owner. When the
// API rejects the access token, the refresh token is redeemed exactly once,
// the new credential is persisted, and op is retried. A rejected refresh
// token yields ErrReauthRequired.
func (m *Manager) Do(ctx context.Context, googleEmail string, op func(ctx context.Context, client *http.Client) error) error {
	acct, err := m.lookup(googleEmail)
	if err != nil {
		return err
	}

	acct.mu.Lock()
	defer acct.mu.Unlock()

	err = op(ctx, m.clientFor(ctx, acct.token))
	if err == nil || !isAuthError(err) {
		return err
	}

	if refreshErr := m.refreshLocked(ctx, acct); refreshErr != nil {
		return refreshErr
	}

	return op(ctx, m.clientFor(ctx, acct.token))
}

func (m *Manager) lookup(googleEmail string) (*account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	acct, ok := m.accounts[googleEmail]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotAuthenticated, googleEmail)
	}

	return acct, nil
}

// refreshLocked redeems the refresh token and persists the result. The
// caller must hold the account mutex.
func (m *Manager) refreshLocked(ctx context.Context, acct *account) error {
	if acct.token.RefreshToken == "" {
		return fmt.Errorf("%w: %s has no refresh token", ErrReauthRequired, acct.token.GoogleEmail)
	}

	bundle, err := m.refresher.Refresh(ctx, acct.token.Bundle())
	if err != nil {
		m.logger.Warn("Refresh token rejected",
			zap.String("email", acct.token.GoogleEmail),
			zap.Error(err))

		return fmt.Errorf("%w: %s", ErrReauthRequired, acct.token.GoogleEmail)
	}

	acct.token.AccessToken = bundle.AccessToken
	acct.token.TokenType = bundle.TokenType
	acct.token.Expiry = bundle.Expiry

	// Google only returns a new refresh token on some refreshes.
	if bundle.RefreshToken != "" {
		acct.token.RefreshToken = bundle.RefreshToken
	}

	if err := m.store.Upsert(ctx, acct.token); err != nil {
		return fmt.Errorf("failed to persist refreshed credential: %w", err)
	}

	m.logger.Info("Refreshed owner credential", zap.String("email", acct.token.GoogleEmail))

	return nil
}

// clientFor builds an HTTP client pinned to the current access token. The
// static source keeps the OAuth library from refreshing behind our back so
// the manager stays the single writer of the stored credential.
func (m *Manager) clientFor(ctx context.Context, token *types.AdminToken) *http.Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: token.AccessToken,
		TokenType:   token.TokenType,
	})

	return oauth2.NewClient(ctx, src)
}

// isAuthError reports whether an API error means the access token was
// rejected rather than the request being otherwise invalid.
func isAuthError(err error) bool {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusUnauthorized
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return retrieveErr.Response != nil && retrieveErr.Response.StatusCode == http.StatusUnauthorized
	}

	return false
}
