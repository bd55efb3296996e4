package oauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"github.com/veilbreaker/sheetgate/internal/setup/config"
	"go.uber.org/zap"
)

// PendingAuthStore persists completed-but-unconfirmed grants.
type PendingAuthStore interface {
	Upsert(ctx context.Context, auth *types.PendingAuth) error
}

// Server is the HTTPS consent server. It mints consent links for the bot,
// walks users through Google's consent screen, and parks the resulting
// tokens as pending auths until the user confirms in Discord.
type Server struct {
	cfg       *config.OAuthServer
	states    *StateStore
	pending   PendingAuthStore
	exchanger Exchanger
	logger    *zap.Logger

	httpServer *http.Server
}

// NewServer wires the consent server. TLS is used when both cert and key
// paths are configured.
func NewServer(
	cfg *config.OAuthServer, states *StateStore, pending PendingAuthStore,
	exchanger Exchanger, logger *zap.Logger,
) *Server {
	s := &Server{
		cfg:       cfg,
		states:    states,
		pending:   pending,
		exchanger: exchanger,
		logger:    logger.Named("oauth_server"),
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Routes builds the HTTP router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api/auth", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/initiate", s.handleInitiate(types.AuthKindAdmin))
		r.Post("/initiate/user", s.handleInitiate(types.AuthKindUser))
	})

	r.Get("/auth/google", s.handleRedirect)
	r.Get("/auth/google/user", s.handleRedirect)
	r.Get("/callback", s.handleCallback)

	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if s.cfg.CertFile != "" && s.cfg.KeyFile != "" {
		s.logger.Info("Starting consent server with TLS", zap.Int("port", s.cfg.Port))

		err := s.httpServer.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	}

	s.logger.Warn("Starting consent server without TLS", zap.Int("port", s.cfg.Port))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.APIKey == "" || r.Header.Get("X-API-Key") != s.cfg.APIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)

			return
		}

		next.ServeHTTP(w, r)
	})
}

type initiateRequest struct {
	DiscordUserID string `json:"discord_user_id"`
}

type initiateResponse struct {
	URL string `json:"url"`
}

// handleInitiate mints a state token for a Discord user and returns the
// consent link the bot should hand to them.
func (s *Server) handleInitiate(kind types.AuthKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req initiateRequest
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)

			return
		}

		userID, err := strconv.ParseUint(req.DiscordUserID, 10, 64)
		if err != nil || userID == 0 {
			http.Error(w, "invalid discord_user_id", http.StatusBadRequest)

			return
		}

		state, err := s.states.Create(r.Context(), userID, kind)
		if err != nil {
			s.logger.Error("Failed to create state token", zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)

			return
		}

		path := "/auth/google"
		if kind == types.AuthKindUser {
			path += "/user"
		}

		resp := initiateResponse{
			URL: fmt.Sprintf("%s%s?state=%s", strings.TrimSuffix(s.cfg.PublicURL, "/"), path, state),
		}

		w.Header().Set("Content-Type", "application/json")

		if err := sonic.ConfigDefault.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Error("Failed to encode initiate response", zap.Error(err))
		}
	}
}

// handleRedirect forwards the user to Google's consent screen. The state
// token stays alive; it is consumed at the callback.
func (s *Server) handleRedirect(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	if state == "" {
		http.Error(w, "missing state", http.StatusBadRequest)

		return
	}

	entry, err := s.states.Peek(r.Context(), state)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			s.renderPage(w, http.StatusGone, "Link expired",
				"This authorization link has expired. Please request a new one in Discord.")

			return
		}

		s.logger.Error("Failed to look up state token", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	http.Redirect(w, r, s.exchanger.AuthCodeURL(entry.Kind, state), http.StatusFound)
}

// handleCallback completes the consent flow: it consumes the state token,
// redeems the code, and parks the tokens as a pending auth for the Discord
// confirmation step.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		s.renderPage(w, http.StatusOK, "Authorization cancelled",
			"You declined the authorization. You can close this window and retry from Discord.")

		return
	}

	state := query.Get("state")
	code := query.Get("code")

	if state == "" || code == "" {
		http.Error(w, "missing state or code", http.StatusBadRequest)

		return
	}

	entry, err := s.states.Consume(r.Context(), state)
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			s.renderPage(w, http.StatusGone, "Link expired",
				"This authorization link has expired or was already used. Please request a new one in Discord.")

			return
		}

		s.logger.Error("Failed to consume state token", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	token, email, err := s.exchanger.Exchange(r.Context(), entry.Kind, code)
	if err != nil {
		s.logger.Error("Failed to complete token exchange",
			zap.Uint64("discordUserID", entry.DiscordUserID),
			zap.Error(err))
		s.renderPage(w, http.StatusBadGateway, "Authorization failed",
			"Something went wrong while talking to Google. Please retry from Discord.")

		return
	}

	pending := &types.PendingAuth{
		DiscordUserID:   entry.DiscordUserID,
		Kind:            entry.Kind,
		GoogleEmail:     email,
		Tokens:          types.BundleFromToken(token, strings.Join(ScopesFor(entry.Kind), " ")),
		AuthenticatedAt: time.Now(),
	}

	if err := s.pending.Upsert(r.Context(), pending); err != nil {
		s.logger.Error("Failed to store pending auth",
			zap.Uint64("discordUserID", entry.DiscordUserID),
			zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	s.logger.Info("Completed consent flow",
		zap.Uint64("discordUserID", entry.DiscordUserID),
		zap.String("kind", string(entry.Kind)),
		zap.String("email", email))

	s.renderPage(w, http.StatusOK, "Authorization complete",
		fmt.Sprintf("Authenticated as %s. Return to Discord and press the confirmation button to finish.", email))
}

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; background: #2c2f33; color: #ffffff; display: flex; justify-content: center; align-items: center; height: 100vh; margin: 0; }
.card { background: #23272a; padding: 2rem 3rem; border-radius: 8px; text-align: center; max-width: 28rem; }
h1 { font-size: 1.4rem; }
</style>
</head>
<body>
<div class="card">
<h1>%s</h1>
<p>%s</p>
</div>
</body>
</html>
`

func (s *Server) renderPage(w http.ResponseWriter, status int, title, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, pageTemplate, title, title, message)
}
