package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/veilbreaker/sheetgate/internal/bot"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"github.com/veilbreaker/sheetgate/internal/google/auth"
	"github.com/veilbreaker/sheetgate/internal/google/sheets"
	"github.com/veilbreaker/sheetgate/internal/oauth"
	"github.com/veilbreaker/sheetgate/internal/setup"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	app, err := setup.InitializeApp(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup()

	cfg := app.Config
	logger := app.Logger

	// Owner credentials are loaded eagerly so grant operations never pay a
	// first-use database roundtrip.
	exchanger := oauth.NewGoogleExchanger(cfg)
	refresher := auth.NewOAuthRefresher(exchanger.Config(types.AuthKindAdmin))
	tokenManager := auth.NewManager(app.DB.Model().AdminToken(), refresher, logger)

	if err := tokenManager.LoadAll(ctx); err != nil {
		logger.Fatal("Failed to load owner credentials", zap.Error(err))
	}

	permissions := sheets.NewDrivePermissions(tokenManager, cfg.Google.OwnerEmail, cfg.Google.NotifyOnShare, logger)
	coordinator := sheets.NewCoordinator(permissions, cfg.Google.SheetIDs, logger)
	authClient := oauth.NewClient(cfg.OAuthServer.PublicURL, cfg.OAuthServer.APIKey)

	var roster bot.RosterSource
	if cfg.Google.Roster.SheetID != "" {
		roster = sheets.NewSheetRoster(tokenManager, cfg.Google.OwnerEmail, sheets.RosterConfig{
			SpreadsheetID: cfg.Google.Roster.SheetID,
			TabGID:        cfg.Google.Roster.TabGID,
			Column:        cfg.Google.Roster.Column,
			StartRow:      cfg.Google.Roster.StartRow,
		}, logger)
	}

	discordBot, err := bot.New(cfg, app.DB.Model(), tokenManager, coordinator, roster, authClient, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	if err := discordBot.Start(ctx); err != nil {
		logger.Fatal("Failed to start bot", zap.Error(err))
	}

	logger.Info("Bot started, waiting for interrupt signal")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	discordBot.Close()
}
