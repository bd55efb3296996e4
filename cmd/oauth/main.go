package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/veilbreaker/sheetgate/internal/oauth"
	"github.com/veilbreaker/sheetgate/internal/redis"
	"github.com/veilbreaker/sheetgate/internal/setup"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup()

	logger := app.Logger

	stateClient, err := app.RedisManager.GetClient(redis.AuthStateDBIndex)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	states := oauth.NewStateStore(stateClient, logger)
	exchanger := oauth.NewGoogleExchanger(app.Config)
	server := oauth.NewServer(&app.Config.OAuthServer, states, app.DB.Model().PendingAuth(), exchanger, logger)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		<-gCtx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Consent server failed", zap.Error(err))
	}

	logger.Info("Consent server stopped")
}
