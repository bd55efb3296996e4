// Package bot wires the Discord side: gateway events feed the enforcement
// engine, slash commands drive timers and Google account management, and
// confirmation buttons complete the consent flow.
package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"github.com/veilbreaker/sheetgate/internal/database"
	"github.com/veilbreaker/sheetgate/internal/enforcer"
	"github.com/veilbreaker/sheetgate/internal/google/auth"
	"github.com/veilbreaker/sheetgate/internal/google/sheets"
	"github.com/veilbreaker/sheetgate/internal/oauth"
	"github.com/veilbreaker/sheetgate/internal/setup/config"
	"go.uber.org/zap"
)

// Bot bundles the Discord client with the enforcement and Google layers.
type Bot struct {
	cfg    *config.Config
	client bot.Client
	logger *zap.Logger

	db          *database.Repository
	provider    *memberProvider
	registry    *enforcer.Registry
	engine      *enforcer.Engine
	tokens      *auth.Manager
	coordinator *sheets.Coordinator
	roster      RosterSource
	authClient  *oauth.Client

	readyOnce sync.Once
}

// New builds the Discord client and the enforcement stack on top of it.
// roster may be nil when no roster sheet is configured; the roster check
// command then reports it as unconfigured.
func New(
	cfg *config.Config,
	db *database.Repository,
	tokens *auth.Manager,
	coordinator *sheets.Coordinator,
	roster RosterSource,
	authClient *oauth.Client,
	logger *zap.Logger,
) (*Bot, error) {
	b := &Bot{
		cfg:         cfg,
		logger:      logger.Named("bot"),
		db:          db,
		tokens:      tokens,
		coordinator: coordinator,
		roster:      roster,
		authClient:  authClient,
	}

	client, err := disgo.New(cfg.Bot.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentDirectMessages,
			),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnReady:                         b.handleReady,
			OnGuildMemberJoin:               b.handleGuildMemberJoin,
			OnGuildMemberLeave:              b.handleGuildMemberLeave,
			OnApplicationCommandInteraction: b.handleApplicationCommandInteraction,
			OnComponentInteraction:          b.handleComponentInteraction,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord client: %w", err)
	}

	b.client = client
	b.provider = newMemberProvider(client, logger)

	b.registry = enforcer.NewRegistry(db.PendingMember(), logger)
	b.engine = enforcer.NewEngine(
		b.provider,
		db.PendingMember(),
		b.registry,
		time.Duration(cfg.Bot.KickWindowHours)*time.Hour,
		time.Duration(cfg.Bot.SweepDMDelay)*time.Millisecond,
		logger,
	)
	b.registry.Bind(b.engine.KickMemberIfNeeded)

	return b, nil
}

// Start registers the slash commands and opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Registering commands")

	_, err := b.client.Rest().SetGlobalCommands(b.client.ApplicationID(), commands())
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.logger.Info("Starting bot")

	return b.client.OpenGateway(ctx)
}

// Close stops the timers and shuts the gateway down. Pending rows stay in
// the database for the next start's reconcile.
func (b *Bot) Close() {
	b.logger.Info("Closing bot")
	b.registry.Stop()
	b.client.Close(context.Background())
}

// handleReady restores timers from the database and optionally sweeps every
// guild. Gateway resumes fire Ready again, hence the once guard.
func (b *Bot) handleReady(*events.Ready) {
	b.readyOnce.Do(func() {
		go func() {
			ctx := context.Background()

			if err := b.registry.Reconcile(ctx); err != nil {
				b.logger.Error("Failed to reconcile timers", zap.Error(err))
			}

			if b.cfg.Bot.SweepOnStartup {
				b.sweepAllGuilds(ctx)
			}
		}()
	})
}

// sweepAllGuilds runs the retroactive compliance pass over every connected
// guild with a pause between guilds.
func (b *Bot) sweepAllGuilds(ctx context.Context) {
	guildDelay := time.Duration(b.cfg.Bot.SweepGuildDelay) * time.Millisecond

	first := true

	guildIDs := b.connectedGuildIDs()
	for _, guildID := range guildIDs {
		if !first {
			select {
			case <-ctx.Done():
				return
			case <-time.After(guildDelay):
			}
		}

		first = false

		result, err := b.engine.Sweep(ctx, guildID)
		if err != nil {
			b.logger.Error("Startup sweep failed",
				zap.Uint64("guildID", guildID),
				zap.Error(err))

			continue
		}

		b.logger.Info("Startup sweep finished",
			zap.Uint64("guildID", guildID),
			zap.Int("total", result.Total),
			zap.Int("scheduled", result.Scheduled))
	}
}

func (b *Bot) connectedGuildIDs() []uint64 {
	var ids []uint64

	b.client.Caches().GuildsForEach(func(guild discord.Guild) {
		ids = append(ids, uint64(guild.ID))
	})

	return ids
}

func (b *Bot) handleGuildMemberJoin(event *events.GuildMemberJoin) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		member, err := b.provider.FetchMember(ctx, uint64(event.GuildID), uint64(event.Member.User.ID))
		if err != nil {
			b.logger.Error("Failed to evaluate joining member",
				zap.Uint64("guildID", uint64(event.GuildID)),
				zap.Uint64("userID", uint64(event.Member.User.ID)),
				zap.Error(err))

			return
		}

		if err := b.engine.HandleJoin(ctx, member); err != nil {
			b.logger.Error("Failed to handle member join",
				zap.Uint64("guildID", member.GuildID),
				zap.Uint64("userID", member.UserID),
				zap.Error(err))
		}
	}()
}

func (b *Bot) handleGuildMemberLeave(event *events.GuildMemberLeave) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := b.engine.HandleLeave(ctx, uint64(event.GuildID), uint64(event.User.ID)); err != nil {
			b.logger.Error("Failed to handle member leave",
				zap.Uint64("guildID", uint64(event.GuildID)),
				zap.Uint64("userID", uint64(event.User.ID)),
				zap.Error(err))
		}
	}()
}
