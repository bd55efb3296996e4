package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/rest"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

const handlerTimeout = 2 * time.Minute

// handleApplicationCommandInteraction defers the response and dispatches the
// command in a goroutine so slow Google or sweep work cannot hit Discord's
// three second interaction deadline.
func (b *Bot) handleApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	go func() {
		if err := event.DeferCreateMessage(true); err != nil {
			b.logger.Error("Failed to defer interaction response", zap.Error(err))

			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		name := event.SlashCommandInteractionData().CommandName()

		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in command handler",
					zap.String("command", name),
					zap.Any("panic", r))
				b.respondError(event, "Internal error. Please report this to an administrator.")
			}
		}()

		switch name {
		case NicknameCheckCommandName:
			b.handleNicknameCheck(ctx, event)
		case CancelTimerCommandName:
			b.handleCancelTimer(ctx, event)
		case PendingListCommandName:
			b.handlePendingList(ctx, event)
		case GoogleRegisterCommandName:
			b.handleGoogleRegister(ctx, event)
		case GoogleRemoveCommandName:
			b.handleGoogleRemove(ctx, event)
		case RegisterOwnerCommandName:
			b.handleRegisterOwner(ctx, event)
		case RemoveOwnerCommandName:
			b.handleRemoveOwner(ctx, event)
		case AccountLookupCommandName:
			b.handleAccountLookup(ctx, event)
		case HistoryCommandName:
			b.handleHistory(ctx, event)
		case MemberCheckCommandName:
			b.handleMemberCheck(ctx, event)
		case SendMessageCommandName:
			b.handleSendMessage(ctx, event)
		default:
			b.respondError(event, "This command is not available.")
		}
	}()
}

func (b *Bot) handleNicknameCheck(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		b.respondError(event, "This command only works in a server.")

		return
	}

	guildID := uint64(*event.GuildID())

	result, err := b.engine.Sweep(ctx, guildID)
	if err != nil {
		b.logger.Error("Sweep failed", zap.Uint64("guildID", guildID), zap.Error(err))
		b.respondError(event, "The sweep failed partway through. Please try again.")

		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Nickname sweep complete").
		SetColor(embedColorPrimary).
		AddField("Members checked", fmt.Sprintf("%d", result.Total), true).
		AddField("Compliant", fmt.Sprintf("%d", result.Compliant), true).
		AddField("Exempt", fmt.Sprintf("%d", result.Exempt), true).
		AddField("Timers started", fmt.Sprintf("%d", result.Scheduled), true).
		AddField("Already tracked", fmt.Sprintf("%d", result.AlreadyPending), true).
		AddField("DMs failed", fmt.Sprintf("%d", result.DMFailed), true).
		Build()

	b.respond(event, embed)
}

func (b *Bot) handleCancelTimer(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		b.respondError(event, "This command only works in a server.")

		return
	}

	guildID := uint64(*event.GuildID())
	targetID := uint64(event.SlashCommandInteractionData().Snowflake("user"))

	existed, err := b.registry.Cancel(ctx, guildID, targetID)
	if err != nil {
		b.logger.Error("Failed to cancel timer", zap.Uint64("userID", targetID), zap.Error(err))
		b.respondError(event, "Failed to cancel the timer. Please try again.")

		return
	}

	if !existed {
		b.respondError(event, fmt.Sprintf("<@%d> has no active removal timer.", targetID))

		return
	}

	b.respondSuccess(event, fmt.Sprintf("Cancelled the removal timer for <@%d>.", targetID))
}

func (b *Bot) handlePendingList(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		b.respondError(event, "This command only works in a server.")

		return
	}

	guildID := uint64(*event.GuildID())

	rows, err := b.db.PendingMember().ListByGuild(ctx, guildID)
	if err != nil {
		b.logger.Error("Failed to list pending members", zap.Uint64("guildID", guildID), zap.Error(err))
		b.respondError(event, "Failed to load the pending list. Please try again.")

		return
	}

	if len(rows) == 0 {
		b.respondSuccess(event, "No members have an active removal timer.")

		return
	}

	var sb strings.Builder

	shown := len(rows)
	if shown > pendingListSize {
		shown = pendingListSize
	}

	for _, row := range rows[:shown] {
		fmt.Fprintf(&sb, "<@%d> (%s) removes <t:%d:R>\n",
			row.DiscordUserID, row.Username, row.TimerExpiresAt.Unix())
	}

	if len(rows) > shown {
		fmt.Fprintf(&sb, "... and %d more", len(rows)-shown)
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(fmt.Sprintf("Active removal timers (%d)", len(rows))).
		SetDescription(sb.String()).
		SetColor(embedColorPrimary).
		Build()

	b.respond(event, embed)
}

func (b *Bot) handleGoogleRegister(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	userID := uint64(event.User().ID)

	existing, err := b.db.UserAccount().Get(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to look up user account", zap.Uint64("userID", userID), zap.Error(err))
		b.respondError(event, "Failed to check your registration. Please try again.")

		return
	}

	if existing != nil {
		b.respondError(event, fmt.Sprintf(
			"You already have **%s** linked. Use `/%s` first if you want to switch accounts.",
			existing.GoogleEmail, GoogleRemoveCommandName))

		return
	}

	url, err := b.authClient.Initiate(ctx, userID, types.AuthKindUser)
	if err != nil {
		b.logger.Error("Failed to initiate consent flow", zap.Uint64("userID", userID), zap.Error(err))
		b.respondError(event, "Could not reach the authorization service. Please try again later.")

		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Link your Google account").
		SetDescription(fmt.Sprintf(
			"1. Sign in with Google using the button below.\n"+
				"2. Come back and press **Complete registration** within %d minutes.\n\n"+
				"You will get editor access to %d sheets.",
			int(PendingAuthMaxAge.Minutes()), b.coordinator.SheetCount())).
		SetColor(embedColorPrimary).
		Build()

	b.respondWithComponents(event, embed,
		discord.NewLinkButton("Sign in with Google", url),
		discord.NewPrimaryButton("Complete registration", ConfirmUserButtonID))
}

func (b *Bot) handleRegisterOwner(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	userID := uint64(event.User().ID)

	// One owner credential per Discord admin.
	existing, err := b.db.AdminToken().GetByDiscordUser(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to look up owner credential", zap.Uint64("userID", userID), zap.Error(err))
		b.respondError(event, "Failed to check your registration. Please try again.")

		return
	}

	if existing != nil {
		b.respondError(event, fmt.Sprintf(
			"You already registered **%s** as an owner. Use `/%s` first if you want to switch accounts.",
			existing.GoogleEmail, RemoveOwnerCommandName))

		return
	}

	url, err := b.authClient.Initiate(ctx, userID, types.AuthKindAdmin)
	if err != nil {
		b.logger.Error("Failed to initiate owner consent flow", zap.Uint64("userID", userID), zap.Error(err))
		b.respondError(event, "Could not reach the authorization service. Please try again later.")

		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Register a sheet-owner account").
		SetDescription(fmt.Sprintf(
			"1. Sign in with the Google account that owns the sheets.\n"+
				"2. Come back and press **Complete registration** within %d minutes.\n\n"+
				"This account will be used to grant and revoke sheet access.",
			int(PendingAuthMaxAge.Minutes()))).
		SetColor(embedColorPrimary).
		Build()

	b.respondWithComponents(event, embed,
		discord.NewLinkButton("Sign in with Google", url),
		discord.NewPrimaryButton("Complete registration", ConfirmAdminButtonID))
}

func (b *Bot) handleGoogleRemove(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	invokerID := uint64(event.User().ID)
	targetID := invokerID

	if optTarget, ok := event.SlashCommandInteractionData().OptSnowflake("user"); ok {
		targetID = uint64(optTarget)
	}

	if targetID != invokerID {
		member := event.Member()
		if member == nil || !member.Permissions.Has(discord.PermissionManageGuild) {
			b.respondError(event, "You need the Manage Server permission to unlink other members.")

			return
		}
	}

	account, err := b.db.UserAccount().Get(ctx, targetID)
	if err != nil {
		b.logger.Error("Failed to look up user account", zap.Uint64("userID", targetID), zap.Error(err))
		b.respondError(event, "Failed to look up the account. Please try again.")

		return
	}

	if account == nil {
		b.respondError(event, fmt.Sprintf("<@%d> has no linked Google account.", targetID))

		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Confirm removal").
		SetDescription(fmt.Sprintf(
			"This will unlink **%s** from <@%d> and revoke editor access on %d sheets.\n\n"+
				"Press **Confirm** within %d seconds to proceed.",
			account.GoogleEmail, targetID, b.coordinator.SheetCount(),
			int(RemoveConfirmWindow.Seconds()))).
		SetColor(embedColorError).
		Build()

	b.respondWithComponents(event, embed,
		discord.NewDangerButton("Confirm", fmt.Sprintf("%s%d", ConfirmRemovePrefix, targetID)))
}

// removeUserAccount revokes sheet access and deletes the account link. The
// revoke pass runs first and keeps going past failures; the link is removed
// regardless so a broken sheet cannot pin a stale registration.
func (b *Bot) removeUserAccount(ctx context.Context, event deferredEvent, targetID, actorID uint64) {
	account, err := b.db.UserAccount().Get(ctx, targetID)
	if err != nil {
		b.logger.Error("Failed to look up user account", zap.Uint64("userID", targetID), zap.Error(err))
		b.respondError(event, "Failed to look up the account. Please try again.")

		return
	}

	if account == nil {
		b.respondError(event, fmt.Sprintf("<@%d> has no linked Google account.", targetID))

		return
	}

	revoke := b.coordinator.RevokeAll(ctx, account.GoogleEmail)

	if _, err := b.db.UserAccount().Remove(ctx, targetID); err != nil {
		b.logger.Error("Failed to remove user account", zap.Uint64("userID", targetID), zap.Error(err))
		b.respondError(event, "Sheet access was revoked but the account link could not be removed. Please retry.")

		return
	}

	b.appendHistory(ctx, targetID, account.GoogleEmail, types.HistoryActionRemove, actorID)

	if err := revoke.Err(); err != nil {
		b.respondError(event, fmt.Sprintf(
			"Unlinked **%s**, but some sheets could not be revoked: %v", account.GoogleEmail, err))

		return
	}

	b.respondSuccess(event, fmt.Sprintf(
		"Unlinked **%s** and revoked access on %d sheets.", account.GoogleEmail, revoke.Revoked))
}

func (b *Bot) handleRemoveOwner(_ context.Context, event *events.ApplicationCommandInteractionCreate) {
	email := event.SlashCommandInteractionData().String("email")

	if _, err := b.tokens.Token(email); err != nil {
		b.respondError(event, fmt.Sprintf("No owner credential registered for **%s**.", email))

		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Confirm owner removal").
		SetDescription(fmt.Sprintf(
			"This will drop the stored credential for **%s**. Grants and revokes will fail "+
				"until another owner is registered.\n\nPress **Confirm** within %d seconds to proceed.",
			email, int(RemoveConfirmWindow.Seconds()))).
		SetColor(embedColorError).
		Build()

	b.respondWithComponents(event, embed,
		discord.NewDangerButton("Confirm", ConfirmRemoveOwnerPrefix+email))
}

// removeOwner drops a registered owner credential after confirmation.
func (b *Bot) removeOwner(ctx context.Context, event deferredEvent, email string) {
	existed, err := b.tokens.Remove(ctx, email)
	if err != nil {
		b.logger.Error("Failed to remove owner credential", zap.String("email", email), zap.Error(err))
		b.respondError(event, "Failed to remove the credential. Please try again.")

		return
	}

	if !existed {
		b.respondError(event, fmt.Sprintf("No owner credential registered for **%s**.", email))

		return
	}

	b.respondSuccess(event, fmt.Sprintf("Removed the owner credential for **%s**.", email))
}

// handleSendMessage posts the given content to the invoking channel as the
// bot, so moderators can relay announcements without exposing who wrote
// them.
func (b *Bot) handleSendMessage(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		b.respondError(event, "This command only works in a server.")

		return
	}

	content := strings.TrimSpace(event.SlashCommandInteractionData().String("content"))
	if content == "" {
		b.respondError(event, "The message content is empty.")

		return
	}

	if len(content) > relayMessageLimit {
		b.respondError(event, fmt.Sprintf("The message is too long (max %d characters).", relayMessageLimit))

		return
	}

	channelID := event.Channel().ID()

	_, err := b.client.Rest().CreateMessage(channelID,
		discord.NewMessageCreateBuilder().SetContent(content).Build(),
		rest.WithCtx(ctx))
	if err != nil {
		b.logger.Error("Failed to relay message",
			zap.Uint64("channelID", uint64(channelID)),
			zap.Error(err))
		b.respondError(event, "Could not send the message. Check the bot's permissions in this channel.")

		return
	}

	b.respondSuccess(event, "Message sent.")
}

func (b *Bot) handleAccountLookup(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()

	var (
		account *types.UserAccount
		err     error
	)

	switch {
	case dataHasSnowflake(data, "user"):
		account, err = b.db.UserAccount().Get(ctx, uint64(data.Snowflake("user")))
	case data.String("email") != "":
		account, err = b.db.UserAccount().GetByEmail(ctx, data.String("email"))
	default:
		b.respondError(event, "Provide either a member or an email to look up.")

		return
	}

	if err != nil {
		b.logger.Error("Failed to look up account", zap.Error(err))
		b.respondError(event, "The lookup failed. Please try again.")

		return
	}

	if account == nil {
		b.respondError(event, "No linked account found.")

		return
	}

	embed := discord.NewEmbedBuilder().
		SetTitle("Linked Google account").
		AddField("Member", fmt.Sprintf("<@%d>", account.DiscordUserID), true).
		AddField("Email", account.GoogleEmail, true).
		AddField("Registered", fmt.Sprintf("<t:%d:F>", account.RegisteredAt.Unix()), false).
		SetColor(embedColorPrimary).
		Build()

	b.respond(event, embed)
}

func (b *Bot) handleHistory(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	data := event.SlashCommandInteractionData()

	var (
		entries []*types.AccountHistory
		err     error
		title   string
	)

	switch {
	case dataHasSnowflake(data, "user"):
		userID := uint64(data.Snowflake("user"))
		entries, err = b.db.History().ByDiscordUser(ctx, userID, historyPageSize)
		title = fmt.Sprintf("Account history for user %d", userID)
	case data.String("email") != "":
		entries, err = b.db.History().ByEmail(ctx, data.String("email"), historyPageSize)
		title = "Account history for " + data.String("email")
	default:
		b.respondError(event, "Provide either a member or an email.")

		return
	}

	if err != nil {
		b.logger.Error("Failed to load history", zap.Error(err))
		b.respondError(event, "Failed to load the history. Please try again.")

		return
	}

	if len(entries) == 0 {
		b.respondSuccess(event, "No history entries found.")

		return
	}

	var sb strings.Builder

	for _, entry := range entries {
		fmt.Fprintf(&sb, "<t:%d:f> **%s** %s by <@%d>",
			entry.CreatedAt.Unix(), entry.Action, entry.GoogleEmail, entry.DiscordUserID)

		if entry.ActorID != 0 {
			fmt.Fprintf(&sb, " (moderator <@%d>)", entry.ActorID)
		}

		sb.WriteString("\n")
	}

	embed := discord.NewEmbedBuilder().
		SetTitle(title).
		SetDescription(sb.String()).
		SetColor(embedColorPrimary).
		Build()

	b.respond(event, embed)
}

func (b *Bot) appendHistory(ctx context.Context, userID uint64, email string, action types.HistoryAction, actorID uint64) {
	err := b.db.History().Append(ctx, &types.AccountHistory{
		DiscordUserID: userID,
		GoogleEmail:   email,
		Action:        action,
		ActorID:       actorID,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		b.logger.Error("Failed to append history entry",
			zap.Uint64("userID", userID),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

func dataHasSnowflake(data discord.SlashCommandInteractionData, name string) bool {
	_, ok := data.OptSnowflake(name)

	return ok
}
