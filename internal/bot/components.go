package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"go.uber.org/zap"
)

// handleComponentInteraction routes the consent and removal confirmation
// buttons. Unknown custom IDs are ignored.
func (b *Bot) handleComponentInteraction(event *events.ComponentInteractionCreate) {
	customID := event.Data.CustomID()

	var handler func(ctx context.Context)

	switch {
	case customID == ConfirmUserButtonID:
		handler = func(ctx context.Context) { b.completeAuth(ctx, event, types.AuthKindUser) }
	case customID == ConfirmAdminButtonID:
		handler = func(ctx context.Context) { b.completeAuth(ctx, event, types.AuthKindAdmin) }
	case strings.HasPrefix(customID, ConfirmRemovePrefix):
		handler = func(ctx context.Context) { b.confirmRemove(ctx, event, customID) }
	case strings.HasPrefix(customID, ConfirmRemoveOwnerPrefix):
		handler = func(ctx context.Context) { b.confirmRemoveOwner(ctx, event, customID) }
	default:
		return
	}

	go func() {
		if err := event.DeferCreateMessage(true); err != nil {
			b.logger.Error("Failed to defer component response", zap.Error(err))

			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
		defer cancel()

		handler(ctx)
	}()
}

// confirmExpired reports whether the confirmation prompt is older than the
// allowed window, based on the prompt message's snowflake timestamp.
func confirmExpired(event *events.ComponentInteractionCreate) bool {
	return time.Since(event.Message.ID.Time()) > RemoveConfirmWindow
}

func (b *Bot) confirmRemove(ctx context.Context, event *events.ComponentInteractionCreate, customID string) {
	targetID, err := strconv.ParseUint(strings.TrimPrefix(customID, ConfirmRemovePrefix), 10, 64)
	if err != nil {
		b.respondError(event, "This confirmation is malformed. Please run the command again.")

		return
	}

	if confirmExpired(event) {
		b.respondError(event, "This confirmation has expired. Please run the command again.")

		return
	}

	invokerID := uint64(event.User().ID)

	var actorID uint64

	if targetID != invokerID {
		member := event.Member()
		if member == nil || !member.Permissions.Has(discord.PermissionManageGuild) {
			b.respondError(event, "You need the Manage Server permission to unlink other members.")

			return
		}

		actorID = invokerID
	}

	b.removeUserAccount(ctx, event, targetID, actorID)
}

func (b *Bot) confirmRemoveOwner(ctx context.Context, event *events.ComponentInteractionCreate, customID string) {
	if confirmExpired(event) {
		b.respondError(event, "This confirmation has expired. Please run the command again.")

		return
	}

	member := event.Member()
	if member == nil || !member.Permissions.Has(discord.PermissionAdministrator) {
		b.respondError(event, "You need the Administrator permission to remove owner credentials.")

		return
	}

	b.removeOwner(ctx, event, strings.TrimPrefix(customID, ConfirmRemoveOwnerPrefix))
}

// completeAuth consumes the user's pending auth and finishes the matching
// registration. The pending row is deleted on consumption, so every outcome
// below leaves no half-open flow behind.
func (b *Bot) completeAuth(ctx context.Context, event *events.ComponentInteractionCreate, kind types.AuthKind) {
	userID := uint64(event.User().ID)

	pending, err := b.db.PendingAuth().Consume(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to consume pending auth", zap.Uint64("userID", userID), zap.Error(err))
		b.respondError(event, "Something went wrong. Please try again.")

		return
	}

	if pending == nil {
		b.respondError(event, "No completed Google sign-in found. Use the sign-in button first, then press this one.")

		return
	}

	if time.Since(pending.AuthenticatedAt) > PendingAuthMaxAge {
		b.respondError(event, "Your Google sign-in has expired. Please run the command again.")

		return
	}

	if pending.Kind != kind {
		b.respondError(event, "This sign-in belongs to a different flow. Please run the command again.")

		return
	}

	switch kind {
	case types.AuthKindAdmin:
		b.completeOwnerAuth(ctx, event, userID, pending)
	case types.AuthKindUser:
		b.completeUserAuth(ctx, event, userID, pending)
	}
}

func (b *Bot) completeOwnerAuth(
	ctx context.Context, event *events.ComponentInteractionCreate, userID uint64, pending *types.PendingAuth,
) {
	existing, err := b.db.AdminToken().GetByDiscordUser(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to look up owner credential", zap.Uint64("userID", userID), zap.Error(err))
		b.respondError(event, "Something went wrong. Please try again.")

		return
	}

	// Re-authenticating the same email refreshes the stored credential;
	// switching emails requires an explicit removal first.
	if existing != nil && !strings.EqualFold(existing.GoogleEmail, pending.GoogleEmail) {
		b.respondError(event, fmt.Sprintf(
			"You already registered **%s** as an owner. Remove it before registering another account.",
			existing.GoogleEmail))

		return
	}

	now := time.Now()

	err = b.tokens.Register(ctx, &types.AdminToken{
		GoogleEmail:   pending.GoogleEmail,
		DiscordUserID: userID,
		AccessToken:   pending.Tokens.AccessToken,
		RefreshToken:  pending.Tokens.RefreshToken,
		TokenType:     pending.Tokens.TokenType,
		Expiry:        pending.Tokens.Expiry,
		Scope:         pending.Tokens.Scope,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		b.logger.Error("Failed to register owner credential",
			zap.String("email", pending.GoogleEmail),
			zap.Error(err))
		b.respondError(event, "Failed to store the owner credential. Please try again.")

		return
	}

	b.respondSuccess(event, fmt.Sprintf(
		"Registered **%s** as a sheet-owner account.", pending.GoogleEmail))
}

func (b *Bot) completeUserAuth(
	ctx context.Context, event *events.ComponentInteractionCreate, userID uint64, pending *types.PendingAuth,
) {
	existing, err := b.db.UserAccount().Get(ctx, userID)
	if err != nil {
		b.logger.Error("Failed to look up user account", zap.Uint64("userID", userID), zap.Error(err))
		b.respondError(event, "Something went wrong. Please try again.")

		return
	}

	if existing != nil {
		b.respondError(event, fmt.Sprintf("You already have **%s** linked.", existing.GoogleEmail))

		return
	}

	other, err := b.db.UserAccount().GetByEmail(ctx, pending.GoogleEmail)
	if err != nil {
		b.logger.Error("Failed to look up account by email",
			zap.String("email", pending.GoogleEmail),
			zap.Error(err))
		b.respondError(event, "Something went wrong. Please try again.")

		return
	}

	if other != nil {
		b.respondError(event, fmt.Sprintf(
			"**%s** is already linked to another member.", pending.GoogleEmail))

		return
	}

	// All sheets or none: a partial grant is rolled back inside GrantAll and
	// nothing is persisted for this user.
	if result := b.coordinator.GrantAll(ctx, pending.GoogleEmail); result.Err() != nil {
		b.logger.Error("Failed to grant sheet access",
			zap.String("email", pending.GoogleEmail),
			zap.String("failedSheet", result.FailedSheet),
			zap.Strings("leakedSheets", result.LeakedSheets()),
			zap.Error(result.GrantErr))

		msg := fmt.Sprintf(
			"Granting access failed on sheet `%s`; the %d sheets granted before it were revoked again and nothing was registered.",
			result.FailedSheet, len(result.RolledBack))
		if leaked := result.LeakedSheets(); len(leaked) > 0 {
			msg += fmt.Sprintf(
				"\n⚠️ Revoking could not be completed on `%s`. A moderator should remove **%s** from those sheets manually.",
				strings.Join(leaked, "`, `"), pending.GoogleEmail)
		}

		b.respondError(event, msg)

		return
	}

	if err := b.db.UserAccount().Register(ctx, userID, pending.GoogleEmail, pending.Tokens); err != nil {
		b.logger.Error("Failed to register user account",
			zap.Uint64("userID", userID),
			zap.String("email", pending.GoogleEmail),
			zap.Error(err))

		// Keep access and storage consistent: the grant is undone since the
		// registration could not be recorded.
		b.coordinator.RevokeAll(ctx, pending.GoogleEmail)
		b.respondError(event, "Failed to store your registration. Please try again.")

		return
	}

	b.appendHistory(ctx, userID, pending.GoogleEmail, types.HistoryActionRegister, 0)

	b.respondSuccess(event, fmt.Sprintf(
		"Linked **%s** and granted editor access on %d sheets.",
		pending.GoogleEmail, b.coordinator.SheetCount()))
}
