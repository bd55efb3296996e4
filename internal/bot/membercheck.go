package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"github.com/veilbreaker/sheetgate/internal/enforcer"
	"github.com/veilbreaker/sheetgate/internal/google/auth"
	"go.uber.org/zap"
)

// RosterSource reads the expected member names out of the roster sheet.
type RosterSource interface {
	Nicknames(ctx context.Context) ([]string, error)
}

// handleMemberCheck compares the roster sheet against the live member list
// and reports names that appear on the sheet but not in the guild.
func (b *Bot) handleMemberCheck(ctx context.Context, event *events.ApplicationCommandInteractionCreate) {
	if event.GuildID() == nil {
		b.respondError(event, "This command only works in a server.")

		return
	}

	if b.roster == nil {
		b.respondError(event,
			"The roster sheet is not configured. Set `google.roster.sheet_id` in the config.")

		return
	}

	guildID := uint64(*event.GuildID())

	rosterNames, err := b.roster.Nicknames(ctx)
	if err != nil {
		b.logger.Error("Failed to read roster sheet", zap.Uint64("guildID", guildID), zap.Error(err))

		if errors.Is(err, auth.ErrNotAuthenticated) || errors.Is(err, auth.ErrReauthRequired) {
			b.respondError(event, fmt.Sprintf(
				"The sheet-owner credential is missing or expired. Use `/%s` first.", RegisterOwnerCommandName))

			return
		}

		b.respondError(event, "Could not read the roster sheet. Please try again.")

		return
	}

	if len(rosterNames) == 0 {
		b.respondError(event, "No names found in the roster sheet.")

		return
	}

	members, err := b.provider.ListMembers(ctx, guildID)
	if err != nil {
		b.logger.Error("Failed to list guild members", zap.Uint64("guildID", guildID), zap.Error(err))
		b.respondError(event, "Could not load the server member list. Please try again.")

		return
	}

	missing := missingFromRoster(rosterNames, guildNames(members))

	embed := discord.NewEmbedBuilder().
		SetTitle("Roster check").
		AddField("Roster names", fmt.Sprintf("%d", len(rosterNames)), true).
		AddField("Server members", fmt.Sprintf("%d", len(members)), true).
		AddField("Missing", fmt.Sprintf("%d", len(missing)), true)

	if len(missing) == 0 {
		embed.SetDescription("Every name on the roster sheet is present in this server.").
			SetColor(embedColorSuccess)

		b.respond(event, embed.Build())

		return
	}

	var sb strings.Builder

	shown := len(missing)
	if shown > rosterListSize {
		shown = rosterListSize
	}

	for i, name := range missing[:shown] {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, name)
	}

	if len(missing) > shown {
		fmt.Fprintf(&sb, "... and %d more", len(missing)-shown)
	}

	embed.SetDescription("On the roster sheet but not in this server:\n\n" + sb.String()).
		SetColor(embedColorError)

	// The inline list is truncated; attach the full list when it overflows.
	if len(missing) > rosterListSize {
		b.respondWithFile(event, embed.Build(),
			"missing_members.txt", bytes.NewReader([]byte(strings.Join(missing, "\n"))))

		return
	}

	b.respond(event, embed.Build())
}

// guildNames collects every name form a member is known by: the display
// name, the username, and the display name with a trailing bracket tag
// stripped, so "handle@tag [note]" still matches the sheet's "handle@tag".
func guildNames(members []*enforcer.Member) []string {
	var names []string

	for _, member := range members {
		names = append(names, member.DisplayName, member.Username)

		if stripped := stripTrailingTag(member.DisplayName); stripped != member.DisplayName {
			names = append(names, stripped)
		}
	}

	return names
}

func stripTrailingTag(name string) string {
	if !strings.HasSuffix(name, "]") {
		return name
	}

	idx := strings.LastIndex(name, "[")
	if idx <= 0 {
		return name
	}

	return strings.TrimSpace(name[:idx])
}

// missingFromRoster returns the roster names with no counterpart in the
// guild. Matching is case-insensitive and tolerates either side carrying a
// decoration around the other, in sheet order.
func missingFromRoster(rosterNames, guildNames []string) []string {
	known := make([]string, len(guildNames))
	for i, name := range guildNames {
		known[i] = strings.ToLower(strings.TrimSpace(name))
	}

	var missing []string

	for _, rosterName := range rosterNames {
		want := strings.ToLower(strings.TrimSpace(rosterName))
		if want == "" {
			continue
		}

		found := false

		for _, have := range known {
			if have == "" {
				continue
			}

			if have == want || strings.Contains(have, want) || strings.Contains(want, have) {
				found = true

				break
			}
		}

		if !found {
			missing = append(missing, strings.TrimSpace(rosterName))
		}
	}

	return missing
}
