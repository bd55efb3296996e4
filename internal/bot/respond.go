package bot

import (
	"io"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// deferredEvent is the part of an interaction event needed to fill in a
// deferred response.
type deferredEvent interface {
	ApplicationID() snowflake.ID
	Token() string
}

func (b *Bot) respond(event deferredEvent, embeds ...discord.Embed) {
	update := discord.NewMessageUpdateBuilder().SetEmbeds(embeds...).Build()

	_, err := b.client.Rest().UpdateInteractionResponse(event.ApplicationID(), event.Token(), update)
	if err != nil {
		b.logger.Error("Failed to update interaction response", zap.Error(err))
	}
}

func (b *Bot) respondWithComponents(event deferredEvent, embed discord.Embed, components ...discord.InteractiveComponent) {
	update := discord.NewMessageUpdateBuilder().
		SetEmbeds(embed).
		AddActionRow(components...).
		Build()

	_, err := b.client.Rest().UpdateInteractionResponse(event.ApplicationID(), event.Token(), update)
	if err != nil {
		b.logger.Error("Failed to update interaction response", zap.Error(err))
	}
}

func (b *Bot) respondWithFile(event deferredEvent, embed discord.Embed, name string, reader io.Reader) {
	update := discord.NewMessageUpdateBuilder().
		SetEmbeds(embed).
		AddFile(name, "", reader).
		Build()

	_, err := b.client.Rest().UpdateInteractionResponse(event.ApplicationID(), event.Token(), update)
	if err != nil {
		b.logger.Error("Failed to update interaction response", zap.Error(err))
	}
}

func (b *Bot) respondSuccess(event deferredEvent, message string) {
	b.respond(event, discord.NewEmbedBuilder().
		SetDescription(message).
		SetColor(embedColorSuccess).
		Build())
}

func (b *Bot) respondError(event deferredEvent, message string) {
	b.respond(event, discord.NewEmbedBuilder().
		SetDescription(message).
		SetColor(embedColorError).
		Build())
}
