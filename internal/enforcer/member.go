package enforcer

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/disgoorg/disgo/discord"
	"github.com/veilbreaker/sheetgate/internal/database/types"
)

// ErrMemberNotFound is returned by a membership provider when the guild or
// member no longer resolves.
var ErrMemberNotFound = errors.New("member not found")

// Member is the provider-agnostic view of a guild member that enforcement
// decisions are made against.
type Member struct {
	GuildID      uint64
	UserID       uint64
	Username     string
	DisplayName  string
	JoinedAt     time.Time
	Bot          bool
	ManagesGuild bool
}

// MembershipProvider resolves and acts on guild members. All operations are
// fallible and network-latent; the Discord adapter in the bot layer is the
// production implementation.
type MembershipProvider interface {
	FetchMember(ctx context.Context, guildID, userID uint64) (*Member, error)
	ListMembers(ctx context.Context, guildID uint64) ([]*Member, error)
	RemoveMember(ctx context.Context, guildID, userID uint64, reason string) error
	SendDirectMessage(ctx context.Context, userID uint64, message discord.MessageCreate) error
	GuildName(ctx context.Context, guildID uint64) (string, error)
}

// PendingStore is the persistence surface the timer subsystem relies on. The
// store is the source of truth; in-memory timers are a disposable projection
// over it.
type PendingStore interface {
	Upsert(ctx context.Context, member *types.PendingMember) error
	Get(ctx context.Context, guildID, discordUserID uint64) (*types.PendingMember, error)
	ListByGuild(ctx context.Context, guildID uint64) ([]*types.PendingMember, error)
	GuildIDs(ctx context.Context) ([]uint64, error)
	Delete(ctx context.Context, guildID, discordUserID uint64) (bool, error)
}

// IsCompliant reports whether a display name follows the naming convention.
// The convention is an in-game handle joined to a server tag with "@".
func IsCompliant(displayName string) bool {
	return strings.Contains(displayName, "@")
}
