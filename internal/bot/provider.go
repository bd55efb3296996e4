package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/veilbreaker/sheetgate/internal/enforcer"
	"go.uber.org/zap"
)

// memberProvider adapts the Discord REST API to the enforcement layer's
// MembershipProvider. Guild names are cached; everything else hits the API.
type memberProvider struct {
	client bot.Client
	logger *zap.Logger

	mu         sync.Mutex
	guildNames map[uint64]string
}

func newMemberProvider(client bot.Client, logger *zap.Logger) *memberProvider {
	return &memberProvider{
		client:     client,
		logger:     logger.Named("member_provider"),
		guildNames: make(map[uint64]string),
	}
}

// FetchMember resolves a single member with permissions computed from their
// roles, since REST members carry no permission set.
func (p *memberProvider) FetchMember(ctx context.Context, guildID, userID uint64) (*enforcer.Member, error) {
	member, err := p.client.Rest().GetMember(snowflake.ID(guildID), snowflake.ID(userID), rest.WithCtx(ctx))
	if err != nil {
		if isNotFoundErr(err) {
			return nil, enforcer.ErrMemberNotFound
		}

		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	perms, err := p.guildPermissions(ctx, guildID)
	if err != nil {
		return nil, err
	}

	return p.toMember(guildID, *member, perms), nil
}

// ListMembers pages through the full member list, 1000 at a time.
func (p *memberProvider) ListMembers(ctx context.Context, guildID uint64) ([]*enforcer.Member, error) {
	perms, err := p.guildPermissions(ctx, guildID)
	if err != nil {
		return nil, err
	}

	var (
		members []*enforcer.Member
		after   snowflake.ID
	)

	for {
		chunk, err := p.client.Rest().GetMembers(snowflake.ID(guildID), 1000, after, rest.WithCtx(ctx))
		if err != nil {
			return nil, fmt.Errorf("failed to get members: %w", err)
		}

		for _, member := range chunk {
			members = append(members, p.toMember(guildID, member, perms))
		}

		if len(chunk) < 1000 {
			break
		}

		after = chunk[len(chunk)-1].User.ID
	}

	return members, nil
}

// RemoveMember kicks a member with an audit log reason.
func (p *memberProvider) RemoveMember(ctx context.Context, guildID, userID uint64, reason string) error {
	err := p.client.Rest().RemoveMember(snowflake.ID(guildID), snowflake.ID(userID),
		rest.WithReason(reason), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return nil
}

// SendDirectMessage opens (or reuses) the DM channel and sends the message.
func (p *memberProvider) SendDirectMessage(ctx context.Context, userID uint64, message discord.MessageCreate) error {
	channel, err := p.client.Rest().CreateDMChannel(snowflake.ID(userID), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to create DM channel: %w", err)
	}

	_, err = p.client.Rest().CreateMessage(channel.ID(), message, rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send DM: %w", err)
	}

	return nil
}

// GuildName resolves and caches a guild's name.
func (p *memberProvider) GuildName(ctx context.Context, guildID uint64) (string, error) {
	p.mu.Lock()
	if name, ok := p.guildNames[guildID]; ok {
		p.mu.Unlock()

		return name, nil
	}
	p.mu.Unlock()

	guild, err := p.client.Rest().GetGuild(snowflake.ID(guildID), false, rest.WithCtx(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to get guild: %w", err)
	}

	p.mu.Lock()
	p.guildNames[guildID] = guild.Name
	p.mu.Unlock()

	return guild.Name, nil
}

// guildPerms holds what is needed to decide the manager exemption for any
// member of one guild.
type guildPerms struct {
	ownerID   snowflake.ID
	rolePerms map[snowflake.ID]discord.Permissions
}

func (p *memberProvider) guildPermissions(ctx context.Context, guildID uint64) (*guildPerms, error) {
	guild, err := p.client.Rest().GetGuild(snowflake.ID(guildID), false, rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get guild: %w", err)
	}

	roles, err := p.client.Rest().GetRoles(snowflake.ID(guildID), rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to get roles: %w", err)
	}

	perms := &guildPerms{
		ownerID:   guild.OwnerID,
		rolePerms: make(map[snowflake.ID]discord.Permissions, len(roles)),
	}

	for _, role := range roles {
		perms.rolePerms[role.ID] = role.Permissions
	}

	return perms, nil
}

func (p *memberProvider) toMember(guildID uint64, member discord.Member, perms *guildPerms) *enforcer.Member {
	managesGuild := member.User.ID == perms.ownerID

	if !managesGuild {
		// The @everyone role shares the guild's ID.
		combined := perms.rolePerms[snowflake.ID(guildID)]
		for _, roleID := range member.RoleIDs {
			combined = combined.Add(perms.rolePerms[roleID])
		}

		managesGuild = combined.Has(discord.PermissionAdministrator) ||
			combined.Has(discord.PermissionManageGuild)
	}

	joinedAt := member.JoinedAt

	return &enforcer.Member{
		GuildID:      guildID,
		UserID:       uint64(member.User.ID),
		Username:     member.User.Username,
		DisplayName:  displayName(member),
		JoinedAt:     joinedAt,
		Bot:          member.User.Bot,
		ManagesGuild: managesGuild,
	}
}

// displayName mirrors the name shown in the member list: server nickname,
// then global display name, then username.
func displayName(member discord.Member) string {
	if member.Nick != nil && *member.Nick != "" {
		return *member.Nick
	}

	if member.User.GlobalName != nil && *member.User.GlobalName != "" {
		return *member.User.GlobalName
	}

	return member.User.Username
}

func isNotFoundErr(err error) bool {
	var restErr *rest.Error

	return errors.As(err, &restErr) &&
		restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusNotFound
}
