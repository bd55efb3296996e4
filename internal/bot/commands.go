package bot

import (
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/json"
)

// commands returns the global slash command set. Moderation commands are
// gated on Manage Server, owner-credential commands on Administrator, and
// account commands are open to everyone.
func commands() []discord.ApplicationCommandCreate {
	manageGuild := json.NewNullablePtr(discord.PermissionManageGuild)
	administrator := json.NewNullablePtr(discord.PermissionAdministrator)

	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:                     NicknameCheckCommandName,
			Description:              "Sweep this server and start removal timers for non-compliant names",
			DefaultMemberPermissions: manageGuild,
		},
		discord.SlashCommandCreate{
			Name:                     CancelTimerCommandName,
			Description:              "Cancel the removal timer for a member",
			DefaultMemberPermissions: manageGuild,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "Member whose timer should be cancelled",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:                     PendingListCommandName,
			Description:              "List members with an active removal timer",
			DefaultMemberPermissions: manageGuild,
		},
		discord.SlashCommandCreate{
			Name:        GoogleRegisterCommandName,
			Description: "Link your Google account and get editor access to the sheets",
		},
		discord.SlashCommandCreate{
			Name:        GoogleRemoveCommandName,
			Description: "Unlink a Google account and revoke its sheet access",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "Member to unlink (moderators only, defaults to yourself)",
					Required:    false,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:                     RegisterOwnerCommandName,
			Description:              "Register a sheet-owner Google account used to perform grants",
			DefaultMemberPermissions: administrator,
		},
		discord.SlashCommandCreate{
			Name:                     RemoveOwnerCommandName,
			Description:              "Remove a registered sheet-owner credential",
			DefaultMemberPermissions: administrator,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "email",
					Description: "Owner email to remove",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:                     AccountLookupCommandName,
			Description:              "Look up the Google account linked to a member",
			DefaultMemberPermissions: manageGuild,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "Member to look up",
					Required:    false,
				},
				discord.ApplicationCommandOptionString{
					Name:        "email",
					Description: "Google email to look up",
					Required:    false,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:                     MemberCheckCommandName,
			Description:              "Compare the roster sheet against the server member list",
			DefaultMemberPermissions: manageGuild,
		},
		discord.SlashCommandCreate{
			Name:                     SendMessageCommandName,
			Description:              "Send a message to this channel as the bot",
			DefaultMemberPermissions: manageGuild,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "content",
					Description: "Message the bot should send",
					Required:    true,
				},
			},
		},
		discord.SlashCommandCreate{
			Name:                     HistoryCommandName,
			Description:              "Show the register/remove audit trail for a member or email",
			DefaultMemberPermissions: manageGuild,
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionUser{
					Name:        "user",
					Description: "Member whose history to show",
					Required:    false,
				},
				discord.ApplicationCommandOptionString{
					Name:        "email",
					Description: "Google email whose history to show",
					Required:    false,
				},
			},
		},
	}
}
