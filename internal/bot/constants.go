package bot

import "time"

// Slash command names.
const (
	NicknameCheckCommandName  = "nickname-check"
	CancelTimerCommandName    = "cancel-timer"
	PendingListCommandName    = "pending-list"
	GoogleRegisterCommandName = "google-register"
	GoogleRemoveCommandName   = "google-remove"
	RegisterOwnerCommandName  = "register-owner"
	RemoveOwnerCommandName    = "remove-owner"
	AccountLookupCommandName  = "account-lookup"
	HistoryCommandName        = "history"
	MemberCheckCommandName    = "member-check"
	SendMessageCommandName    = "send-message"
)

// Component custom IDs for the consent confirmation buttons.
const (
	ConfirmUserButtonID  = "confirm_auth:user"
	ConfirmAdminButtonID = "confirm_auth:admin"
)

// Component custom ID prefixes for the removal confirmation buttons. The
// rest of the ID carries the target user ID or owner email.
const (
	ConfirmRemovePrefix      = "confirm_remove:"
	ConfirmRemoveOwnerPrefix = "confirm_remove_owner:"
)

// RemoveConfirmWindow is how long a removal confirmation button stays
// pressable after the prompt was sent.
const RemoveConfirmWindow = 30 * time.Second

// PendingAuthMaxAge is how old a completed consent may be when the user
// presses the confirmation button. Older rows are rejected and dropped.
const PendingAuthMaxAge = 10 * time.Minute

const (
	embedColorPrimary = 0x5865F2
	embedColorSuccess = 0x2ECC71
	embedColorError   = 0xE74C3C

	historyPageSize = 10
	pendingListSize = 25

	// Missing roster names shown inline before the full list moves into an
	// attached file.
	rosterListSize = 10

	// Discord's message content limit for the relay command.
	relayMessageLimit = 2000
)
