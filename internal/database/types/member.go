package types

import "time"

// PendingMember represents a member under nickname-compliance observation.
// A row exists exactly while an active removal timer is outstanding for the
// member; it carries everything needed to re-arm that timer after a restart
// without a live Discord lookup.
type PendingMember struct {
	GuildID        uint64    `bun:",pk"`      // Guild the timer belongs to
	DiscordUserID  uint64    `bun:",pk"`      // Observed member
	Username       string    `bun:",notnull"` // Display snapshot at scheduling time
	JoinedAt       time.Time `bun:",notnull"` // Join event time or synthetic grace start
	TimerExpiresAt time.Time `bun:",notnull"` // When enforcement fires
}

// Remaining returns the time left until enforcement, relative to now.
func (m *PendingMember) Remaining(now time.Time) time.Duration {
	return m.TimerExpiresAt.Sub(now)
}
