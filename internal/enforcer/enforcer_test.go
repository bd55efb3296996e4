package enforcer_test

import (
	"context"
	"fmt"
	"sync"

	"github.com/disgoorg/disgo/discord"
	"github.com/veilbreaker/sheetgate/internal/database/types"
	"github.com/veilbreaker/sheetgate/internal/enforcer"
)

type storeKey struct {
	guildID uint64
	userID  uint64
}

// memoryStore is an in-memory PendingStore for tests.
type memoryStore struct {
	mu   sync.Mutex
	rows map[storeKey]*types.PendingMember
}

func newMemoryStore() *memoryStore {
	return &memoryStore{rows: make(map[storeKey]*types.PendingMember)}
}

func (s *memoryStore) Upsert(_ context.Context, member *types.PendingMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *member
	s.rows[storeKey{member.GuildID, member.DiscordUserID}] = &clone

	return nil
}

func (s *memoryStore) Get(_ context.Context, guildID, userID uint64) (*types.PendingMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.rows[storeKey{guildID, userID}]
	if !ok {
		return nil, nil
	}

	clone := *row

	return &clone, nil
}

func (s *memoryStore) ListByGuild(_ context.Context, guildID uint64) ([]*types.PendingMember, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rows []*types.PendingMember

	for _, row := range s.rows {
		if row.GuildID == guildID {
			clone := *row
			rows = append(rows, &clone)
		}
	}

	return rows, nil
}

func (s *memoryStore) GuildIDs(_ context.Context) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[uint64]struct{})

	var ids []uint64

	for key := range s.rows {
		if _, ok := seen[key.guildID]; !ok {
			seen[key.guildID] = struct{}{}
			ids = append(ids, key.guildID)
		}
	}

	return ids, nil
}

func (s *memoryStore) Delete(_ context.Context, guildID, userID uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{guildID, userID}

	_, ok := s.rows[key]
	delete(s.rows, key)

	return ok, nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.rows)
}

// fakeProvider is a scriptable MembershipProvider.
type fakeProvider struct {
	mu      sync.Mutex
	members map[storeKey]*enforcer.Member

	dmErr   error
	kickErr error

	dms    []uint64
	kicked []storeKey
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{members: make(map[storeKey]*enforcer.Member)}
}

func (p *fakeProvider) addMember(member *enforcer.Member) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.members[storeKey{member.GuildID, member.UserID}] = member
}

func (p *fakeProvider) rename(guildID, userID uint64, displayName string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.members[storeKey{guildID, userID}].DisplayName = displayName
}

func (p *fakeProvider) FetchMember(_ context.Context, guildID, userID uint64) (*enforcer.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	member, ok := p.members[storeKey{guildID, userID}]
	if !ok {
		return nil, enforcer.ErrMemberNotFound
	}

	clone := *member

	return &clone, nil
}

func (p *fakeProvider) ListMembers(_ context.Context, guildID uint64) ([]*enforcer.Member, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var members []*enforcer.Member

	for _, member := range p.members {
		if member.GuildID == guildID {
			clone := *member
			members = append(members, &clone)
		}
	}

	return members, nil
}

func (p *fakeProvider) RemoveMember(_ context.Context, guildID, userID uint64, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.kickErr != nil {
		return p.kickErr
	}

	delete(p.members, storeKey{guildID, userID})
	p.kicked = append(p.kicked, storeKey{guildID, userID})

	return nil
}

func (p *fakeProvider) SendDirectMessage(_ context.Context, userID uint64, _ discord.MessageCreate) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.dmErr != nil {
		return p.dmErr
	}

	p.dms = append(p.dms, userID)

	return nil
}

func (p *fakeProvider) GuildName(_ context.Context, guildID uint64) (string, error) {
	return fmt.Sprintf("Guild %d", guildID), nil
}

func (p *fakeProvider) kickedCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.kicked)
}

func (p *fakeProvider) dmCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return len(p.dms)
}
