package sheets_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/veilbreaker/sheetgate/internal/google/sheets"
	"go.uber.org/zap"
)

// fakePermissions records calls and fails on demand.
type fakePermissions struct {
	mu        sync.Mutex
	grantErr  map[string]error
	revokeErr map[string]error
	grants    []string
	revokes   []string
}

func newFakePermissions() *fakePermissions {
	return &fakePermissions{
		grantErr:  make(map[string]error),
		revokeErr: make(map[string]error),
	}
}

func (p *fakePermissions) Grant(_ context.Context, fileID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.grantErr[fileID]; err != nil {
		return err
	}

	p.grants = append(p.grants, fileID)

	return nil
}

func (p *fakePermissions) Revoke(_ context.Context, fileID, _ string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.revokeErr[fileID]; err != nil {
		return err
	}

	p.revokes = append(p.revokes, fileID)

	return nil
}

func TestGrantAllSuccess(t *testing.T) {
	t.Parallel()

	perms := newFakePermissions()
	coordinator := sheets.NewCoordinator(perms, []string{"s1", "s2", "s3"}, zap.NewNop())

	result := coordinator.GrantAll(context.Background(), "user@example.com")
	require.NoError(t, result.Err())
	assert.Equal(t, 3, result.Granted)
	assert.Equal(t, []string{"s1", "s2", "s3"}, perms.grants)
	assert.Empty(t, perms.revokes)
}

func TestGrantAllRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	perms := newFakePermissions()
	perms.grantErr["s3"] = fmt.Errorf("quota exceeded")

	coordinator := sheets.NewCoordinator(perms, []string{"s1", "s2", "s3", "s4"}, zap.NewNop())

	result := coordinator.GrantAll(context.Background(), "user@example.com")
	require.Error(t, result.Err())
	assert.Contains(t, result.Err().Error(), "s3")
	assert.Equal(t, "s3", result.FailedSheet)
	assert.Equal(t, 2, result.Granted)

	// The two completed grants are revoked, the untouched s4 is not.
	assert.Equal(t, []string{"s1", "s2"}, perms.grants)
	assert.ElementsMatch(t, []string{"s1", "s2"}, perms.revokes)
	assert.Equal(t, []string{"s1", "s2"}, result.RolledBack)
	assert.Empty(t, result.RollbackFailures)
}

func TestGrantAllRollbackContinuesPastFailures(t *testing.T) {
	t.Parallel()

	perms := newFakePermissions()
	perms.grantErr["s3"] = fmt.Errorf("quota exceeded")
	perms.revokeErr["s1"] = fmt.Errorf("backend error")

	coordinator := sheets.NewCoordinator(perms, []string{"s1", "s2", "s3"}, zap.NewNop())

	result := coordinator.GrantAll(context.Background(), "user@example.com")
	require.Error(t, result.Err())

	// s1's rollback fails but s2 is still revoked, and the leak is reported.
	assert.Equal(t, []string{"s2"}, perms.revokes)
	assert.Equal(t, []string{"s2"}, result.RolledBack)

	require.Len(t, result.RollbackFailures, 1)
	assert.Equal(t, "s1", result.RollbackFailures[0].SheetID)
	assert.Equal(t, []string{"s1"}, result.LeakedSheets())
}

func TestRevokeAllContinuesPastFailures(t *testing.T) {
	t.Parallel()

	perms := newFakePermissions()
	perms.revokeErr["s2"] = fmt.Errorf("backend error")

	coordinator := sheets.NewCoordinator(perms, []string{"s1", "s2", "s3"}, zap.NewNop())

	result := coordinator.RevokeAll(context.Background(), "user@example.com")
	assert.Equal(t, 2, result.Revoked)

	require.Len(t, result.Failures, 1)
	assert.Equal(t, "s2", result.Failures[0].SheetID)

	err := result.Err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "s2")
}

func TestRevokeAllCleanPass(t *testing.T) {
	t.Parallel()

	perms := newFakePermissions()
	coordinator := sheets.NewCoordinator(perms, []string{"s1", "s2"}, zap.NewNop())

	result := coordinator.RevokeAll(context.Background(), "user@example.com")
	assert.Equal(t, 2, result.Revoked)
	assert.NoError(t, result.Err())
}
