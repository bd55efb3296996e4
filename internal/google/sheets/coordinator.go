package sheets

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// SheetFailure is one file-level failure inside a multi-sheet operation.
type SheetFailure struct {
	SheetID string
	Err     error
}

// GrantResult reports the outcome of an all-or-nothing grant pass. On
// failure it records which sheet broke the pass, which earlier grants were
// rolled back, and which rollbacks failed and left access behind.
type GrantResult struct {
	Granted          int
	FailedSheet      string
	GrantErr         error
	RolledBack       []string
	RollbackFailures []SheetFailure
}

// Err returns nil when every grant succeeded, otherwise the grant failure
// wrapped with the sheet it happened on.
func (r *GrantResult) Err() error {
	if r.GrantErr == nil {
		return nil
	}

	return fmt.Errorf("failed to grant access on sheet %s: %w", r.FailedSheet, r.GrantErr)
}

// LeakedSheets returns the sheets whose rollback failed, so the grantee may
// still hold access on them.
func (r *GrantResult) LeakedSheets() []string {
	ids := make([]string, len(r.RollbackFailures))
	for i, failure := range r.RollbackFailures {
		ids[i] = failure.SheetID
	}

	return ids
}

// RevokeResult reports the outcome of a best-effort revoke pass.
type RevokeResult struct {
	Revoked  int
	Failures []SheetFailure
}

// Err returns nil when every revoke succeeded, otherwise a single error
// naming the failed sheets.
func (r *RevokeResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}

	ids := make([]string, len(r.Failures))
	for i, failure := range r.Failures {
		ids[i] = failure.SheetID
	}

	return fmt.Errorf("failed to revoke access on %d of %d sheets: %s",
		len(r.Failures), r.Revoked+len(r.Failures), strings.Join(ids, ", "))
}

// Coordinator applies access changes across the whole managed sheet set.
// Grants are all-or-nothing; revokes make forward progress past individual
// failures.
type Coordinator struct {
	permissions Permissions
	sheetIDs    []string
	logger      *zap.Logger
}

// NewCoordinator creates a coordinator over the configured spreadsheet set.
func NewCoordinator(permissions Permissions, sheetIDs []string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		permissions: permissions,
		sheetIDs:    sheetIDs,
		logger:      logger.Named("grant_coordinator"),
	}
}

// SheetCount returns the number of managed sheets.
func (c *Coordinator) SheetCount() int {
	return len(c.sheetIDs)
}

// GrantAll grants writer access on every managed sheet. On the first
// failure the sheets already granted in this pass are revoked again so the
// grantee never ends up with partial access; the result records the failed
// sheet, the rollback progress, and any sheets the rollback could not clean
// up.
func (c *Coordinator) GrantAll(ctx context.Context, granteeEmail string) *GrantResult {
	result := &GrantResult{}

	var granted []string

	for _, sheetID := range c.sheetIDs {
		if err := c.permissions.Grant(ctx, sheetID, granteeEmail); err != nil {
			c.logger.Error("Grant failed, rolling back partial access",
				zap.String("email", granteeEmail),
				zap.String("sheetID", sheetID),
				zap.Int("alreadyGranted", len(granted)),
				zap.Error(err))

			result.FailedSheet = sheetID
			result.GrantErr = err
			c.rollback(ctx, granteeEmail, granted, result)

			return result
		}

		granted = append(granted, sheetID)
		result.Granted++
	}

	c.logger.Info("Granted access on all sheets",
		zap.String("email", granteeEmail),
		zap.Int("sheets", len(granted)))

	return result
}

// rollback undoes the grants of a failed pass. Rollback failures are
// recorded on the result and skipped; the grantee keeps access on exactly
// the sheets in RollbackFailures until someone revokes them manually.
func (c *Coordinator) rollback(ctx context.Context, granteeEmail string, granted []string, result *GrantResult) {
	for _, sheetID := range granted {
		if err := c.permissions.Revoke(ctx, sheetID, granteeEmail); err != nil {
			c.logger.Error("Rollback revoke failed",
				zap.String("email", granteeEmail),
				zap.String("sheetID", sheetID),
				zap.Error(err))

			result.RollbackFailures = append(result.RollbackFailures, SheetFailure{SheetID: sheetID, Err: err})

			continue
		}

		result.RolledBack = append(result.RolledBack, sheetID)
	}
}

// RevokeAll removes the grantee from every managed sheet, continuing past
// per-sheet failures so one broken sheet cannot block the rest.
func (c *Coordinator) RevokeAll(ctx context.Context, granteeEmail string) *RevokeResult {
	result := &RevokeResult{}

	for _, sheetID := range c.sheetIDs {
		if err := c.permissions.Revoke(ctx, sheetID, granteeEmail); err != nil {
			c.logger.Error("Revoke failed",
				zap.String("email", granteeEmail),
				zap.String("sheetID", sheetID),
				zap.Error(err))

			result.Failures = append(result.Failures, SheetFailure{SheetID: sheetID, Err: err})

			continue
		}

		result.Revoked++
	}

	c.logger.Info("Completed revoke pass",
		zap.String("email", granteeEmail),
		zap.Int("revoked", result.Revoked),
		zap.Int("failed", len(result.Failures)))

	return result
}
