// Package sheets grants and revokes editor access on the managed
// spreadsheet set via the Drive permissions API.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/veilbreaker/sheetgate/internal/google/auth"
	"go.uber.org/zap"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// Permissions performs single-file access changes. The production
// implementation talks to the Drive API as the configured sheet owner.
type Permissions interface {
	Grant(ctx context.Context, fileID, granteeEmail string) error
	Revoke(ctx context.Context, fileID, granteeEmail string) error
}

// DrivePermissions is the Drive API implementation of Permissions. Every
// call runs under the owner's credential through the token manager, which
// handles refresh transparently.
type DrivePermissions struct {
	manager    *auth.Manager
	ownerEmail string
	notify     bool
	logger     *zap.Logger
}

// NewDrivePermissions creates the Drive-backed permission layer acting as
// the given owner account.
func NewDrivePermissions(manager *auth.Manager, ownerEmail string, notify bool, logger *zap.Logger) *DrivePermissions {
	return &DrivePermissions{
		manager:    manager,
		ownerEmail: ownerEmail,
		notify:     notify,
		logger:     logger.Named("drive_permissions"),
	}
}

// Grant adds the grantee as a writer on the file. Granting to someone who
// already has access is treated as success.
func (p *DrivePermissions) Grant(ctx context.Context, fileID, granteeEmail string) error {
	return p.manager.Do(ctx, p.ownerEmail, func(ctx context.Context, client *http.Client) error {
		service, err := drive.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return fmt.Errorf("failed to create drive service: %w", err)
		}

		_, err = service.Permissions.Create(fileID, &drive.Permission{
			Type:         "user",
			Role:         "writer",
			EmailAddress: granteeEmail,
		}).SendNotificationEmail(p.notify).Context(ctx).Do()
		if err != nil {
			if isConflict(err) {
				p.logger.Debug("Grantee already has access",
					zap.String("fileID", fileID),
					zap.String("email", granteeEmail))

				return nil
			}

			return fmt.Errorf("failed to grant access on %s: %w", fileID, err)
		}

		return nil
	})
}

// Revoke removes the grantee's permission on the file. A grantee without a
// permission entry and a vanished file both count as success.
func (p *DrivePermissions) Revoke(ctx context.Context, fileID, granteeEmail string) error {
	return p.manager.Do(ctx, p.ownerEmail, func(ctx context.Context, client *http.Client) error {
		service, err := drive.NewService(ctx, option.WithHTTPClient(client))
		if err != nil {
			return fmt.Errorf("failed to create drive service: %w", err)
		}

		list, err := service.Permissions.List(fileID).
			Fields("permissions(id,emailAddress)").
			Context(ctx).Do()
		if err != nil {
			if isNotFound(err) {
				return nil
			}

			return fmt.Errorf("failed to list permissions on %s: %w", fileID, err)
		}

		var permissionID string

		for _, perm := range list.Permissions {
			if strings.EqualFold(perm.EmailAddress, granteeEmail) {
				permissionID = perm.Id

				break
			}
		}

		if permissionID == "" {
			return nil
		}

		if err := service.Permissions.Delete(fileID, permissionID).Context(ctx).Do(); err != nil {
			if isNotFound(err) {
				return nil
			}

			return fmt.Errorf("failed to revoke access on %s: %w", fileID, err)
		}

		return nil
	})
}

func isConflict(err error) bool {
	var apiErr *googleapi.Error

	return errors.As(err, &apiErr) && apiErr.Code == http.StatusConflict
}

func isNotFound(err error) bool {
	var apiErr *googleapi.Error

	return errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound
}
