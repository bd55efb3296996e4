package database

import (
	"github.com/uptrace/bun"
	"github.com/veilbreaker/sheetgate/internal/database/models"
	"go.uber.org/zap"
)

// Repository provides access to all database models.
type Repository struct {
	pendingMember *models.PendingMemberModel
	pendingAuth   *models.PendingAuthModel
	adminToken    *models.AdminTokenModel
	userAccount   *models.UserAccountModel
	history       *models.HistoryModel
}

// NewRepository creates a new repository instance with all models.
func NewRepository(db *bun.DB, logger *zap.Logger) *Repository {
	return &Repository{
		pendingMember: models.NewPendingMember(db, logger),
		pendingAuth:   models.NewPendingAuth(db, logger),
		adminToken:    models.NewAdminToken(db, logger),
		userAccount:   models.NewUserAccount(db, logger),
		history:       models.NewHistory(db, logger),
	}
}

// PendingMember returns the pending member model repository.
func (r *Repository) PendingMember() *models.PendingMemberModel {
	return r.pendingMember
}

// PendingAuth returns the pending auth model repository.
func (r *Repository) PendingAuth() *models.PendingAuthModel {
	return r.pendingAuth
}

// AdminToken returns the admin token model repository.
func (r *Repository) AdminToken() *models.AdminTokenModel {
	return r.adminToken
}

// UserAccount returns the user account model repository.
func (r *Repository) UserAccount() *models.UserAccountModel {
	return r.userAccount
}

// History returns the account history model repository.
func (r *Repository) History() *models.HistoryModel {
	return r.history
}
