// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"

	"github.com/rewardhive/backend/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// UserRepository defines operations for ledger accounts
type UserRepository interface {
	Repository[models.User, models.UserFilter]
	ByUsername(ctx context.Context, username string) (*models.User, error)
	ByUUID(ctx context.Context, uuid string) (*models.User, error)
	// ByIDForUpdate loads the user row with a row-level lock; must be
	// called inside a WithTransaction scope.
	ByIDForUpdate(ctx context.Context, id uint) (*models.User, error)
	UpdateLedger(ctx context.Context, userID uint, balanceCents, totalEarnedCents int64) error
}

// TransactionRepository defines operations for the journal
type TransactionRepository interface {
	Repository[models.Transaction, models.TransactionFilter]
	ByTxID(ctx context.Context, txID string) (*models.Transaction, error)
	ExistsByTxID(ctx context.Context, txID string) (bool, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByIP(ctx context.Context, ip string, limit, offset int) ([]*models.AuditLog, error)
	ListRejections(ctx context.Context, limit, offset int) ([]*models.AuditLog, error)
}
