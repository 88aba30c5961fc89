// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/amirphl/wa-pool/models"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

// ErrTenantAlreadyAssigned is returned when a tenant already holds another
// pool channel and the unique index on assigned_tenant rejects a second claim
var ErrTenantAlreadyAssigned = errors.New("tenant already holds a channel")

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
}

// ChannelRepository is the channel registry. Every mutation of assigned_tenant
// is a guarded single-statement update so it stays safe across replicas.
type ChannelRepository interface {
	Repository[models.Channel, models.ChannelFilter]
	// ByTenant returns the pool-owned channel held by tenantID, or nil
	ByTenant(ctx context.Context, tenantID string) (*models.Channel, error)
	// FirstAvailable returns the lowest-id unassigned pool channel not in exclude, or nil
	FirstAvailable(ctx context.Context, exclude []uint) (*models.Channel, error)
	// AssignTenant sets assigned_tenant only where it is still NULL.
	// It reports true when exactly one row changed.
	AssignTenant(ctx context.Context, channelID uint, tenantID string) (bool, error)
	// ReleaseTenant clears the tenant's pool channel and resets its status.
	// It returns the released channel's id, or false when the tenant held none.
	ReleaseTenant(ctx context.Context, tenantID string) (uint, bool, error)
	// UpdateStatus writes status, last_checked and (when non-nil) phone_number. It never touches assigned_tenant.
	UpdateStatus(ctx context.Context, channelID uint, status models.ChannelStatus, phoneNumber *string, checkedAt time.Time) error
	Stats(ctx context.Context) (*models.PoolStats, error)
	Delete(ctx context.Context, channelID uint) (int64, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	// ListByChannel returns a channel's events, newest first
	ListByChannel(ctx context.Context, channelID uint, limit, offset int) ([]*models.AuditLog, error)
	// ListByTenant returns a tenant's events across channels, newest first
	ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.AuditLog, error)
}
