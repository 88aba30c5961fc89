package testing

import (
	"context"
	"sync"
	"time"

	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/repository"
)

// MemoryAuditLogRepository collects audit rows in memory
type MemoryAuditLogRepository struct {
	mu   sync.Mutex
	rows []*models.AuditLog

	Err error
}

var _ repository.AuditLogRepository = (*MemoryAuditLogRepository)(nil)

func NewMemoryAuditLogRepository() *MemoryAuditLogRepository {
	return &MemoryAuditLogRepository{}
}

// Actions returns the recorded actions in insertion order
func (r *MemoryAuditLogRepository) Actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, row.Action)
	}
	return out
}

func matchesAudit(a *models.AuditLog, f models.AuditLogFilter) bool {
	if f.ID != nil && a.ID != *f.ID {
		return false
	}
	if f.ChannelID != nil && (a.ChannelID == nil || *a.ChannelID != *f.ChannelID) {
		return false
	}
	if f.TenantID != nil && (a.TenantID == nil || *a.TenantID != *f.TenantID) {
		return false
	}
	if f.Action != nil && a.Action != *f.Action {
		return false
	}
	if f.Success != nil && (a.Success == nil || *a.Success != *f.Success) {
		return false
	}
	if f.RequestID != nil && (a.RequestID == nil || *a.RequestID != *f.RequestID) {
		return false
	}
	if f.CreatedAfter != nil && !a.CreatedAt.After(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && !a.CreatedAt.Before(*f.CreatedBefore) {
		return false
	}
	return true
}

func (r *MemoryAuditLogRepository) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	rows, err := r.ByFilter(ctx, models.AuditLogFilter{ID: &id}, "", 1, 0)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// ByFilter returns matches newest first
func (r *MemoryAuditLogRepository) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return nil, r.Err
	}

	var out []*models.AuditLog
	for i := len(r.rows) - 1; i >= 0; i-- {
		if matchesAudit(r.rows[i], filter) {
			row := *r.rows[i]
			out = append(out, &row)
		}
	}
	if offset > 0 {
		if offset >= len(out) {
			return nil, nil
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryAuditLogRepository) Save(ctx context.Context, a *models.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	a.ID = uint(len(r.rows) + 1)
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	row := *a
	r.rows = append(r.rows, &row)
	return nil
}

func (r *MemoryAuditLogRepository) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	rows, err := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), err
}

func (r *MemoryAuditLogRepository) ListByChannel(ctx context.Context, channelID uint, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{ChannelID: &channelID}, "", limit, offset)
}

func (r *MemoryAuditLogRepository) ListByTenant(ctx context.Context, tenantID string, limit, offset int) ([]*models.AuditLog, error) {
	return r.ByFilter(ctx, models.AuditLogFilter{TenantID: &tenantID}, "", limit, offset)
}
