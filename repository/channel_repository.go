// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChannelRepositoryImpl implements ChannelRepository interface
type ChannelRepositoryImpl struct {
	*BaseRepository[models.Channel, models.ChannelFilter]
}

// NewChannelRepository creates a new channel repository
func NewChannelRepository(db *gorm.DB) ChannelRepository {
	return &ChannelRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Channel, models.ChannelFilter](db),
	}
}

// ByTenant retrieves the pool-owned channel currently held by a tenant
func (r *ChannelRepositoryImpl) ByTenant(ctx context.Context, tenantID string) (*models.Channel, error) {
	poolOwned := true
	return r.first(ctx, models.ChannelFilter{AssignedTenant: &tenantID, PoolOwned: &poolOwned})
}

func (r *ChannelRepositoryImpl) first(ctx context.Context, filter models.ChannelFilter) (*models.Channel, error) {
	items, err := r.ByFilter(ctx, filter, "id ASC", 1, 0)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

// FirstAvailable selects the lowest-id unassigned pool channel, skipping ids in exclude
func (r *ChannelRepositoryImpl) FirstAvailable(ctx context.Context, exclude []uint) (*models.Channel, error) {
	db := r.getDB(ctx)

	query := db.Model(&models.Channel{}).
		Where("pool_owned = ? AND assigned_tenant IS NULL", true)
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}

	var rows []*models.Channel
	if err := query.Order("id ASC").Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to find available channel: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0], nil
}

// AssignTenant binds tenantID to the channel if and only if nobody holds it yet.
// The guard lives in the WHERE clause so the database arbitrates concurrent callers.
func (r *ChannelRepositoryImpl) AssignTenant(ctx context.Context, channelID uint, tenantID string) (bool, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		result := db.Model(&models.Channel{}).
			Where("id = ? AND pool_owned = ? AND assigned_tenant IS NULL", channelID, true).
			Updates(map[string]any{
				"assigned_tenant": tenantID,
				"updated_at":      utils.UTCNow(),
			})
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
				return ErrTenantAlreadyAssigned
			}
			return fmt.Errorf("failed to assign channel %d: %w", channelID, result.Error)
		}
		affected = result.RowsAffected
		return nil
	})
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// ReleaseTenant clears the tenant binding and resets the status of its pool channel
func (r *ChannelRepositoryImpl) ReleaseTenant(ctx context.Context, tenantID string) (uint, bool, error) {
	var released []models.Channel
	err := r.write(ctx, func(db *gorm.DB) error {
		result := db.Model(&released).
			Clauses(clause.Returning{Columns: []clause.Column{{Name: "id"}}}).
			Where("assigned_tenant = ? AND pool_owned = ?", tenantID, true).
			Updates(map[string]any{
				"assigned_tenant": nil,
				"status":          string(models.ChannelStatusDisconnected),
				"updated_at":      utils.UTCNow(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to release channel for tenant %s: %w", tenantID, result.Error)
		}
		return nil
	})
	if err != nil || len(released) == 0 {
		return 0, false, err
	}
	return released[0].ID, true, nil
}

// UpdateStatus persists a reconciliation result
func (r *ChannelRepositoryImpl) UpdateStatus(ctx context.Context, channelID uint, status models.ChannelStatus, phoneNumber *string, checkedAt time.Time) error {
	if !status.Valid() {
		return fmt.Errorf("invalid channel status %q", status)
	}

	return r.write(ctx, func(db *gorm.DB) error {
		updates := map[string]any{
			"status":       string(status),
			"last_checked": checkedAt,
			"updated_at":   utils.UTCNow(),
		}
		if phoneNumber != nil {
			updates["phone_number"] = *phoneNumber
		}

		result := db.Model(&models.Channel{}).
			Where("id = ?", channelID).
			Updates(updates)
		if result.Error != nil {
			return fmt.Errorf("failed to update status of channel %d: %w", channelID, result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("channel not found with ID: %d", channelID)
		}
		return nil
	})
}

// Stats counts pool-owned channels in a single statement so the three numbers are consistent
func (r *ChannelRepositoryImpl) Stats(ctx context.Context) (*models.PoolStats, error) {
	db := r.getDB(ctx)

	var row struct {
		Total     int64
		Available int64
	}
	err := db.Model(&models.Channel{}).
		Select("COUNT(*) AS total, COUNT(*) FILTER (WHERE assigned_tenant IS NULL) AS available").
		Where("pool_owned = ?", true).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to compute pool stats: %w", err)
	}

	return &models.PoolStats{
		Total:     row.Total,
		Available: row.Available,
		Assigned:  row.Total - row.Available,
	}, nil
}

// Delete removes a channel row permanently
func (r *ChannelRepositoryImpl) Delete(ctx context.Context, channelID uint) (int64, error) {
	var affected int64
	err := r.write(ctx, func(db *gorm.DB) error {
		result := db.Where("id = ?", channelID).Delete(&models.Channel{})
		if result.Error != nil {
			return fmt.Errorf("failed to delete channel %d: %w", channelID, result.Error)
		}
		affected = result.RowsAffected
		return nil
	})
	return affected, err
}

// applyFilter applies filter criteria to a GORM query
func (r *ChannelRepositoryImpl) applyFilter(query *gorm.DB, filter models.ChannelFilter) *gorm.DB {
	if filter.ID != nil {
		query = query.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		query = query.Where("uuid = ?", *filter.UUID)
	}
	if filter.Name != nil {
		query = query.Where("name = ?", *filter.Name)
	}
	if filter.PoolOwned != nil {
		query = query.Where("pool_owned = ?", *filter.PoolOwned)
	}
	if filter.AssignedTenant != nil {
		query = query.Where("assigned_tenant = ?", *filter.AssignedTenant)
	}
	if filter.Assigned != nil {
		if *filter.Assigned {
			query = query.Where("assigned_tenant IS NOT NULL")
		} else {
			query = query.Where("assigned_tenant IS NULL")
		}
	}
	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.CreatedAfter != nil {
		query = query.Where("created_at > ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		query = query.Where("created_at < ?", *filter.CreatedBefore)
	}
	return query
}

// ByFilter retrieves channels based on filter criteria
func (r *ChannelRepositoryImpl) ByFilter(ctx context.Context, filter models.ChannelFilter, orderBy string, limit, offset int) ([]*models.Channel, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Channel{})

	query = r.applyFilter(query, filter)

	if orderBy == "" {
		orderBy = "id DESC"
	}
	query = query.Order(orderBy)

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var channels []*models.Channel
	if err := query.Find(&channels).Error; err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	return channels, nil
}

// Count returns the number of channels matching the filter
func (r *ChannelRepositoryImpl) Count(ctx context.Context, filter models.ChannelFilter) (int64, error) {
	db := r.getDB(ctx)
	query := db.Model(&models.Channel{})
	query = r.applyFilter(query, filter)

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count channels: %w", err)
	}
	return count, nil
}
