// Package models contains domain entities for the channel pool
package models

import (
	"time"

	"github.com/google/uuid"
)

// ChannelStatus is the locally persisted view of a gateway session's connection state
type ChannelStatus string

const (
	ChannelStatusDisconnected ChannelStatus = "disconnected"
	ChannelStatusConnecting   ChannelStatus = "connecting"
	ChannelStatusConnected    ChannelStatus = "connected"
	ChannelStatusFailed       ChannelStatus = "failed"
)

// Valid reports whether s is one of the four known states
func (s ChannelStatus) Valid() bool {
	switch s {
	case ChannelStatusDisconnected, ChannelStatusConnecting, ChannelStatusConnected, ChannelStatusFailed:
		return true
	}
	return false
}

// Channel is one provisioned gateway session, owned by the pool until a tenant claims it.
// Table: channels
// Name is the session name on the gateway and never changes.
// AssignedTenant NULL means the channel is available.
// Status is written by the reconciler, and reset to disconnected on release.
type Channel struct {
	ID   uint      `gorm:"primaryKey" json:"id"`
	UUID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_channels_uuid" json:"uuid"`

	Name           string        `gorm:"size:64;not null;uniqueIndex:uk_channels_name" json:"name"`
	PoolOwned      bool          `gorm:"not null;index:idx_channels_pool_owned" json:"pool_owned"`
	AssignedTenant *string       `gorm:"size:64;uniqueIndex:uk_channels_assigned_tenant" json:"assigned_tenant,omitempty"`
	Status         ChannelStatus `gorm:"type:varchar(20);not null;index:idx_channels_status" json:"status"`
	PhoneNumber    *string       `gorm:"size:32" json:"phone_number,omitempty"`
	LastChecked    *time.Time    `gorm:"index:idx_channels_last_checked" json:"last_checked,omitempty"`

	CreatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_channels_created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
}

func (Channel) TableName() string {
	return "channels"
}

// IsAssigned reports whether a tenant currently holds the channel
func (c *Channel) IsAssigned() bool {
	return c.AssignedTenant != nil && *c.AssignedTenant != ""
}

// ChannelFilter represents filter criteria for channel queries
type ChannelFilter struct {
	ID             *uint
	UUID           *uuid.UUID
	Name           *string
	PoolOwned      *bool
	AssignedTenant *string
	Assigned       *bool
	Status         *ChannelStatus
	CreatedAfter   *time.Time
	CreatedBefore  *time.Time
}

// PoolStats is derived from the channels table on demand and never persisted.
// Total always equals Available + Assigned.
type PoolStats struct {
	Total     int64 `json:"total"`
	Available int64 `json:"available"`
	Assigned  int64 `json:"assigned"`
}
