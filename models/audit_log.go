// Package models contains domain entities for the channel pool
package models

import (
	"encoding/json"
	"time"
)

// AuditLog records a channel lifecycle event. Writes are best-effort and never
// block the operation being audited.
type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	ChannelID    *uint           `gorm:"index:idx_audit_channel_id" json:"channel_id,omitempty"`
	TenantID     *string         `gorm:"size:64;index:idx_audit_tenant_id" json:"tenant_id,omitempty"`
	Action       string          `gorm:"size:64;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionChannelProvisioned = "channel_provisioned"
	AuditActionChannelAssigned    = "channel_assigned"
	AuditActionChannelReleased    = "channel_released"
	AuditActionChannelDeleted     = "channel_deleted"
	AuditActionConnectRequested   = "connect_requested"
	AuditActionConnectRejected    = "connect_rejected"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	ChannelID     *uint
	TenantID      *string
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
