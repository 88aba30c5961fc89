// Package dto contains Data Transfer Objects for API request and response structures
package dto

import "encoding/json"

// Connect methods
const (
	ConnectMethodQR   = "qr"
	ConnectMethodCode = "code"
)

// ConnectChannelRequest asks for a channel and a code to link it.
// Method defaults to qr; code requires a phone number.
type ConnectChannelRequest struct {
	Method      string  `json:"method,omitempty" validate:"omitempty,oneof=qr code"`
	PhoneNumber *string `json:"phone_number,omitempty" validate:"omitempty,numeric,min=8,max=20"`
}

// ConnectChannelResponse carries the QR payload or pairing code for the tenant's channel
type ConnectChannelResponse struct {
	Method      string `json:"method"`
	Code        string `json:"code"`
	ChannelName string `json:"channel_name"`
	Reused      bool   `json:"reused"`
}

// DisconnectChannelResponse reports whether a channel was returned to the pool
type DisconnectChannelResponse struct {
	Released bool `json:"released"`
}

// ChannelStatusResponse is the tenant-facing connection state
type ChannelStatusResponse struct {
	Connected   bool    `json:"connected"`
	Status      string  `json:"status"`
	ChannelName *string `json:"channel_name,omitempty"`
	PhoneNumber *string `json:"phone_number,omitempty"`
	LastChecked *string `json:"last_checked,omitempty"`
}

// AdminChannelDTO represents a channel in admin responses
type AdminChannelDTO struct {
	ID             uint    `json:"id"`
	UUID           string  `json:"uuid"`
	Name           string  `json:"name"`
	PoolOwned      bool    `json:"pool_owned"`
	AssignedTenant *string `json:"assigned_tenant,omitempty"`
	Status         string  `json:"status"`
	PhoneNumber    *string `json:"phone_number,omitempty"`
	LastChecked    *string `json:"last_checked,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
	// Stale is set when the gateway could not be reached and the stored state is returned
	Stale bool `json:"stale,omitempty"`
}

// AdminListChannelsRequest filters the channel inventory
type AdminListChannelsRequest struct {
	Status   *string `query:"status" validate:"omitempty,oneof=disconnected connecting connected failed"`
	Assigned *bool   `query:"assigned"`
	Tenant   *string `query:"tenant" validate:"omitempty,max=64"`
	Page     int     `query:"page" validate:"omitempty,min=1"`
	PageSize int     `query:"page_size" validate:"omitempty,min=1,max=500"`
}

// PaginationInfo describes a page of results
type PaginationInfo struct {
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// AdminListChannelsResponse wraps one page of channels
type AdminListChannelsResponse struct {
	Items      []AdminChannelDTO `json:"items"`
	Pagination PaginationInfo    `json:"pagination"`
}

// PoolStatsResponse exposes pool counts along with the configured sizing
type PoolStatsResponse struct {
	Total           int64 `json:"total"`
	Available       int64 `json:"available"`
	Assigned        int64 `json:"assigned"`
	TargetSize      int   `json:"target_size"`
	RefillThreshold int   `json:"refill_threshold"`
}

// AdminEnsurePoolRequest tops the pool up; Target falls back to the configured size
type AdminEnsurePoolRequest struct {
	Target *int `json:"target,omitempty" validate:"omitempty,min=0,max=1000"`
}

// AdminEnsurePoolResponse summarizes one provisioning round
type AdminEnsurePoolResponse struct {
	Requested int               `json:"requested"`
	Created   int               `json:"created"`
	Failed    int               `json:"failed"`
	Stats     PoolStatsResponse `json:"stats"`
}

// AdminDeleteChannelResponse confirms a hard delete
type AdminDeleteChannelResponse struct {
	ID             uint `json:"id"`
	RemoteStopped  bool `json:"remote_stopped"`
	ReleasedTenant bool `json:"released_tenant"`
}

// AdminAuditLogRequest pages through an audit history
type AdminAuditLogRequest struct {
	Page     int `query:"page" validate:"omitempty,min=1"`
	PageSize int `query:"page_size" validate:"omitempty,min=1,max=500"`
}

// AuditLogDTO is one channel lifecycle event
type AuditLogDTO struct {
	ID           uint            `json:"id"`
	ChannelID    *uint           `json:"channel_id,omitempty"`
	TenantID     *string         `json:"tenant_id,omitempty"`
	Action       string          `json:"action"`
	Description  *string         `json:"description,omitempty"`
	RequestID    *string         `json:"request_id,omitempty"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	Success      bool            `json:"success"`
	ErrorMessage *string         `json:"error_message,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// AdminAuditLogResponse wraps one page of audit events, newest first
type AdminAuditLogResponse struct {
	Items      []AuditLogDTO  `json:"items"`
	Pagination PaginationInfo `json:"pagination"`
}
