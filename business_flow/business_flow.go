// Package businessflow contains the business logic for the application.
package businessflow

import (
	"time"

	"github.com/amirphl/wa-pool/app/dto"
	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/utils"
)

// ToAdminChannelDTO converts a channel model for admin responses
func ToAdminChannelDTO(ch models.Channel) dto.AdminChannelDTO {
	return dto.AdminChannelDTO{
		ID:             ch.ID,
		UUID:           ch.UUID.String(),
		Name:           ch.Name,
		PoolOwned:      ch.PoolOwned,
		AssignedTenant: ch.AssignedTenant,
		Status:         string(ch.Status),
		PhoneNumber:    ch.PhoneNumber,
		LastChecked:    utils.FormatTimePtr(ch.LastChecked),
		CreatedAt:      ch.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      ch.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ToAuditLogDTO converts an audit row for admin responses
func ToAuditLogDTO(a models.AuditLog) dto.AuditLogDTO {
	return dto.AuditLogDTO{
		ID:           a.ID,
		ChannelID:    a.ChannelID,
		TenantID:     a.TenantID,
		Action:       a.Action,
		Description:  a.Description,
		RequestID:    a.RequestID,
		Metadata:     a.Metadata,
		Success:      !a.IsFailed(),
		ErrorMessage: a.ErrorMessage,
		CreatedAt:    a.CreatedAt.UTC().Format(time.RFC3339),
	}
}
