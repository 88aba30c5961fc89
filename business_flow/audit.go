package businessflow

import (
	"context"
	"encoding/json"

	"github.com/amirphl/wa-pool/models"
	"github.com/amirphl/wa-pool/repository"
	"github.com/amirphl/wa-pool/utils"
	"github.com/rs/zerolog"
)

// auditEntry is one channel lifecycle event
type auditEntry struct {
	action      string
	channelID   *uint
	tenantID    *string
	description string
	metadata    map[string]any
	err         error
}

// auditRecorder writes audit rows best-effort; a failed write is logged and never returned
type auditRecorder struct {
	repo   repository.AuditLogRepository
	logger zerolog.Logger
}

func (a auditRecorder) record(ctx context.Context, e auditEntry) {
	if a.repo == nil {
		return
	}

	audit := &models.AuditLog{
		ChannelID:   e.channelID,
		TenantID:    e.tenantID,
		Action:      e.action,
		Description: &e.description,
		Success:     utils.ToPtr(e.err == nil),
	}
	if e.err != nil {
		msg := e.err.Error()
		audit.ErrorMessage = &msg
	}
	if len(e.metadata) > 0 {
		if raw, err := json.Marshal(e.metadata); err == nil {
			audit.Metadata = raw
		}
	}
	if requestID, ok := ctx.Value(utils.RequestIDKey).(string); ok && requestID != "" {
		audit.RequestID = &requestID
	}

	// audit rows must not join the caller's transaction
	ctx = context.WithValue(ctx, repository.TxContextKey, nil)
	if err := a.repo.Save(ctx, audit); err != nil {
		a.logger.Warn().Err(err).Str("action", e.action).Msg("failed to write audit log")
	}
}
