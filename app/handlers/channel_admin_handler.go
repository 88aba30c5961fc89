package handlers

import (
	"github.com/amirphl/wa-pool/app/dto"
	businessflow "github.com/amirphl/wa-pool/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ChannelAdminHandlerInterface defines the admin inventory endpoints
type ChannelAdminHandlerInterface interface {
	ListChannels(c fiber.Ctx) error
	GetPoolStats(c fiber.Ctx) error
	EnsurePool(c fiber.Ctx) error
	RefreshChannel(c fiber.Ctx) error
	DeleteChannel(c fiber.Ctx) error
	ExportChannels(c fiber.Ctx) error
	ChannelAuditLog(c fiber.Ctx) error
	TenantAuditLog(c fiber.Ctx) error
}

type ChannelAdminHandler struct {
	base
	flow businessflow.AdminChannelFlow
}

func NewChannelAdminHandler(flow businessflow.AdminChannelFlow, logger zerolog.Logger) ChannelAdminHandlerInterface {
	return &ChannelAdminHandler{
		base: newBase(logger.With().Str("component", "channel_admin_handler").Logger()),
		flow: flow,
	}
}

// ListChannels returns one page of the channel inventory
// @Summary List Channels (Admin)
// @Tags Admin Channels
// @Produce json
// @Param status query string false "disconnected|connecting|connected|failed"
// @Param assigned query bool false "Only assigned or only free channels"
// @Success 200 {object} dto.APIResponse{data=dto.AdminListChannelsResponse}
// @Router /api/v1/admin/channels [get]
func (h *ChannelAdminHandler) ListChannels(c fiber.Ctx) error {
	var req dto.AdminListChannelsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/channels")
	defer cancel()

	res, err := h.flow.ListChannels(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "List channels failed", "CHANNEL_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Channels retrieved", res)
}

// GetPoolStats returns pool counts
// @Summary Pool Stats (Admin)
// @Tags Admin Channels
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.PoolStatsResponse}
// @Router /api/v1/admin/channels/stats [get]
func (h *ChannelAdminHandler) GetPoolStats(c fiber.Ctx) error {
	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/channels/stats")
	defer cancel()

	res, err := h.flow.GetPoolStats(ctx)
	if err != nil {
		return h.flowError(c, err, "Pool stats failed", "POOL_STATS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pool stats retrieved", res)
}

// EnsurePool provisions channels synchronously up to the target
// @Summary Ensure Pool Size (Admin)
// @Tags Admin Channels
// @Accept json
// @Produce json
// @Param request body dto.AdminEnsurePoolRequest false "Target, defaults to the configured size"
// @Success 200 {object} dto.APIResponse{data=dto.AdminEnsurePoolResponse}
// @Router /api/v1/admin/channels/ensure [post]
func (h *ChannelAdminHandler) EnsurePool(c fiber.Ctx) error {
	var req dto.AdminEnsurePoolRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/channels/ensure")
	defer cancel()

	res, err := h.flow.EnsurePool(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Ensure pool failed", "POOL_ENSURE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Pool provisioning finished", res)
}

// RefreshChannel reconciles one channel against the gateway
// @Summary Refresh Channel (Admin)
// @Tags Admin Channels
// @Produce json
// @Param id path int true "Channel ID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminChannelDTO} "stale is set when the gateway was unreachable"
// @Router /api/v1/admin/channels/{id}/refresh [post]
func (h *ChannelAdminHandler) RefreshChannel(c fiber.Ctx) error {
	id, ok := parseChannelID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid channel id", "INVALID_CHANNEL_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/channels/:id/refresh")
	defer cancel()

	res, err := h.flow.RefreshChannel(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Refresh channel failed", "CHANNEL_REFRESH_FAILED")
	}
	if res.Stale {
		return h.SuccessResponse(c, fiber.StatusOK, "Gateway unreachable, stored state returned", res)
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Channel refreshed", res)
}

// DeleteChannel removes a channel from the inventory
// @Summary Delete Channel (Admin)
// @Tags Admin Channels
// @Produce json
// @Param id path int true "Channel ID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminDeleteChannelResponse}
// @Router /api/v1/admin/channels/{id} [delete]
func (h *ChannelAdminHandler) DeleteChannel(c fiber.Ctx) error {
	id, ok := parseChannelID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid channel id", "INVALID_CHANNEL_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/channels/:id")
	defer cancel()

	res, err := h.flow.DeleteChannel(ctx, id)
	if err != nil {
		return h.flowError(c, err, "Delete channel failed", "CHANNEL_DELETE_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Channel deleted", res)
}

// ExportChannels downloads the filtered inventory as xlsx
// @Summary Export Channels (Admin)
// @Tags Admin Channels
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Router /api/v1/admin/channels/export [get]
func (h *ChannelAdminHandler) ExportChannels(c fiber.Ctx) error {
	var req dto.AdminListChannelsRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/channels/export")
	defer cancel()

	filename, data, err := h.flow.ExportChannels(ctx, &req)
	if err != nil {
		return h.flowError(c, err, "Export channels failed", "CHANNEL_EXPORT_FAILED")
	}
	c.Set("Content-Type", xlsxContentType)
	c.Set("Content-Disposition", "attachment; filename="+filename)
	return c.Send(data)
}

// ChannelAuditLog returns the lifecycle history of one channel
// @Summary Channel Audit Log (Admin)
// @Tags Admin Channels
// @Produce json
// @Param id path int true "Channel ID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminAuditLogResponse}
// @Router /api/v1/admin/channels/{id}/audit [get]
func (h *ChannelAdminHandler) ChannelAuditLog(c fiber.Ctx) error {
	id, ok := parseChannelID(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid channel id", "INVALID_CHANNEL_ID", nil)
	}
	var req dto.AdminAuditLogRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/channels/:id/audit")
	defer cancel()

	res, err := h.flow.ChannelAuditLog(ctx, id, &req)
	if err != nil {
		return h.flowError(c, err, "Channel audit log failed", "AUDIT_LOG_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Audit log retrieved", res)
}

// TenantAuditLog returns a tenant's history across channels
// @Summary Tenant Audit Log (Admin)
// @Tags Admin Channels
// @Produce json
// @Param tenant path string true "Tenant ID"
// @Success 200 {object} dto.APIResponse{data=dto.AdminAuditLogResponse}
// @Router /api/v1/admin/tenants/{tenant}/audit [get]
func (h *ChannelAdminHandler) TenantAuditLog(c fiber.Ctx) error {
	var req dto.AdminAuditLogRequest
	if err := c.Bind().Query(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid query parameters", "INVALID_REQUEST", err.Error())
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/admin/tenants/:tenant/audit")
	defer cancel()

	res, err := h.flow.TenantAuditLog(ctx, c.Params("tenant"), &req)
	if err != nil {
		return h.flowError(c, err, "Tenant audit log failed", "AUDIT_LOG_LIST_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Audit log retrieved", res)
}
