package handlers

import (
	"github.com/amirphl/wa-pool/app/dto"
	"github.com/amirphl/wa-pool/app/middleware"
	businessflow "github.com/amirphl/wa-pool/business_flow"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
)

// ChannelHandlerInterface defines the tenant channel endpoints
type ChannelHandlerInterface interface {
	Connect(c fiber.Ctx) error
	Disconnect(c fiber.Ctx) error
	Status(c fiber.Ctx) error
}

type ChannelHandler struct {
	base
	flow businessflow.ConnectFlow
}

func NewChannelHandler(flow businessflow.ConnectFlow, logger zerolog.Logger) ChannelHandlerInterface {
	return &ChannelHandler{
		base: newBase(logger.With().Str("component", "channel_handler").Logger()),
		flow: flow,
	}
}

// Connect binds a pool channel to the tenant and returns a link code
// @Summary Connect channel
// @Tags Channel
// @Accept json
// @Produce json
// @Param request body dto.ConnectChannelRequest false "Connect method, phone number for pairing code"
// @Success 200 {object} dto.APIResponse{data=dto.ConnectChannelResponse}
// @Failure 503 {object} dto.APIResponse "No capacity, retry later"
// @Router /api/v1/channel/connect [post]
func (h *ChannelHandler) Connect(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTHENTICATION_REQUIRED", nil)
	}

	var req dto.ConnectChannelRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	if ok, err := h.validate(c, &req); !ok {
		return err
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/channel/connect")
	defer cancel()

	res, err := h.flow.Connect(ctx, tenantID, &req)
	if err != nil {
		return h.flowError(c, err, "Connect failed", "CHANNEL_CONNECT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Channel ready to link", res)
}

// Disconnect returns the tenant's channel to the pool
// @Summary Disconnect channel
// @Tags Channel
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.DisconnectChannelResponse}
// @Router /api/v1/channel/disconnect [post]
func (h *ChannelHandler) Disconnect(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTHENTICATION_REQUIRED", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/channel/disconnect")
	defer cancel()

	res, err := h.flow.Disconnect(ctx, tenantID)
	if err != nil {
		return h.flowError(c, err, "Disconnect failed", "CHANNEL_DISCONNECT_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Channel released", res)
}

// Status reports the tenant's connection state
// @Summary Channel status
// @Tags Channel
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.ChannelStatusResponse}
// @Router /api/v1/channel/status [get]
func (h *ChannelHandler) Status(c fiber.Ctx) error {
	tenantID, ok := middleware.GetTenantIDFromContext(c)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Authentication required", "AUTHENTICATION_REQUIRED", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/channel/status")
	defer cancel()

	res, err := h.flow.Status(ctx, tenantID)
	if err != nil {
		return h.flowError(c, err, "Status check failed", "CHANNEL_STATUS_FAILED")
	}
	return h.SuccessResponse(c, fiber.StatusOK, "Channel status retrieved", res)
}
