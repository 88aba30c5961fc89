// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/amirphl/wa-pool/app/dto"
	businessflow "github.com/amirphl/wa-pool/business_flow"
	"github.com/amirphl/wa-pool/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/requestid"
	"github.com/rs/zerolog"
)

const requestTimeout = 30 * time.Second

// base carries what every handler needs to validate input and shape responses
type base struct {
	validator *validator.Validate
	logger    zerolog.Logger
}

func newBase(logger zerolog.Logger) base {
	return base{validator: validator.New(), logger: logger}
}

func (h base) ErrorResponse(c fiber.Ctx, status int, message, code string, details any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: false, Message: message, Error: dto.ErrorDetail{Code: code, Details: details}})
}

func (h base) SuccessResponse(c fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(dto.APIResponse{Success: true, Message: message, Data: data})
}

// validate runs struct validation and writes a 400 on failure. The bool reports whether the request may proceed.
func (h base) validate(c fiber.Ctx, req any) (bool, error) {
	err := h.validator.Struct(req)
	if err == nil {
		return true, nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", err.Error())
	}
	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, getValidationErrorMessage(e))
	}
	return false, h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", messages)
}

// flowError maps the business error taxonomy onto HTTP statuses
func (h base) flowError(c fiber.Ctx, err error, message, code string) error {
	detail := err.Error()
	var bizErr *businessflow.BusinessError
	if errors.As(err, &bizErr) {
		if bizErr.Code != "" {
			code = bizErr.Code
		}
		detail = bizErr.Message
	}

	switch {
	case businessflow.IsCapacityExhausted(err):
		if businessflow.IsAssignmentConflict(err) {
			h.logger.Info().Str("path", c.Path()).Msg("capacity exhausted after losing every assignment race")
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(utils.CapacityRetryAfter.Seconds())))
		return h.ErrorResponse(c, fiber.StatusServiceUnavailable, businessflow.ErrCapacityExhausted.Error(), "CAPACITY_EXHAUSTED", nil)
	case businessflow.IsTenantRequired(err),
		businessflow.IsTenantIDTooLong(err),
		businessflow.IsPhoneNumberRequired(err),
		businessflow.IsInvalidConnectMethod(err),
		businessflow.IsInvalidPoolTarget(err):
		return h.ErrorResponse(c, fiber.StatusBadRequest, detail, code, nil)
	case businessflow.IsChannelNotFound(err):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Channel not found", code, nil)
	case businessflow.IsGatewayUnreachable(err), businessflow.IsMalformedGatewayResponse(err):
		h.logger.Warn().Err(err).Str("code", code).Msg("gateway failure")
		return h.ErrorResponse(c, fiber.StatusBadGateway, "Messaging gateway is unavailable", code, nil)
	}

	h.logger.Error().Err(err).Str("code", code).Str("path", c.Path()).Msg(message)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, message, code, nil)
}

// createRequestContext detaches the flow from fasthttp's recycled context and carries request-scoped values
func (h base) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, requestid.FromContext(c))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	return ctx, cancel
}

func parseChannelID(c fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "min":
		return err.Field() + " must be at least " + err.Param()
	case "max":
		return err.Field() + " must be at most " + err.Param()
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "numeric":
		return err.Field() + " must contain only numbers"
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}
