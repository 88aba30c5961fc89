// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"errors"
	"strings"

	"github.com/amirphl/wa-pool/app/dto"
	"github.com/amirphl/wa-pool/app/services"
	"github.com/gofiber/fiber/v3"
)

const (
	tenantIDLocal    = "tenant_id"
	adminIDLocal     = "admin_id"
	tokenClaimsLocal = "token_claims"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate validates tenant tokens and stores the tenant ID for handlers
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return m.authenticate(m.tokenService.ValidateTenantToken, tenantIDLocal)
}

// AdminAuthenticate validates admin tokens and sets admin-specific context values
func (m *AuthMiddleware) AdminAuthenticate() fiber.Handler {
	return m.authenticate(m.tokenService.ValidateAdminToken, adminIDLocal)
}

func (m *AuthMiddleware) authenticate(validate func(string) (*services.TokenClaims, error), subjectLocal string) fiber.Handler {
	return func(c fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return unauthorized(c, "Authorization header is required", "MISSING_AUTHORIZATION_HEADER")
		}

		// Check Bearer format
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return unauthorized(c, "Invalid authorization header format. Expected 'Bearer <token>'", "INVALID_AUTHORIZATION_FORMAT")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return unauthorized(c, "Access token is required", "MISSING_ACCESS_TOKEN")
		}

		claims, err := validate(token)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrTokenExpired):
				return unauthorized(c, "Access token has expired", "TOKEN_EXPIRED")
			case errors.Is(err, services.ErrTokenInvalid):
				return unauthorized(c, "Invalid access token", "TOKEN_INVALID")
			default:
				return unauthorized(c, "Token validation failed", "TOKEN_VALIDATION_FAILED")
			}
		}

		c.Locals(subjectLocal, claims.Subject)
		c.Locals(tokenClaimsLocal, claims)

		// Store RequestID for audit logging
		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

func unauthorized(c fiber.Ctx, message, code string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error:   dto.ErrorDetail{Code: code},
	})
}

// GetTenantIDFromContext extracts the tenant ID set by Authenticate
func GetTenantIDFromContext(c fiber.Ctx) (string, bool) {
	tenantID, ok := c.Locals(tenantIDLocal).(string)
	return tenantID, ok && tenantID != ""
}

// GetAdminIDFromContext extracts the admin ID set by AdminAuthenticate
func GetAdminIDFromContext(c fiber.Ctx) (string, bool) {
	adminID, ok := c.Locals(adminIDLocal).(string)
	return adminID, ok && adminID != ""
}

// GetTokenClaimsFromContext extracts token claims from the request context
func GetTokenClaimsFromContext(c fiber.Ctx) (*services.TokenClaims, bool) {
	claims, ok := c.Locals(tokenClaimsLocal).(*services.TokenClaims)
	return claims, ok
}
