package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/amirphl/wa-pool/utils"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token service error constants
var (
	ErrTokenExpired = errors.New("token has expired")
	ErrTokenInvalid = errors.New("invalid token")
)

const (
	roleTenant = "tenant"
	roleAdmin  = "admin"
)

// TokenService issues and validates the bearer tokens accepted by the API.
// Tenant identity comes from the upstream account system; this service only signs and verifies.
type TokenService interface {
	GenerateTenantToken(tenantID string) (string, error)
	ValidateTenantToken(token string) (*TokenClaims, error)
	GenerateAdminToken(adminID string) (string, error)
	ValidateAdminToken(token string) (*TokenClaims, error)
}

// TokenClaims represents the claims in a JWT token
type TokenClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// TokenServiceImpl implements TokenService with HMAC-SHA256
type TokenServiceImpl struct {
	accessTokenTTL time.Duration
	secretKey      []byte
	issuer         string
	audience       string
}

// NewTokenService creates a new token service
func NewTokenService(accessTokenTTL time.Duration, issuer, audience, secretKey string) (TokenService, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("secret key is required")
	}
	if accessTokenTTL <= 0 {
		return nil, fmt.Errorf("access token ttl must be positive")
	}

	return &TokenServiceImpl{
		accessTokenTTL: accessTokenTTL,
		secretKey:      []byte(secretKey),
		issuer:         issuer,
		audience:       audience,
	}, nil
}

func (s *TokenServiceImpl) GenerateTenantToken(tenantID string) (string, error) {
	return s.generate(roleTenant, tenantID)
}

func (s *TokenServiceImpl) ValidateTenantToken(token string) (*TokenClaims, error) {
	return s.validate(token, roleTenant)
}

func (s *TokenServiceImpl) GenerateAdminToken(adminID string) (string, error) {
	return s.generate(roleAdmin, adminID)
}

func (s *TokenServiceImpl) ValidateAdminToken(token string) (*TokenClaims, error) {
	return s.validate(token, roleAdmin)
}

func (s *TokenServiceImpl) generate(role, subject string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject is required")
	}
	now := utils.UTCNow()

	claims := TokenClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   subject,
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secretKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenServiceImpl) validate(token, role string) (*TokenClaims, error) {
	claims := &TokenClaims{}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secretKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid || claims.Role != role || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
