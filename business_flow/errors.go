// Package businessflow contains the core business logic and use cases for the channel pool
package businessflow

import (
	"errors"
	"fmt"

	"github.com/amirphl/wa-pool/app/services"
	"github.com/amirphl/wa-pool/repository"
)

// Business flow error constants
var (
	// Pool errors
	ErrCapacityExhausted  = errors.New("no channel available, more capacity is being created, retry shortly")
	ErrAssignmentConflict = errors.New("channel was claimed by another request")
	ErrInvalidPoolTarget  = errors.New("pool target size must not be negative")
	ErrChannelNotFound    = errors.New("channel not found")

	// Gateway errors
	ErrGatewayUnreachable       = services.ErrGatewayUnreachable
	ErrMalformedGatewayResponse = services.ErrMalformedGatewayResponse

	// Request errors
	ErrTenantRequired       = errors.New("tenant ID is required")
	ErrPhoneNumberRequired  = errors.New("phone number is required for pairing code")
	ErrInvalidConnectMethod = errors.New("connect method must be qr or code")
	ErrTenantIDTooLong      = errors.New("tenant ID is too long")

	// Storage errors
	ErrTenantAlreadyAssigned = repository.ErrTenantAlreadyAssigned
)

// codeGatewayStatusFailed marks a status check that could not reach the gateway
const codeGatewayStatusFailed = "GATEWAY_STATUS_FAILED"

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func IsCapacityExhausted(err error) bool {
	return errors.Is(err, ErrCapacityExhausted)
}

func IsAssignmentConflict(err error) bool {
	return errors.Is(err, ErrAssignmentConflict)
}

func IsGatewayUnreachable(err error) bool {
	return errors.Is(err, ErrGatewayUnreachable)
}

func IsMalformedGatewayResponse(err error) bool {
	return errors.Is(err, ErrMalformedGatewayResponse)
}

func IsChannelNotFound(err error) bool {
	return errors.Is(err, ErrChannelNotFound)
}

func IsTenantRequired(err error) bool {
	return errors.Is(err, ErrTenantRequired)
}

func IsTenantIDTooLong(err error) bool {
	return errors.Is(err, ErrTenantIDTooLong)
}

// IsStaleStatus reports a refresh that kept the stored record because the gateway was unreachable
func IsStaleStatus(err error) bool {
	var bizErr *BusinessError
	return errors.As(err, &bizErr) && bizErr.Code == codeGatewayStatusFailed
}

func IsPhoneNumberRequired(err error) bool {
	return errors.Is(err, ErrPhoneNumberRequired)
}

func IsInvalidConnectMethod(err error) bool {
	return errors.Is(err, ErrInvalidConnectMethod)
}

func IsInvalidPoolTarget(err error) bool {
	return errors.Is(err, ErrInvalidPoolTarget)
}
