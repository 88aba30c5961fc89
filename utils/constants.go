package utils

import (
	"time"
)

// Context keys populated by handlers for downstream logging and audit
type ContextKey string

const (
	RequestIDKey  ContextKey = "request_id"
	UserAgentKey  ContextKey = "user_agent"
	IPAddressKey  ContextKey = "ip_address"
	EndpointKey   ContextKey = "endpoint"
)

// Pool defaults, overridable through configuration
const (
	// DefaultPoolTargetSize is the number of spare channels kept ready
	DefaultPoolTargetSize = 10

	// DefaultRefillThreshold triggers a background top-up when availability drops below it
	DefaultRefillThreshold = 5

	// DefaultAssignAttempts bounds CAS retries against different candidates
	DefaultAssignAttempts = 3

	// MaxTenantIDLength matches the assigned_tenant column width
	MaxTenantIDLength = 64

	// ChannelNamePrefix prefixes every gateway session created by the pool
	ChannelNamePrefix = "pool_"

	// CapacityRetryAfter is advertised to callers when the pool is exhausted
	CapacityRetryAfter = 30 * time.Second
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
