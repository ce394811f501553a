package shared

import "time"

// HTTP Client Configuration
const (
	DefaultRequestTimeout  = 120 * time.Second
	DefaultShutdownTimeout = 10 * time.Second
)

// Cache Configuration
const (
	SessionCacheTTL = 1 * time.Minute
)

// Auth Configuration
const (
	MinSharedSecretLength = 16
)

// Rate Limit Configuration
const (
	DefaultRateLimitWindow   = 1 * time.Minute
	DefaultAIRateLimitMax    = 120
	DefaultCodexRateLimitMax = 30
)
