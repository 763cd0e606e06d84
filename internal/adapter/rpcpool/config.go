package rpcpool

// Config holds the endpoint pools and the resilience tuning for one chain's
// RPC provider manager. The struct is validated via go-playground/validator
// tags; zero values fall back to package defaults at construction.
type Config struct {
	// HTTPURLs is the ordered HTTP pool; at least one entry is required.
	HTTPURLs []string `validate:"required,min=1,dive,uri"`
	// WSURLs is the ordered WebSocket pool; may be empty, in which case
	// monitors run on HTTP polling only.
	WSURLs []string `validate:"omitempty,dive,uri"`
	// PremiumURLs marks which of the configured URLs belong to paid providers.
	PremiumURLs []string `validate:"omitempty,dive,uri"`

	// FailureThreshold is the consecutive-failure count that latches an
	// endpoint unhealthy.
	FailureThreshold int `validate:"omitempty,gte=1"`

	// RequestsPerMinute caps each endpoint's sliding window; 0 disables.
	RequestsPerMinute int `validate:"omitempty,gte=1"`
	// GlobalRequestsPerMinute caps the pool-wide sliding window; 0 disables.
	GlobalRequestsPerMinute int `validate:"omitempty,gte=1"`

	SelfHealIntervalMS int `validate:"omitempty,gte=100"`
	MinRecoveryTimeMS  int `validate:"omitempty,gte=0"`

	// DisableEmergencyReset keeps a uniformly unhealthy pool unhealthy
	// instead of resetting it wholesale. The reset heuristic assumes a shared
	// network blip is more likely than every independent provider failing at
	// once.
	DisableEmergencyReset bool

	RetryMaxAttempts int `validate:"omitempty,gte=1"`
	RetryBackoffMS   int `validate:"omitempty,gte=0"`
	RequestTimeoutMS int `validate:"omitempty,gte=1"`

	GasPriceTTLMS int `validate:"omitempty,gte=0"`
}
