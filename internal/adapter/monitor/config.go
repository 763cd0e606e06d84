package monitor

// Config holds one chain monitor's identity and reconnection tuning. Zero
// values fall back to package defaults at construction.
type Config struct {
	ChainID   uint64 `validate:"required"`
	ChainName string `validate:"required"`
	// BlockTimeMS is the chain's nominal block interval, used for the
	// polling floor when no adaptive poller is wired.
	BlockTimeMS int `validate:"omitempty,gte=1"`

	MaxReconnectAttempts int `validate:"omitempty,gte=1"`
	ReconnectBaseDelayMS int `validate:"omitempty,gte=1"`
	ReconnectMaxDelayMS  int `validate:"omitempty,gte=1"`

	// DefaultPollIntervalMS drives the HTTP fallback timer when no adaptive
	// poller is wired.
	DefaultPollIntervalMS int `validate:"omitempty,gte=1"`
	DialTimeoutMS         int `validate:"omitempty,gte=1"`
}
