package store

// Config contains connection and behavior options for the Redis-backed
// block event stream. The struct is validated via go-playground/validator tags.
type Config struct {
	Host               string `validate:"required,hostname|ip"`
	Port               string `validate:"required,numeric"`
	Password           string
	DB                 int `validate:"gte=0"`
	UseTLS             bool
	PoolSize           int `validate:"gte=0"`
	MaxRetries         int `validate:"gte=0"`
	DialTimeoutSeconds int `validate:"gte=0"`
	// StreamKey is the Redis stream where block events are appended.
	StreamKey string `validate:"required"`
	// MaxStreamLen caps the stream with approximate XADD MAXLEN trimming;
	// 0 keeps the stream unbounded.
	MaxStreamLen int64 `validate:"gte=0"`
}
