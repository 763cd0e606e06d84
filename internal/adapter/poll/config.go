package poll

// Config tunes the adaptive polling feedback controller. Thresholds are
// fractional price changes (0.002 = 0.2%); zero values fall back to package
// defaults at construction.
type Config struct {
	MinIntervalMS     int `validate:"omitempty,gte=1"`
	MaxIntervalMS     int `validate:"omitempty,gte=1"`
	DefaultIntervalMS int `validate:"omitempty,gte=1"`

	// WindowSize caps the ring buffer of recent price-change samples.
	WindowSize int `validate:"omitempty,gte=1"`
	// MinSamples is the sample count below which volatility reads unknown.
	MinSamples int `validate:"omitempty,gte=2"`

	LowVolatility    float64 `validate:"omitempty,gt=0"`
	MediumVolatility float64 `validate:"omitempty,gt=0"`
	HighVolatility   float64 `validate:"omitempty,gt=0"`

	OpportunityWindowMS int `validate:"omitempty,gte=1"`
	// BurstThreshold is the in-window opportunity count that forces
	// aggressive mode immediately.
	BurstThreshold int `validate:"omitempty,gte=1"`

	// MaxRPCPerMinute is the self-reported call budget; at 80% usage the
	// interval is forced back up to at least the default.
	MaxRPCPerMinute int `validate:"omitempty,gte=1"`

	// MaterialChangeRatio is the relative interval delta that counts as a
	// material change worth an intervalChanged event.
	MaterialChangeRatio float64 `validate:"omitempty,gt=0,lte=1"`
}

// IntensityMode is the coarse operating profile biasing the polling interval.
type IntensityMode string

const (
	ModeAggressive   IntensityMode = "aggressive"
	ModeNormal       IntensityMode = "normal"
	ModeConservative IntensityMode = "conservative"
)

// ParseIntensityMode maps a string onto the closed mode set; ok is false for
// anything outside it.
func ParseIntensityMode(s string) (IntensityMode, bool) {
	switch IntensityMode(s) {
	case ModeAggressive, ModeNormal, ModeConservative:
		return IntensityMode(s), true
	}
	return "", false
}

// VolatilityLevel classifies the dispersion of recent price changes.
type VolatilityLevel string

const (
	VolatilityUnknown VolatilityLevel = "unknown"
	VolatilityLow     VolatilityLevel = "low"
	VolatilityMedium  VolatilityLevel = "medium"
	VolatilityHigh    VolatilityLevel = "high"
)
