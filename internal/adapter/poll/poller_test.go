package poll

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Trace(msg string, args ...any) {}
func (noopLogger) Fatal(msg string, args ...any) {}

func newTestPoller(t *testing.T, bus *event.Bus, chains []entity.Chain, cfg Config) *AdaptivePoller {
	t.Helper()
	p, err := NewAdaptivePoller(noopLogger{}, bus, chains, cfg, validator.New())
	require.NoError(t, err)
	return p
}

// recordSwings feeds alternating flat and swing samples so the standard
// deviation is exactly half the swing size.
func recordSwings(p *AdaptivePoller, swing float64, n int) {
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			p.RecordPriceChange("WETH/USDC", 100, 100)
		} else {
			p.RecordPriceChange("WETH/USDC", 100, 100*(1+swing))
		}
	}
}

func TestVolatilityUnknownBelowMinSamples(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{})
	recordSwings(p, 0.05, 4)

	level, stdDev := p.CalculateVolatility()
	require.Equal(t, VolatilityUnknown, level)
	require.Zero(t, stdDev)
}

func TestVolatilityClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		swing float64
		want  VolatilityLevel
	}{
		{"low", 0.001, VolatilityLow},
		{"medium", 0.01, VolatilityMedium},
		{"between medium and high reads medium", 0.03, VolatilityMedium},
		{"high", 0.05, VolatilityHigh},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPoller(t, nil, nil, Config{})
			recordSwings(p, tc.swing, 10)

			level, _ := p.CalculateVolatility()
			require.Equal(t, tc.want, level)
		})
	}
}

func TestSteadySwingsReadLow(t *testing.T) {
	t.Parallel()

	// Ten identical 5% swings have zero dispersion: the market moves hard
	// but predictably, so the controller must not treat it as high
	// volatility.
	p := newTestPoller(t, nil, nil, Config{})
	for i := 0; i < 10; i++ {
		p.RecordPriceChange("WETH/USDC", 100, 105)
	}

	level, stdDev := p.CalculateVolatility()
	require.Equal(t, VolatilityLow, level)
	require.Zero(t, stdDev)
}

func TestIntervalDropsFromMaxOnSteadySwings(t *testing.T) {
	t.Parallel()

	var events []event.IntervalChanged
	bus := event.NewBus(noopLogger{})
	bus.OnIntervalChanged(func(ev event.IntervalChanged) { events = append(events, ev) })

	p := newTestPoller(t, bus, nil, Config{})
	p.interval = p.maxInterval
	for i := 0; i < 10; i++ {
		p.RecordPriceChange("WETH/USDC", 100, 105)
	}

	next := p.Interval(1)
	require.Less(t, next, p.maxInterval)
	require.Len(t, events, 1)
	require.Equal(t, p.maxInterval, events[0].Old)
	require.Equal(t, next, events[0].New)
}

func TestHighVolatilityUsesMinInterval(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{})
	recordSwings(p, 0.05, 10)

	require.Equal(t, p.minInterval, p.Interval(1))
}

func TestIntensityModeBiasesInterval(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mode IntensityMode
		want time.Duration
	}{
		{"aggressive halves", ModeAggressive, 1250 * time.Millisecond},
		{"normal keeps default", ModeNormal, 2500 * time.Millisecond},
		{"conservative stretches", ModeConservative, 3750 * time.Millisecond},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPoller(t, nil, nil, Config{})
			p.SetIntensityMode(tc.mode)
			require.Equal(t, tc.want, p.Interval(1))
		})
	}
}

func TestBlockTimeFloorWins(t *testing.T) {
	t.Parallel()

	chains := []entity.Chain{{ID: 56, Name: "bsc", BlockTime: 3 * time.Second}}
	p := newTestPoller(t, nil, chains, Config{})
	recordSwings(p, 0.05, 10)

	// High volatility asks for the minimum, but blocks only arrive every
	// three seconds.
	require.Equal(t, 1500*time.Millisecond, p.Interval(56))
}

func TestRPCBudgetPressureRaisesInterval(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{MaxRPCPerMinute: 60})
	recordSwings(p, 0.05, 10)
	for i := 0; i < 48; i++ {
		p.RecordRPCCall()
	}

	require.Equal(t, p.defaultInterval, p.Interval(1))
}

func TestOpportunityBurstForcesAggressive(t *testing.T) {
	t.Parallel()

	var events []event.HighIntensity
	bus := event.NewBus(noopLogger{})
	bus.OnHighIntensity(func(ev event.HighIntensity) { events = append(events, ev) })

	p := newTestPoller(t, bus, nil, Config{})
	op := Opportunity{Pair: "WETH/USDC", Profit: 0.004}

	p.RecordOpportunity(op)
	p.RecordOpportunity(op)
	require.Equal(t, ModeNormal, p.Mode())
	require.Empty(t, events)

	p.RecordOpportunity(op)
	require.Equal(t, ModeAggressive, p.Mode())
	require.Len(t, events, 1)
	require.Equal(t, "opportunity_burst", events[0].Reason)

	// Already aggressive: further opportunities must not re-trigger.
	p.RecordOpportunity(op)
	require.Len(t, events, 1)
}

func TestOpportunitiesOutsideWindowExpire(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{})
	now := time.Now()
	p.now = func() time.Time { return now }

	op := Opportunity{Pair: "WETH/USDC", Profit: 0.004}
	p.RecordOpportunity(op)
	p.RecordOpportunity(op)

	now = now.Add(61 * time.Second)
	p.RecordOpportunity(op)

	require.Equal(t, ModeNormal, p.Mode())
	require.Equal(t, 1, p.Stats().InWindowOpps)
}

func TestSetIntensityModeIgnoresUnknown(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{})
	p.SetIntensityMode(IntensityMode("turbo"))
	require.Equal(t, ModeNormal, p.Mode())
}

func TestTimeBasedIntensity(t *testing.T) {
	t.Parallel()

	cases := []struct {
		hour int
		want IntensityMode
	}{
		{3, ModeConservative},
		{15, ModeAggressive},
		{22, ModeNormal},
	}
	for _, tc := range cases {
		p := newTestPoller(t, nil, nil, Config{})
		at := time.Date(2025, 6, 1, tc.hour, 0, 0, 0, time.UTC)
		p.now = func() time.Time { return at }
		require.Equal(t, tc.want, p.TimeBasedIntensity(), "hour %d", tc.hour)
	}
}

func TestShouldPollNowQuietAtStartup(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{DefaultIntervalMS: 1000})
	now := time.Now()
	p.now = func() time.Time { return now }
	p.lastPoll = now

	require.False(t, p.ShouldPollNow(1))

	now = now.Add(999 * time.Millisecond)
	require.False(t, p.ShouldPollNow(1))

	now = now.Add(time.Millisecond)
	require.True(t, p.ShouldPollNow(1))

	p.MarkPollComplete()
	require.False(t, p.ShouldPollNow(1))
}

func TestRecordPriceChangeIgnoresNonPositivePrices(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{})
	p.RecordPriceChange("WETH/USDC", 0, 100)
	p.RecordPriceChange("WETH/USDC", 100, -1)
	require.Zero(t, p.Stats().SampleCount)
}

func TestSampleWindowEvictsOldest(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{WindowSize: 5})
	recordSwings(p, 0.01, 8)
	require.Equal(t, 5, p.Stats().SampleCount)
}

func TestResetRestoresDefaults(t *testing.T) {
	t.Parallel()

	p := newTestPoller(t, nil, nil, Config{})
	recordSwings(p, 0.05, 10)
	for i := 0; i < 3; i++ {
		p.RecordOpportunity(Opportunity{Pair: "WETH/USDC"})
	}
	require.Equal(t, ModeAggressive, p.Mode())

	p.Reset()
	stats := p.Stats()
	require.Equal(t, ModeNormal, stats.Mode)
	require.Zero(t, stats.SampleCount)
	require.Zero(t, stats.InWindowOpps)
	require.Equal(t, p.defaultInterval.Milliseconds(), stats.IntervalMS)
	require.Zero(t, stats.Totals.TotalOpportunities)
}

func TestRejectsInvertedIntervalBounds(t *testing.T) {
	t.Parallel()

	_, err := NewAdaptivePoller(noopLogger{}, nil, nil, Config{
		MinIntervalMS: 2000,
		MaxIntervalMS: 1000,
	}, validator.New())
	require.Error(t, err)
}
