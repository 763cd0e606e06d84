package poll

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/apperr"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
	imetrics "github.com/blockpulse/chainwatch-rpc-service/internal/pkg/metrics"
)

const (
	defaultMinInterval       = 500 * time.Millisecond
	defaultMaxInterval       = 5000 * time.Millisecond
	defaultInterval          = 2500 * time.Millisecond
	defaultWindowSize        = 50
	defaultMinSamples        = 5
	defaultLowVolatility     = 0.002
	defaultMediumVolatility  = 0.008
	defaultHighVolatility    = 0.02
	defaultOpportunityWindow = time.Minute
	defaultBurstThreshold    = 3
	defaultMaxRPCPerMinute   = 60
	defaultMaterialChange    = 0.1
	rpcBudgetPressure        = 0.8
)

type priceSample struct {
	change float64
	at     time.Time
}

// Opportunity is a detected profitable signal reported by an external
// detector. Only its arrival time matters to the poller.
type Opportunity struct {
	Pair   string
	Profit float64
}

type pollerStats struct {
	TotalPolls          uint64 `json:"totalPolls"`
	TotalSamples        uint64 `json:"totalSamples"`
	TotalOpportunities  uint64 `json:"totalOpportunities"`
	TotalBursts         uint64 `json:"totalBursts"`
	TotalIntervalShifts uint64 `json:"totalIntervalShifts"`
}

// AdaptivePoller computes the next polling interval for each chain from
// recent market behavior. It performs no I/O: monitors and polling consumers
// consult it, and detectors feed it price-change and opportunity samples.
// Safe for concurrent use across chain goroutines.
type AdaptivePoller struct {
	log applog.AppLogger
	bus *event.Bus

	minInterval       time.Duration
	maxInterval       time.Duration
	defaultInterval   time.Duration
	windowSize        int
	minSamples        int
	lowThreshold      float64
	mediumThreshold   float64
	highThreshold     float64
	opportunityWindow time.Duration
	burstThreshold    int
	maxRPCPerMinute   int
	materialChange    float64

	mu            sync.Mutex
	now           func() time.Time
	chains        map[uint64]entity.Chain
	samples       []priceSample
	opportunities []time.Time
	mode          IntensityMode
	interval      time.Duration
	rpcCount      int
	rpcWindowAt   time.Time
	lastPoll      time.Time
	stats         pollerStats
}

// NewAdaptivePoller validates the configuration and builds a poller seeded
// with the default interval and NORMAL mode. chains supplies the per-chain
// nominal block times used for the interval floor.
func NewAdaptivePoller(log applog.AppLogger, bus *event.Bus, chains []entity.Chain, cfg Config, v *validator.Validate) (*AdaptivePoller, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid adaptive poller config", "err", err)
		return nil, apperr.NewInvalidArgErr("invalid adaptive poller config", err)
	}

	p := &AdaptivePoller{
		log:               log,
		bus:               bus,
		minInterval:       millisecondsOrDefault(cfg.MinIntervalMS, defaultMinInterval),
		maxInterval:       millisecondsOrDefault(cfg.MaxIntervalMS, defaultMaxInterval),
		defaultInterval:   millisecondsOrDefault(cfg.DefaultIntervalMS, defaultInterval),
		windowSize:        intOrDefault(cfg.WindowSize, defaultWindowSize),
		minSamples:        intOrDefault(cfg.MinSamples, defaultMinSamples),
		lowThreshold:      floatOrDefault(cfg.LowVolatility, defaultLowVolatility),
		mediumThreshold:   floatOrDefault(cfg.MediumVolatility, defaultMediumVolatility),
		highThreshold:     floatOrDefault(cfg.HighVolatility, defaultHighVolatility),
		opportunityWindow: millisecondsOrDefault(cfg.OpportunityWindowMS, defaultOpportunityWindow),
		burstThreshold:    intOrDefault(cfg.BurstThreshold, defaultBurstThreshold),
		maxRPCPerMinute:   intOrDefault(cfg.MaxRPCPerMinute, defaultMaxRPCPerMinute),
		materialChange:    floatOrDefault(cfg.MaterialChangeRatio, defaultMaterialChange),
		now:               time.Now,
		chains:            make(map[uint64]entity.Chain, len(chains)),
		mode:              ModeNormal,
	}
	if p.maxInterval < p.minInterval {
		return nil, apperr.NewInvalidArgErr("max interval below min interval", nil)
	}
	p.interval = p.clamp(p.defaultInterval)
	for _, c := range chains {
		p.chains[c.ID] = c
	}
	p.lastPoll = p.now()
	return p, nil
}

// RecordPriceChange appends a fractional price-change sample to the ring
// buffer, evicting the oldest entry past the window size. Non-positive
// prices are ignored rather than erred: a missing quote is noise, not a
// controller failure.
func (p *AdaptivePoller) RecordPriceChange(pairKey string, oldPrice, newPrice float64) {
	if oldPrice <= 0 || newPrice <= 0 {
		return
	}
	change := math.Abs(newPrice-oldPrice) / oldPrice

	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = append(p.samples, priceSample{change: change, at: p.now()})
	if len(p.samples) > p.windowSize {
		p.samples = p.samples[len(p.samples)-p.windowSize:]
	}
	p.stats.TotalSamples++
}

// CalculateVolatility classifies the standard deviation of the recorded
// fractional changes. With fewer than the minimum sample count the level is
// unknown and the deviation zero.
func (p *AdaptivePoller) CalculateVolatility() (VolatilityLevel, float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volatilityLocked()
}

func (p *AdaptivePoller) volatilityLocked() (VolatilityLevel, float64) {
	if len(p.samples) < p.minSamples {
		return VolatilityUnknown, 0
	}

	var sum float64
	for _, s := range p.samples {
		sum += s.change
	}
	mean := sum / float64(len(p.samples))

	var variance float64
	for _, s := range p.samples {
		d := s.change - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(len(p.samples)))

	switch {
	case stdDev < p.lowThreshold:
		return VolatilityLow, stdDev
	case stdDev < p.mediumThreshold:
		return VolatilityMedium, stdDev
	case stdDev >= p.highThreshold:
		return VolatilityHigh, stdDev
	default:
		// Between the moderate and high thresholds: treated as medium.
		return VolatilityMedium, stdDev
	}
}

// RecordOpportunity appends a timestamped opportunity and prunes entries
// older than the opportunity window. Reaching the burst threshold inside the
// window forces aggressive mode right away and emits highIntensityTriggered;
// a burst is time-critical, so it bypasses the normal recalculation cadence.
func (p *AdaptivePoller) RecordOpportunity(op Opportunity) {
	p.mu.Lock()
	now := p.now()
	p.opportunities = append(p.opportunities, now)
	p.pruneOpportunitiesLocked(now)
	p.stats.TotalOpportunities++

	burst := len(p.opportunities) >= p.burstThreshold && p.mode != ModeAggressive
	if burst {
		p.mode = ModeAggressive
		p.stats.TotalBursts++
	}
	p.mu.Unlock()

	imetrics.Poller().OpportunitiesTotal.Inc()
	if burst {
		imetrics.Poller().BurstsTotal.Inc()
		imetrics.Poller().ModeChangesTotal.WithLabelValues(string(ModeAggressive)).Inc()
		p.log.Info("opportunity burst; forcing aggressive polling", "pair", op.Pair)
		if p.bus != nil {
			p.bus.PublishHighIntensity(event.HighIntensity{Reason: "opportunity_burst"})
		}
	}
}

func (p *AdaptivePoller) pruneOpportunitiesLocked(now time.Time) {
	cutoff := now.Add(-p.opportunityWindow)
	kept := p.opportunities[:0]
	for _, t := range p.opportunities {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	p.opportunities = kept
}

// Interval recomputes the recommended polling interval for the chain:
// volatility and intensity mode set the base, clamped to [min,max], then to
// the chain's half-block-time floor, then to at least the default when the
// self-reported RPC budget is under pressure. A material change emits
// intervalChanged.
func (p *AdaptivePoller) Interval(chainID uint64) time.Duration {
	p.mu.Lock()
	old := p.interval
	next, reason := p.recomputeLocked(chainID)
	p.interval = next
	material := old > 0 && relativeDelta(old, next) >= p.materialChange
	if material {
		p.stats.TotalIntervalShifts++
	}
	p.mu.Unlock()

	imetrics.Poller().IntervalMS.WithLabelValues(chainLabel(chainID)).Set(float64(next.Milliseconds()))
	if material {
		imetrics.Poller().IntervalChanges.Inc()
		p.log.Debug("polling interval changed", "chain", chainID, "old", old, "new", next, "reason", reason)
		if p.bus != nil {
			p.bus.PublishIntervalChanged(event.IntervalChanged{
				ChainID: chainID, Old: old, New: next, Reason: reason,
			})
		}
	}
	return next
}

func (p *AdaptivePoller) recomputeLocked(chainID uint64) (time.Duration, string) {
	level, _ := p.volatilityLocked()

	base := p.defaultInterval
	reason := "volatility_" + string(level)
	switch level {
	case VolatilityHigh:
		base = p.minInterval
	case VolatilityMedium:
		base = (p.minInterval + p.defaultInterval) / 2
	case VolatilityLow, VolatilityUnknown:
		base = p.defaultInterval
	}

	switch p.mode {
	case ModeAggressive:
		base = base / 2
	case ModeConservative:
		base = base * 3 / 2
	}

	next := p.clamp(base)

	// Never poll faster than roughly half the chain's block time; blocks
	// cannot arrive faster than they are produced.
	if chain, ok := p.chains[chainID]; ok {
		if floor := chain.MinPollInterval(); next < floor {
			next = floor
			reason = "block_time_floor"
		}
	}

	// Quota guard: trade responsiveness for budget safety near the cap.
	p.rollRPCWindowLocked(p.now())
	if p.maxRPCPerMinute > 0 && float64(p.rpcCount) >= rpcBudgetPressure*float64(p.maxRPCPerMinute) {
		if next < p.defaultInterval {
			next = p.defaultInterval
			reason = "rpc_budget_pressure"
		}
	}
	return next, reason
}

func (p *AdaptivePoller) clamp(d time.Duration) time.Duration {
	if d < p.minInterval {
		return p.minInterval
	}
	if d > p.maxInterval {
		return p.maxInterval
	}
	return d
}

// RecordRPCCall bumps the approximate per-minute call counter. This is the
// poller's self-reported budget, distinct from the manager's authoritative
// rate windows.
func (p *AdaptivePoller) RecordRPCCall() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rollRPCWindowLocked(p.now())
	p.rpcCount++
}

func (p *AdaptivePoller) rollRPCWindowLocked(now time.Time) {
	if now.Sub(p.rpcWindowAt) >= time.Minute {
		p.rpcWindowAt = now
		p.rpcCount = 0
	}
}

// SetIntensityMode applies a tuning hint. Values outside the closed mode set
// are logged and ignored rather than erred; a bad hint must not disturb the
// current profile.
func (p *AdaptivePoller) SetIntensityMode(mode IntensityMode) {
	if _, ok := ParseIntensityMode(string(mode)); !ok {
		p.log.Warn("ignoring unknown intensity mode", "mode", string(mode))
		return
	}
	p.mu.Lock()
	changed := p.mode != mode
	p.mode = mode
	p.mu.Unlock()
	if changed {
		imetrics.Poller().ModeChangesTotal.WithLabelValues(string(mode)).Inc()
	}
}

// Mode returns the current intensity mode.
func (p *AdaptivePoller) Mode() IntensityMode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// TimeBasedIntensity derives a recommended mode from the UTC hour alone:
// quiet overnight hours bias conservative, peak overlap hours aggressive.
// It is independent of the volatility and opportunity signals; callers
// combine it as they see fit.
func (p *AdaptivePoller) TimeBasedIntensity() IntensityMode {
	p.mu.Lock()
	hour := p.now().UTC().Hour()
	p.mu.Unlock()

	switch {
	case hour >= 2 && hour < 6:
		return ModeConservative
	case hour >= 12 && hour < 20:
		return ModeAggressive
	default:
		return ModeNormal
	}
}

// ShouldPollNow reports whether one full interval has elapsed since the last
// completed poll. Immediately after construction it stays false for a full
// interval, preventing a thundering-herd poll at startup.
func (p *AdaptivePoller) ShouldPollNow(chainID uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	interval := p.interval
	if chain, ok := p.chains[chainID]; ok {
		if floor := chain.MinPollInterval(); interval < floor {
			interval = floor
		}
	}
	return p.now().Sub(p.lastPoll) >= interval
}

// MarkPollComplete records the completion of a poll cycle.
func (p *AdaptivePoller) MarkPollComplete() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPoll = p.now()
	p.stats.TotalPolls++
}

// Reset clears samples, opportunities, counters, and mode back to defaults.
func (p *AdaptivePoller) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.samples = nil
	p.opportunities = nil
	p.mode = ModeNormal
	p.interval = p.clamp(p.defaultInterval)
	p.rpcCount = 0
	p.rpcWindowAt = time.Time{}
	p.lastPoll = p.now()
	p.stats = pollerStats{}
}

// Stats is a point-in-time observability snapshot of the controller.
type Stats struct {
	Mode         IntensityMode   `json:"mode"`
	IntervalMS   int64           `json:"intervalMs"`
	Volatility   VolatilityLevel `json:"volatility"`
	StdDev       float64         `json:"stdDev"`
	SampleCount  int             `json:"sampleCount"`
	InWindowOpps int             `json:"inWindowOpportunities"`
	RPCPerMinute int             `json:"rpcCallsPerMinute"`
	Totals       pollerStats     `json:"totals"`
}

func (p *AdaptivePoller) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	level, stdDev := p.volatilityLocked()
	p.pruneOpportunitiesLocked(p.now())
	return Stats{
		Mode:         p.mode,
		IntervalMS:   p.interval.Milliseconds(),
		Volatility:   level,
		StdDev:       stdDev,
		SampleCount:  len(p.samples),
		InWindowOpps: len(p.opportunities),
		RPCPerMinute: p.rpcCount,
		Totals:       p.stats,
	}
}

func relativeDelta(old, next time.Duration) float64 {
	if old == 0 {
		return 0
	}
	return math.Abs(float64(next-old)) / float64(old)
}

func chainLabel(chainID uint64) string {
	return strconv.FormatUint(chainID, 10)
}

func millisecondsOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func intOrDefault(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

func floatOrDefault(v, fallback float64) float64 {
	if v <= 0 {
		return fallback
	}
	return v
}
