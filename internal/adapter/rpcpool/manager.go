package rpcpool

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-playground/validator/v10"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/port"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/apperr"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
	imetrics "github.com/blockpulse/chainwatch-rpc-service/internal/pkg/metrics"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/pattern"
)

const (
	defaultFailureThreshold = 3
	defaultSelfHealInterval = 30 * time.Second
	defaultMinRecoveryTime  = 60 * time.Second
	defaultRetryAttempts    = 3
	defaultRetryBackoff     = 500 * time.Millisecond
	defaultRequestTimeout   = 10 * time.Second
	defaultGasPriceTTL      = 5 * time.Second
	rateWindowSize          = time.Minute
)

// probeFunc issues a lightweight read call against an endpoint URL to decide
// whether it has recovered.
type probeFunc func(ctx context.Context, url string) error

// Manager owns the HTTP and WebSocket endpoint pools for one chain: health
// scoring, sliding-window rate budgets, round-robin selection, retry wrapping,
// and a background self-healing sweep. It is safe for use by multiple chain
// monitor goroutines; all registry mutations go through its mutex.
//
// Use NewManager to construct, StartSelfHealing to launch the recovery loop,
// and Stop to cancel it.
type Manager struct {
	log  applog.AppLogger
	cfg  Config
	bus  *event.Bus
	name string

	mu         sync.Mutex
	httpPool   []entity.Endpoint
	wsPool     []entity.Endpoint
	health     *healthRegistry
	budgets    map[string]*rateWindow
	global     *rateWindow
	httpCursor int
	wsCursor   int

	gasMu        sync.Mutex
	gasPrice     gasQuote
	gasTTL       time.Duration
	fetchGas     gasFetchFunc
	probe        probeFunc
	now          func() time.Time
	requestTO    time.Duration
	retryAttempt int
	retryBackoff time.Duration

	healMu     sync.Mutex
	healCancel context.CancelFunc
	wg         *sync.WaitGroup
}

var _ port.ProviderSource = (*Manager)(nil)

// NewManager validates the pool configuration and builds the manager with
// default ethclient-backed probe and gas fetchers. The wait group tracks the
// self-healing goroutine lifecycle.
func NewManager(log applog.AppLogger, bus *event.Bus, wg *sync.WaitGroup, name string, cfg Config, v *validator.Validate) (*Manager, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid rpc pool config", "pool", name, "err", err)
		return nil, apperr.NewInvalidArgErr("invalid rpc pool config", err)
	}
	if wg == nil {
		wg = &sync.WaitGroup{}
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = defaultFailureThreshold
	}

	premium := make(map[string]bool, len(cfg.PremiumURLs))
	for _, u := range cfg.PremiumURLs {
		premium[u] = true
	}

	m := &Manager{
		log:          log,
		cfg:          cfg,
		bus:          bus,
		name:         name,
		health:       newHealthRegistry(append(append([]string{}, cfg.HTTPURLs...), cfg.WSURLs...), threshold),
		budgets:      make(map[string]*rateWindow),
		global:       newRateWindow(cfg.GlobalRequestsPerMinute, rateWindowSize),
		gasTTL:       millisecondsOrDefault(cfg.GasPriceTTLMS, defaultGasPriceTTL),
		now:          time.Now,
		requestTO:    millisecondsOrDefault(cfg.RequestTimeoutMS, defaultRequestTimeout),
		retryAttempt: attemptsOrDefault(cfg.RetryMaxAttempts),
		retryBackoff: millisecondsOrDefault(cfg.RetryBackoffMS, defaultRetryBackoff),
		wg:           wg,
	}
	m.probe = m.dialProbe
	m.fetchGas = dialGasFetch

	for i, u := range cfg.HTTPURLs {
		m.httpPool = append(m.httpPool, entity.Endpoint{
			URL: u, Kind: entity.EndpointHTTP, Priority: priorityFor(premium, u), Index: i,
		})
	}
	for i, u := range cfg.WSURLs {
		m.wsPool = append(m.wsPool, entity.Endpoint{
			URL: u, Kind: entity.EndpointWebSocket, Priority: priorityFor(premium, u), Index: i,
		})
	}

	imetrics.Pool().PoolSize.WithLabelValues(m.name, "http").Set(float64(len(m.httpPool)))
	imetrics.Pool().PoolSize.WithLabelValues(m.name, "ws").Set(float64(len(m.wsPool)))
	return m, nil
}

func priorityFor(premium map[string]bool, url string) entity.PriorityClass {
	if premium[url] {
		return entity.PriorityPremium
	}
	return entity.PriorityPublic
}

// HTTPEndpoint selects the next healthy HTTP endpoint: premium providers
// first, round-robin within a tier, public endpoints as overflow. When every
// endpoint has latched unhealthy, the pool is reset wholesale: a uniformly
// dead pool more likely means a shared network blip than simultaneous failure
// of independent providers.
func (m *Manager) HTTPEndpoint() (entity.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selectHTTP()
}

func (m *Manager) selectHTTP() (entity.Endpoint, error) {
	if len(m.httpPool) == 0 {
		return entity.Endpoint{}, apperr.NewRpcPoolErr("http endpoint pool is empty", nil)
	}

	if ep, ok := selectByTier(m.httpPool, &m.httpCursor, m.health); ok {
		return ep, nil
	}

	n := len(m.httpPool)
	if m.cfg.DisableEmergencyReset {
		return entity.Endpoint{}, apperr.NewRpcPoolErr("all http endpoints unhealthy", nil)
	}

	m.log.Warn("entire pool unhealthy; resetting all endpoints", "pool", m.name)
	imetrics.Pool().EmergencyResetsTotal.WithLabelValues(m.name).Inc()
	m.health.resetAll(m.now())
	m.httpCursor = 1 % n
	return m.httpPool[0], nil
}

// WSEndpoint selects the next healthy WebSocket endpoint, premium providers
// first. ok is false when the WS pool is empty or fully unhealthy; callers
// then fall back to HTTP polling, so no emergency reset applies here.
func (m *Manager) WSEndpoint() (entity.Endpoint, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return selectByTier(m.wsPool, &m.wsCursor, m.health)
}

// selectByTier scans the pool from the cursor, premium pass first, and
// advances the cursor past the pick so same-tier endpoints still rotate.
func selectByTier(pool []entity.Endpoint, cursor *int, health *healthRegistry) (entity.Endpoint, bool) {
	n := len(pool)
	for _, premiumOnly := range []bool{true, false} {
		for i := 0; i < n; i++ {
			ep := pool[(*cursor+i)%n]
			if premiumOnly && ep.Priority != entity.PriorityPremium {
				continue
			}
			if health.isHealthy(ep.URL) {
				*cursor = (*cursor + i + 1) % n
				return ep, true
			}
		}
	}
	return entity.Endpoint{}, false
}

// CanMakeRequest atomically checks and consumes one unit of the endpoint's
// and the global rate budget. Once a limit is reached within its window the
// call returns false without mutating state.
func (m *Manager) CanMakeRequest(ep entity.Endpoint) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	budget, ok := m.budgets[ep.URL]
	if !ok {
		budget = newRateWindow(m.cfg.RequestsPerMinute, rateWindowSize)
		m.budgets[ep.URL] = budget
	}

	if !budget.available(now) || !m.global.available(now) {
		imetrics.Pool().RateLimitedTotal.WithLabelValues(m.name).Inc()
		return false
	}
	budget.consume(now)
	m.global.consume(now)
	return true
}

// MarkUnhealthy bumps the endpoint's consecutive-failure counter. Crossing
// the failure threshold latches the endpoint unhealthy until a successful
// self-heal probe or an emergency reset, and emits an endpointUnhealthy event
// with the masked identity.
func (m *Manager) MarkUnhealthy(ep entity.Endpoint) {
	m.mu.Lock()
	latched := m.health.markFailure(ep.URL, m.now())
	unhealthy := m.health.unhealthyCount()
	m.mu.Unlock()

	imetrics.Pool().FailuresTotal.WithLabelValues(m.name).Inc()
	if latched {
		imetrics.Pool().UnhealthyEndpoints.WithLabelValues(m.name).Set(float64(unhealthy))
		m.log.Warn("endpoint latched unhealthy", "pool", m.name, "endpoint", ep.Masked())
		if m.bus != nil {
			m.bus.PublishEndpointUnhealthy(event.EndpointUnhealthy{Endpoint: ep.Masked()})
		}
	}
}

// MarkHealthy clears the endpoint's failure counter and unhealthy latch.
func (m *Manager) MarkHealthy(ep entity.Endpoint) {
	m.mu.Lock()
	m.health.markSuccess(ep.URL, m.now())
	unhealthy := m.health.unhealthyCount()
	m.mu.Unlock()
	imetrics.Pool().UnhealthyEndpoints.WithLabelValues(m.name).Set(float64(unhealthy))
}

// WithRetry runs op against a freshly selected endpoint, rotating away from
// failing ones and applying increasing backoff between attempts. A timeout on
// any attempt counts as a failure for health tracking. The last error is
// surfaced when attempts are exhausted; nothing is dropped silently.
func (m *Manager) WithRetry(ctx context.Context, op port.EndpointOperation) error {
	return pattern.Retry(ctx, func(attempt int) error {
		ep, err := m.HTTPEndpoint()
		if err != nil {
			return err
		}
		if !m.CanMakeRequest(ep) {
			return apperr.NewRpcPoolErr("rate budget exhausted for "+ep.Masked(), nil)
		}

		imetrics.Pool().RequestsTotal.WithLabelValues(m.name).Inc()
		opCtx, cancel := context.WithTimeout(ctx, m.requestTO)
		defer cancel()

		if err := op(opCtx, ep); err != nil {
			m.MarkUnhealthy(ep)
			m.log.Warn("rpc attempt failed", "pool", m.name, "endpoint", ep.Masked(), "attempt", attempt, "err", err)
			return err
		}
		m.MarkHealthy(ep)
		return nil
	},
		pattern.WithMaxAttempts(m.retryAttempt),
		pattern.WithInitialDelay(m.retryBackoff),
		pattern.WithMaxDelay(m.retryBackoff*8),
	)
}

// Stats is a point-in-time observability snapshot of one pool manager.
type Stats struct {
	Pool               string                           `json:"pool"`
	HTTPPoolSize       int                              `json:"httpPoolSize"`
	WSPoolSize         int                              `json:"wsPoolSize"`
	UnhealthyEndpoints int                              `json:"unhealthyEndpoints"`
	SelfHealInterval   string                           `json:"selfHealInterval"`
	MinRecoveryTime    string                           `json:"minRecoveryTime"`
	Endpoints          map[string]entity.EndpointHealth `json:"endpoints"`
}

// Stats reports pool sizes, unhealthy counts, and per-endpoint health keyed
// by masked URL.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Pool:               m.name,
		HTTPPoolSize:       len(m.httpPool),
		WSPoolSize:         len(m.wsPool),
		UnhealthyEndpoints: m.health.unhealthyCount(),
		SelfHealInterval:   m.selfHealInterval().String(),
		MinRecoveryTime:    m.minRecoveryTime().String(),
		Endpoints:          m.health.snapshot(),
	}
}

func (m *Manager) selfHealInterval() time.Duration {
	return millisecondsOrDefault(m.cfg.SelfHealIntervalMS, defaultSelfHealInterval)
}

func (m *Manager) minRecoveryTime() time.Duration {
	if m.cfg.MinRecoveryTimeMS > 0 {
		return time.Duration(m.cfg.MinRecoveryTimeMS) * time.Millisecond
	}
	return defaultMinRecoveryTime
}

// dialProbe is the default recovery probe: dial the endpoint and issue the
// cheapest possible read call.
func (m *Manager) dialProbe(ctx context.Context, url string) error {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return err
	}
	defer client.Close()
	_, err = client.BlockNumber(ctx)
	return err
}

func attemptsOrDefault(n int) int {
	if n <= 0 {
		return defaultRetryAttempts
	}
	return n
}

func millisecondsOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
