package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/go-playground/validator/v10"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/port"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/apperr"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
	imetrics "github.com/blockpulse/chainwatch-rpc-service/internal/pkg/metrics"
)

const (
	defaultMaxReconnects = 10
	defaultReconnectBase = time.Second
	defaultReconnectCap  = 30 * time.Second
	defaultPollInterval  = 2500 * time.Millisecond
	defaultDialTimeout   = 10 * time.Second
	headerBuffer         = 32
)

// State is the connection state of one chain's monitor. Subscribed and
// Polling are both running substates; only one is active at a time.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StatePolling      State = "polling"
	StateReconnecting State = "reconnecting"
)

// wsClient is the slice of ethclient used for subscriptions, narrow enough
// to fake in tests.
type wsClient interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
	Close()
}

// blockNumberFunc fetches the latest block number from one endpoint URL.
type blockNumberFunc func(ctx context.Context, url string) (uint64, error)

// ChainMonitor produces a deduplicated, monotonic stream of new-block events
// for one chain, preferring WebSocket subscription and degrading to HTTP
// polling. All events go out through the bus; block numbers never regress.
//
// One goroutine per chain runs the whole state machine, so ConnectionState
// transitions need no internal ordering beyond the mutex protecting
// accessors called from other goroutines.
type ChainMonitor struct {
	log       applog.AppLogger
	cfg       Config
	chain     entity.Chain
	providers port.ProviderSource
	intervals port.IntervalSource
	bus       *event.Bus

	newWSClient func(ctx context.Context, url string) (wsClient, error)
	blockNumber blockNumberFunc

	mu                sync.Mutex
	state             State
	lastBlock         uint64
	blockSeen         bool
	reconnectAttempts int
	running           bool
	cancel            context.CancelFunc
	wg                *sync.WaitGroup
}

// NewChainMonitor validates the configuration and builds a monitor wired to
// the given provider source, optional interval source, and event bus.
func NewChainMonitor(log applog.AppLogger, bus *event.Bus, wg *sync.WaitGroup, providers port.ProviderSource, intervals port.IntervalSource, cfg Config, v *validator.Validate) (*ChainMonitor, error) {
	if err := v.Struct(cfg); err != nil {
		log.Error("invalid chain monitor config", "err", err)
		return nil, apperr.NewInvalidArgErr("invalid chain monitor config", err)
	}
	if providers == nil {
		return nil, apperr.NewInvalidArgErr("provider source is required", nil)
	}
	if wg == nil {
		wg = &sync.WaitGroup{}
	}

	m := &ChainMonitor{
		log:       log,
		cfg:       cfg,
		chain:     entity.Chain{ID: cfg.ChainID, Name: cfg.ChainName, BlockTime: millisecondsOrDefault(cfg.BlockTimeMS, 0)},
		providers: providers,
		intervals: intervals,
		bus:       bus,
		state:     StateDisconnected,
		wg:        wg,
	}
	m.newWSClient = func(ctx context.Context, url string) (wsClient, error) {
		return ethclient.DialContext(ctx, url)
	}
	m.blockNumber = func(ctx context.Context, url string) (uint64, error) {
		client, err := ethclient.DialContext(ctx, url)
		if err != nil {
			return 0, err
		}
		defer client.Close()
		return client.BlockNumber(ctx)
	}
	return m, nil
}

// Start launches the monitor goroutine. It fails fast when no endpoint pool
// can serve the chain at all; a silent no-op monitor is worse than an error.
func (m *ChainMonitor) Start() error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return apperr.NewBlockMonitorErr("monitor already running", nil)
	}

	if _, err := m.providers.HTTPEndpoint(); err != nil {
		if _, ok := m.providers.WSEndpoint(); !ok {
			m.mu.Unlock()
			return apperr.NewBlockMonitorErr("no usable endpoints configured for "+m.cfg.ChainName, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.running = true
	m.reconnectAttempts = 0
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			m.running = false
			m.cancel = nil
			m.state = StateDisconnected
			m.mu.Unlock()
			imetrics.Monitor().Connected.WithLabelValues(m.cfg.ChainName).Set(0)
		}()
		m.run(ctx)
	}()
	return nil
}

// Stop cancels the subscription or polling timer and waits out no further
// work. Idempotent; provider disconnects arriving after Stop never trigger
// reconnection because the run context is already cancelled.
func (m *ChainMonitor) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.mu.Unlock()

	if cancel == nil {
		m.log.Trace("chain monitor already stopped", "chain", m.cfg.ChainName)
		return
	}
	m.log.Trace("stopping chain monitor", "chain", m.cfg.ChainName)
	cancel()
}

// Status is a point-in-time view of the monitor's state machine.
type Status struct {
	Chain             string `json:"chain"`
	ChainID           uint64 `json:"chainId"`
	State             State  `json:"state"`
	LastBlock         uint64 `json:"lastBlock"`
	ReconnectAttempts int    `json:"reconnectAttempts"`
}

func (m *ChainMonitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Chain:             m.cfg.ChainName,
		ChainID:           m.cfg.ChainID,
		State:             m.state,
		LastBlock:         m.lastBlock,
		ReconnectAttempts: m.reconnectAttempts,
	}
}

// run drives the state machine. The initial connection prefers a WebSocket
// subscription and downgrades to HTTP polling when no WS endpoint is usable
// or the handshake fails. Once a subscription was live, a mid-stream error
// enters the reconnect loop instead; the downgrade is an initial-connect
// decision only.
func (m *ChainMonitor) run(ctx context.Context) {
	m.setState(StateConnecting)

	ep, ok := m.providers.WSEndpoint()
	if !ok {
		m.log.Warn("no usable websocket endpoint; downgrading to http polling", "chain", m.cfg.ChainName)
		m.pollBlocks(ctx)
		return
	}

	err := m.streamBlocks(ctx, ep)
	if ctx.Err() != nil {
		return
	}
	if err == errSubscribeFailed {
		m.log.Warn("subscription failed; downgrading to http polling", "chain", m.cfg.ChainName)
		m.pollBlocks(ctx)
		return
	}

	m.reconnectLoop(ctx)
}

// reconnectLoop re-establishes a lost subscription with exponential backoff.
// Every failed attempt counts toward the ceiling, whether the dial, the
// subscribe call, or the endpoint selection failed; a successful subscription
// resets the counter. Exhausting the ceiling emits a fatal chain error and
// halts the monitor.
func (m *ChainMonitor) reconnectLoop(ctx context.Context) {
	for {
		if !m.handleReconnect(ctx) {
			return
		}
		m.setState(StateConnecting)

		ep, ok := m.providers.WSEndpoint()
		if !ok {
			continue
		}

		err := m.streamBlocks(ctx, ep)
		if ctx.Err() != nil || err == nil {
			return
		}
	}
}

var errSubscribeFailed = apperr.NewBlockMonitorErr("subscription setup failed", nil)

// streamBlocks dials the WS endpoint, subscribes to new heads, and emits
// deduplicated block events until the context ends or the connection errors.
// Returns errSubscribeFailed for setup failures (handshake or subscribe call)
// and the connection error for mid-stream failures.
func (m *ChainMonitor) streamBlocks(ctx context.Context, ep entity.Endpoint) error {
	dialCtx, cancelDial := context.WithTimeout(ctx, millisecondsOrDefault(m.cfg.DialTimeoutMS, defaultDialTimeout))
	client, err := m.newWSClient(dialCtx, ep.URL)
	cancelDial()
	if err != nil {
		m.providers.MarkUnhealthy(ep)
		m.log.Warn("websocket dial failed", "chain", m.cfg.ChainName, "endpoint", ep.Masked(), "err", err)
		return errSubscribeFailed
	}

	headers := make(chan *types.Header, headerBuffer)
	sub, err := client.SubscribeNewHead(ctx, headers)
	if err != nil {
		client.Close()
		m.providers.MarkUnhealthy(ep)
		m.log.Warn("new-head subscription failed", "chain", m.cfg.ChainName, "endpoint", ep.Masked(), "err", err)
		return errSubscribeFailed
	}

	m.providers.MarkHealthy(ep)
	m.setState(StateSubscribed)
	m.resetReconnectAttempts()
	imetrics.Monitor().Connected.WithLabelValues(m.cfg.ChainName).Set(1)
	m.log.Info("subscribed to new heads", "chain", m.cfg.ChainName, "endpoint", ep.Masked())

	for {
		select {
		case <-ctx.Done():
			sub.Unsubscribe()
			client.Close()
			return nil

		case err := <-sub.Err():
			sub.Unsubscribe()
			client.Close()
			imetrics.Monitor().Connected.WithLabelValues(m.cfg.ChainName).Set(0)
			if ctx.Err() != nil {
				return nil
			}
			m.providers.MarkUnhealthy(ep)
			m.publishError("websocket connection lost", err, false)
			return apperr.NewBlockMonitorErr("websocket connection lost", err)

		case header, ok := <-headers:
			if !ok {
				sub.Unsubscribe()
				client.Close()
				imetrics.Monitor().Connected.WithLabelValues(m.cfg.ChainName).Set(0)
				if ctx.Err() != nil {
					return nil
				}
				return apperr.NewBlockMonitorErr("header channel closed", nil)
			}
			m.emitIfNew(header.Number.Uint64(), "subscribe")
		}
	}
}

// pollBlocks is the HTTP fallback: on a timer sourced from the adaptive
// poller (or the configured default), fetch the latest block number through
// the manager's retry wrapper and emit when it advances. Poll errors are
// converted into non-fatal error events; the loop never escalates on its own.
func (m *ChainMonitor) pollBlocks(ctx context.Context) {
	m.setState(StatePolling)
	imetrics.Monitor().Connected.WithLabelValues(m.cfg.ChainName).Set(1)

	for {
		timer := time.NewTimer(m.pollInterval())
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		var number uint64
		err := m.providers.WithRetry(ctx, func(opCtx context.Context, ep entity.Endpoint) error {
			n, err := m.blockNumber(opCtx, ep.URL)
			if err != nil {
				return err
			}
			number = n
			return nil
		})
		if m.intervals != nil {
			m.intervals.RecordRPCCall()
			m.intervals.MarkPollComplete()
		}
		imetrics.Monitor().PollCyclesTotal.WithLabelValues(m.cfg.ChainName).Inc()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.publishError("poll cycle failed", err, false)
			continue
		}
		m.emitIfNew(number, "poll")
	}
}

func (m *ChainMonitor) pollInterval() time.Duration {
	if m.intervals != nil {
		return m.intervals.Interval(m.cfg.ChainID)
	}
	interval := millisecondsOrDefault(m.cfg.DefaultPollIntervalMS, defaultPollInterval)
	if floor := m.chain.MinPollInterval(); interval < floor {
		interval = floor
	}
	return interval
}

// handleReconnect runs one backoff step of the reconnection state machine.
// It returns false when the attempt ceiling is reached (fatal; the owning
// process must restart the monitor) or the context ended, true when the
// caller should try connecting again.
func (m *ChainMonitor) handleReconnect(ctx context.Context) bool {
	m.mu.Lock()
	if m.reconnectAttempts >= m.maxReconnects() {
		m.mu.Unlock()
		imetrics.Monitor().FatalTotal.WithLabelValues(m.cfg.ChainName).Inc()
		m.log.Error("reconnect attempts exhausted; halting monitor", "chain", m.cfg.ChainName, "attempts", m.maxReconnects())
		m.publishError("reconnect attempts exhausted", nil, true)
		return false
	}
	m.reconnectAttempts++
	attempt := m.reconnectAttempts
	m.state = StateReconnecting
	m.mu.Unlock()

	delay := m.backoffDelay(attempt)
	imetrics.Monitor().ReconnectsTotal.WithLabelValues(m.cfg.ChainName, "connection").Inc()
	m.log.Warn("reconnecting after backoff", "chain", m.cfg.ChainName, "attempt", attempt, "delay", delay)

	timer := time.NewTimer(delay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C:
		return true
	}
}

func (m *ChainMonitor) backoffDelay(attempt int) time.Duration {
	base := millisecondsOrDefault(m.cfg.ReconnectBaseDelayMS, defaultReconnectBase)
	cap := millisecondsOrDefault(m.cfg.ReconnectMaxDelayMS, defaultReconnectCap)
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}

func (m *ChainMonitor) maxReconnects() int {
	if m.cfg.MaxReconnectAttempts > 0 {
		return m.cfg.MaxReconnectAttempts
	}
	return defaultMaxReconnects
}

func (m *ChainMonitor) resetReconnectAttempts() {
	m.mu.Lock()
	m.reconnectAttempts = 0
	m.mu.Unlock()
}

func (m *ChainMonitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// emitIfNew publishes a block event only when the number strictly advances.
// Duplicates and regressions some providers deliver are dropped silently;
// they are replays, not errors.
func (m *ChainMonitor) emitIfNew(number uint64, mode string) {
	m.mu.Lock()
	if m.blockSeen && number <= m.lastBlock {
		m.mu.Unlock()
		imetrics.Monitor().DuplicatesTotal.WithLabelValues(m.cfg.ChainName).Inc()
		return
	}
	m.lastBlock = number
	m.blockSeen = true
	m.mu.Unlock()

	imetrics.Monitor().BlocksTotal.WithLabelValues(m.cfg.ChainName, mode).Inc()
	m.log.Trace("new block", "chain", m.cfg.ChainName, "number", number, "mode", mode)
	if m.bus != nil {
		m.bus.PublishNewBlock(entity.BlockEvent{
			ChainID:   m.cfg.ChainID,
			Number:    number,
			Timestamp: time.Now(),
		})
	}
}

func (m *ChainMonitor) publishError(msg string, cause error, fatal bool) {
	detail := msg
	if cause != nil {
		detail = msg + ": " + cause.Error()
	}
	if m.bus != nil {
		m.bus.PublishChainError(event.ChainError{ChainID: m.cfg.ChainID, Message: detail, Fatal: fatal})
	}
	imetrics.App().ErrorsTotal.WithLabelValues(imetrics.ComponentMonitor, boolReason(fatal)).Inc()
}

func boolReason(fatal bool) string {
	if fatal {
		return "fatal"
	}
	return "transient"
}

func millisecondsOrDefault(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}
