package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/event"
	"github.com/blockpulse/chainwatch-rpc-service/internal/core/port"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Trace(msg string, args ...any) {}
func (noopLogger) Fatal(msg string, args ...any) {}

type fakeProviders struct {
	httpErr error
	wsOK    bool
}

func (f *fakeProviders) HTTPEndpoint() (entity.Endpoint, error) {
	if f.httpErr != nil {
		return entity.Endpoint{}, f.httpErr
	}
	return entity.Endpoint{URL: "https://rpc.example/key", Kind: entity.EndpointHTTP}, nil
}

func (f *fakeProviders) WSEndpoint() (entity.Endpoint, bool) {
	if !f.wsOK {
		return entity.Endpoint{}, false
	}
	return entity.Endpoint{URL: "wss://rpc.example/key", Kind: entity.EndpointWebSocket}, true
}

func (f *fakeProviders) CanMakeRequest(entity.Endpoint) bool { return true }
func (f *fakeProviders) MarkHealthy(entity.Endpoint)         {}
func (f *fakeProviders) MarkUnhealthy(entity.Endpoint)       {}

func (f *fakeProviders) WithRetry(ctx context.Context, op port.EndpointOperation) error {
	ep, err := f.HTTPEndpoint()
	if err != nil {
		return err
	}
	return op(ctx, ep)
}

func (f *fakeProviders) GasPrice(context.Context) (*big.Int, error) { return big.NewInt(1), nil }
func (f *fakeProviders) ForceHealAll(context.Context)               {}

type fakeIntervals struct {
	interval time.Duration
}

func (f *fakeIntervals) Interval(uint64) time.Duration { return f.interval }
func (f *fakeIntervals) ShouldPollNow(uint64) bool     { return true }
func (f *fakeIntervals) MarkPollComplete()             {}
func (f *fakeIntervals) RecordRPCCall()                {}

type fakeSub struct {
	errs chan error
}

func (s *fakeSub) Unsubscribe()      {}
func (s *fakeSub) Err() <-chan error { return s.errs }

type fakeWSClient struct {
	subscribeFn func(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

func (c *fakeWSClient) SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
	return c.subscribeFn(ctx, ch)
}
func (c *fakeWSClient) Close() {}

type blockRecorder struct {
	mu     sync.Mutex
	blocks []uint64
}

func (r *blockRecorder) record(ev entity.BlockEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blocks = append(r.blocks, ev.Number)
}

func (r *blockRecorder) snapshot() []uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint64(nil), r.blocks...)
}

func newTestMonitor(t *testing.T, bus *event.Bus, providers port.ProviderSource, intervals port.IntervalSource, cfg Config) *ChainMonitor {
	t.Helper()
	m, err := NewChainMonitor(noopLogger{}, bus, &sync.WaitGroup{}, providers, intervals, cfg, validator.New())
	require.NoError(t, err)
	return m
}

func header(n int64) *types.Header {
	return &types.Header{Number: big.NewInt(n), Difficulty: big.NewInt(0)}
}

func TestSubscriptionDropsDuplicatesAndRegressions(t *testing.T) {
	t.Parallel()

	rec := &blockRecorder{}
	bus := event.NewBus(noopLogger{})
	bus.OnNewBlock(rec.record)

	m := newTestMonitor(t, bus, &fakeProviders{wsOK: true}, nil, Config{ChainID: 1, ChainName: "ethereum"})

	headerCh := make(chan chan<- *types.Header, 1)
	sub := &fakeSub{errs: make(chan error)}
	m.newWSClient = func(ctx context.Context, url string) (wsClient, error) {
		return &fakeWSClient{subscribeFn: func(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
			headerCh <- ch
			return sub, nil
		}}, nil
	}

	require.NoError(t, m.Start())
	defer m.Stop()

	var ch chan<- *types.Header
	select {
	case ch = <-headerCh:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never established")
	}

	for _, n := range []int64{5, 5, 4, 6} {
		ch <- header(n)
	}

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []uint64{5, 6}, rec.snapshot())
	require.Equal(t, StateSubscribed, m.Status().State)
	require.Equal(t, uint64(6), m.Status().LastBlock)
}

func TestBlockZeroIsDedupedToo(t *testing.T) {
	t.Parallel()

	rec := &blockRecorder{}
	bus := event.NewBus(noopLogger{})
	bus.OnNewBlock(rec.record)

	m := newTestMonitor(t, bus, &fakeProviders{wsOK: true}, nil, Config{ChainID: 1, ChainName: "ethereum"})

	headerCh := make(chan chan<- *types.Header, 1)
	sub := &fakeSub{errs: make(chan error)}
	m.newWSClient = func(ctx context.Context, url string) (wsClient, error) {
		return &fakeWSClient{subscribeFn: func(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
			headerCh <- ch
			return sub, nil
		}}, nil
	}

	require.NoError(t, m.Start())
	defer m.Stop()

	var ch chan<- *types.Header
	select {
	case ch = <-headerCh:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never established")
	}

	// Genesis replays must dedupe like any other block.
	for _, n := range []int64{0, 0, 1} {
		ch <- header(n)
	}

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 2
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []uint64{0, 1}, rec.snapshot())
}

func TestNoWebSocketFallsBackToPolling(t *testing.T) {
	t.Parallel()

	rec := &blockRecorder{}
	bus := event.NewBus(noopLogger{})
	bus.OnNewBlock(rec.record)

	m := newTestMonitor(t, bus, &fakeProviders{wsOK: false}, &fakeIntervals{interval: 5 * time.Millisecond}, Config{ChainID: 1, ChainName: "ethereum"})

	var calls atomic.Int64
	m.blockNumber = func(ctx context.Context, url string) (uint64, error) {
		seq := []uint64{1, 2, 2, 3}
		n := calls.Add(1)
		if int(n) > len(seq) {
			return seq[len(seq)-1], nil
		}
		return seq[n-1], nil
	}

	require.NoError(t, m.Start())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) == 3
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []uint64{1, 2, 3}, rec.snapshot())
	require.Equal(t, StatePolling, m.Status().State)
}

func TestSubscribeFailureDowngradesToPolling(t *testing.T) {
	t.Parallel()

	rec := &blockRecorder{}
	bus := event.NewBus(noopLogger{})
	bus.OnNewBlock(rec.record)

	m := newTestMonitor(t, bus, &fakeProviders{wsOK: true}, &fakeIntervals{interval: 5 * time.Millisecond}, Config{ChainID: 1, ChainName: "ethereum"})
	m.newWSClient = func(ctx context.Context, url string) (wsClient, error) {
		return nil, errors.New("handshake rejected")
	}

	var next atomic.Uint64
	m.blockNumber = func(ctx context.Context, url string) (uint64, error) {
		return next.Add(1), nil
	}

	require.NoError(t, m.Start())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return len(rec.snapshot()) >= 2 && m.Status().State == StatePolling
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPollErrorsAreNonFatal(t *testing.T) {
	t.Parallel()

	rec := &blockRecorder{}
	var chainErrs, fatals atomic.Int64
	bus := event.NewBus(noopLogger{})
	bus.OnNewBlock(rec.record)
	bus.OnChainError(func(ev event.ChainError) {
		if ev.Fatal {
			fatals.Add(1)
		}
		chainErrs.Add(1)
	})

	m := newTestMonitor(t, bus, &fakeProviders{wsOK: false}, &fakeIntervals{interval: 5 * time.Millisecond}, Config{ChainID: 1, ChainName: "ethereum"})

	var calls atomic.Int64
	m.blockNumber = func(ctx context.Context, url string) (uint64, error) {
		if calls.Add(1) == 1 {
			return 0, errors.New("rpc overloaded")
		}
		return 7, nil
	}

	require.NoError(t, m.Start())
	defer m.Stop()

	require.Eventually(t, func() bool {
		return chainErrs.Load() >= 1 && len(rec.snapshot()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, []uint64{7}, rec.snapshot())
	require.Zero(t, fatals.Load())
}

func TestReconnectExhaustionIsFatal(t *testing.T) {
	t.Parallel()

	var fatals atomic.Int64
	bus := event.NewBus(noopLogger{})
	bus.OnChainError(func(ev event.ChainError) {
		if ev.Fatal {
			fatals.Add(1)
		}
	})

	m := newTestMonitor(t, bus, &fakeProviders{wsOK: true}, nil, Config{
		ChainID:              1,
		ChainName:            "ethereum",
		MaxReconnectAttempts: 2,
		ReconnectBaseDelayMS: 1,
	})

	sub := &fakeSub{errs: make(chan error, 1)}
	var dials atomic.Int64
	m.newWSClient = func(ctx context.Context, url string) (wsClient, error) {
		if dials.Add(1) > 1 {
			return nil, errors.New("connection refused")
		}
		return &fakeWSClient{subscribeFn: func(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
			return sub, nil
		}}, nil
	}

	require.NoError(t, m.Start())
	sub.errs <- errors.New("read: connection reset")

	require.Eventually(t, func() bool {
		return fatals.Load() == 1 && m.Status().State == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)

	// Exhaustion halts the monitor: both reconnect attempts dialed, no more.
	require.Equal(t, int64(3), dials.Load())
}

func TestStopPreventsReconnect(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, nil, &fakeProviders{wsOK: true}, nil, Config{ChainID: 1, ChainName: "ethereum", ReconnectBaseDelayMS: 1})

	sub := &fakeSub{errs: make(chan error, 1)}
	var dials atomic.Int64
	subscribed := make(chan struct{}, 1)
	m.newWSClient = func(ctx context.Context, url string) (wsClient, error) {
		dials.Add(1)
		return &fakeWSClient{subscribeFn: func(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error) {
			subscribed <- struct{}{}
			return sub, nil
		}}, nil
	}

	require.NoError(t, m.Start())
	select {
	case <-subscribed:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription never established")
	}

	m.Stop()
	m.Stop()

	require.Eventually(t, func() bool {
		return m.Status().State == StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, int64(1), dials.Load())
}

func TestStartFailsFastWithoutEndpoints(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, nil, &fakeProviders{httpErr: errors.New("pool empty"), wsOK: false}, nil, Config{ChainID: 1, ChainName: "ethereum"})
	require.Error(t, m.Start())
}

func TestStartTwiceErrs(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, nil, &fakeProviders{wsOK: false}, &fakeIntervals{interval: time.Hour}, Config{ChainID: 1, ChainName: "ethereum"})
	m.blockNumber = func(ctx context.Context, url string) (uint64, error) { return 1, nil }

	require.NoError(t, m.Start())
	defer m.Stop()
	require.Error(t, m.Start())
}

func TestBackoffDelayDoublesUpToCap(t *testing.T) {
	t.Parallel()

	m := newTestMonitor(t, nil, &fakeProviders{wsOK: false}, nil, Config{
		ChainID:              1,
		ChainName:            "ethereum",
		ReconnectBaseDelayMS: 1000,
		ReconnectMaxDelayMS:  30000,
	})

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{10, 30 * time.Second},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, m.backoffDelay(tc.attempt), "attempt %d", tc.attempt)
	}
}

func TestRejectsMissingChainIdentity(t *testing.T) {
	t.Parallel()

	_, err := NewChainMonitor(noopLogger{}, nil, nil, &fakeProviders{}, nil, Config{}, validator.New())
	require.Error(t, err)
}
