package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Trace(msg string, args ...any) {}
func (noopLogger) Fatal(msg string, args ...any) {}

func TestDeliveryFollowsSubscriptionOrder(t *testing.T) {
	t.Parallel()

	bus := NewBus(noopLogger{})
	var order []string
	bus.OnNewBlock(func(entity.BlockEvent) { order = append(order, "first") })
	bus.OnNewBlock(func(entity.BlockEvent) { order = append(order, "second") })
	bus.OnNewBlock(func(entity.BlockEvent) { order = append(order, "third") })

	bus.PublishNewBlock(entity.BlockEvent{ChainID: 1, Number: 100})
	require.Equal(t, []string{"first", "second", "third"}, order)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	t.Parallel()

	bus := NewBus(noopLogger{})
	var kept, dropped int
	bus.OnChainError(func(ChainError) { kept++ })
	unsub := bus.OnChainError(func(ChainError) { dropped++ })

	bus.PublishChainError(ChainError{ChainID: 1, Message: "boom"})
	unsub()
	bus.PublishChainError(ChainError{ChainID: 1, Message: "boom again"})

	require.Equal(t, 2, kept)
	require.Equal(t, 1, dropped)
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	t.Parallel()

	bus := NewBus(noopLogger{})
	var delivered int
	bus.OnHighIntensity(func(HighIntensity) { panic("subscriber bug") })
	bus.OnHighIntensity(func(HighIntensity) { delivered++ })

	require.NotPanics(t, func() {
		bus.PublishHighIntensity(HighIntensity{Reason: "opportunity_burst"})
	})
	require.Equal(t, 1, delivered)
}

func TestEventKindsAreIsolated(t *testing.T) {
	t.Parallel()

	bus := NewBus(noopLogger{})
	var blocks, intervals int
	bus.OnNewBlock(func(entity.BlockEvent) { blocks++ })
	bus.OnIntervalChanged(func(IntervalChanged) { intervals++ })

	bus.PublishNewBlock(entity.BlockEvent{ChainID: 1, Number: 1, Timestamp: time.Now()})
	bus.PublishIntervalChanged(IntervalChanged{ChainID: 1, Old: time.Second, New: 2 * time.Second, Reason: "volatility_low"})

	require.Equal(t, 1, blocks)
	require.Equal(t, 1, intervals)
}

func TestPublishWithoutSubscribersIsSafe(t *testing.T) {
	t.Parallel()

	bus := NewBus(noopLogger{})
	require.NotPanics(t, func() {
		bus.PublishEndpointUnhealthy(EndpointUnhealthy{Endpoint: "https://rpc.example/***"})
	})
}
