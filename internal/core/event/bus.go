package event

import (
	"sync"
	"time"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
	"github.com/blockpulse/chainwatch-rpc-service/internal/pkg/applog"
)

// ChainError reports a monitor-level failure. Fatal means the chain's monitor
// has halted and the owning process must restart it.
type ChainError struct {
	ChainID uint64
	Message string
	Fatal   bool
}

// EndpointUnhealthy reports an endpoint crossing the failure threshold. The
// endpoint identity is already masked.
type EndpointUnhealthy struct {
	Endpoint string
}

// IntervalChanged reports a material recomputation of a chain's polling interval.
type IntervalChanged struct {
	ChainID uint64
	Old     time.Duration
	New     time.Duration
	Reason  string
}

// HighIntensity reports a forced switch to aggressive polling.
type HighIntensity struct {
	Reason string
}

// Unsubscribe removes a previously registered handler.
type Unsubscribe func()

// Bus is an explicit typed publish/subscribe registry. Delivery is synchronous
// and in subscription order; there is no queuing. A panicking handler is
// recovered and logged so one subscriber cannot take down an unrelated
// chain's monitor goroutine.
type Bus struct {
	log applog.AppLogger

	mu                sync.RWMutex
	nextID            int
	newBlock          map[int]func(entity.BlockEvent)
	chainError        map[int]func(ChainError)
	endpointUnhealthy map[int]func(EndpointUnhealthy)
	intervalChanged   map[int]func(IntervalChanged)
	highIntensity     map[int]func(HighIntensity)
	order             []int
}

func NewBus(log applog.AppLogger) *Bus {
	return &Bus{
		log:               log,
		newBlock:          make(map[int]func(entity.BlockEvent)),
		chainError:        make(map[int]func(ChainError)),
		endpointUnhealthy: make(map[int]func(EndpointUnhealthy)),
		intervalChanged:   make(map[int]func(IntervalChanged)),
		highIntensity:     make(map[int]func(HighIntensity)),
	}
}

func (b *Bus) register() int {
	b.nextID++
	id := b.nextID
	b.order = append(b.order, id)
	return id
}

func (b *Bus) unregister(id int) {
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
}

// OnNewBlock registers a handler for normalized new-block events.
func (b *Bus) OnNewBlock(fn func(entity.BlockEvent)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.register()
	b.newBlock[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.newBlock, id)
		b.unregister(id)
	}
}

// OnChainError registers a handler for monitor error events.
func (b *Bus) OnChainError(fn func(ChainError)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.register()
	b.chainError[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.chainError, id)
		b.unregister(id)
	}
}

// OnEndpointUnhealthy registers a handler for endpoint health latch events.
func (b *Bus) OnEndpointUnhealthy(fn func(EndpointUnhealthy)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.register()
	b.endpointUnhealthy[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.endpointUnhealthy, id)
		b.unregister(id)
	}
}

// OnIntervalChanged registers a handler for poller interval recomputations.
func (b *Bus) OnIntervalChanged(fn func(IntervalChanged)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.register()
	b.intervalChanged[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.intervalChanged, id)
		b.unregister(id)
	}
}

// OnHighIntensity registers a handler for forced aggressive-mode events.
func (b *Bus) OnHighIntensity(fn func(HighIntensity)) Unsubscribe {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.register()
	b.highIntensity[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.highIntensity, id)
		b.unregister(id)
	}
}

// PublishNewBlock delivers a block event to all current subscribers, in order.
func (b *Bus) PublishNewBlock(ev entity.BlockEvent) {
	b.mu.RLock()
	ids := append([]int(nil), b.order...)
	subs := b.newBlock
	fns := make([]func(entity.BlockEvent), 0, len(subs))
	for _, id := range ids {
		if fn, ok := subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		b.deliver(func() { fn(ev) })
	}
}

// PublishChainError delivers a monitor error event to all current subscribers.
func (b *Bus) PublishChainError(ev ChainError) {
	b.mu.RLock()
	ids := append([]int(nil), b.order...)
	subs := b.chainError
	fns := make([]func(ChainError), 0, len(subs))
	for _, id := range ids {
		if fn, ok := subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		b.deliver(func() { fn(ev) })
	}
}

// PublishEndpointUnhealthy delivers an endpoint health event to all subscribers.
func (b *Bus) PublishEndpointUnhealthy(ev EndpointUnhealthy) {
	b.mu.RLock()
	ids := append([]int(nil), b.order...)
	subs := b.endpointUnhealthy
	fns := make([]func(EndpointUnhealthy), 0, len(subs))
	for _, id := range ids {
		if fn, ok := subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		b.deliver(func() { fn(ev) })
	}
}

// PublishIntervalChanged delivers an interval recomputation event to all subscribers.
func (b *Bus) PublishIntervalChanged(ev IntervalChanged) {
	b.mu.RLock()
	ids := append([]int(nil), b.order...)
	subs := b.intervalChanged
	fns := make([]func(IntervalChanged), 0, len(subs))
	for _, id := range ids {
		if fn, ok := subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		b.deliver(func() { fn(ev) })
	}
}

// PublishHighIntensity delivers a forced aggressive-mode event to all subscribers.
func (b *Bus) PublishHighIntensity(ev HighIntensity) {
	b.mu.RLock()
	ids := append([]int(nil), b.order...)
	subs := b.highIntensity
	fns := make([]func(HighIntensity), 0, len(subs))
	for _, id := range ids {
		if fn, ok := subs[id]; ok {
			fns = append(fns, fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range fns {
		b.deliver(func() { fn(ev) })
	}
}

func (b *Bus) deliver(fn func()) {
	defer func() {
		if r := recover(); r != nil && b.log != nil {
			b.log.Error("event subscriber panicked", "panic", r)
		}
	}()
	fn()
}
