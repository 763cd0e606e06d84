package rpcpool

import (
	"context"
	"time"

	imetrics "github.com/blockpulse/chainwatch-rpc-service/internal/pkg/metrics"
)

// StartSelfHealing launches the background recovery loop. The loop probes
// unhealthy endpoints whose outage is older than the minimum recovery time
// and restores the ones that answer. Idempotent; Stop cancels the loop.
func (m *Manager) StartSelfHealing() {
	m.healMu.Lock()
	defer m.healMu.Unlock()
	if m.healCancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.healCancel = cancel

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.selfHealInterval())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.ForceHealAll(ctx)
			}
		}
	}()
}

// Stop cancels the self-healing loop. Idempotent.
func (m *Manager) Stop() {
	m.healMu.Lock()
	defer m.healMu.Unlock()
	if m.healCancel != nil {
		m.healCancel()
		m.healCancel = nil
	}
}

// ForceHealAll runs one synchronous self-heal sweep: every unhealthy endpoint
// past the minimum recovery time gets a lightweight probe. A successful probe
// clears the unhealthy latch; a failed probe leaves the record untouched for
// the next cycle.
func (m *Manager) ForceHealAll(ctx context.Context) {
	m.mu.Lock()
	candidates := m.health.recoverable(m.now(), m.minRecoveryTime())
	m.mu.Unlock()

	for _, url := range candidates {
		select {
		case <-ctx.Done():
			return
		default:
		}

		probeCtx, cancel := context.WithTimeout(ctx, m.requestTO)
		err := m.probe(probeCtx, url)
		cancel()
		if err != nil {
			m.log.Debug("self-heal probe failed", "pool", m.name, "endpoint", maskedLog(url), "err", err)
			continue
		}

		m.mu.Lock()
		m.health.markSuccess(url, m.now())
		unhealthy := m.health.unhealthyCount()
		m.mu.Unlock()

		imetrics.Pool().HealsTotal.WithLabelValues(m.name).Inc()
		imetrics.Pool().UnhealthyEndpoints.WithLabelValues(m.name).Set(float64(unhealthy))
		m.log.Info("endpoint recovered by self-heal probe", "pool", m.name, "endpoint", maskedLog(url))
	}
}
