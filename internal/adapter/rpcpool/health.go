package rpcpool

import (
	"time"

	"github.com/blockpulse/chainwatch-rpc-service/internal/core/entity"
)

// healthRecord is the per-endpoint mutable health state. Access is serialized
// by the Manager mutex.
type healthRecord struct {
	healthy             bool
	consecutiveFailures int
	lastCheckedAt       time.Time
	unhealthySince      time.Time
}

type healthRegistry struct {
	threshold int
	records   map[string]*healthRecord
}

func newHealthRegistry(urls []string, threshold int) *healthRegistry {
	r := &healthRegistry{
		threshold: threshold,
		records:   make(map[string]*healthRecord, len(urls)),
	}
	for _, u := range urls {
		r.records[u] = &healthRecord{healthy: true}
	}
	return r
}

func (r *healthRegistry) record(url string) *healthRecord {
	rec, ok := r.records[url]
	if !ok {
		rec = &healthRecord{healthy: true}
		r.records[url] = rec
	}
	return rec
}

// markFailure bumps the consecutive-failure counter and reports whether this
// call latched the endpoint unhealthy (one-way until a successful probe or an
// emergency reset).
func (r *healthRegistry) markFailure(url string, now time.Time) bool {
	rec := r.record(url)
	rec.consecutiveFailures++
	rec.lastCheckedAt = now
	if rec.healthy && rec.consecutiveFailures >= r.threshold {
		rec.healthy = false
		rec.unhealthySince = now
		return true
	}
	return false
}

func (r *healthRegistry) markSuccess(url string, now time.Time) {
	rec := r.record(url)
	rec.healthy = true
	rec.consecutiveFailures = 0
	rec.lastCheckedAt = now
	rec.unhealthySince = time.Time{}
}

func (r *healthRegistry) isHealthy(url string) bool {
	rec, ok := r.records[url]
	if !ok {
		return true
	}
	return rec.healthy
}

// recoverable returns unhealthy URLs whose outage is older than minRecovery,
// the candidates for a self-heal probe.
func (r *healthRegistry) recoverable(now time.Time, minRecovery time.Duration) []string {
	var urls []string
	for url, rec := range r.records {
		if rec.healthy {
			continue
		}
		if now.Sub(rec.unhealthySince) >= minRecovery {
			urls = append(urls, url)
		}
	}
	return urls
}

func (r *healthRegistry) unhealthyCount() int {
	n := 0
	for _, rec := range r.records {
		if !rec.healthy {
			n++
		}
	}
	return n
}

// resetAll marks every endpoint healthy again. Used by the emergency reset
// when the whole pool has latched unhealthy.
func (r *healthRegistry) resetAll(now time.Time) {
	for _, rec := range r.records {
		rec.healthy = true
		rec.consecutiveFailures = 0
		rec.lastCheckedAt = now
		rec.unhealthySince = time.Time{}
	}
}

func (r *healthRegistry) snapshot() map[string]entity.EndpointHealth {
	out := make(map[string]entity.EndpointHealth, len(r.records))
	for url, rec := range r.records {
		out[entity.MaskURL(url)] = entity.EndpointHealth{
			Healthy:             rec.healthy,
			ConsecutiveFailures: rec.consecutiveFailures,
			LastCheckedAt:       rec.lastCheckedAt,
			UnhealthySince:      rec.unhealthySince,
		}
	}
	return out
}
