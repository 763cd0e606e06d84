package entity

import (
	"net/url"
	"time"
)

// EndpointKind distinguishes the two transport pools an endpoint can belong to.
type EndpointKind string

const (
	EndpointHTTP      EndpointKind = "http"
	EndpointWebSocket EndpointKind = "ws"
)

// PriorityClass groups providers by expected quality of service. Premium
// endpoints are typically paid, rate-generous providers; public endpoints are
// free community gateways.
type PriorityClass string

const (
	PriorityPremium PriorityClass = "premium"
	PriorityPublic  PriorityClass = "public"
)

// Endpoint identifies one configured RPC provider instance. Endpoints are
// created once from configuration and live for the whole process; only their
// health record changes over time.
type Endpoint struct {
	// URL carries provider credentials in path or query, so it must never be
	// logged raw; use Masked instead.
	URL      string
	Kind     EndpointKind
	Priority PriorityClass
	// Index is the position inside its pool, used for round-robin selection.
	Index int
}

// Masked renders the endpoint URL with host preserved and any path-embedded
// API key or query credential redacted, safe for logs and events.
func (e Endpoint) Masked() string {
	return MaskURL(e.URL)
}

// MaskURL redacts everything past the host of a provider URL. Provider API
// keys appear either as path segments (e.g. /v2/<key>) or query parameters,
// so both are replaced wholesale.
func MaskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<invalid-url>"
	}
	masked := u.Scheme + "://" + u.Host
	if u.Path != "" && u.Path != "/" {
		masked += "/***"
	}
	if u.RawQuery != "" {
		masked += "?***"
	}
	return masked
}

// EndpointHealth is the mutable health record kept per endpoint URL. It is
// owned by the rpcpool manager; callers read snapshots only.
type EndpointHealth struct {
	Healthy             bool
	ConsecutiveFailures int
	LastCheckedAt       time.Time
	// UnhealthySince is zero while the endpoint is healthy.
	UnhealthySince time.Time
}
