package infra

import (
	"sync"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	"github.com/blockpulse/chainwatch-rpc-service/internal/adapter/rpcpool"
)

type noopLogger struct{}

func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Trace(msg string, args ...any) {}
func (noopLogger) Fatal(msg string, args ...any) {}

// The metric families are process-wide singletons that bind to whichever
// registerer is current on first touch, so InitMetrics must front-run every
// adapter constructor for the families to show up on the served registry.
func TestPoolMetricsLandOnServedRegistry(t *testing.T) {
	InitMetrics(nil)

	_, err := rpcpool.NewManager(noopLogger{}, nil, &sync.WaitGroup{}, "metrics-order", rpcpool.Config{
		HTTPURLs: []string{"https://rpc-a.example/v2/key"},
	}, validator.New())
	require.NoError(t, err)

	families, err := promRegistry.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "rpc_pool_endpoints" {
			found = true
			break
		}
	}
	require.True(t, found, "rpc_pool_endpoints missing from the served registry")
}
