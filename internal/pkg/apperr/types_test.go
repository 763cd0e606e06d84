package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorFormatIncludesCodeAndCause(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection refused")
	err := NewRpcPoolErr("probe failed", cause)

	require.Equal(t, "[RPC_POOL_ERROR] probe failed: connection refused", err.Error())
	require.Equal(t, "RPC_POOL_ERROR", err.Code())
	require.Equal(t, "probe failed", err.Message())
	require.ErrorIs(t, err, cause)
}

func TestErrorFormatWithoutCause(t *testing.T) {
	t.Parallel()

	err := NewBlockMonitorErr("monitor already running", nil)
	require.Equal(t, "[BLOCK_MONITOR_ERROR] monitor already running", err.Error())
	require.NoError(t, err.CauseError())
}
