package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRealDryRunNeverSpawnsProcess(t *testing.T) {
	r := NewReal(true, nil)
	res, err := r.Run(context.Background(), time.Second, true, "ip", "link", "add", "foo")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "dry-run", res.Stdout)
}

func TestRealDryRunAddrShowReturnsFakeLease(t *testing.T) {
	r := NewReal(true, nil)
	res, err := r.Run(context.Background(), time.Second, false, "ip", "-4", "-o", "addr", "show", "eth1.30")
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "192.168.0.100/24")
	assert.Contains(t, res.Stdout, "eth1.30")
}

func TestRealMustSucceedWrapsFailure(t *testing.T) {
	r := NewReal(false, nil)
	_, err := r.Run(context.Background(), time.Second, true, "false")
	require.Error(t, err)
}

func TestRealMustNotSucceedSwallowsFailure(t *testing.T) {
	r := NewReal(false, nil)
	res, err := r.Run(context.Background(), time.Second, false, "false")
	require.Error(t, err)
	assert.NotEqual(t, 0, res.ExitCode)
}

func TestRealSuccess(t *testing.T) {
	r := NewReal(false, nil)
	res, err := r.Run(context.Background(), time.Second, true, "true")
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
}

func TestRealTimeout(t *testing.T) {
	r := NewReal(false, nil)
	_, err := r.Run(context.Background(), 10*time.Millisecond, true, "sleep", "5")
	require.Error(t, err)
}

func TestRealEmptyArgv(t *testing.T) {
	r := NewReal(false, nil)
	_, err := r.Run(context.Background(), time.Second, true)
	require.Error(t, err)
}
