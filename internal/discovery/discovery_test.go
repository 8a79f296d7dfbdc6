package discovery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chaosbot.dev/chaos-bot/internal/executor"
)

func TestGatewayToSubnet(t *testing.T) {
	subnet, err := GatewayToSubnet("172.16.40.1")
	require.NoError(t, err)
	assert.Equal(t, "172.16.40.0/24", subnet)
}

func TestGatewayToSubnetInvalid(t *testing.T) {
	_, err := GatewayToSubnet("not-an-ip")
	require.Error(t, err)
}

func TestDiscoverDryRunReturnsEmpty(t *testing.T) {
	hosts := Discover(context.Background(), &executor.Mock{}, "10.0.0.0/24", "eth1.10", "10.0.0.5", nil, true, nil)
	assert.Empty(t, hosts)
}

func TestDiscoverParsesScanReportLines(t *testing.T) {
	m := &executor.Mock{}
	stdout := "Starting Nmap\nNmap scan report for 10.0.0.10\nNmap scan report for host.local (10.0.0.11)\nNmap scan report for 10.0.0.5\n"
	m.On("Run", mock.Anything, false, mock.Anything).
		Return(executor.Result{ExitCode: 0, Stdout: stdout}, nil)

	hosts := Discover(context.Background(), m, "10.0.0.0/24", "eth1.10", "10.0.0.5", nil, false, nil)
	assert.ElementsMatch(t, []string{"10.0.0.10", "10.0.0.11"}, hosts)
}

func TestDiscoverExcludesConfiguredHosts(t *testing.T) {
	m := &executor.Mock{}
	stdout := "Nmap scan report for 10.0.0.10\nNmap scan report for 10.0.0.1\n"
	m.On("Run", mock.Anything, false, mock.Anything).
		Return(executor.Result{ExitCode: 0, Stdout: stdout}, nil)

	hosts := Discover(context.Background(), m, "10.0.0.0/24", "eth1.10", "10.0.0.5", []string{"10.0.0.1"}, false, nil)
	assert.Equal(t, []string{"10.0.0.10"}, hosts)
}
