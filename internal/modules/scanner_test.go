package modules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/executor"
)

func TestPickScanType(t *testing.T) {
	assert.Equal(t, "syn", pickScanType("low"))
	assert.Contains(t, []string{"syn", "service", "aggressive", "arp"}, pickScanType("high"))
	assert.Contains(t, []string{"syn", "service", "os"}, pickScanType("medium"))
	assert.Contains(t, []string{"syn", "service", "os"}, pickScanType(""))
}

func TestScannerRunDryRun(t *testing.T) {
	s := NewScanner()
	cap := &Capability{
		SourceIP:  "10.0.1.50",
		Interface: "eth0.10",
		Config:    &config.Config{Modules: map[string]config.ModuleConfig{}},
		DryRun:    true,
	}

	report := s.Run(context.Background(), cap, []string{"10.0.1.1", "10.0.1.2"})
	assert.Equal(t, StatusComplete, report.Status)
	assert.Len(t, report.Details, 2)
	for _, d := range report.Details {
		assert.Equal(t, "dry-run", d["status"])
	}
}

func TestScannerRunInvokesExecutor(t *testing.T) {
	mockExec := new(executor.Mock)
	mockExec.On("Run", mock.Anything, false, mock.Anything).Return(
		executor.Result{ExitCode: 0, Stdout: "Host is up (0.002s latency).\n22/tcp open ssh\n"}, nil,
	)

	s := NewScanner()
	cap := &Capability{
		SourceIP:  "10.0.1.50",
		Interface: "eth0.10",
		Config: &config.Config{Modules: map[string]config.ModuleConfig{
			"net_scanner": {Enabled: true, Extra: map[string]any{"intensity": "low"}},
		}},
		Executor: mockExec,
		DryRun:   false,
	}

	report := s.Run(context.Background(), cap, []string{"10.0.1.1"})
	assert.Equal(t, StatusComplete, report.Status)
	assert.Len(t, report.Details, 1)
	assert.Equal(t, 1, report.Details[0]["hosts_up"])
	mockExec.AssertExpectations(t)
}

func TestRandDurationBounds(t *testing.T) {
	for i := 0; i < 50; i++ {
		d := randDuration(0.5, 3.0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 3*time.Second)
	}
}
