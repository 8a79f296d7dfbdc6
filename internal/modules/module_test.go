package modules

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chaosbot.dev/chaos-bot/internal/config"
)

func TestNewRegistryHasFourBuiltins(t *testing.T) {
	reg := NewRegistry()
	names := reg.Names()
	assert.ElementsMatch(t, []string{"net_scanner", "auth_prober", "dns_noise", "http_probe"}, names)
}

func TestRegistryGet(t *testing.T) {
	reg := NewRegistry()
	m, ok := reg.Get("net_scanner")
	assert.True(t, ok)
	assert.Equal(t, "net_scanner", m.Name())

	_, ok = reg.Get("nonexistent")
	assert.False(t, ok)
}

func TestEnabledDefaultsToAllWhenNoConfig(t *testing.T) {
	reg := NewRegistry()
	cfg := &config.Config{Modules: map[string]config.ModuleConfig{}}
	assert.ElementsMatch(t, reg.Names(), reg.Enabled(cfg))
}

func TestEnabledExcludesDisabledModules(t *testing.T) {
	reg := NewRegistry()
	cfg := &config.Config{Modules: map[string]config.ModuleConfig{
		"dns_noise": {Enabled: false},
	}}
	enabled := reg.Enabled(cfg)
	assert.NotContains(t, enabled, "dns_noise")
	assert.Contains(t, enabled, "net_scanner")
}
