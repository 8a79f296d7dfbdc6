package hopper

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/executor"
	"chaosbot.dev/chaos-bot/internal/journal"
	"chaosbot.dev/chaos-bot/internal/modules"
)

func testConfig() *config.Config {
	return &config.Config{
		General: config.General{Interface: "eth1", DryRun: true},
		Vlans: []config.VlanSpec{
			{ID: 30, Name: "guest", Gateway: "10.30.30.1", Targets: []string{"10.30.30.10"}},
		},
		Schedule: config.Schedule{ModuleDelayMin: 0, ModuleDelayMax: 0, CooldownMin: 0, CooldownMax: 0},
		Modules: map[string]config.ModuleConfig{
			"net_scanner": {Enabled: true},
			"auth_prober": {Enabled: false},
			"dns_noise":   {Enabled: false},
			"http_probe":  {Enabled: false},
		},
	}
}

func newTestHopper(t *testing.T, cfg *config.Config) (*Hopper, *journal.Journal) {
	t.Helper()
	jrn, err := journal.Open(journal.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { jrn.Close() })

	exec := executor.NewReal(cfg.General.DryRun, nil)
	registry := modules.NewRegistry()
	h := New(cfg, registry, jrn, exec, nil, nil, nil)
	h.rtTablesPath = filepath.Join(t.TempDir(), "rt_tables")
	return h, jrn
}

// TestHopOnceDryRunHappyPath covers the spec's S1 scenario: one VLAN,
// one enabled module, dry_run true.
func TestHopOnceDryRunHappyPath(t *testing.T) {
	cfg := testConfig()
	h, jrn := newTestHopper(t, cfg)

	summary := h.HopOnce(context.Background(), nil)

	assert.Equal(t, "complete", summary.Status)
	assert.Equal(t, 30, summary.VlanID)
	assert.Equal(t, "192.168.0.100", summary.IP)
	assert.Equal(t, []string{"net_scanner"}, summary.ModulesRun)

	assert.Equal(t, StateCooldown, h.Status().State)
	assert.Equal(t, 0, h.Status().VlanID)

	records, err := jrn.History(nil, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 30, records[0].VlanID)
	assert.Equal(t, "192.168.0.100", records[0].IP)
}

func TestHopOnceRejectsVlanFilterMismatch(t *testing.T) {
	cfg := testConfig()
	h, _ := newTestHopper(t, cfg)

	summary := h.HopOnce(context.Background(), []int{999})
	assert.Equal(t, "error", summary.Status)
	assert.Contains(t, summary.Message, "no VLANs match filter")
	assert.Equal(t, StateIdle, h.Status().State)
}

func TestHopOnceRejectsWhenNotIdleOrCooldown(t *testing.T) {
	cfg := testConfig()
	h, _ := newTestHopper(t, cfg)

	h.mu.Lock()
	h.state = StateAttacking
	h.mu.Unlock()

	summary := h.HopOnce(context.Background(), nil)
	assert.Equal(t, "error", summary.Status)
	assert.Contains(t, summary.Message, "busy")
}

func TestHopOnceSkipsWhenNoTargets(t *testing.T) {
	cfg := testConfig()
	cfg.Vlans[0].Gateway = ""
	cfg.Vlans[0].Targets = nil
	h, jrn := newTestHopper(t, cfg)

	summary := h.HopOnce(context.Background(), nil)
	assert.Equal(t, "skipped", summary.Status)
	assert.Equal(t, StateCooldown, h.Status().State)

	records, err := jrn.History(nil, 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHopToVLANHoldsInterfaceUp(t *testing.T) {
	cfg := testConfig()
	h, _ := newTestHopper(t, cfg)

	result := h.HopToVLAN(context.Background(), 30)
	assert.Equal(t, "ready", result.Status)
	assert.Equal(t, "192.168.0.100", result.IP)
	assert.Equal(t, StateHopping, h.Status().State)

	h.TeardownCurrent()
	assert.Equal(t, StateCooldown, h.Status().State)
}

func TestHopToVLANUnknownVlan(t *testing.T) {
	cfg := testConfig()
	h, _ := newTestHopper(t, cfg)

	result := h.HopToVLAN(context.Background(), 999)
	assert.Equal(t, "error", result.Status)
}

func TestStopWithNoActiveHopIsNoop(t *testing.T) {
	cfg := testConfig()
	h, _ := newTestHopper(t, cfg)
	h.Stop()
	assert.True(t, h.stop.Stopped())
}

func TestPickVlanFiltersByID(t *testing.T) {
	cfg := testConfig()
	cfg.Vlans = append(cfg.Vlans, config.VlanSpec{ID: 40, Name: "iot"})
	h, _ := newTestHopper(t, cfg)

	vlan, ok := h.pickVlan([]int{40})
	assert.True(t, ok)
	assert.Equal(t, 40, vlan.ID)

	_, ok = h.pickVlan([]int{999})
	assert.False(t, ok)
}

func TestHopOnceDrivesVlanLifecycleThroughNetlinker(t *testing.T) {
	cfg := testConfig()
	h, _ := newTestHopper(t, cfg)

	h.HopOnce(context.Background(), nil)

	dryNL, ok := h.nl.(*DryRunNetlinker)
	require.True(t, ok)
	assert.Contains(t, dryNL.Ops, "link add eth1.30 type vlan")
	assert.Contains(t, dryNL.Ops, "link set eth1.30 up")
	assert.Contains(t, dryNL.Ops, "link set eth1.30 down")
	assert.Contains(t, dryNL.Ops, "link del eth1.30")
}

type fakeHopperMetrics struct {
	hops       []string
	dhcp       []string
	states     []string
	targets    map[int]int
	duplicates int
}

func (f *fakeHopperMetrics) IncModuleOutcome(module, outcome string) {}
func (f *fakeHopperMetrics) RecordHop(vlanID int, status string, durationSec float64) {
	f.hops = append(f.hops, status)
}
func (f *fakeHopperMetrics) RecordDHCPAttempt(vlanID int, outcome string) {
	f.dhcp = append(f.dhcp, outcome)
}
func (f *fakeHopperMetrics) RecordDuplicateIP(vlanID int) { f.duplicates++ }
func (f *fakeHopperMetrics) SetTargetsFound(vlanID, count int) {
	if f.targets == nil {
		f.targets = map[int]int{}
	}
	f.targets[vlanID] = count
}
func (f *fakeHopperMetrics) SetHopperState(state string) {
	f.states = append(f.states, state)
}

func TestHopOnceRecordsMetrics(t *testing.T) {
	cfg := testConfig()
	jrn, err := journal.Open(journal.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { jrn.Close() })

	exec := executor.NewReal(cfg.General.DryRun, nil)
	registry := modules.NewRegistry()
	sink := &fakeHopperMetrics{}
	h := New(cfg, registry, jrn, exec, nil, sink, nil)
	h.rtTablesPath = filepath.Join(t.TempDir(), "rt_tables")

	h.HopOnce(context.Background(), nil)

	assert.Contains(t, sink.hops, "complete")
	assert.Contains(t, sink.dhcp, "ok")
	assert.Contains(t, sink.states, string(StateHopping))
	assert.Contains(t, sink.states, string(StateAttacking))
	assert.Contains(t, sink.states, string(StateCooldown))
	assert.Equal(t, 1, sink.targets[30])
}
