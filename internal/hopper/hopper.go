// Package hopper implements the VLAN Hopper state machine: the sole
// owner of the attack NIC during a hop, coordinating 802.1Q
// sub-interface lifecycle, DHCP acquisition with duplicate-avoidance,
// policy routing, host discovery, module dispatch, and guaranteed
// teardown on every exit path.
package hopper

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sync"
	"time"

	"chaosbot.dev/chaos-bot/internal/chaoserr"
	"chaosbot.dev/chaos-bot/internal/clock"
	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/discovery"
	"chaosbot.dev/chaos-bot/internal/executor"
	"chaosbot.dev/chaos-bot/internal/journal"
	"chaosbot.dev/chaos-bot/internal/logging"
	"chaosbot.dev/chaos-bot/internal/modules"

	"github.com/google/uuid"
	"github.com/vishvananda/netlink"
)

const (
	cmdTimeout      = 10 * time.Second
	dhclientTimeout = 15 * time.Second
	maxDHCPAttempts = 3
)

// HopperState is one of the four legal states; external readers may
// only observe it through Status/State, never mutate it.
type HopperState string

const (
	StateIdle      HopperState = "idle"
	StateHopping   HopperState = "hopping"
	StateAttacking HopperState = "attacking"
	StateCooldown  HopperState = "cooldown"
)

// ActiveHop is the mutable record held only while state is Hopping or
// Attacking; cleared the instant teardown completes.
type ActiveHop struct {
	CorrelationID string
	VlanID        int
	IfaceName     string
	LeasedIP      string
	Gateway       string
	Hosts         []string
	StartedAt     time.Time
}

// HopSummary is hopOnce's return value.
type HopSummary struct {
	CorrelationID string           `json:"correlation_id,omitempty"`
	Status        string           `json:"status"`
	VlanID        int              `json:"vlan_id,omitempty"`
	IP            string           `json:"ip,omitempty"`
	DurationSec   float64          `json:"duration_sec,omitempty"`
	ModulesRun    []string         `json:"modules_run,omitempty"`
	Results       []modules.Report `json:"results,omitempty"`
	Message       string           `json:"message,omitempty"`
}

// HopToVLANResult is HopToVLAN's return value (supplemented feature).
type HopToVLANResult struct {
	Status  string   `json:"status"`
	VlanID  int      `json:"vlan_id,omitempty"`
	IP      string   `json:"ip,omitempty"`
	Iface   string   `json:"iface,omitempty"`
	Gateway string   `json:"gateway,omitempty"`
	Hosts   []string `json:"hosts,omitempty"`
	Message string   `json:"message,omitempty"`
}

// Status is the Control Plane's read-only view of hopper state.
type Status struct {
	State  HopperState `json:"state"`
	VlanID int         `json:"vlan_id,omitempty"`
	IP     string      `json:"ip,omitempty"`
	Iface  string      `json:"iface,omitempty"`
}

// Notifier dispatches an external notification after a completed hop
// cycle; a real implementation lives in internal/notify.
type Notifier interface {
	NotifyCycleSummary(summary HopSummary)
}

// Metrics is every metric the Hopper itself records, on top of the
// narrower modules.MetricsSink its Capability hands to probe modules.
// *metrics.Registry satisfies both.
type Metrics interface {
	modules.MetricsSink
	RecordHop(vlanID int, status string, durationSec float64)
	RecordDHCPAttempt(vlanID int, outcome string)
	RecordDuplicateIP(vlanID int)
	SetTargetsFound(vlanID, count int)
	SetHopperState(state string)
}

// Hopper is the VLAN rotation engine. All state transitions flow
// through its guarded methods; external code only reads via Status.
type Hopper struct {
	mu     sync.RWMutex
	state  HopperState
	active *ActiveHop

	cfg      *config.Config
	registry *modules.Registry
	runner   *modules.Runner
	journal  *journal.Journal
	exec     executor.Executor
	nl       Netlinker
	logger   *logging.Logger
	metrics  Metrics
	notifier Notifier
	clk      clock.Clock
	stop     *stopSignal

	lastSummary HopSummary

	rtTablesPath string
}

// New constructs an idle Hopper. metrics and notifier may be nil.
func New(cfg *config.Config, registry *modules.Registry, jrn *journal.Journal, exec executor.Executor, logger *logging.Logger, metrics Metrics, notifier Notifier) *Hopper {
	if logger == nil {
		logger = logging.Default()
	}
	var nl Netlinker = RealNetlinker{}
	if cfg.General.DryRun {
		nl = NewDryRunNetlinker()
	}
	return &Hopper{
		state:        StateIdle,
		cfg:          cfg,
		registry:     registry,
		runner:       modules.NewRunner(registry),
		journal:      jrn,
		exec:         exec,
		nl:           nl,
		logger:       logger.WithComponent("hopper"),
		metrics:      metrics,
		notifier:     notifier,
		clk:          &clock.RealClock{},
		stop:         newStopSignal(),
		rtTablesPath: DefaultRTTablesPath,
	}
}

// Status reports the current state under a read lock.
func (h *Hopper) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s := Status{State: h.state}
	if h.active != nil {
		s.VlanID = h.active.VlanID
		s.IP = h.active.LeasedIP
		s.Iface = h.active.IfaceName
	}
	return s
}

// LastSummary returns the most recently completed hop cycle's outcome,
// for the Control Plane's /api/v1/status. Zero-value until the first
// hop finishes.
func (h *Hopper) LastSummary() HopSummary {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastSummary
}

// Stop requests graceful shutdown of any running daemon loop and,
// if a hop is currently active, forces its immediate teardown.
func (h *Hopper) Stop() {
	h.stop.Stop()
	h.mu.RLock()
	active := h.active
	h.mu.RUnlock()
	if active != nil {
		h.teardown(context.Background())
	}
}

// HopOnce executes a single VLAN hop cycle end to end: interface
// creation, DHCP, policy routing, discovery, module dispatch, lease
// recording, and guaranteed teardown — even on panic.
func (h *Hopper) HopOnce(ctx context.Context, vlanFilter []int) (summary HopSummary) {
	h.mu.Lock()
	if h.state != StateIdle && h.state != StateCooldown {
		h.mu.Unlock()
		return HopSummary{Status: "error", Message: "hopper is busy"}
	}
	h.mu.Unlock()

	vlan, ok := h.pickVlan(vlanFilter)
	if !ok {
		h.logger.Error("no VLANs match filter")
		return HopSummary{Status: "error", Message: "no VLANs match filter"}
	}

	corrID := uuid.NewString()
	h.mu.Lock()
	h.state = StateHopping
	h.active = &ActiveHop{CorrelationID: corrID, VlanID: vlan.ID, StartedAt: h.clk.Now()}
	h.mu.Unlock()
	h.recordState(StateHopping)

	defer func() {
		h.mu.Lock()
		h.lastSummary = summary
		h.mu.Unlock()
	}()

	h.logger.Info("hopping to VLAN", "correlation_id", corrID, "vlan_id", vlan.ID, "name", vlan.Name)

	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("hop cycle panicked", "error", fmt.Sprint(r))
			h.teardown(context.Background())
			h.recordHopOutcome(vlan.ID, "error", 0)
			summary = HopSummary{CorrelationID: corrID, Status: "error", VlanID: vlan.ID, Message: fmt.Sprintf("panic: %v", r)}
		}
	}()

	iface, err := h.createVlanIface(ctx, vlan.ID)
	if err != nil {
		h.logger.Error("failed to create VLAN interface", "vlan_id", vlan.ID, "error", err)
		h.teardown(context.Background())
		h.recordHopOutcome(vlan.ID, "error", 0)
		return HopSummary{CorrelationID: corrID, Status: "error", VlanID: vlan.ID, Message: "failed to create VLAN interface"}
	}
	h.mu.Lock()
	h.active.IfaceName = iface
	h.mu.Unlock()

	ip, err := h.acquireDHCPWithRetry(ctx, iface, vlan.ID)
	if err != nil {
		h.logger.Error("failed to obtain IP", "vlan_id", vlan.ID, "error", err)
		h.teardown(context.Background())
		h.recordHopOutcome(vlan.ID, "error", 0)
		return HopSummary{CorrelationID: corrID, Status: "error", VlanID: vlan.ID, Message: "DHCP failed"}
	}
	h.logger.Info("got IP on VLAN", "vlan_id", vlan.ID, "source_ip", ip)
	h.mu.Lock()
	h.active.LeasedIP = ip
	h.active.Gateway = vlan.Gateway
	h.mu.Unlock()

	if vlan.Gateway != "" {
		h.setupPolicyRouting(ctx, ip, vlan.Gateway, iface)
	}

	targets := h.discoverTargets(ctx, vlan, iface, ip)
	if h.metrics != nil {
		h.metrics.SetTargetsFound(vlan.ID, len(targets))
	}
	if len(targets) == 0 {
		h.logger.Warn("no targets found on VLAN, skipping attack", "vlan_id", vlan.ID)
		h.teardown(context.Background())
		h.recordHopOutcome(vlan.ID, "skipped", 0)
		return HopSummary{CorrelationID: corrID, Status: "skipped", VlanID: vlan.ID, IP: ip, Message: "no targets found"}
	}

	cap := &modules.Capability{
		SourceIP:  ip,
		Interface: iface,
		Config:    h.cfg,
		Metrics:   h.metrics,
		Logger:    h.logger,
		Executor:  h.exec,
		DryRun:    h.cfg.General.DryRun,
	}

	h.mu.Lock()
	h.state = StateAttacking
	h.mu.Unlock()
	h.recordState(StateAttacking)

	enabled := h.registry.Enabled(h.cfg)
	reports := h.runner.RunOnce(ctx, cap, enabled, targets, h.cfg.Schedule.ModuleDelayMin, h.cfg.Schedule.ModuleDelayMax, h.stop)

	h.mu.RLock()
	startedAt := h.active.StartedAt
	h.mu.RUnlock()
	duration := h.clk.Since(startedAt).Seconds()

	moduleNames := make([]string, len(reports))
	for i, r := range reports {
		moduleNames[i] = r.Module
	}

	mac := h.readMAC(ctx, iface)
	if _, err := h.journal.Append(vlan.ID, ip, mac, moduleNames, duration); err != nil {
		h.logger.Error("failed to append lease record", "error", err)
	}

	h.teardown(context.Background())
	h.recordHopOutcome(vlan.ID, "complete", duration)

	summary = HopSummary{
		CorrelationID: corrID,
		Status:        "complete",
		VlanID:        vlan.ID,
		IP:            ip,
		DurationSec:   roundTenth(duration),
		ModulesRun:    moduleNames,
		Results:       reports,
	}
	if h.notifier != nil {
		h.notifier.NotifyCycleSummary(summary)
	}
	return summary
}

// HopToVLAN hops to a specific VLAN and runs discovery but does not
// attack or tear down; the caller must call TeardownCurrent when
// done. Supplemented from the original's hold-mode CLI flag; not
// exposed over the HTTP control plane.
func (h *Hopper) HopToVLAN(ctx context.Context, vlanID int) HopToVLANResult {
	vlan, ok := h.cfg.VlanByID(vlanID)
	if !ok {
		return HopToVLANResult{Status: "error", Message: fmt.Sprintf("VLAN %d not in config", vlanID)}
	}

	h.mu.Lock()
	if h.state != StateIdle && h.state != StateCooldown {
		h.mu.Unlock()
		return HopToVLANResult{Status: "error", Message: "hopper is busy"}
	}
	h.state = StateHopping
	h.active = &ActiveHop{VlanID: vlan.ID, StartedAt: h.clk.Now()}
	h.mu.Unlock()
	h.recordState(StateHopping)

	h.logger.Info("hopping to VLAN (hold mode)", "vlan_id", vlan.ID, "name", vlan.Name)

	iface, err := h.createVlanIface(ctx, vlan.ID)
	if err != nil {
		h.teardown(context.Background())
		return HopToVLANResult{Status: "error", VlanID: vlan.ID, Message: "failed to create VLAN interface"}
	}
	h.mu.Lock()
	h.active.IfaceName = iface
	h.mu.Unlock()

	ip, err := h.acquireDHCPWithRetry(ctx, iface, vlan.ID)
	if err != nil {
		h.teardown(context.Background())
		return HopToVLANResult{Status: "error", VlanID: vlan.ID, Message: "DHCP failed"}
	}
	h.mu.Lock()
	h.active.LeasedIP = ip
	h.active.Gateway = vlan.Gateway
	h.mu.Unlock()

	if vlan.Gateway != "" {
		h.setupPolicyRouting(ctx, ip, vlan.Gateway, iface)
	}

	hosts := h.discoverTargets(ctx, vlan, iface, ip)
	h.mu.Lock()
	h.active.Hosts = hosts
	h.mu.Unlock()

	return HopToVLANResult{
		Status:  "ready",
		VlanID:  vlan.ID,
		IP:      ip,
		Iface:   iface,
		Gateway: vlan.Gateway,
		Hosts:   hosts,
	}
}

// TeardownCurrent tears down whatever ActiveHop exists; idempotent.
func (h *Hopper) TeardownCurrent() {
	h.teardown(context.Background())
}

// RunDaemon repeatedly calls HopOnce until stopSignal is raised,
// sleeping a jittered cooldown interval between cycles. A hop-cycle
// panic that escapes HopOnce's own recovery still triggers teardown
// before the loop continues.
func (h *Hopper) RunDaemon(ctx context.Context, vlanFilter []int) {
	h.logger.Info("VLAN hopper daemon starting")

	for !h.stop.Stopped() {
		func() {
			defer func() {
				if r := recover(); r != nil {
					h.logger.Error("hop cycle panicked in daemon loop", "error", fmt.Sprint(r))
					h.teardown(context.Background())
				}
			}()
			h.HopOnce(ctx, vlanFilter)
		}()

		if h.stop.Stopped() {
			break
		}

		h.mu.Lock()
		h.state = StateCooldown
		h.mu.Unlock()
		h.recordState(StateCooldown)

		cooldown := uniform(h.cfg.Schedule.CooldownMin, h.cfg.Schedule.CooldownMax)
		h.logger.Info("cooldown", "seconds", cooldown)
		h.stop.Wait(time.Duration(cooldown * float64(time.Second)))
	}

	h.teardown(context.Background())
	h.mu.Lock()
	h.state = StateIdle
	h.mu.Unlock()
	h.recordState(StateIdle)
	h.logger.Info("VLAN hopper stopped")
}

func (h *Hopper) pickVlan(vlanFilter []int) (config.VlanSpec, bool) {
	candidates := h.cfg.Vlans
	if vlanFilter != nil {
		filterSet := map[int]bool{}
		for _, id := range vlanFilter {
			filterSet[id] = true
		}
		var filtered []config.VlanSpec
		for _, v := range h.cfg.Vlans {
			if filterSet[v.ID] {
				filtered = append(filtered, v)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return config.VlanSpec{}, false
	}
	return candidates[rand.Intn(len(candidates))], true
}

func (h *Hopper) createVlanIface(ctx context.Context, vlanID int) (string, error) {
	iface := fmt.Sprintf("%s.%d", h.cfg.General.Interface, vlanID)

	parent, err := h.nl.LinkByName(h.cfg.General.Interface)
	if err != nil {
		return "", fmt.Errorf("lookup parent interface %s: %w", h.cfg.General.Interface, err)
	}

	vlanLink := &netlink.Vlan{
		LinkAttrs: netlink.LinkAttrs{Name: iface, ParentIndex: parent.Attrs().Index},
		VlanId:    vlanID,
	}
	if err := h.nl.LinkAdd(vlanLink); err != nil {
		return "", fmt.Errorf("create VLAN sub-interface %s: %w", iface, err)
	}

	link, err := h.nl.LinkByName(iface)
	if err != nil {
		return "", fmt.Errorf("lookup newly created VLAN sub-interface %s: %w", iface, err)
	}
	if err := h.nl.LinkSetUp(link); err != nil {
		return "", fmt.Errorf("bring up VLAN sub-interface %s: %w", iface, err)
	}
	return iface, nil
}

var addrShowRe = regexp.MustCompile(`inet (\S+)`)

func (h *Hopper) acquireDHCP(ctx context.Context, iface string) (string, error) {
	if _, err := h.exec.Run(ctx, dhclientTimeout, false, "dhclient", "-1", "-v", iface); err != nil {
		h.logger.Debug("dhclient exited non-zero, checking for a lease anyway", "error", err)
	}

	res, err := h.exec.Run(ctx, cmdTimeout, false, "ip", "-4", "-o", "addr", "show", iface)
	if err != nil {
		return "", err
	}

	m := addrShowRe.FindStringSubmatch(res.Stdout)
	if m == nil {
		return "", nil
	}
	ipWithMask := m[1]
	for i, c := range ipWithMask {
		if c == '/' {
			return ipWithMask[:i], nil
		}
	}
	return ipWithMask, nil
}

// acquireDHCPWithRetry tries up to maxDHCPAttempts times, releasing
// and retrying on an immediate-duplicate IP. The final attempt's
// duplicate is accepted in place rather than issuing an extra,
// uncounted re-acquire — a single explicit counter covers every call.
func (h *Hopper) acquireDHCPWithRetry(ctx context.Context, iface string, vlanID int) (string, error) {
	var lastIP string

	for attempt := 0; attempt < maxDHCPAttempts; attempt++ {
		ip, err := h.acquireDHCP(ctx, iface)
		if err != nil || ip == "" {
			h.logger.Warn("DHCP attempt failed", "attempt", attempt+1, "vlan_id", vlanID)
			if h.metrics != nil {
				h.metrics.RecordDHCPAttempt(vlanID, "failed")
			}
			continue
		}
		lastIP = ip

		dup, derr := h.journal.IsImmediateDuplicate(vlanID, ip)
		if derr != nil {
			h.logger.Warn("duplicate-IP check failed", "error", derr)
		}
		if !dup {
			if h.metrics != nil {
				h.metrics.RecordDHCPAttempt(vlanID, "ok")
			}
			return ip, nil
		}

		h.logger.Warn("duplicate IP on VLAN, retrying", "vlan_id", vlanID, "source_ip", ip)
		if h.metrics != nil {
			h.metrics.RecordDHCPAttempt(vlanID, "duplicate")
			h.metrics.RecordDuplicateIP(vlanID)
		}
		if attempt == maxDHCPAttempts-1 {
			h.logger.Warn("accepting duplicate IP after exhausting retries", "vlan_id", vlanID, "source_ip", ip)
			return ip, nil
		}
		h.exec.Run(ctx, dhclientTimeout, false, "dhclient", "-r", iface)
	}

	if lastIP != "" {
		return lastIP, nil
	}
	return "", chaoserr.DHCPErrorf("DHCP failed after %d attempts", maxDHCPAttempts)
}

func (h *Hopper) setupPolicyRouting(ctx context.Context, ip, gateway, iface string) {
	path := h.rtTablesPath
	if path == "" {
		path = DefaultRTTablesPath
	}
	if err := ensureRoutingTable(path); err != nil {
		h.logger.Warn("failed to register attack routing table", "error", err)
	}
	h.exec.Run(ctx, cmdTimeout, false, "ip", "rule", "add", "from", ip, "table", attackTableName)
	h.exec.Run(ctx, cmdTimeout, false, "ip", "route", "add", "default", "via", gateway, "dev", iface, "table", attackTableName)
}

func (h *Hopper) discoverTargets(ctx context.Context, vlan config.VlanSpec, iface, ip string) []string {
	var hosts []string
	if vlan.Gateway != "" {
		if subnet, err := discovery.GatewayToSubnet(vlan.Gateway); err == nil {
			hosts = discovery.Discover(ctx, h.exec, subnet, iface, ip, []string{vlan.Gateway}, h.cfg.General.DryRun, h.logger)
		}
	}
	if len(hosts) == 0 && len(vlan.Targets) > 0 {
		h.logger.Info("discovery found no hosts, falling back to static targets", "vlan_id", vlan.ID, "count", len(vlan.Targets))
		hosts = append([]string{}, vlan.Targets...)
	}
	return hosts
}

var macRe = regexp.MustCompile(`link/ether (\S+)`)

func (h *Hopper) readMAC(ctx context.Context, iface string) string {
	if h.cfg.General.DryRun {
		return "00:00:00:00:00:00"
	}
	res, err := h.exec.Run(ctx, cmdTimeout, false, "ip", "link", "show", iface)
	if err != nil {
		return "unknown"
	}
	if m := macRe.FindStringSubmatch(res.Stdout); m != nil {
		return m[1]
	}
	return "unknown"
}

// teardown releases every kernel object the active hop created, in
// reverse order, each step best-effort (mustSucceed=false), and
// clears ActiveHop. It always runs against a fresh background
// context so a caller's cancelled context never skips cleanup. A nil
// ActiveHop or one whose interface was never created is a no-op
// beyond clearing state, matching the fact that nothing was built yet.
func (h *Hopper) teardown(ctx context.Context) {
	h.mu.Lock()
	active := h.active
	h.mu.Unlock()

	if active == nil || active.IfaceName == "" {
		h.mu.Lock()
		h.active = nil
		if h.state != StateIdle {
			h.state = StateCooldown
		}
		cleared := h.state
		h.mu.Unlock()
		h.recordState(cleared)
		return
	}

	h.logger.Info("tearing down VLAN", "vlan_id", active.VlanID)

	if active.LeasedIP != "" {
		h.exec.Run(ctx, cmdTimeout, false, "ip", "rule", "del", "from", active.LeasedIP, "table", attackTableName)
	}
	h.exec.Run(ctx, cmdTimeout, false, "ip", "route", "flush", "table", attackTableName)
	h.exec.Run(ctx, dhclientTimeout, false, "dhclient", "-r", active.IfaceName)

	if link, err := h.nl.LinkByName(active.IfaceName); err != nil {
		h.logger.Warn("teardown: VLAN interface already gone", "iface", active.IfaceName, "error", err)
	} else {
		if err := h.nl.LinkSetDown(link); err != nil {
			h.logger.Warn("teardown: failed to bring down VLAN interface", "iface", active.IfaceName, "error", err)
		}
		if err := h.nl.LinkDel(link); err != nil {
			h.logger.Warn("teardown: failed to delete VLAN interface", "iface", active.IfaceName, "error", err)
		}
	}

	h.mu.Lock()
	h.active = nil
	h.state = StateCooldown
	h.mu.Unlock()
	h.recordState(StateCooldown)
}

func (h *Hopper) recordState(s HopperState) {
	if h.metrics != nil {
		h.metrics.SetHopperState(string(s))
	}
}

func (h *Hopper) recordHopOutcome(vlanID int, status string, durationSec float64) {
	if h.metrics != nil {
		h.metrics.RecordHop(vlanID, status, durationSec)
	}
}

func roundTenth(d float64) float64 {
	return float64(int64(d*10+0.5)) / 10
}

func uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rand.Float64()*(max-min)
}
