// Package metrics exposes the Prometheus registry the hopper, module
// runner, and control plane record outcomes through.
package metrics

import (
	"strconv"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	registry *Registry
)

// Registry holds every chaos-bot metric.
type Registry struct {
	HopsTotal      *prometheus.CounterVec
	HopDuration    prometheus.Histogram
	DHCPAttempts   *prometheus.CounterVec
	DuplicateIPs   *prometheus.CounterVec
	ModuleOutcomes *prometheus.CounterVec
	TargetsFound   *prometheus.GaugeVec
	NotifyFailures *prometheus.CounterVec
	HopperState    *prometheus.GaugeVec
	APIRequests    *prometheus.CounterVec
	APILatency     *prometheus.HistogramVec
}

// Get returns the global metrics registry, creating it on first use.
func Get() *Registry {
	once.Do(func() {
		registry = newRegistry()
	})
	return registry
}

func newRegistry() *Registry {
	r := &Registry{}

	r.HopsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosbot_hops_total",
		Help: "Total hop cycles by VLAN and outcome",
	}, []string{"vlan_id", "status"})

	r.HopDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "chaosbot_hop_duration_seconds",
		Help:    "Wall-clock duration of a complete hop cycle",
		Buckets: prometheus.ExponentialBuckets(1, 2, 10),
	})

	r.DHCPAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosbot_dhcp_attempts_total",
		Help: "DHCP lease attempts by VLAN and outcome",
	}, []string{"vlan_id", "outcome"})

	r.DuplicateIPs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosbot_duplicate_ip_total",
		Help: "Immediate-duplicate IP leases observed by VLAN",
	}, []string{"vlan_id"})

	r.ModuleOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosbot_module_outcomes_total",
		Help: "Probe module run outcomes",
	}, []string{"module", "outcome"})

	r.TargetsFound = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chaosbot_targets_found",
		Help: "Targets discovered on the most recent hop, by VLAN",
	}, []string{"vlan_id"})

	r.NotifyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosbot_notify_failures_total",
		Help: "Notification dispatch failures by level",
	}, []string{"level"})

	r.HopperState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chaosbot_hopper_state",
		Help: "1 for the hopper's current state, 0 otherwise",
	}, []string{"state"})

	r.APIRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chaosbot_api_requests_total",
		Help: "Total control-plane API requests",
	}, []string{"method", "path", "status"})

	r.APILatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chaosbot_api_request_duration_seconds",
		Help:    "Control-plane API request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	return r
}

// RecordHop records a completed (or errored/skipped) hop cycle.
func (r *Registry) RecordHop(vlanID int, status string, durationSec float64) {
	r.HopsTotal.WithLabelValues(vlanIDLabel(vlanID), status).Inc()
	if durationSec > 0 {
		r.HopDuration.Observe(durationSec)
	}
}

// RecordDHCPAttempt records one DHCP acquisition attempt.
func (r *Registry) RecordDHCPAttempt(vlanID int, outcome string) {
	r.DHCPAttempts.WithLabelValues(vlanIDLabel(vlanID), outcome).Inc()
}

// RecordDuplicateIP records an immediate-duplicate lease on a VLAN.
func (r *Registry) RecordDuplicateIP(vlanID int) {
	r.DuplicateIPs.WithLabelValues(vlanIDLabel(vlanID)).Inc()
}

// IncModuleOutcome implements modules.MetricsSink.
func (r *Registry) IncModuleOutcome(module, outcome string) {
	r.ModuleOutcomes.WithLabelValues(module, outcome).Inc()
}

// SetTargetsFound records how many targets a hop's discovery phase found.
func (r *Registry) SetTargetsFound(vlanID, count int) {
	r.TargetsFound.WithLabelValues(vlanIDLabel(vlanID)).Set(float64(count))
}

// RecordNotifyFailure records a failed notification dispatch.
func (r *Registry) RecordNotifyFailure(level string) {
	r.NotifyFailures.WithLabelValues(level).Inc()
}

// SetHopperState flips the gauge for the given state to 1 and every
// other known state to 0, so a single Grafana panel can chart it.
func (r *Registry) SetHopperState(state string) {
	for _, s := range []string{"idle", "hopping", "attacking", "cooldown"} {
		if s == state {
			r.HopperState.WithLabelValues(s).Set(1)
		} else {
			r.HopperState.WithLabelValues(s).Set(0)
		}
	}
}

// RecordAPIRequest records a control-plane HTTP request.
func (r *Registry) RecordAPIRequest(method, path, status string, durationSec float64) {
	r.APIRequests.WithLabelValues(method, path, status).Inc()
	r.APILatency.WithLabelValues(method, path).Observe(durationSec)
}

func vlanIDLabel(vlanID int) string {
	if vlanID == 0 {
		return "unknown"
	}
	return strconv.Itoa(vlanID)
}
