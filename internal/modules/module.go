// Package modules defines the probe-module contract and runner that
// the VLAN Hopper dispatches against per-hop targets, plus the four
// built-in probe modules (scanner, auth prober, DNS noise, HTTP
// probe). Per-protocol payload catalogs are intentionally small and
// illustrative — the exact strings are an external collaborator the
// hopper does not depend on.
package modules

import (
	"context"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/executor"
	"chaosbot.dev/chaos-bot/internal/logging"
)

// ReportStatus is one of the four outcomes a module may report.
type ReportStatus string

const (
	StatusComplete ReportStatus = "complete"
	StatusError    ReportStatus = "error"
	StatusSkipped  ReportStatus = "skipped"
	StatusDryRun   ReportStatus = "dry-run"
)

// Report is a single module's outcome for one run.
type Report struct {
	Module  string         `json:"module"`
	Status  ReportStatus   `json:"status"`
	Summary string         `json:"summary"`
	Details []map[string]any `json:"details,omitempty"`
}

// Capability is the dynamically-bound per-hop record every module
// re-reads on each Run invocation rather than capturing at
// construction time. The hopper builds a fresh Capability for each hop
// carrying that hop's leased SourceIP and sub-interface.
type Capability struct {
	SourceIP  string
	Interface string
	Config    *config.Config
	Metrics   MetricsSink
	Logger    *logging.Logger
	Executor  executor.Executor
	DryRun    bool
}

// MetricsSink is the narrow interface modules emit outcome counts
// through; a concrete implementation lives in internal/metrics.
type MetricsSink interface {
	IncModuleOutcome(module, outcome string)
}

// Module is the uniform probe-module contract: run against a target
// set and return a report. Implementations must treat the Capability
// fields as live/mutable across calls, not captured once.
type Module interface {
	Name() string
	Run(ctx context.Context, cap *Capability, targets []string) Report
}

// Registry maps module names to instances, in registration order, for
// /api/v1/modules enumeration and for validating requested module
// names against /trigger.
type Registry struct {
	order   []string
	modules map[string]Module
}

// NewRegistry builds the registry with the four built-in modules.
func NewRegistry() *Registry {
	r := &Registry{modules: map[string]Module{}}
	r.Register(NewScanner())
	r.Register(NewAuthProber())
	r.Register(NewDNSNoise())
	r.Register(NewHTTPProbe())
	return r
}

// Register adds a module to the registry.
func (r *Registry) Register(m Module) {
	if _, exists := r.modules[m.Name()]; !exists {
		r.order = append(r.order, m.Name())
	}
	r.modules[m.Name()] = m
}

// Get returns the module by name.
func (r *Registry) Get(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns every registered module name, in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Enabled returns the subset of registered names whose config marks
// them enabled; a module with no config entry defaults to enabled so
// a freshly-written config does not silently run nothing.
func (r *Registry) Enabled(cfg *config.Config) []string {
	var names []string
	for _, name := range r.order {
		modCfg, ok := cfg.Modules[name]
		if ok && !modCfg.Enabled {
			continue
		}
		names = append(names, name)
	}
	return names
}
