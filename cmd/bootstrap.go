package cmd

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"chaosbot.dev/chaos-bot/internal/brand"
	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/ctlplane"
	"chaosbot.dev/chaos-bot/internal/executor"
	"chaosbot.dev/chaos-bot/internal/hopper"
	"chaosbot.dev/chaos-bot/internal/journal"
	"chaosbot.dev/chaos-bot/internal/logging"
	"chaosbot.dev/chaos-bot/internal/metrics"
	"chaosbot.dev/chaos-bot/internal/modules"
	"chaosbot.dev/chaos-bot/internal/notify"
)

// runtime bundles everything a subcommand needs after config is loaded:
// the logger, the lease journal, the command executor, the module
// registry, and a fully wired Hopper. Every subcommand builds one of
// these the same way so `run`, `hop`, and `serve` observe identical
// defaults.
type runtime struct {
	cfg        *config.Config
	cfgPath    string
	logger     *logging.Logger
	journal    *journal.Journal
	exec       executor.Executor
	registry   *modules.Registry
	hopper     *hopper.Hopper
	dispatcher *notify.Dispatcher
	metrics    *metrics.Registry
}

// newRuntime loads config (explicit path or the standard search order),
// then wires the logger, journal, executor, module registry, metrics
// registry, notification dispatcher, and Hopper against it.
func newRuntime(configPath string, dryRunOverride *bool) (*runtime, error) {
	cfg, resolvedPath, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if dryRunOverride != nil {
		cfg.General.DryRun = *dryRunOverride
	}

	logger := logging.New(logging.Config{
		Level:  parseLevel(cfg.General.LogLevel),
		Output: logOutput(cfg.General.LogFile),
	})
	logging.SetDefault(logger)

	jrn, err := journal.Open(journal.Options{Path: brand.LeaseJournalPath()})
	if err != nil {
		return nil, fmt.Errorf("opening lease journal: %w", err)
	}

	exec := executor.NewReal(cfg.General.DryRun, logger)
	registry := modules.NewRegistry()

	var metricsReg *metrics.Registry
	if cfg.Metrics.Enabled {
		metricsReg = metrics.Get()
	}

	var dispatcher *notify.Dispatcher
	if cfg.Notifications.WebhookURL != "" {
		dispatcher = notify.NewDispatcher(cfg.Notifications, &notify.WebhookPoster{URL: cfg.Notifications.WebhookURL}, logger, nil)
	}

	var hopperMetrics hopper.Metrics
	if metricsReg != nil {
		hopperMetrics = metricsReg
	}
	var notifier hopper.Notifier
	if dispatcher != nil {
		notifier = dispatcher
	}

	h := hopper.New(cfg, registry, jrn, exec, logger, hopperMetrics, notifier)

	return &runtime{
		cfg:        cfg,
		cfgPath:    resolvedPath,
		logger:     logger,
		journal:    jrn,
		exec:       exec,
		registry:   registry,
		hopper:     h,
		dispatcher: dispatcher,
		metrics:    metricsReg,
	}, nil
}

func (rt *runtime) close() {
	rt.journal.Close()
}

// server builds the HTTP control plane against this runtime's already
// wired Hopper, registry, and journal.
func (rt *runtime) server() *ctlplane.Server {
	var sink modules.MetricsSink
	if rt.metrics != nil {
		sink = rt.metrics
	}
	return ctlplane.NewServer(rt.cfg, rt.cfgPath, rt.hopper, rt.registry, rt.journal, rt.exec, sink, rt.logger)
}

// dryRunFlagOverride returns dryRun only if it was explicitly passed on
// the command line, so an unset --dry-run never clobbers the config
// file's own general.dry_run value.
func dryRunFlagOverride(fs *flag.FlagSet, dryRun *bool) *bool {
	var explicit *bool
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "dry-run" {
			explicit = dryRun
		}
	})
	return explicit
}

// flagWasSet reports whether the named flag was explicitly passed on
// the command line, for overrides (like --dwell-min) where the zero
// value is also a legitimate explicit choice.
func flagWasSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// applyModuleFilter disables every registered module not named in the
// comma list, turning --modules into an allowlist layered on top of
// the config file's own per-module enabled flags. An empty list
// leaves the config's module set untouched. Validated against the
// module registry, not cfg.Modules: a registered module simply absent
// from the config's modules: section is enabled by default (see
// Registry.Enabled), so cfg.Modules alone isn't the full set of valid
// names.
func applyModuleFilter(cfg *config.Config, registry *modules.Registry, raw string) error {
	if raw == "" {
		return nil
	}
	known := map[string]bool{}
	for _, name := range registry.Names() {
		known[name] = true
	}
	allowed := map[string]bool{}
	for _, name := range strings.Split(raw, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if !known[name] {
			return fmt.Errorf("unknown module %q in --modules", name)
		}
		allowed[name] = true
	}
	if cfg.Modules == nil {
		cfg.Modules = map[string]config.ModuleConfig{}
	}
	for name := range known {
		mc := cfg.Modules[name]
		mc.Enabled = allowed[name]
		cfg.Modules[name] = mc
	}
	return nil
}

// applyDwellOverride overrides the hop dwell window when --dwell-min
// and/or --dwell-max were explicitly passed.
func applyDwellOverride(fs *flag.FlagSet, cfg *config.Config, dwellMin, dwellMax float64) {
	if flagWasSet(fs, "dwell-min") {
		cfg.Schedule.HopDwellMin = dwellMin
	}
	if flagWasSet(fs, "dwell-max") {
		cfg.Schedule.HopDwellMax = dwellMax
	}
}

func parseLevel(s string) logging.Level {
	var level logging.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return logging.LevelInfo
	}
	return level
}

func logOutput(path string) *os.File {
	if path == "" {
		return os.Stderr
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open log file %q: %v\n", path, err)
		return os.Stderr
	}
	return f
}
