package cmd

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"chaosbot.dev/chaos-bot/internal/hopper"
)

// RunRun implements the `run` subcommand: one-shot or daemon-mode hop
// cycles, the same entry point the Control Plane's /hop and /start use
// internally but driven straight from the CLI.
func RunRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configFile := fs.String("config", "", "Configuration file path")
	once := fs.Bool("once", false, "Run a single hop cycle and exit")
	daemon := fs.Bool("daemon", false, "Run the continuous hop loop until stopped")
	dryRun := fs.Bool("dry-run", false, "Override general.dry_run for this run")
	vlansFlag := fs.String("vlans", "", "Comma-separated VLAN id filter (default: all configured VLANs)")
	modulesFlag := fs.String("modules", "", "Comma-separated module allowlist (default: config's own enabled set)")
	dwellMin := fs.Float64("dwell-min", 0, "Override schedule.hop_dwell_min (seconds)")
	dwellMax := fs.Float64("dwell-max", 0, "Override schedule.hop_dwell_max (seconds)")
	format := fs.String("format", "table", "Output format for --once: table|json")
	fs.Parse(args)

	rt, err := newRuntime(*configFile, dryRunFlagOverride(fs, dryRun))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	defer rt.close()

	if err := applyModuleFilter(rt.cfg, rt.registry, *modulesFlag); err != nil {
		return err
	}
	applyDwellOverride(fs, rt.cfg, *dwellMin, *dwellMax)

	vlans, err := parseVlanList(*vlansFlag)
	if err != nil {
		return err
	}

	switch {
	case *daemon:
		rt.logger.Info("starting daemon hop loop", "vlans", vlans)
		rt.hopper.RunDaemon(context.Background(), vlans)
		return nil
	case *once:
		summary := rt.hopper.HopOnce(context.Background(), vlans)
		printSummary(summary, *format)
		if summary.Status == "error" {
			return fmt.Errorf("hop cycle failed: %s", summary.Message)
		}
		return nil
	default:
		return fmt.Errorf("run requires --once or --daemon")
	}
}

func parseVlanList(raw string) ([]int, error) {
	if raw == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid vlan id %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func printSummary(summary hopper.HopSummary, format string) {
	if format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		enc.Encode(summary)
		return
	}

	fmt.Printf("status:       %s\n", summary.Status)
	if summary.VlanID != 0 {
		fmt.Printf("vlan:         %d\n", summary.VlanID)
	}
	if summary.IP != "" {
		fmt.Printf("ip:           %s\n", summary.IP)
	}
	fmt.Printf("duration_sec: %.2f\n", summary.DurationSec)
	if len(summary.ModulesRun) > 0 {
		fmt.Printf("modules_run:  %s\n", strings.Join(summary.ModulesRun, ", "))
	}
	if summary.Message != "" {
		fmt.Printf("message:      %s\n", summary.Message)
	}
	for _, r := range summary.Results {
		fmt.Printf("  module %-14s %-8s %s\n", r.Module, r.Status, r.Summary)
	}
}
