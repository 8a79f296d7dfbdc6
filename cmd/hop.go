package cmd

import (
	"context"
	"flag"
	"fmt"

	"chaosbot.dev/chaos-bot/internal/hopper"
)

// RunHop implements the `hop` subcommand: a single one-shot hop cycle,
// the CLI equivalent of POST /api/v1/hop. With --hold it instead runs
// the supplemented "step-and-hold" operation (HopToVLAN): hop to one
// named VLAN, run discovery, and leave the interface up for manual
// inspection instead of tearing down and running modules.
func RunHop(args []string) error {
	fs := flag.NewFlagSet("hop", flag.ExitOnError)
	configFile := fs.String("config", "", "Configuration file path")
	dryRun := fs.Bool("dry-run", false, "Override general.dry_run for this run")
	vlansFlag := fs.String("vlans", "", "Comma-separated VLAN id filter")
	modulesFlag := fs.String("modules", "", "Comma-separated module allowlist (default: config's own enabled set)")
	dwellMin := fs.Float64("dwell-min", 0, "Override schedule.hop_dwell_min (seconds)")
	dwellMax := fs.Float64("dwell-max", 0, "Override schedule.hop_dwell_max (seconds)")
	hold := fs.Bool("hold", false, "Step-and-hold: hop to one VLAN, discover, and leave the interface up")
	format := fs.String("format", "table", "Output format: table|json")
	fs.Parse(args)

	vlans, err := parseVlanList(*vlansFlag)
	if err != nil {
		return err
	}

	rt, err := newRuntime(*configFile, dryRunFlagOverride(fs, dryRun))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	defer rt.close()

	if err := applyModuleFilter(rt.cfg, rt.registry, *modulesFlag); err != nil {
		return err
	}
	applyDwellOverride(fs, rt.cfg, *dwellMin, *dwellMax)

	if *hold {
		if len(vlans) != 1 {
			return fmt.Errorf("--hold requires exactly one --vlans id")
		}
		result := rt.hopper.HopToVLAN(context.Background(), vlans[0])
		printHoldResult(result)
		if result.Status == "error" {
			return fmt.Errorf("hop to vlan %d failed: %s", vlans[0], result.Message)
		}
		return nil
	}

	summary := rt.hopper.HopOnce(context.Background(), vlans)
	printSummary(summary, *format)
	if summary.Status == "error" {
		return fmt.Errorf("hop cycle failed: %s", summary.Message)
	}
	return nil
}

func printHoldResult(result hopper.HopToVLANResult) {
	fmt.Printf("status:  %s\n", result.Status)
	if result.VlanID != 0 {
		fmt.Printf("vlan:    %d\n", result.VlanID)
	}
	if result.IP != "" {
		fmt.Printf("ip:      %s\n", result.IP)
	}
	if result.Iface != "" {
		fmt.Printf("iface:   %s\n", result.Iface)
	}
	if len(result.Hosts) > 0 {
		fmt.Printf("hosts:   %v\n", result.Hosts)
	}
	if result.Message != "" {
		fmt.Printf("message: %s\n", result.Message)
	}
}
