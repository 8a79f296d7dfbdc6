package cmd

import (
	"context"
	"flag"
	"fmt"

	"chaosbot.dev/chaos-bot/internal/supervisor"
)

// RunServe implements the `serve` subcommand: starts the HTTP control
// plane and, unless --once is given, the daemon hop loop alongside it,
// under one signal-driven shutdown path.
func RunServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configFile := fs.String("config", "", "Configuration file path")
	dryRun := fs.Bool("dry-run", false, "Override general.dry_run for this run")
	once := fs.Bool("once", false, "Serve the control plane without starting the daemon hop loop")
	vlansFlag := fs.String("vlans", "", "Comma-separated VLAN id filter for the daemon loop")
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

	srv := rt.server()
	sup := supervisor.New(srv, rt.hopper, rt.logger)

	rt.logger.Info("control plane listening", "host", rt.cfg.Web.Host, "port", rt.cfg.Web.Port, "daemon", !*once)
	return sup.Run(context.Background(), !*once, vlans)
}
