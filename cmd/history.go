package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
)

// RunHistory implements the `history` subcommand: a read-through (or,
// with --clear, a truncation) of the Lease Journal — the CLI
// counterpart of GET /api/v1/history.
func RunHistory(args []string) error {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configFile := fs.String("config", "", "Configuration file path")
	vlan := fs.Int("vlan", 0, "Filter by VLAN id (0 = all)")
	last := fs.Int("last", 100, "Limit to the N most recent records")
	format := fs.String("format", "table", "Output format: table|json")
	clear := fs.Bool("clear", false, "Delete all journal records and exit")
	fs.Parse(args)

	rt, err := newRuntime(*configFile, nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	defer rt.close()

	if *clear {
		n, err := rt.journal.Clear()
		if err != nil {
			return fmt.Errorf("clearing journal: %w", err)
		}
		fmt.Printf("cleared %d record(s)\n", n)
		return nil
	}

	var vlanFilter *int
	if *vlan != 0 {
		vlanFilter = vlan
	}
	records, err := rt.journal.History(vlanFilter, *last)
	if err != nil {
		return fmt.Errorf("reading journal: %w", err)
	}

	if *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	fmt.Printf("%-5s %-6s %-16s %-18s %-20s %8s  %s\n", "ID", "VLAN", "IP", "MAC", "TIMESTAMP", "DUR(S)", "MODULES")
	for _, r := range records {
		fmt.Printf("%-5d %-6d %-16s %-18s %-20s %8.2f  %v\n",
			r.ID, r.VlanID, r.IP, r.MAC, r.Timestamp.Format("2006-01-02T15:04:05"), r.DurationSec, r.ModulesRun)
	}
	return nil
}
