package cmd

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/supervisor"
)

// RunConfig implements the `config` subcommand: validates a config
// file (the same load-and-validate path every other subcommand runs
// through) and, with --show, prints the resolved and defaulted tree.
func RunConfig(args []string) error {
	fs := flag.NewFlagSet("config", flag.ExitOnError)
	configFile := fs.String("config", "", "Configuration file path")
	show := fs.Bool("show", false, "Print the resolved, defaulted configuration")
	format := fs.String("format", "yaml", "Output format for --show: yaml|json")
	fs.Parse(args)

	path := *configFile
	if path == "" {
		paths := config.SearchPaths("")
		for _, p := range paths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return fmt.Errorf("no config file found in search path")
		}
	}

	cfg, err := supervisor.ReloadConfig(path)
	if err != nil {
		return fmt.Errorf("config %q is invalid: %w", path, err)
	}

	fmt.Printf("config %q is valid\n", path)
	if !*show {
		return nil
	}

	if *format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}
