// Command chaos-bot drives a single host through repeated VLAN hops,
// running a configurable set of reconnaissance and noise-generation
// modules on each network it lands on.
package main

import (
	"fmt"
	"os"

	"chaosbot.dev/chaos-bot/cmd"
)

func usage() {
	fmt.Fprintln(os.Stderr, `usage: chaos-bot <command> [flags]

commands:
  run      run a single hop cycle (--once) or the continuous hop loop (--daemon)
  hop      run (or hold) a single hop cycle
  serve    run the HTTP control plane, with the daemon hop loop alongside it
  history  inspect or clear the lease journal
  config   validate (and optionally print) the resolved configuration`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmd.RunRun(os.Args[2:])
	case "hop":
		err = cmd.RunHop(os.Args[2:])
	case "serve":
		err = cmd.RunServe(os.Args[2:])
	case "history":
		err = cmd.RunHistory(os.Args[2:])
	case "config":
		err = cmd.RunConfig(os.Args[2:])
	case "-h", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "chaos-bot: unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "chaos-bot: %v\n", err)
		os.Exit(1)
	}
}
