// Package executor provides the single abstraction through which the
// hopper and discovery invoke external binaries (ip, dhclient, nmap).
// Every privileged kernel mutation goes through this interface so it
// can be mocked in tests and suppressed entirely in dry-run mode.
package executor

import (
	"context"
	"os/exec"
	"time"

	"chaosbot.dev/chaos-bot/internal/chaoserr"
	"chaosbot.dev/chaos-bot/internal/logging"
)

// dryRunLeaseIP is the deterministic fake lease address a dry-run
// "ip -4 -o addr show <iface>" query reports, matching the original's
// _obtain_dhcp dry-run shortcut so hopper's address-parsing logic is
// exercised identically in dry-run and live mode.
const dryRunLeaseIP = "192.168.0.100"

// Result is the outcome of one command invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Executor runs an argv-form external command. name is the first
// argument, args the remainder; never a shell string.
type Executor interface {
	// Run executes argv[0] with argv[1:] under the given timeout.
	// If mustSucceed is true, a non-zero exit or timeout returns a
	// *chaoserr.CommandError wrapping chaoserr.ErrCommandFailed; if
	// false, the failure is returned in Result/err for the caller to
	// decide (teardown steps use mustSucceed=false).
	Run(ctx context.Context, timeout time.Duration, mustSucceed bool, argv ...string) (Result, error)
}

// Real shells out via os/exec. It never constructs a shell string.
type Real struct {
	DryRun bool
	Logger *logging.Logger
}

// NewReal constructs a Real executor.
func NewReal(dryRun bool, logger *logging.Logger) *Real {
	if logger == nil {
		logger = logging.Default()
	}
	return &Real{DryRun: dryRun, Logger: logger}
}

func (r *Real) Run(ctx context.Context, timeout time.Duration, mustSucceed bool, argv ...string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, chaoserr.ValidationErrorf("empty argv")
	}

	if r.DryRun {
		r.Logger.Debug("dry-run command", "argv", argv)
		return Result{ExitCode: 0, Stdout: dryRunStdout(argv)}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, argv[0], argv[1:]...)
	stdout, err := cmd.Output()

	res := Result{Stdout: string(stdout)}
	if exitErr, ok := err.(*exec.ExitError); ok {
		res.ExitCode = exitErr.ExitCode()
		res.Stderr = string(exitErr.Stderr)
	} else if err != nil {
		res.ExitCode = -1
		res.Stderr = err.Error()
	}

	r.Logger.Debug("command executed", "argv", argv, "exit_code", res.ExitCode)

	if err != nil {
		if cctx.Err() == context.DeadlineExceeded {
			res.Stderr = "timeout after " + timeout.String()
		}
		if mustSucceed {
			return res, &chaoserr.CommandError{
				Argv:     argv,
				ExitCode: res.ExitCode,
				Stderr:   res.Stderr,
				Err:      err,
			}
		}
		return res, err
	}

	return res, nil
}

// dryRunStdout returns the synthetic stdout a dry-run invocation
// produces. Address-query commands get a fake lease line so callers
// that parse "ip -4 -o addr show" output see the same shape as a real
// run; every other command gets the generic marker.
func dryRunStdout(argv []string) string {
	if len(argv) >= 5 && argv[0] == "ip" && argv[1] == "-4" && argv[2] == "-o" && argv[3] == "addr" && argv[4] == "show" {
		iface := "eth0"
		if len(argv) > 5 {
			iface = argv[5]
		}
		return iface + "    inet " + dryRunLeaseIP + "/24 brd 192.168.0.255 scope global " + iface + "\\       valid_lft forever preferred_lft forever"
	}
	return "dry-run"
}
