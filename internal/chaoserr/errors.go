// Package chaoserr defines the error taxonomy shared across the hopper,
// control plane, and CLI.
package chaoserr

import (
	"errors"
	"fmt"
)

// Sentinel errors. Wrap with fmt.Errorf("...: %w", Err*) for context;
// callers distinguish cases with errors.Is.
var (
	// ErrConfig covers a missing/empty config file, a missing required
	// section, empty vlans, or a malformed VLAN entry. Fatal at startup.
	ErrConfig = errors.New("config error")

	// ErrCommandFailed is raised by the Command Executor when a
	// mustSucceed invocation exits non-zero or times out.
	ErrCommandFailed = errors.New("command failed")

	// ErrDHCPFailed means every DHCP attempt in a hop failed to yield
	// an address.
	ErrDHCPFailed = errors.New("dhcp failed")

	// ErrNoTargets means discovery and the VLAN's static target list
	// were both empty.
	ErrNoTargets = errors.New("no targets")

	// ErrStateViolation is returned by control-plane guards when the
	// hopper is not in a state that permits the requested transition.
	ErrStateViolation = errors.New("state violation")

	// ErrValidation covers a malformed request: unknown module name,
	// target outside the configured union, bad JSON body.
	ErrValidation = errors.New("validation error")
)

// CommandError carries the argv and exit detail of a failed command.
type CommandError struct {
	Argv     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command %v failed (exit %d): %s", e.Argv, e.ExitCode, e.Stderr)
}

func (e *CommandError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrCommandFailed
}

// ModuleError wraps a panic or error surfaced by a probe module's Run.
// It never escapes the Module Runner; it becomes a ModuleReport with
// status "error" instead.
type ModuleError struct {
	Module string
	Err    error
}

func (e *ModuleError) Error() string {
	return fmt.Sprintf("module %s: %v", e.Module, e.Err)
}

func (e *ModuleError) Unwrap() error {
	return e.Err
}

// ConfigErrorf wraps ErrConfig with context.
func ConfigErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrConfig)...)
}

// ValidationErrorf wraps ErrValidation with context.
func ValidationErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrValidation)...)
}

// StateViolationf wraps ErrStateViolation with context.
func StateViolationf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrStateViolation)...)
}

// DHCPErrorf wraps ErrDHCPFailed with context.
func DHCPErrorf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrDHCPFailed)...)
}
