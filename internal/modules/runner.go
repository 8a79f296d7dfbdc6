package modules

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// StopSignal is the cancellation token the hopper and control plane
// share; Runner polls it at module boundaries and mid-sleep so a stop
// request takes effect promptly rather than after the whole run.
type StopSignal interface {
	Stopped() bool
	Wait(d time.Duration) // returns early if stopped before d elapses
}

// Runner executes a shuffled module set against a target set once,
// isolating any per-module panic or error into an error-status report
// rather than aborting the hop.
type Runner struct {
	registry *Registry
}

// NewRunner constructs a Runner bound to a module registry.
func NewRunner(registry *Registry) *Runner {
	return &Runner{registry: registry}
}

// RunOnce runs every name in names (already filtered to enabled
// modules) against targets in a uniformly random order, isolating
// failures and pacing jittered sleeps between modules (not after the
// last) in [delayMin, delayMax] seconds, interruptible by stop.
func (r *Runner) RunOnce(ctx context.Context, cap *Capability, names []string, targets []string, delayMin, delayMax float64, stop StopSignal) []Report {
	order := make([]string, len(names))
	copy(order, names)
	rand.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	reports := make([]Report, 0, len(order))

	for i, name := range order {
		if stop != nil && stop.Stopped() {
			break
		}

		report := r.runOne(ctx, cap, name, targets)
		reports = append(reports, report)

		if i != len(order)-1 {
			delay := uniform(delayMin, delayMax)
			waitInterruptible(stop, time.Duration(delay*float64(time.Second)))
			if stop != nil && stop.Stopped() {
				break
			}
		}
	}

	return reports
}

// runOne invokes one module's Run, converting a panic into an
// error-status report so the runner loop is never aborted.
func (r *Runner) runOne(ctx context.Context, cap *Capability, name string, targets []string) (report Report) {
	defer func() {
		if rec := recover(); rec != nil {
			report = Report{Module: name, Status: StatusError, Summary: fmt.Sprintf("panic: %v", rec)}
		}
		if cap.Metrics != nil {
			cap.Metrics.IncModuleOutcome(name, string(report.Status))
		}
	}()

	module, ok := r.registry.Get(name)
	if !ok {
		return Report{Module: name, Status: StatusError, Summary: fmt.Sprintf("unknown module %q", name)}
	}

	report = module.Run(ctx, cap, targets)
	report.Module = name
	return report
}

func uniform(min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rand.Float64()*(max-min)
}

func waitInterruptible(stop StopSignal, d time.Duration) {
	if stop == nil {
		time.Sleep(d)
		return
	}
	stop.Wait(d)
}
