package modules

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"chaosbot.dev/chaos-bot/internal/config"
)

type fakeModule struct {
	name    string
	calls   *int
	panics  bool
	lastTgt []string
}

func (f *fakeModule) Name() string { return f.name }

func (f *fakeModule) Run(ctx context.Context, cap *Capability, targets []string) Report {
	*f.calls++
	f.lastTgt = targets
	if f.panics {
		panic("boom")
	}
	return Report{Status: StatusComplete, Summary: "ok"}
}

type noopStop struct{ stopped bool }

func (n *noopStop) Stopped() bool { return n.stopped }
func (n *noopStop) Wait(d time.Duration) {
	if n.stopped {
		return
	}
}

func TestRunOnceInvokesAllModulesWithTargets(t *testing.T) {
	calls := 0
	m1 := &fakeModule{name: "a", calls: &calls}
	m2 := &fakeModule{name: "b", calls: &calls}

	reg := &Registry{modules: map[string]Module{"a": m1, "b": m2}, order: []string{"a", "b"}}
	runner := NewRunner(reg)

	cap := &Capability{Config: &config.Config{}}
	reports := runner.RunOnce(context.Background(), cap, []string{"a", "b"}, []string{"10.0.1.1"}, 0, 0, &noopStop{})

	assert.Equal(t, 2, calls)
	assert.Len(t, reports, 2)
	assert.Equal(t, []string{"10.0.1.1"}, m1.lastTgt)
	assert.Equal(t, []string{"10.0.1.1"}, m2.lastTgt)
}

func TestRunOnceRecoversFromPanic(t *testing.T) {
	calls := 0
	m1 := &fakeModule{name: "a", calls: &calls, panics: true}

	reg := &Registry{modules: map[string]Module{"a": m1}, order: []string{"a"}}
	runner := NewRunner(reg)

	cap := &Capability{Config: &config.Config{}}
	reports := runner.RunOnce(context.Background(), cap, []string{"a"}, nil, 0, 0, nil)

	assert.Len(t, reports, 1)
	assert.Equal(t, StatusError, reports[0].Status)
	assert.Contains(t, reports[0].Summary, "panic")
}

func TestRunOnceStopsEarly(t *testing.T) {
	calls := 0
	m1 := &fakeModule{name: "a", calls: &calls}
	m2 := &fakeModule{name: "b", calls: &calls}

	reg := &Registry{modules: map[string]Module{"a": m1, "b": m2}, order: []string{"a", "b"}}
	runner := NewRunner(reg)

	cap := &Capability{Config: &config.Config{}}
	reports := runner.RunOnce(context.Background(), cap, []string{"a", "b"}, nil, 0, 0, &noopStop{stopped: true})

	assert.Empty(t, reports)
	assert.Equal(t, 0, calls)
}

func TestRunOneUnknownModule(t *testing.T) {
	reg := &Registry{modules: map[string]Module{}, order: nil}
	runner := NewRunner(reg)
	report := runner.runOne(context.Background(), &Capability{}, "ghost", nil)
	assert.Equal(t, StatusError, report.Status)
}

func TestUniformClampsWhenMaxNotGreater(t *testing.T) {
	assert.Equal(t, 1.0, uniform(1.0, 1.0))
	assert.Equal(t, 2.0, uniform(2.0, 1.0))
}

type fakeMetricsSink struct {
	outcomes map[string]string
}

func (f *fakeMetricsSink) IncModuleOutcome(module, outcome string) {
	if f.outcomes == nil {
		f.outcomes = map[string]string{}
	}
	f.outcomes[module] = outcome
}

func TestRunOneRecordsMetricsOutcome(t *testing.T) {
	calls := 0
	m1 := &fakeModule{name: "a", calls: &calls}
	reg := &Registry{modules: map[string]Module{"a": m1}, order: []string{"a"}}
	runner := NewRunner(reg)

	sink := &fakeMetricsSink{}
	cap := &Capability{Config: &config.Config{}, Metrics: sink}
	runner.runOne(context.Background(), cap, "a", nil)

	assert.Equal(t, "complete", sink.outcomes["a"])
}

func TestRunOneRecordsMetricsOutcomeOnPanic(t *testing.T) {
	calls := 0
	m1 := &fakeModule{name: "a", calls: &calls, panics: true}
	reg := &Registry{modules: map[string]Module{"a": m1}, order: []string{"a"}}
	runner := NewRunner(reg)

	sink := &fakeMetricsSink{}
	cap := &Capability{Config: &config.Config{}, Metrics: sink}
	runner.runOne(context.Background(), cap, "a", nil)

	assert.Equal(t, "error", sink.outcomes["a"])
}
