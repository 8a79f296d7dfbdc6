package ctlplane

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"chaosbot.dev/chaos-bot/internal/hopper"
	"chaosbot.dev/chaos-bot/internal/modules"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.hopper.Status()
	last := s.hopper.LastSummary()

	s.daemonMu.Lock()
	daemonMode := s.daemonRunning
	s.daemonMu.Unlock()

	resp := statusResponse{
		State:      status.State,
		VlanID:     status.VlanID,
		IP:         status.IP,
		Iface:      status.Iface,
		UptimeSec:  time.Since(s.startTime).Seconds(),
		DaemonMode: daemonMode,
	}
	if last.Status != "" {
		resp.LastSummary = &last
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleHop spawns a one-shot hop and returns immediately per spec
// §4.7/§5: the Control Plane never blocks an HTTP request on a hop
// cycle.
func (s *Server) handleHop(w http.ResponseWriter, r *http.Request) {
	state := s.hopper.Status().State
	if state == hopper.StateAttacking || state == hopper.StateHopping {
		writeError(w, http.StatusConflict, fmt.Sprintf("hopper is %s", state))
		return
	}

	vlans := parseVlanFilter(r)
	go s.hopper.HopOnce(context.Background(), vlans)

	writeJSON(w, http.StatusOK, map[string]string{"status": "hop_triggered"})
}

// handleStart launches the daemon loop on a detached goroutine.
// Idempotent: a second start while one is running returns
// already_running without side effects.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.daemonMu.Lock()
	if s.daemonRunning {
		s.daemonMu.Unlock()
		writeJSON(w, http.StatusOK, map[string]string{"status": "already_running"})
		return
	}

	state := s.hopper.Status().State
	if state != hopper.StateIdle && state != hopper.StateCooldown {
		s.daemonMu.Unlock()
		writeError(w, http.StatusConflict, "hopper is busy")
		return
	}

	var req startRequest
	if r.ContentLength != 0 {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.daemonCancel = cancel
	s.daemonRunning = true
	s.daemonMu.Unlock()

	go func() {
		s.hopper.RunDaemon(ctx, req.Vlans)
		s.daemonMu.Lock()
		s.daemonRunning = false
		s.daemonCancel = nil
		s.daemonMu.Unlock()
	}()

	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// handleStop requests a stop and returns immediately; the daemon loop
// (if any) exits after its current hop's teardown completes, and any
// ActiveHop is torn down immediately per the Hopper's stop semantics.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.hopper.Stop()

	s.daemonMu.Lock()
	if s.daemonCancel != nil {
		s.daemonCancel()
	}
	s.daemonMu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"status": "stop_requested"})
}

// handleTrigger runs selected modules against selected targets without
// hopping, using the management IP as source (supplemented feature,
// spec §4.7).
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	state := s.hopper.Status().State
	if state == hopper.StateAttacking || state == hopper.StateHopping {
		writeError(w, http.StatusConflict, "hopper is busy")
		return
	}

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if len(req.Modules) == 0 || len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "modules and targets must be non-empty")
		return
	}
	for _, name := range req.Modules {
		if _, ok := s.registry.Get(name); !ok {
			writeError(w, http.StatusBadRequest, "unknown module: "+name)
			return
		}
	}

	s.mu.RLock()
	cfg := s.cfg
	s.mu.RUnlock()

	union := cfg.TargetsUnion()
	for _, t := range req.Targets {
		if !union[t] {
			writeError(w, http.StatusBadRequest, "target not in configured vlans[*].targets/gateway union: "+t)
			return
		}
	}

	cap := &modules.Capability{
		SourceIP:  cfg.General.ManagementIP,
		Interface: cfg.General.Interface,
		Config:    cfg,
		Metrics:   s.metrics,
		Logger:    s.logger,
		Executor:  s.exec,
		DryRun:    cfg.General.DryRun,
	}

	runner := modules.NewRunner(s.registry)
	go runner.RunOnce(context.Background(), cap, req.Modules, req.Targets, cfg.Schedule.ModuleDelayMin, cfg.Schedule.ModuleDelayMax, noopStopSignal{})

	writeJSON(w, http.StatusOK, map[string]string{"status": "triggered"})
}

// noopStopSignal lets a /trigger run use modules.Runner.RunOnce, which
// requires a StopSignal, without wiring it to the Hopper's own
// cancellation token — a trigger run is independent of hop cycles.
type noopStopSignal struct{}

func (noopStopSignal) Stopped() bool        { return false }
func (noopStopSignal) Wait(d time.Duration) { time.Sleep(d) }

func parseVlanFilter(r *http.Request) []int {
	raw := r.URL.Query()["vlan"]
	if len(raw) == 0 {
		return nil
	}
	var out []int
	for _, v := range raw {
		if n, err := strconv.Atoi(v); err == nil {
			out = append(out, n)
		}
	}
	return out
}
