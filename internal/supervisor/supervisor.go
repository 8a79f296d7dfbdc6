// Package supervisor wires the Control Plane and the Hopper daemon loop
// together under one signal-driven shutdown path. It owns no network or
// kernel state itself; it only starts/stops the goroutines that do.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/ctlplane"
	"chaosbot.dev/chaos-bot/internal/hopper"
	"chaosbot.dev/chaos-bot/internal/logging"
)

// Supervisor runs the HTTP control plane and, optionally, the Hopper's
// daemon loop, and joins both on SIGINT/SIGTERM.
type Supervisor struct {
	server *ctlplane.Server
	hopper *hopper.Hopper
	logger *logging.Logger
}

func New(server *ctlplane.Server, h *hopper.Hopper, logger *logging.Logger) *Supervisor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Supervisor{server: server, hopper: h, logger: logger.WithComponent("supervisor")}
}

// Run starts the control plane, optionally the daemon hop loop, and blocks
// until SIGINT/SIGTERM or ctx is cancelled. Every worker is joined before
// Run returns, per the single-stopSignal cancellation model: signals map
// directly to the Hopper's own stop() and to the control plane's graceful
// Shutdown, never to an in-place flag mutation read by a handler.
func (s *Supervisor) Run(ctx context.Context, daemon bool, vlans []int) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var wg sync.WaitGroup
	errCh := make(chan error, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := s.server.ListenAndServe(runCtx); err != nil {
			select {
			case errCh <- fmt.Errorf("control plane: %w", err):
			default:
			}
		}
	}()

	if daemon {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.hopper.RunDaemon(runCtx, vlans)
		}()
	}

	select {
	case <-runCtx.Done():
		s.hopper.Stop()
	case sig := <-sigCh:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		s.hopper.Stop()
		cancel()
	case err := <-errCh:
		s.logger.Error("control plane exited unexpectedly", "error", err)
		cancel()
		wg.Wait()
		return err
	}

	wg.Wait()
	s.logger.Info("shutdown complete")
	return nil
}

// ReloadConfig loads and validates the config at path and returns it; it
// does not install it into the control plane or the hopper. There is no SIGHUP
// wiring here: the control plane's PUT /config already serializes config
// replacement under a lock, so a second independent reload path would
// race it without synchronization benefit.
func ReloadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFile(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
