// Package ctlplane implements Chaos Bot's HTTP control plane.
//
// # Overview
//
// The control plane is a single unprivileged-looking HTTP server (it
// in fact shares the process with the privileged Hopper) that exposes
// idempotent start/stop/hop/trigger commands, status and history
// reads, and an SSE log stream. It never touches the kernel network
// stack directly — every state transition is delegated to the Hopper,
// which owns that exclusively while Hopping or Attacking.
//
// # Architecture
//
//	HTTP client → mux → handler → hopper.Hopper / journal.Journal (guarded)
//
// Commands that spawn work (hop, start, trigger) launch a detached
// goroutine and return immediately; the SSE endpoint holds one
// goroutine per connected client for the stream's lifetime.
package ctlplane
