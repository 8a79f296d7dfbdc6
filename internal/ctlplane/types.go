package ctlplane

import (
	"time"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/hopper"
)

// statusResponse is GET /api/v1/status.
type statusResponse struct {
	State       hopper.HopperState `json:"state"`
	VlanID      int                `json:"vlan_id,omitempty"`
	IP          string             `json:"ip,omitempty"`
	Iface       string             `json:"iface,omitempty"`
	UptimeSec   float64            `json:"uptime_sec"`
	DaemonMode  bool               `json:"daemon_mode"`
	LastSummary *hopper.HopSummary `json:"last_summary,omitempty"`
}

// startRequest is POST /api/v1/start's optional body.
type startRequest struct {
	Vlans []int `json:"vlans,omitempty"`
}

// triggerRequest is POST /api/v1/trigger's body.
type triggerRequest struct {
	Modules []string `json:"modules"`
	Targets []string `json:"targets"`
}

// errorResponse is every non-2xx JSON body.
type errorResponse struct {
	Error string `json:"error"`
}

// historyResponse is GET /api/v1/history.
type historyResponse struct {
	Records []historyRecord `json:"records"`
}

type historyRecord struct {
	ID          int64     `json:"id"`
	VlanID      int       `json:"vlan_id"`
	IP          string    `json:"ip"`
	MAC         string    `json:"mac"`
	Timestamp   time.Time `json:"timestamp"`
	ModulesRun  []string  `json:"modules_run"`
	DurationSec float64   `json:"duration_sec"`
}

// modulesResponse is GET /api/v1/modules.
type modulesResponse struct {
	Modules []string `json:"modules"`
}

// targetsResponse is GET /api/v1/targets.
type targetsResponse struct {
	Vlans []config.VlanSpec `json:"vlans"`
}

// configResponse wraps GET /api/v1/config so secrets never round-trip.
type configResponse struct {
	Config config.Config `json:"config"`
}
