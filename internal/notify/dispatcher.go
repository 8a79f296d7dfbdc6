// Package notify dispatches external notifications for hop-cycle
// summaries and hopper errors, gated by a configured minimum level.
package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/hopper"
	"chaosbot.dev/chaos-bot/internal/logging"
)

// Level constants, ordered low to high.
const (
	LevelInfo     = "info"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

var levelRank = map[string]int{
	LevelInfo:     1,
	LevelWarning:  2,
	LevelCritical: 3,
}

// Notification is the payload posted to the configured webhook.
type Notification struct {
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Level     string    `json:"level"`
	Timestamp time.Time `json:"timestamp"`
}

// Poster sends a built notification; Dispatcher's real implementation
// POSTs JSON to a webhook URL, tests substitute a mock.
type Poster interface {
	Post(n Notification) error
}

// WebhookPoster POSTs the notification as JSON to a single webhook URL.
// Slack- and Discord-compatible endpoints both accept a bare "text"
// field, so no per-provider branching is needed.
type WebhookPoster struct {
	URL    string
	Client *http.Client
}

func (w *WebhookPoster) Post(n Notification) error {
	if w.URL == "" {
		return fmt.Errorf("missing webhook_url")
	}
	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}

	payload := map[string]any{
		"text": fmt.Sprintf("*%s*\n%s\n_Level: %s_", n.Title, n.Message, n.Level),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// FailureSink records a notify failure, e.g. for metrics; optional.
type FailureSink interface {
	RecordNotifyFailure(level string)
}

// Dispatcher gates outgoing notifications by the configured minimum
// level and implements hopper.Notifier so HopOnce can fire-and-forget
// a cycle summary. Sends run on their own goroutine; a slow or
// unreachable webhook never blocks the hop cycle that triggered it.
type Dispatcher struct {
	mu       sync.RWMutex
	cfg      config.NotificationsConfig
	poster   Poster
	logger   *logging.Logger
	failures FailureSink
}

// NewDispatcher constructs a Dispatcher. poster defaults to a
// WebhookPoster against cfg.WebhookURL if nil.
func NewDispatcher(cfg config.NotificationsConfig, poster Poster, logger *logging.Logger, failures FailureSink) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	if poster == nil {
		poster = &WebhookPoster{URL: cfg.WebhookURL}
	}
	return &Dispatcher{
		cfg:      cfg,
		poster:   poster,
		logger:   logger.WithComponent("notify"),
		failures: failures,
	}
}

// UpdateConfig swaps the live config, e.g. after a PUT /api/v1/config.
func (d *Dispatcher) UpdateConfig(cfg config.NotificationsConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
}

var _ hopper.Notifier = (*Dispatcher)(nil)

// NotifyCycleSummary implements hopper.Notifier. It formats the
// summary the way the original Apprise notifier did and dispatches it
// asynchronously at info level, or at critical level with the summary's
// message as the body when its status is "error".
func (d *Dispatcher) NotifyCycleSummary(summary hopper.HopSummary) {
	modules := strings.Join(summary.ModulesRun, ", ")
	body := fmt.Sprintf("VLAN %d | IP %s | %.1fs\nModules: %s", summary.VlanID, summary.IP, summary.DurationSec, modules)
	level := LevelInfo
	if summary.Status == "error" {
		level = LevelCritical
		body = summary.Message
	}
	d.Send(level, "Chaos Bot — Cycle Complete", body)
}

// NotifyError sends a critical-level notification for an error that
// did not flow through a HopSummary (e.g. config reload failure).
func (d *Dispatcher) NotifyError(message string) {
	d.Send(LevelCritical, "Chaos Bot — Error", message)
}

// Send dispatches one notification if the level clears the configured
// minimum; an empty minimum lets every level through.
func (d *Dispatcher) Send(level, title, message string) {
	d.mu.RLock()
	cfg := d.cfg
	d.mu.RUnlock()

	if !shouldSend(level, cfg.MinLevel) {
		return
	}

	n := Notification{Title: title, Message: message, Level: level, Timestamp: time.Now()}
	go func() {
		if err := d.poster.Post(n); err != nil {
			d.logger.Warn("notification dispatch failed", "level", level, "error", err)
			if d.failures != nil {
				d.failures.RecordNotifyFailure(level)
			}
		}
	}()
}

func shouldSend(level, minLevel string) bool {
	if minLevel == "" {
		return true
	}
	m, ok := levelRank[strings.ToLower(level)]
	if !ok {
		m = levelRank[LevelInfo]
	}
	c, ok := levelRank[strings.ToLower(minLevel)]
	if !ok {
		c = levelRank[LevelInfo]
	}
	return m >= c
}
