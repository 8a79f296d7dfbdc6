package ctlplane

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/executor"
	"chaosbot.dev/chaos-bot/internal/hopper"
	"chaosbot.dev/chaos-bot/internal/journal"
	"chaosbot.dev/chaos-bot/internal/logging"
	"chaosbot.dev/chaos-bot/internal/modules"
)

// Server is Chaos Bot's HTTP control plane: every endpoint in spec
// §4.7 translates directly to a method here. It owns no kernel
// resources itself — all of those belong to the Hopper, which the
// Server only ever commands through its guarded public methods.
type Server struct {
	mu      sync.RWMutex
	cfg     *config.Config
	cfgPath string

	hopper   *hopper.Hopper
	registry *modules.Registry
	journal  *journal.Journal
	exec     executor.Executor
	metrics  modules.MetricsSink
	logger   *logging.Logger
	evebox   *eveboxProxy

	startTime time.Time

	daemonMu      sync.Mutex
	daemonRunning bool
	daemonCancel  context.CancelFunc

	mux *http.ServeMux
}

// NewServer wires the control plane against a live Hopper. metrics may
// be nil (no Prometheus export configured).
func NewServer(cfg *config.Config, cfgPath string, h *hopper.Hopper, registry *modules.Registry, jrn *journal.Journal, exec executor.Executor, metrics modules.MetricsSink, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Default()
	}
	s := &Server{
		cfg:       cfg,
		cfgPath:   cfgPath,
		hopper:    h,
		registry:  registry,
		journal:   jrn,
		exec:      exec,
		metrics:   metrics,
		logger:    logger.WithComponent("ctlplane"),
		evebox:    newEveboxProxy(cfg.Evebox),
		startTime: time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler so callers can mount the Server
// directly or wrap it in middleware (request logging, recovery).
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe starts a blocking HTTP server on cfg.Web.Host:Port.
// Returns when ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := s.cfg.Web.Host
	if s.cfg.Web.Port != 0 {
		addr = addrWithPort(s.cfg.Web.Host, s.cfg.Web.Port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) routes() {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("POST /api/v1/hop", s.handleHop)
	mux.HandleFunc("POST /api/v1/start", s.handleStart)
	mux.HandleFunc("POST /api/v1/stop", s.handleStop)
	mux.HandleFunc("POST /api/v1/trigger", s.handleTrigger)
	mux.HandleFunc("GET /api/v1/history", s.handleHistory)
	mux.HandleFunc("GET /api/v1/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/v1/config", s.handlePutConfig)
	mux.HandleFunc("GET /api/v1/modules", s.handleModules)
	mux.HandleFunc("GET /api/v1/targets", s.handleTargets)
	mux.HandleFunc("GET /api/v1/logs", s.handleLogStream)
	mux.HandleFunc("GET /api/v1/alerts", s.handleAlerts)
	if s.cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	s.mux = mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

func addrWithPort(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return host + ":" + strconv.Itoa(port)
}
