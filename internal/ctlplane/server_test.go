package ctlplane

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/executor"
	"chaosbot.dev/chaos-bot/internal/hopper"
	"chaosbot.dev/chaos-bot/internal/journal"
	"chaosbot.dev/chaos-bot/internal/modules"
)

func testConfig() *config.Config {
	return &config.Config{
		General: config.General{Interface: "eth1", ManagementIP: "10.0.0.5", DryRun: true},
		Vlans: []config.VlanSpec{
			{ID: 30, Name: "guest", Gateway: "10.30.30.1", Targets: []string{"10.30.30.10"}},
		},
		Modules: map[string]config.ModuleConfig{
			"net_scanner": {Enabled: true},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := testConfig()
	jrn, err := journal.Open(journal.Options{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { jrn.Close() })

	exec := executor.NewReal(cfg.General.DryRun, nil)
	registry := modules.NewRegistry()
	h := hopper.New(cfg, registry, jrn, exec, nil, nil, nil)

	s := NewServer(cfg, filepath.Join(t.TempDir(), "config.yml"), h, registry, jrn, exec, nil, nil)
	return s
}

func TestHandleStatusReportsIdle(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, hopper.StateIdle, resp.State)
	assert.False(t, resp.DaemonMode)
}

func TestHandleHopReturnsTriggered(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/hop", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "hop_triggered", resp["status"])
}

func TestHandleHopRejectsWhenBusy(t *testing.T) {
	s := newTestServer(t)
	s.hopper.HopToVLAN(context.Background(), 30)
	t.Cleanup(func() { s.hopper.TeardownCurrent() })

	req := httptest.NewRequest(http.MethodPost, "/api/v1/hop", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusConflict, rr.Code)
	var errResp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &errResp))
	assert.Contains(t, errResp["error"], string(s.hopper.Status().State))
}

func TestHandleStartIsIdempotent(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/start", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	s.daemonMu.Lock()
	s.daemonRunning = true
	s.daemonMu.Unlock()

	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/start", nil)
	rr2 := httptest.NewRecorder()
	s.ServeHTTP(rr2, req2)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr2.Body.Bytes(), &resp))
	assert.Equal(t, "already_running", resp["status"])
}

func TestHandleTriggerValidatesModulesAndTargets(t *testing.T) {
	s := newTestServer(t)

	body := []byte(`{"modules":["bogus_module"],"targets":["10.30.30.10"]}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trigger", bytes.NewReader(body))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	body2 := []byte(`{"modules":["net_scanner"],"targets":["192.0.2.1"]}`)
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/trigger", bytes.NewReader(body2))
	rr2 := httptest.NewRecorder()
	s.ServeHTTP(rr2, req2)
	assert.Equal(t, http.StatusBadRequest, rr2.Code)

	body3 := []byte(`{"modules":["net_scanner"],"targets":["10.30.30.10"]}`)
	req3 := httptest.NewRequest(http.MethodPost, "/api/v1/trigger", bytes.NewReader(body3))
	rr3 := httptest.NewRecorder()
	s.ServeHTTP(rr3, req3)
	assert.Equal(t, http.StatusOK, rr3.Code)
}

func TestHandleHistoryEmptyJournal(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/history", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp historyResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Empty(t, resp.Records)
}

func TestHandleGetConfigRedactsCredentials(t *testing.T) {
	s := newTestServer(t)
	s.cfg.Credentials = map[string]string{"admin": "hunter2"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/config", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp configResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "***", resp.Config.Credentials["admin"])
}

func TestHandlePutConfigDeepMerges(t *testing.T) {
	s := newTestServer(t)

	patch := []byte(`{"general":{"log_level":"debug"}}`)
	req := httptest.NewRequest(http.MethodPut, "/api/v1/config", bytes.NewReader(patch))
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp configResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "debug", resp.Config.General.LogLevel)
	assert.Equal(t, "eth1", resp.Config.General.Interface)
}

func TestHandleModulesListsRegistry(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/modules", nil)
	rr := httptest.NewRecorder()
	s.ServeHTTP(rr, req)

	var resp modulesResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Contains(t, resp.Modules, "net_scanner")
}
