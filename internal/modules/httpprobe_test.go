package modules

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"chaosbot.dev/chaos-bot/internal/config"
)

func TestBuildProbesIncludesAllKinds(t *testing.T) {
	probes := buildProbes("http://10.0.1.1", nil)
	kinds := map[string]bool{}
	for _, p := range probes {
		kinds[p.kind] = true
	}
	for _, want := range []string{"bad_useragent", "path_traversal", "sqli", "xss", "reverse_proxy_probe", "honeypot_path"} {
		assert.True(t, kinds[want], "missing probe kind %q", want)
	}
}

func TestBuildProbesSamplesFiveHoneypotPaths(t *testing.T) {
	probes := buildProbes("http://10.0.1.1", nil)
	count := 0
	for _, p := range probes {
		if p.kind == "honeypot_path" {
			count++
		}
	}
	assert.Equal(t, 5, count)
}

func TestSendHTTPProbeComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	h := NewHTTPProbe()
	client := h.newClient("")
	probe := httpProbeReq{kind: "honeypot_path", url: srv.URL + "/.env"}

	result := sendHTTPProbe(context.Background(), client, probe)
	assert.Equal(t, "complete", result["status"])
	assert.Equal(t, http.StatusNotFound, result["status_code"])
}

func TestHTTPProbeRunDryRun(t *testing.T) {
	h := NewHTTPProbe()
	cap := &Capability{
		Config: &config.Config{Modules: map[string]config.ModuleConfig{}},
		DryRun: true,
	}

	report := h.Run(context.Background(), cap, []string{"10.0.1.1"})
	assert.Equal(t, StatusComplete, report.Status)
	assert.NotEmpty(t, report.Details)
	for _, d := range report.Details {
		assert.Equal(t, "dry-run", d["status"])
	}
}

func TestNewClientBindsSourceIP(t *testing.T) {
	h := NewHTTPProbe()
	client := h.newClient("127.0.0.1")
	transport, ok := client.Transport.(*http.Transport)
	assert.True(t, ok)
	assert.NotNil(t, transport.DialContext)
}

func TestSendHTTPProbeInvalidURL(t *testing.T) {
	h := NewHTTPProbe()
	client := h.newClient("")
	probe := httpProbeReq{kind: "bad_useragent", url: "http://" + strings.Repeat("x", 0) + "\x7f"}

	result := sendHTTPProbe(context.Background(), client, probe)
	assert.Equal(t, "error", result["status"])
}
