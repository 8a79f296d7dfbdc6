package modules

import (
	"context"
	"crypto/tls"
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"time"
)

var badUserAgents = []string{
	"sqlmap/1.7#stable (https://sqlmap.org)",
	"nikto/2.5.0",
	"gobuster/3.6",
	"dirbuster/1.0",
	"Mozilla/5.0 (compatible; Nmap Scripting Engine; https://nmap.org/book/nse.html)",
	"masscan/1.3 (https://github.com/robertdavidgraham/masscan)",
}

var pathTraversals = []string{
	"/../../etc/passwd",
	"/..%2f..%2fetc%2fpasswd",
	"/%2e%2e/%2e%2e/etc/passwd",
	"/....//....//etc/passwd",
}

var sqliPayloads = []string{
	"' OR '1'='1",
	"' UNION SELECT NULL--",
	"1; DROP TABLE users--",
	"admin'--",
}

var xssPayloads = []string{
	"<script>alert('XSS')</script>",
	"<img src=x onerror=alert(1)>",
	"<svg onload=alert(1)>",
}

var honeypotPaths = []string{
	"/admin", "/wp-login.php", "/wp-admin/", "/.env", "/.git/HEAD",
	"/.git/config", "/server-status", "/phpinfo.php", "/actuator/env",
	"/api/v1/admin", "/console", "/debug", "/.aws/credentials",
	"/config.json", "/robots.txt", "/.well-known/security.txt",
}

type httpProbeReq struct {
	kind    string
	url     string
	headers map[string]string
}

// HTTPProbe builds and sends a fixed menu of suspicious requests per
// target (bad user-agent, path traversal, SQLi, XSS, honeypot
// enumeration, wrong-Host header), source-address-bound, 5s timeout,
// no redirects, grounded on original_source's http_probe.py.
type HTTPProbe struct{}

func NewHTTPProbe() *HTTPProbe { return &HTTPProbe{} }

func (h *HTTPProbe) Name() string { return "http_probe" }

func (h *HTTPProbe) Run(ctx context.Context, cap *Capability, targets []string) Report {
	var extraPaths []string
	if modCfg, ok := cap.Config.Modules[h.Name()]; ok {
		if v, ok := modCfg.Extra["paths"].([]string); ok {
			extraPaths = v
		}
	}

	client := h.newClient(cap.SourceIP)
	shuffled := shuffleCopy(targets)
	var details []map[string]any

	for _, target := range shuffled {
		baseURL := "http://" + target
		probes := buildProbes(baseURL, extraPaths)
		rand.Shuffle(len(probes), func(i, j int) { probes[i], probes[j] = probes[j], probes[i] })

		for _, probe := range probes {
			if cap.DryRun {
				details = append(details, map[string]any{"target": target, "probe_type": probe.kind, "url": probe.url, "status": "dry-run"})
				continue
			}
			details = append(details, sendHTTPProbe(ctx, client, probe))
			time.Sleep(randDuration(0.3, 2.0))
		}
	}

	return Report{
		Status:  StatusComplete,
		Summary: fmt.Sprintf("sent %d HTTP probes to %d targets", len(details), len(shuffled)),
		Details: details,
	}
}

func (h *HTTPProbe) newClient(sourceIP string) *http.Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
	}
	if sourceIP != "" && sourceIP != "0.0.0.0" {
		if ip := net.ParseIP(sourceIP); ip != nil {
			dialer := &net.Dialer{LocalAddr: &net.TCPAddr{IP: ip}, Timeout: 5 * time.Second}
			transport.DialContext = dialer.DialContext
		}
	}
	return &http.Client{
		Timeout:   5 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

func buildProbes(baseURL string, extraPaths []string) []httpProbeReq {
	probes := []httpProbeReq{
		{kind: "bad_useragent", url: baseURL + "/", headers: map[string]string{"User-Agent": choice(badUserAgents)}},
		{kind: "path_traversal", url: baseURL + choice(pathTraversals)},
		{kind: "sqli", url: baseURL + "/search?q=" + sqliPayloads[rand.Intn(len(sqliPayloads))] + "&id=1"},
		{kind: "xss", url: baseURL + "/search?q=" + xssPayloads[rand.Intn(len(xssPayloads))]},
		{kind: "reverse_proxy_probe", url: baseURL + "/", headers: map[string]string{"Host": "internal.admin.local"}},
	}

	paths := append(append([]string{}, honeypotPaths...), extraPaths...)
	shuffledPaths := shuffleCopy(paths)
	n := 5
	if n > len(shuffledPaths) {
		n = len(shuffledPaths)
	}
	for _, p := range shuffledPaths[:n] {
		probes = append(probes, httpProbeReq{kind: "honeypot_path", url: baseURL + p})
	}
	return probes
}

func sendHTTPProbe(ctx context.Context, client *http.Client, probe httpProbeReq) map[string]any {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.url, nil)
	if err != nil {
		return map[string]any{"target": probe.url, "probe_type": probe.kind, "status": "error", "message": err.Error()}
	}
	for k, v := range probe.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return map[string]any{"target": probe.url, "probe_type": probe.kind, "status": "error", "message": err.Error()}
	}
	defer resp.Body.Close()

	return map[string]any{
		"target":         probe.url,
		"probe_type":     probe.kind,
		"status_code":    resp.StatusCode,
		"content_length": resp.ContentLength,
		"status":         "complete",
	}
}
