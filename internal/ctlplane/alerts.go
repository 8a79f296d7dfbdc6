package ctlplane

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chaosbot.dev/chaos-bot/internal/config"
)

var errEveboxNotConfigured = errors.New("evebox proxy not configured")

// eveboxProxy forwards GET /api/v1/alerts to an EveBox instance using
// session-cookie auth, per the original CLI's simple GET-and-passthrough
// (spec §4.7's "proxy to an external IDS API" is otherwise unspecified).
type eveboxProxy struct {
	cfg    config.EveboxConfig
	client *http.Client
	cookie *http.Cookie
}

func newEveboxProxy(cfg config.EveboxConfig) *eveboxProxy {
	return &eveboxProxy{cfg: cfg, client: &http.Client{Timeout: 10 * time.Second}}
}

func (p *eveboxProxy) login() error {
	if p.cfg.URL == "" {
		return nil
	}
	form := url.Values{"username": {p.cfg.Username}, "password": {p.cfg.Password}}
	req, err := http.NewRequest(http.MethodPost, p.cfg.URL+"/api/1/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, c := range resp.Cookies() {
		if c.Name == "session" {
			p.cookie = c
		}
	}
	return nil
}

// fetch proxies a GET to EveBox's alert-query endpoint with the given
// time range and returns the raw response body and status code.
func (p *eveboxProxy) fetch(timeRange string) (int, []byte, error) {
	if p.cfg.URL == "" {
		return http.StatusBadGateway, nil, errEveboxNotConfigured
	}
	if p.cookie == nil {
		if err := p.login(); err != nil {
			return http.StatusBadGateway, nil, err
		}
	}

	url := p.cfg.URL + "/api/1/alerts"
	if timeRange != "" {
		url += "?time_range=" + timeRange
	}
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return http.StatusBadGateway, nil, err
	}
	if p.cookie != nil {
		req.AddCookie(p.cookie)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return http.StatusBadGateway, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return http.StatusBadGateway, nil, err
	}
	return resp.StatusCode, body, nil
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	proxy := s.evebox
	s.mu.RUnlock()

	status, body, err := proxy.fetch(r.URL.Query().Get("time_range"))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
