package ctlplane

import (
	"encoding/json"
	"net/http"
	"strconv"

	"gopkg.in/yaml.v3"

	"chaosbot.dev/chaos-bot/internal/chaoserr"
	"chaosbot.dev/chaos-bot/internal/config"
	"chaosbot.dev/chaos-bot/internal/hopper"
)

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var vlanFilter *int
	if raw := q.Get("vlan"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "vlan must be an integer")
			return
		}
		vlanFilter = &n
	}

	limit := 100
	if raw := q.Get("last"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "last must be an integer")
			return
		}
		limit = n
	}

	records, err := s.journal.History(vlanFilter, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := historyResponse{Records: make([]historyRecord, len(records))}
	for i, rec := range records {
		resp.Records[i] = historyRecord{
			ID:          rec.ID,
			VlanID:      rec.VlanID,
			IP:          rec.IP,
			MAC:         rec.MAC,
			Timestamp:   rec.Timestamp,
			ModulesRun:  rec.ModulesRun,
			DurationSec: rec.DurationSec,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetConfig returns the runtime config with credential values
// redacted; only key presence is meaningful to a client.
func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cfg := *s.cfg
	s.mu.RUnlock()

	if len(cfg.Credentials) > 0 {
		redacted := make(map[string]string, len(cfg.Credentials))
		for k := range cfg.Credentials {
			redacted[k] = "***"
		}
		cfg.Credentials = redacted
	}
	writeJSON(w, http.StatusOK, configResponse{Config: cfg})
}

// handlePutConfig deep-merges the request body into the live config.
// Rejected while Attacking so modules never observe a half-merged
// config mid-hop (spec §5's shared-resource policy).
func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	if s.hopper.Status().State == hopper.StateAttacking {
		writeError(w, http.StatusConflict, "cannot reconfigure while attacking")
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, chaoserr.ValidationErrorf("malformed config patch: %v", err).Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rawBase, err := yaml.Marshal(s.cfg)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var base map[string]any
	if err := yaml.Unmarshal(rawBase, &base); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	merged := config.DeepMerge(base, patch)

	rawMerged, err := yaml.Marshal(merged)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var newCfg config.Config
	if err := yaml.Unmarshal(rawMerged, &newCfg); err != nil {
		writeError(w, http.StatusBadRequest, chaoserr.ValidationErrorf("invalid merged config: %v", err).Error())
		return
	}
	if err := config.Validate(&newCfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.cfg = &newCfg
	s.evebox = newEveboxProxy(newCfg.Evebox)
	writeJSON(w, http.StatusOK, configResponse{Config: newCfg})
}

func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, modulesResponse{Modules: s.registry.Names()})
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	vlans := append([]config.VlanSpec(nil), s.cfg.Vlans...)
	s.mu.RUnlock()
	writeJSON(w, http.StatusOK, targetsResponse{Vlans: vlans})
}
