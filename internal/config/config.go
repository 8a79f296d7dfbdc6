// Package config loads and validates the YAML configuration that
// drives a Chaos Bot run: the VLAN set, schedule tuning, and the
// per-module configuration subtree.
package config

import (
	"net"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"chaosbot.dev/chaos-bot/internal/chaoserr"
)

// VlanSpec is an immutable configuration record for one VLAN.
type VlanSpec struct {
	ID      int      `yaml:"id"`
	Name    string   `yaml:"name"`
	Gateway string   `yaml:"gateway"`
	Targets []string `yaml:"targets"`
}

// Schedule is an immutable tuning record. Half-open intervals with
// min <= max throughout.
type Schedule struct {
	ModuleDelayMin float64 `yaml:"module_delay_min"`
	ModuleDelayMax float64 `yaml:"module_delay_max"`
	CooldownMin    float64 `yaml:"cooldown_min"`
	CooldownMax    float64 `yaml:"cooldown_max"`
	HopDwellMin    float64 `yaml:"hop_dwell_min"`
	HopDwellMax    float64 `yaml:"hop_dwell_max"`
}

// General carries process-wide settings.
type General struct {
	Interface    string `yaml:"interface"`
	ManagementIP string `yaml:"management_ip"`
	LogLevel     string `yaml:"log_level"`
	DryRun       bool   `yaml:"dry_run"`
	LogFile      string `yaml:"log_file"`
}

// ModuleConfig is one module's enabled flag plus its free-form,
// module-specific configuration subtree.
type ModuleConfig struct {
	Enabled bool           `yaml:"enabled"`
	Extra   map[string]any `yaml:",inline"`
}

// WebConfig configures the control plane's HTTP listener.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// EveboxConfig configures the /alerts IDS proxy.
type EveboxConfig struct {
	URL      string `yaml:"url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// NotificationsConfig configures the external notification dispatcher.
type NotificationsConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	MinLevel   string `yaml:"min_level"`
}

// MetricsConfig configures the prometheus exporter.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Config is the fully parsed, validated configuration tree.
type Config struct {
	General       General                 `yaml:"general"`
	Vlans         []VlanSpec              `yaml:"vlans"`
	Schedule      Schedule                `yaml:"schedule"`
	Modules       map[string]ModuleConfig `yaml:"modules"`
	Credentials   map[string]string       `yaml:"credentials,omitempty"`
	ExcludedHosts []string                `yaml:"excluded_hosts,omitempty"`
	Notifications NotificationsConfig     `yaml:"notifications,omitempty"`
	Metrics       MetricsConfig           `yaml:"metrics,omitempty"`
	Web           WebConfig               `yaml:"web,omitempty"`
	Evebox        EveboxConfig            `yaml:"evebox,omitempty"`
}

// SearchPaths returns the config search order: explicit path, then
// ./config.yml, then /etc/chaos-bot/config.yml, then
// $HOME/.chaos-bot/config.yml.
func SearchPaths(explicit string) []string {
	paths := []string{}
	if explicit != "" {
		paths = append(paths, explicit)
	}
	paths = append(paths, "config.yml", "/etc/chaos-bot/config.yml")
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".chaos-bot", "config.yml"))
	}
	return paths
}

// Load resolves the first existing path in the search order, reads it,
// and validates it. An explicit path that does not exist is a hard
// ConfigError rather than falling through to the next candidate.
func Load(explicit string) (*Config, string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, "", chaoserr.ConfigErrorf("config file %q not found", explicit)
		}
		cfg, err := LoadFile(explicit)
		return cfg, explicit, err
	}

	for _, path := range SearchPaths("") {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			return cfg, path, err
		}
	}
	return nil, "", chaoserr.ConfigErrorf("no config file found in search path")
}

// LoadFile reads and validates a single YAML config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, chaoserr.ConfigErrorf("reading config %q: %v", path, err)
	}
	if len(data) == 0 {
		return nil, chaoserr.ConfigErrorf("config %q is empty", path)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, chaoserr.ConfigErrorf("parsing config %q: %v", path, err)
	}

	var sections map[string]any
	if err := yaml.Unmarshal(data, &sections); err == nil {
		for _, name := range []string{"general", "vlans", "schedule", "modules"} {
			if _, ok := sections[name]; !ok {
				return nil, chaoserr.ConfigErrorf("config %q: missing required section %q", path, name)
			}
		}
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// Validate enforces the required-section and well-formedness
// invariants from the external interfaces section.
func Validate(cfg *Config) error {
	if cfg.General.Interface == "" {
		return chaoserr.ConfigErrorf("general.interface is required")
	}
	if len(cfg.Vlans) == 0 {
		return chaoserr.ConfigErrorf("vlans must be non-empty")
	}
	if cfg.Modules == nil {
		return chaoserr.ConfigErrorf("modules section is required")
	}

	seen := map[int]bool{}
	for _, v := range cfg.Vlans {
		if v.ID < 1 || v.ID > 4094 {
			return chaoserr.ConfigErrorf("vlan %q: id %d out of range 1-4094", v.Name, v.ID)
		}
		if v.Name == "" {
			return chaoserr.ConfigErrorf("vlan id %d: name is required", v.ID)
		}
		if seen[v.ID] {
			return chaoserr.ConfigErrorf("duplicate vlan id %d", v.ID)
		}
		seen[v.ID] = true
		if v.Gateway != "" && net.ParseIP(v.Gateway) == nil {
			return chaoserr.ConfigErrorf("vlan %q: gateway %q is not a valid IP", v.Name, v.Gateway)
		}
		for _, t := range v.Targets {
			if net.ParseIP(t) == nil {
				if _, _, err := net.ParseCIDR(t); err != nil {
					return chaoserr.ConfigErrorf("vlan %q: target %q is not a valid IP or CIDR", v.Name, t)
				}
			}
		}
	}

	if cfg.Schedule.ModuleDelayMax != 0 && cfg.Schedule.ModuleDelayMin > cfg.Schedule.ModuleDelayMax {
		return chaoserr.ConfigErrorf("schedule.module_delay_min must be <= module_delay_max")
	}
	if cfg.Schedule.CooldownMax != 0 && cfg.Schedule.CooldownMin > cfg.Schedule.CooldownMax {
		return chaoserr.ConfigErrorf("schedule.cooldown_min must be <= cooldown_max")
	}
	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.General.LogLevel == "" {
		cfg.General.LogLevel = "info"
	}
	if cfg.Schedule.ModuleDelayMax == 0 {
		cfg.Schedule.ModuleDelayMax = 2.0
	}
	if cfg.Schedule.CooldownMax == 0 {
		cfg.Schedule.CooldownMax = 120.0
	}
	if cfg.Web.Port == 0 {
		cfg.Web.Port = 8787
	}
	if cfg.Web.Host == "" {
		cfg.Web.Host = "0.0.0.0"
	}
}

// DeepMerge merges patch into base recursively for nested maps and
// returns the merged result; it is idempotent when patch equals the
// previous patch.
func DeepMerge(base, patch map[string]any) map[string]any {
	if base == nil {
		base = map[string]any{}
	}
	for k, v := range patch {
		if existing, ok := base[k]; ok {
			existingMap, existingIsMap := existing.(map[string]any)
			patchMap, patchIsMap := v.(map[string]any)
			if existingIsMap && patchIsMap {
				base[k] = DeepMerge(existingMap, patchMap)
				continue
			}
		}
		base[k] = v
	}
	return base
}

// TargetsUnion returns every target literal and gateway across all
// VLANs, used by /trigger's validation invariant.
func (c *Config) TargetsUnion() map[string]bool {
	set := map[string]bool{}
	for _, v := range c.Vlans {
		for _, t := range v.Targets {
			set[t] = true
		}
		if v.Gateway != "" {
			set[v.Gateway] = true
		}
	}
	return set
}

// VlanByID finds a VLAN spec by id.
func (c *Config) VlanByID(id int) (VlanSpec, bool) {
	for _, v := range c.Vlans {
		if v.ID == id {
			return v, true
		}
	}
	return VlanSpec{}, false
}
