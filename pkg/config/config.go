package config

import (
	"errors"
	"fmt"
)

// Backend modes.
const (
	BackendHTTP = "http"
	BackendKube = "kube"
)

// Status binding presets a list can use.
const (
	StatusPod      = "pod"
	StatusWorkload = "workload"
)

// Conditions a dynamic column can be bound to.
const (
	WhenAlways         = "always"
	WhenMultiNamespace = "multi-namespace"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the root configuration.
type Config struct {
	General  GeneralConfig  `toml:"general" yaml:"general"`
	Settings SettingsConfig `toml:"settings" yaml:"settings"`
	Backend  BackendConfig  `toml:"backend" yaml:"backend"`
	Daemon   DaemonConfig   `toml:"daemon" yaml:"daemon"`
	Lists    []ListConfig   `toml:"lists" yaml:"lists"`
}

// GeneralConfig holds process-wide options.
type GeneralConfig struct {
	LogLevel  string `toml:"log_level" yaml:"log_level"`
	CacheDir  string `toml:"cache_dir" yaml:"cache_dir"`
	Namespace string `toml:"namespace" yaml:"namespace"`
	// Preset names the built-in list set used when no lists are configured.
	Preset string `toml:"preset" yaml:"preset"`
}

// SettingsConfig seeds the settings provider.
type SettingsConfig struct {
	ItemsPerPage    int      `toml:"items_per_page" yaml:"items_per_page"`
	RefreshInterval Duration `toml:"refresh_interval" yaml:"refresh_interval"`
	PageVisible     bool     `toml:"page_visible" yaml:"page_visible"`
}

// BackendConfig selects how collection endpoints are reached.
type BackendConfig struct {
	Mode    string   `toml:"mode" yaml:"mode"`
	BaseURL string   `toml:"base_url" yaml:"base_url"`
	Timeout Duration `toml:"timeout" yaml:"timeout"`

	Kubeconfig       string `toml:"kubeconfig" yaml:"kubeconfig"`
	Context          string `toml:"context" yaml:"context"`
	ServiceNamespace string `toml:"service_namespace" yaml:"service_namespace"`
	Service          string `toml:"service" yaml:"service"`
}

// DaemonConfig configures the long-running process.
type DaemonConfig struct {
	Listen string `toml:"listen" yaml:"listen"`
}

// ListConfig describes one list instance.
type ListConfig struct {
	ID            string          `toml:"id" yaml:"id"`
	Group         string          `toml:"group" yaml:"group"`
	Endpoint      string          `toml:"endpoint" yaml:"endpoint"`
	Collection    string          `toml:"collection" yaml:"collection"`
	Columns       []string        `toml:"columns" yaml:"columns"`
	Actions       []string        `toml:"actions" yaml:"actions"`
	Dynamic       []DynamicColumn `toml:"dynamic_columns" yaml:"dynamic_columns"`
	Hideable      bool            `toml:"hideable" yaml:"hideable"`
	SearchContext bool            `toml:"search_context" yaml:"search_context"`
	Status        string          `toml:"status" yaml:"status"`
	SortColumn    string          `toml:"sort_column" yaml:"sort_column"`
}

// DynamicColumn is a column shown after After while When holds.
type DynamicColumn struct {
	Name  string `toml:"name" yaml:"name"`
	After string `toml:"after" yaml:"after"`
	When  string `toml:"when" yaml:"when"`
}

// ResolvedLists returns the configured lists, or the preset's lists when none
// are configured.
func (c *Config) ResolvedLists() []ListConfig {
	if len(c.Lists) > 0 {
		return c.Lists
	}
	return ListPreset(c.General.Preset)
}

// Validate reports the first configuration mistake, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if c.Settings.ItemsPerPage <= 0 {
		return fmt.Errorf("%w: settings.items_per_page must be positive", ErrInvalid)
	}
	switch c.Backend.Mode {
	case BackendHTTP:
		if c.Backend.BaseURL == "" {
			return fmt.Errorf("%w: backend.base_url is required in http mode", ErrInvalid)
		}
	case BackendKube:
		if c.Backend.Service == "" {
			return fmt.Errorf("%w: backend.service is required in kube mode", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend.mode %q", ErrInvalid, c.Backend.Mode)
	}

	lists := c.ResolvedLists()
	if len(lists) == 0 {
		return fmt.Errorf("%w: no lists configured and unknown preset %q", ErrInvalid, c.General.Preset)
	}
	seen := make(map[string]bool, len(lists))
	for i, l := range lists {
		if l.ID == "" {
			return fmt.Errorf("%w: lists[%d] has no id", ErrInvalid, i)
		}
		if seen[l.ID] {
			return fmt.Errorf("%w: duplicate list id %q", ErrInvalid, l.ID)
		}
		seen[l.ID] = true
		if l.Endpoint == "" {
			return fmt.Errorf("%w: list %q has no endpoint", ErrInvalid, l.ID)
		}
		switch l.Status {
		case "", StatusPod, StatusWorkload:
		default:
			return fmt.Errorf("%w: list %q has unknown status preset %q", ErrInvalid, l.ID, l.Status)
		}
		for _, d := range l.Dynamic {
			switch d.When {
			case "", WhenAlways, WhenMultiNamespace:
			default:
				return fmt.Errorf("%w: list %q column %q has unknown condition %q", ErrInvalid, l.ID, d.Name, d.When)
			}
		}
	}
	return nil
}
