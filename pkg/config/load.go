package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"gitlab.com/tinyland/lab/listpulse/pkg/namespace"
	"gitlab.com/tinyland/lab/listpulse/pkg/settings"
	"gitlab.com/tinyland/lab/listpulse/pkg/transport"
)

const appName = "listpulse"

// Load reads configuration from the standard config path.
// Search order:
//  1. $XDG_CONFIG_HOME/listpulse/config.toml
//  2. $XDG_CONFIG_HOME/listpulse/config.yaml
//  3. the same names under ~/.config/listpulse when XDG_CONFIG_HOME is set
//
// If no file exists, returns DefaultConfig() with env overrides applied.
func Load() (*Config, error) {
	for _, p := range configSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return LoadFromFile(p)
		}
	}
	cfg := DefaultConfig()
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path. Files ending in
// .yaml or .yml are decoded as YAML, everything else as TOML. A missing file
// yields the defaults.
func LoadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return LoadYAMLFromReader(f)
	default:
		return LoadFromReader(f)
	}
}

// LoadFromReader reads TOML configuration from an io.Reader.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// LoadYAMLFromReader reads YAML configuration from an io.Reader.
func LoadYAMLFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	cacheDir := filepath.Join(xdgCacheHome(home), appName)

	return &Config{
		General: GeneralConfig{
			LogLevel:  "info",
			CacheDir:  cacheDir,
			Namespace: namespace.Default,
			Preset:    PresetWorkloads,
		},
		Settings: SettingsConfig{
			ItemsPerPage:    settings.DefaultItemsPerPage,
			RefreshInterval: Duration{settings.DefaultRefreshIntervalSeconds * time.Second},
			PageVisible:     true,
		},
		Backend: BackendConfig{
			Mode:             BackendHTTP,
			BaseURL:          "http://localhost:8000",
			Timeout:          Duration{transport.DefaultTimeout},
			ServiceNamespace: transport.DefaultServiceNamespace,
			Service:          transport.DefaultService,
		},
		Daemon: DaemonConfig{
			Listen: "127.0.0.1:9746",
		},
	}
}

// applyEnvOverrides checks environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LISTPULSE_NAMESPACE"); v != "" {
		cfg.General.Namespace = v
	}
	if v := os.Getenv("LISTPULSE_LOG_LEVEL"); v != "" {
		cfg.General.LogLevel = v
	}
	if v := os.Getenv("LISTPULSE_BACKEND"); v != "" {
		cfg.Backend.Mode = v
	}
	if v := os.Getenv("LISTPULSE_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("LISTPULSE_KUBE_CONTEXT"); v != "" {
		cfg.Backend.Context = v
	}
	if v := os.Getenv("LISTPULSE_LISTEN"); v != "" {
		cfg.Daemon.Listen = v
	}
}

// configSearchPaths returns the ordered list of config file paths to try.
func configSearchPaths() []string {
	home, _ := os.UserHomeDir()
	names := []string{"config.toml", "config.yaml"}
	var paths []string

	xdg := xdgConfigHome(home)
	for _, n := range names {
		paths = append(paths, filepath.Join(xdg, appName, n))
	}

	// If XDG_CONFIG_HOME was explicitly set, also try the fallback default.
	defaultXDG := filepath.Join(home, ".config")
	if xdg != defaultXDG {
		for _, n := range names {
			paths = append(paths, filepath.Join(defaultXDG, appName, n))
		}
	}

	return paths
}

// xdgConfigHome returns XDG_CONFIG_HOME or ~/.config as fallback.
func xdgConfigHome(home string) string {
	if v := os.Getenv("XDG_CONFIG_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".config")
}

// xdgCacheHome returns XDG_CACHE_HOME or ~/.cache as fallback.
func xdgCacheHome(home string) string {
	if v := os.Getenv("XDG_CACHE_HOME"); v != "" {
		return v
	}
	return filepath.Join(home, ".cache")
}
