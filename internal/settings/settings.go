// Package settings holds the CLI's tool preferences, kept separate from the
// server catalog the config package resolves. Layering: defaults -> TOML file
// -> env vars (env wins).
package settings

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Settings struct {
	Output   OutputSettings   `toml:"output"`
	Network  NetworkSettings  `toml:"network"`
	Observer ObserverSettings `toml:"observer"`
	History  HistorySettings  `toml:"history"`
}

type OutputSettings struct {
	// Format is "text", "json", or "raw".
	Format string `toml:"format"`
}

type NetworkSettings struct {
	AllowHTTP     bool `toml:"allow_http"`
	ListTimeoutMS int  `toml:"list_timeout_ms"`
	CallTimeoutMS int  `toml:"call_timeout_ms"`
}

type ObserverSettings struct {
	Enabled bool `toml:"enabled"`
}

type HistorySettings struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Path returns the settings file location: ~/.mcplug/settings.toml.
func Path() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".mcplug", "settings.toml")
}

// Default returns Settings with all defaults applied.
func Default() Settings {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "."
	}
	return Settings{
		Output:  OutputSettings{Format: "text"},
		History: HistorySettings{Enabled: true, Path: filepath.Join(home, ".mcplug", "history.db")},
	}
}

// Load reads settings: defaults -> TOML file -> env vars (env wins). A
// missing or unparseable file falls back to the layers around it.
func Load(path string) Settings {
	s := Default()

	if path == "" {
		path = Path()
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &s)
	}

	// Env overrides
	if v := os.Getenv("MCPLUG_OUTPUT_FORMAT"); v != "" {
		s.Output.Format = v
	}
	if v := os.Getenv("MCPLUG_ALLOW_HTTP"); v == "true" || v == "1" {
		s.Network.AllowHTTP = true
	}
	if v := os.Getenv("MCPLUG_LIST_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			s.Network.ListTimeoutMS = ms
		}
	}
	if v := os.Getenv("MCPLUG_CALL_TIMEOUT"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			s.Network.CallTimeoutMS = ms
		}
	}
	if v := os.Getenv("MCPLUG_OBSERVER_ENABLED"); v == "true" || v == "1" {
		s.Observer.Enabled = true
	}
	if v := os.Getenv("MCPLUG_HISTORY_DISABLED"); v == "true" || v == "1" {
		s.History.Enabled = false
	}

	return s
}
