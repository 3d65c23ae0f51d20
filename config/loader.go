// Package config resolves the mcplug server catalog from layered sources:
// an explicit path, the MCPLUG_CONFIG environment variable, project and home
// config files, mcporter compatibility fallbacks, and editor imports. Sources
// are JSONC (comments tolerated, trailing commas rejected); servers merge
// first-wins by name, and every string field is env-expanded after merging.
package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hydai/mcplug"
)

// Options controls config resolution.
type Options struct {
	// Path is an explicit config file, highest precedence. Optional.
	Path string
	// Logger receives debug logs about discovery and imports. Optional.
	Logger *slog.Logger
}

type loader struct {
	logger *slog.Logger
}

// Load discovers, parses, merges, and env-expands all configuration sources.
func Load(opts Options) (*mcplug.Config, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(discardHandler{})
	}
	l := &loader{logger: logger}

	cfg := &mcplug.Config{}
	sources := make(map[string]string) // server name -> defining file

	for _, path := range Discover(opts.Path) {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, mcplug.ErrConfig(path, "cannot read file: "+err.Error())
		}
		parsed, err := parseSource(path, data)
		if err != nil {
			return nil, err
		}
		dir := filepath.Dir(path)
		for _, name := range parsed.Names {
			sc := parsed.Servers[name]
			sc.Dir = dir
			if cfg.Add(name, sc) {
				sources[name] = path
			}
		}
		for _, imp := range parsed.Imports {
			if !contains(cfg.Imports, imp) {
				cfg.Imports = append(cfg.Imports, imp)
			}
		}
		l.logger.Debug("config: loaded source", "path", path, "servers", len(parsed.Names))
	}

	// Editor imports contribute only names not already present.
	if len(cfg.Imports) > 0 {
		l.importEditors(cfg, cfg.Imports)
	}

	// Env expansion runs after merging so only the winning definition of each
	// server must expand cleanly.
	for name, sc := range cfg.Servers {
		source := sources[name]
		if source == "" {
			source = sc.Dir
		}
		if err := expandServer(&sc, source); err != nil {
			return nil, err
		}
		cfg.Servers[name] = sc
	}

	return cfg, nil
}

// Discover returns the existing config files in precedence order, highest
// first. Every location is optional.
func Discover(explicit string) []string {
	var files []string
	add := func(path string) {
		if path == "" {
			return
		}
		if _, err := os.Stat(path); err != nil {
			return
		}
		for _, f := range files {
			if f == path {
				return
			}
		}
		files = append(files, path)
	}

	// 1. Explicit path from the caller.
	add(explicit)

	// 2. MCPLUG_CONFIG env var.
	add(os.Getenv("MCPLUG_CONFIG"))

	// 3. Project-level config.
	add(filepath.Join("config", "mcplug.json"))

	// 4. Home config, .json preferred over .jsonc.
	if home, err := os.UserHomeDir(); err == nil {
		addFirst(add, filepath.Join(home, ".mcplug", "mcplug.json"), filepath.Join(home, ".mcplug", "mcplug.jsonc"))

		// 5. mcporter compatibility fallback.
		addFirst(add, filepath.Join(home, ".mcporter", "mcporter.json"), filepath.Join(home, ".mcporter", "mcporter.jsonc"))
	}
	add(filepath.Join("config", "mcporter.json"))

	return files
}

// addFirst adds the first path that exists.
func addFirst(add func(string), paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			add(p)
			return
		}
	}
}

// parseSource strips comments and parses one config file.
func parseSource(path string, data []byte) (*mcplug.Config, error) {
	return mcplug.ParseConfigFile(path, StripComments(data))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
