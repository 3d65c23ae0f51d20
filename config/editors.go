package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/hydai/mcplug"
)

// Editors is the closed set of recognized editor import identifiers.
var Editors = []string{
	"cursor", "claude-desktop", "claude-code", "vscode", "windsurf", "codex", "opencode",
}

// editorConfigPaths returns the candidate config file paths for one editor
// identifier. Unknown identifiers yield nothing.
func editorConfigPaths(editor string) []string {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}

	switch editor {
	case "cursor":
		return []string{filepath.Join(home, ".cursor", "mcp.json")}
	case "claude-desktop":
		switch runtime.GOOS {
		case "darwin":
			return []string{filepath.Join(home, "Library", "Application Support", "Claude", "claude_desktop_config.json")}
		case "windows":
			if appdata := os.Getenv("APPDATA"); appdata != "" {
				return []string{filepath.Join(appdata, "Claude", "claude_desktop_config.json")}
			}
			return nil
		default:
			return []string{filepath.Join(home, ".config", "Claude", "claude_desktop_config.json")}
		}
	case "claude-code":
		return []string{filepath.Join(home, ".claude", ".mcp.json")}
	case "vscode":
		return []string{filepath.Join(home, ".vscode", "mcp.json")}
	case "windsurf":
		return []string{filepath.Join(home, ".windsurf", "mcp.json")}
	case "codex":
		return []string{filepath.Join(home, ".codex", "mcp.json")}
	case "opencode":
		return []string{filepath.Join(home, ".opencode", "mcp.json")}
	default:
		return nil
	}
}

// importEditors merges servers from the named editors' config files into cfg.
// Files that are missing or unparseable are silently skipped; duplicate
// server names across editors collapse to the first occurrence, and names
// already present in cfg are never overridden.
func (l *loader) importEditors(cfg *mcplug.Config, imports []string) {
	seen := make(map[string]bool)
	for _, editor := range imports {
		if seen[editor] {
			continue
		}
		seen[editor] = true

		for _, path := range editorConfigPaths(editor) {
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			parsed, err := parseSource(path, data)
			if err != nil {
				l.logger.Debug("config: skipping unparseable editor config", "editor", editor, "path", path, "error", err)
				continue
			}
			for _, name := range parsed.Names {
				sc := parsed.Servers[name]
				sc.Dir = filepath.Dir(path)
				if cfg.Add(name, sc) {
					l.logger.Debug("config: imported server", "editor", editor, "server", name)
				}
			}
		}
	}
}
