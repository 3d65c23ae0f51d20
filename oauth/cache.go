package oauth

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/hydai/mcplug"
)

// CachePath returns the token cache file for one server:
// ~/.mcplug/<server>/tokens.json.
func CachePath(server string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".mcplug", server, "tokens.json")
}

// LoadToken reads the cached token for server, or nil when the cache is
// missing or unreadable. Expired tokens are returned as-is; callers decide
// whether to refresh.
func LoadToken(server string) *Token {
	data, err := os.ReadFile(CachePath(server))
	if err != nil {
		return nil
	}
	var tok Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil
	}
	return &tok
}

// SaveToken writes the token cache for server, creating parent directories.
func SaveToken(server string, tok *Token) error {
	path := CachePath(server)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return mcplug.ErrIO(err)
	}
	data, err := json.MarshalIndent(tok, "", "  ")
	if err != nil {
		return mcplug.ErrOAuth("serialize token: "+err.Error(), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return mcplug.ErrIO(err)
	}
	return nil
}
