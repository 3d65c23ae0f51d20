package mcplug

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Lifecycle controls whether a server's transport survives across calls.
type Lifecycle string

const (
	// LifecycleKeepAlive retains the transport in the pool after a call.
	LifecycleKeepAlive Lifecycle = "keep-alive"
	// LifecycleEphemeral builds a transport per call and closes it after.
	LifecycleEphemeral Lifecycle = "ephemeral"
)

// ServerConfig is the resolved description of one MCP server. At least one of
// BaseURL and Command is set; when both are, BaseURL wins and Command is
// ignored. All string fields are env-expanded before the config is handed to
// a Runtime.
type ServerConfig struct {
	Description string            `json:"description,omitempty"`
	BaseURL     string            `json:"baseUrl,omitempty"`
	Command     string            `json:"command,omitempty"`
	Args        []string          `json:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Lifecycle   Lifecycle         `json:"lifecycle,omitempty"`

	// Dir is the directory of the config file that defined this server. It is
	// the default working directory for stdio children and is not serialized.
	Dir string `json:"-"`
}

// Config maps server names to their resolved configs. Names preserves the
// declaration order of the first source that defined each server, for
// display.
type Config struct {
	Servers map[string]ServerConfig
	Names   []string
	Imports []string
}

// Add inserts a server unless the name is already present (earlier sources
// win). Reports whether the insert happened.
func (c *Config) Add(name string, sc ServerConfig) bool {
	if c.Servers == nil {
		c.Servers = make(map[string]ServerConfig)
	}
	if _, ok := c.Servers[name]; ok {
		return false
	}
	c.Servers[name] = sc
	c.Names = append(c.Names, name)
	return true
}

// Get looks up a server by name.
func (c *Config) Get(name string) (ServerConfig, bool) {
	sc, ok := c.Servers[name]
	return sc, ok
}

// configFile is the on-disk shape of a config source.
type configFile struct {
	Servers serverMap `json:"mcpServers"`
	Imports []string  `json:"imports"`
}

// serverMap is a name→ServerConfig mapping that remembers key order.
type serverMap struct {
	entries map[string]ServerConfig
	order   []string
}

func (m *serverMap) UnmarshalJSON(data []byte) error {
	m.entries = make(map[string]ServerConfig)
	m.order = nil

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("mcpServers: expected object, got %v", tok)
	}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name := keyTok.(string)
		var sc ServerConfig
		if err := dec.Decode(&sc); err != nil {
			return fmt.Errorf("server %q: %w", name, err)
		}
		if _, dup := m.entries[name]; !dup {
			m.order = append(m.order, name)
		}
		m.entries[name] = sc
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	return nil
}

func (m serverMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.entries)
}

// ParseConfigFile decodes one config source that has already had comments
// stripped. The path is used only for error reporting.
func ParseConfigFile(path string, data []byte) (*Config, error) {
	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, ErrConfig(path, "invalid JSON: "+err.Error())
	}
	cfg := &Config{Imports: file.Imports}
	for _, name := range file.Servers.order {
		cfg.Add(name, file.Servers.entries[name])
	}
	return cfg, nil
}
