package mcplug

import "encoding/json"

// Version is the client version reported during the MCP handshake.
const Version = "0.1.0"

// ProtocolVersion is the MCP protocol revision this client speaks.
const ProtocolVersion = "2025-03-26"

// InitializeParams returns the params object for the MCP initialize request.
func InitializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": ProtocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "mcplug",
			"version": Version,
		},
	}
}

// ParseInitializeResult extracts ServerInfo from an initialize result
// envelope. A missing name falls back to the configured server name, a
// missing version to "unknown".
func ParseInitializeResult(raw json.RawMessage, fallbackName string) (ServerInfo, error) {
	var wire struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
		Capabilities json.RawMessage `json:"capabilities"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return ServerInfo{}, ErrProtocol("decode initialize result: " + err.Error())
	}
	info := ServerInfo{
		Name:         wire.ServerInfo.Name,
		Version:      wire.ServerInfo.Version,
		Capabilities: wire.Capabilities,
	}
	if info.Name == "" {
		info.Name = fallbackName
	}
	if info.Version == "" {
		info.Version = "unknown"
	}
	return info, nil
}
