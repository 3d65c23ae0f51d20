package mcplug

import (
	"encoding/json"
	"fmt"
	"strings"
)

// ServerInfo describes an MCP server as reported by the initialize handshake.
type ServerInfo struct {
	Name         string          `json:"name"`
	Version      string          `json:"version"`
	Capabilities json.RawMessage `json:"capabilities,omitempty"`
}

// ToolDefinition describes one tool exposed by an MCP server. It is immutable
// after receipt; the input schema is kept raw so it round-trips losslessly.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// RequiredParams returns the schema's top-level "required" list in declared
// order, or nil when the schema has none.
func (t ToolDefinition) RequiredParams() []string {
	if len(t.InputSchema) == 0 {
		return nil
	}
	var schema struct {
		Required []string `json:"required"`
	}
	if err := json.Unmarshal(t.InputSchema, &schema); err != nil {
		return nil
	}
	return schema.Required
}

// ContentBlock is one element of a tool result: text, image, or resource,
// tagged by Type as on the wire.
type ContentBlock struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	Data     string `json:"data,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
	URI      string `json:"uri,omitempty"`
}

// CallResult is the outcome of a successful tools/call. Content holds the
// ordered blocks; Raw preserves the full JSON-RPC result envelope for --raw
// consumers. A CallResult is never mutated after construction.
type CallResult struct {
	Content []ContentBlock
	Raw     json.RawMessage
}

// Text joins all text and resource text blocks with newlines. Image blocks
// are skipped.
func (r *CallResult) Text() string {
	var parts []string
	for _, block := range r.Content {
		switch block.Type {
		case "text", "resource":
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// JSON decodes the joined text content into v.
func (r *CallResult) JSON(v any) error {
	if err := json.Unmarshal([]byte(r.Text()), v); err != nil {
		return ErrProtocol("decode result text: " + err.Error())
	}
	return nil
}

// Markdown renders the content blocks as markdown: text verbatim, images as
// inline data URIs, resources as links followed by their text.
func (r *CallResult) Markdown() string {
	parts := make([]string, 0, len(r.Content))
	for _, block := range r.Content {
		switch block.Type {
		case "text":
			parts = append(parts, block.Text)
		case "image":
			parts = append(parts, fmt.Sprintf("![image](data:%s;base64,%s)", block.MimeType, block.Data))
		case "resource":
			parts = append(parts, fmt.Sprintf("[%s](%s)\n\n%s", block.URI, block.URI, block.Text))
		}
	}
	return strings.Join(parts, "\n\n")
}

// DecodeCallResult parses a tools/call result envelope. A result flagged
// isError is projected to a protocol error carrying the text content as the
// message.
func DecodeCallResult(raw json.RawMessage) (*CallResult, error) {
	var wire struct {
		Content []ContentBlock `json:"content"`
		IsError bool           `json:"isError"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, ErrProtocol("decode tool call result: " + err.Error())
	}
	result := &CallResult{Content: wire.Content, Raw: raw}
	if wire.IsError {
		msg := result.Text()
		if msg == "" {
			msg = "tool reported an error"
		}
		return nil, ErrProtocol(msg)
	}
	return result, nil
}
