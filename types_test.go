package mcplug

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestToolDefinitionRoundTrip(t *testing.T) {
	original := ToolDefinition{
		Name:        "add",
		Description: "Adds two numbers",
		InputSchema: json.RawMessage(`{"type":"object","properties":{"a":{"type":"number"},"b":{"type":"number"}},"required":["a","b"]}`),
	}

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parsed ToolDefinition
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if parsed.Name != original.Name || parsed.Description != original.Description {
		t.Errorf("round trip changed fields: %+v", parsed)
	}
	var wantSchema, gotSchema any
	if err := json.Unmarshal(original.InputSchema, &wantSchema); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(parsed.InputSchema, &gotSchema); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(wantSchema, gotSchema) {
		t.Errorf("round trip changed schema: %s", parsed.InputSchema)
	}
}

func TestRequiredParams(t *testing.T) {
	def := ToolDefinition{
		Name:        "add",
		InputSchema: json.RawMessage(`{"type":"object","required":["a","b"]}`),
	}
	if got := def.RequiredParams(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("RequiredParams = %v", got)
	}

	if got := (ToolDefinition{}).RequiredParams(); got != nil {
		t.Errorf("empty schema RequiredParams = %v, want nil", got)
	}
}

func TestCallResultText(t *testing.T) {
	r := &CallResult{Content: []ContentBlock{
		{Type: "text", Text: "hello"},
		{Type: "image", Data: "aGk=", MimeType: "image/png"},
		{Type: "resource", URI: "file:///x", Text: "contents"},
	}}
	if got := r.Text(); got != "hello\ncontents" {
		t.Errorf("Text() = %q", got)
	}
}

func TestCallResultJSON(t *testing.T) {
	r := &CallResult{Content: []ContentBlock{{Type: "text", Text: `{"n":3}`}}}
	var v struct {
		N int `json:"n"`
	}
	if err := r.JSON(&v); err != nil {
		t.Fatalf("JSON: %v", err)
	}
	if v.N != 3 {
		t.Errorf("decoded n = %d", v.N)
	}

	bad := &CallResult{Content: []ContentBlock{{Type: "text", Text: "not json"}}}
	err := bad.JSON(&v)
	if err == nil {
		t.Fatal("JSON succeeded on non-JSON text")
	}
	if e, ok := AsError(err); !ok || e.Kind != KindProtocol {
		t.Errorf("err = %v, want protocol error", err)
	}
}

func TestCallResultMarkdown(t *testing.T) {
	r := &CallResult{Content: []ContentBlock{
		{Type: "text", Text: "para"},
		{Type: "image", Data: "aGk=", MimeType: "image/png"},
	}}
	md := r.Markdown()
	if !strings.Contains(md, "para") || !strings.Contains(md, "data:image/png;base64,aGk=") {
		t.Errorf("Markdown() = %q", md)
	}
}

func TestDecodeCallResult(t *testing.T) {
	raw := json.RawMessage(`{"content":[{"type":"text","text":"3"}]}`)
	result, err := DecodeCallResult(raw)
	if err != nil {
		t.Fatalf("DecodeCallResult: %v", err)
	}
	if result.Text() != "3" {
		t.Errorf("Text() = %q", result.Text())
	}
	if string(result.Raw) != string(raw) {
		t.Error("Raw envelope was not preserved")
	}
}

func TestDecodeCallResultIsError(t *testing.T) {
	raw := json.RawMessage(`{"content":[{"type":"text","text":"divide by zero"}],"isError":true}`)
	_, err := DecodeCallResult(raw)
	if err == nil {
		t.Fatal("isError result did not produce an error")
	}
	e, ok := AsError(err)
	if !ok || e.Kind != KindProtocol {
		t.Fatalf("err = %v, want protocol error", err)
	}
	if !strings.Contains(e.Error(), "divide by zero") {
		t.Errorf("error message %q does not carry the text content", e.Error())
	}
}

func TestParseInitializeResult(t *testing.T) {
	raw := json.RawMessage(`{"protocolVersion":"2025-03-26","serverInfo":{"name":"mock","version":"2.1"},"capabilities":{"tools":{}}}`)
	info, err := ParseInitializeResult(raw, "fallback")
	if err != nil {
		t.Fatalf("ParseInitializeResult: %v", err)
	}
	if info.Name != "mock" || info.Version != "2.1" {
		t.Errorf("info = %+v", info)
	}

	info, err = ParseInitializeResult(json.RawMessage(`{}`), "fallback")
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "fallback" || info.Version != "unknown" {
		t.Errorf("fallback info = %+v", info)
	}
}
