package jsonrpc

import (
	"bytes"
	"encoding/json"
	"sync"
	"testing"
)

func TestEncodeCompactSingleLine(t *testing.T) {
	data, err := Encode(NewRequest(1, "tools/call", map[string]any{
		"name":      "echo",
		"arguments": map[string]any{"text": "line one\nline two"},
	}))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if bytes.ContainsRune(data, '\n') {
		t.Errorf("encoded frame contains a newline: %q", data)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("encoded frame is not valid JSON: %v", err)
	}
	if decoded["jsonrpc"] != "2.0" || decoded["method"] != "tools/call" {
		t.Errorf("envelope = %v", decoded)
	}
}

func TestEncodeDoesNotEscapeHTML(t *testing.T) {
	data, err := Encode(NewRequest(1, "m", map[string]any{"url": "https://a.example/?q=1&r=2"}))
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Contains(data, []byte("\\u0026")) || !bytes.Contains(data, []byte("&r=2")) {
		t.Errorf("ampersand was HTML-escaped: %s", data)
	}
}

func TestDecodeClassification(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":7,"result":{"ok":true}}`))
	if err != nil {
		t.Fatal(err)
	}
	if !msg.IsResponse() || msg.IsNotification() || *msg.ID != 7 {
		t.Errorf("response misclassified: %+v", msg)
	}

	msg, err = Decode([]byte(`{"jsonrpc":"2.0","method":"notifications/progress","params":{}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.IsResponse() || !msg.IsNotification() {
		t.Errorf("notification misclassified: %+v", msg)
	}

	if _, err := Decode([]byte(`{not json`)); err == nil {
		t.Error("malformed input decoded without error")
	}
}

func TestResponseError(t *testing.T) {
	msg, err := Decode([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"method not found","data":{"method":"x"}}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Error == nil {
		t.Fatal("error member missing")
	}
	if msg.Error.Code != -32601 {
		t.Errorf("Code = %d", msg.Error.Code)
	}
	got := msg.Error.Error()
	if got != `JSON-RPC error -32601: method not found ({"method":"x"})` {
		t.Errorf("Error() = %q", got)
	}
}

func TestIndicatesAuth(t *testing.T) {
	tests := []struct {
		err  ResponseError
		want bool
	}{
		{ResponseError{Message: "Unauthorized"}, true},
		{ResponseError{Message: "HTTP 401"}, true},
		{ResponseError{Message: "authentication required"}, true},
		{ResponseError{Data: json.RawMessage(`{"reason":"auth_required"}`)}, true},
		{ResponseError{Message: "method not found"}, false},
	}
	for _, tt := range tests {
		if got := tt.err.IndicatesAuth(); got != tt.want {
			t.Errorf("IndicatesAuth(%+v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestCounterMonotonic(t *testing.T) {
	var c Counter
	if c.Next() != 1 || c.Next() != 2 || c.Next() != 3 {
		t.Fatal("counter is not sequential from 1")
	}
}

func TestCounterConcurrent(t *testing.T) {
	var c Counter
	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	seen := make([]map[int64]bool, workers)
	for i := 0; i < workers; i++ {
		seen[i] = make(map[int64]bool, perWorker)
		wg.Add(1)
		go func(m map[int64]bool) {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				m[c.Next()] = true
			}
		}(seen[i])
	}
	wg.Wait()

	all := make(map[int64]bool)
	for _, m := range seen {
		for id := range m {
			if all[id] {
				t.Fatalf("duplicate id %d", id)
			}
			all[id] = true
		}
	}
	if len(all) != workers*perWorker {
		t.Errorf("allocated %d unique ids, want %d", len(all), workers*perWorker)
	}
}
