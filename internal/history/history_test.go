package history

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hydai/mcplug"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	h := Open(filepath.Join(t.TempDir(), "history.db"))
	t.Cleanup(func() { h.Close() })
	if err := h.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	return h
}

func TestRecordAndRecent(t *testing.T) {
	h := openTestLog(t)
	ctx := context.Background()

	if err := h.Record(ctx, "m", "add", map[string]any{"a": 1}, nil, 120*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := h.Record(ctx, "m", "slow", nil, mcplug.ErrTimeout("m", "slow", time.Second), time.Second); err != nil {
		t.Fatal(err)
	}
	if err := h.Record(ctx, "web", "fetch", nil, errors.New("plain failure"), 10*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	entries, err := h.Recent(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries", len(entries))
	}

	byTool := map[string]Entry{}
	for _, e := range entries {
		byTool[e.Tool] = e
	}

	ok := byTool["add"]
	if ok.Status != "ok" || ok.Error != "" || ok.DurationMS != 120 {
		t.Errorf("ok entry = %+v", ok)
	}
	if string(ok.Args) != `{"a":1}` {
		t.Errorf("Args = %s", ok.Args)
	}

	timedOut := byTool["slow"]
	if timedOut.Status != "timeout" || timedOut.Error == "" {
		t.Errorf("timeout entry = %+v", timedOut)
	}

	plain := byTool["fetch"]
	if plain.Status != "error" {
		t.Errorf("plain failure status = %q", plain.Status)
	}
}

func TestRecentLimit(t *testing.T) {
	h := openTestLog(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := h.Record(ctx, "m", "add", nil, nil, 0); err != nil {
			t.Fatal(err)
		}
	}
	entries, err := h.Recent(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Errorf("got %d entries, want 2", len(entries))
	}
}

func TestRecentEmpty(t *testing.T) {
	h := openTestLog(t)
	entries, err := h.Recent(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %v", entries)
	}
}

func TestInitIdempotent(t *testing.T) {
	h := openTestLog(t)
	if err := h.Init(context.Background()); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}
