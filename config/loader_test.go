package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hydai/mcplug"
)

// writeFile creates path (and parents) with contents.
func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
}

// isolate points HOME and the working directory at fresh temp dirs so the
// host's real configs never leak into a test.
func isolate(t *testing.T) (home, cwd string) {
	t.Helper()
	home = t.TempDir()
	cwd = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("MCPLUG_CONFIG", "")
	t.Chdir(cwd)
	return home, cwd
}

func TestLoadProjectBeatsHome(t *testing.T) {
	home, cwd := isolate(t)

	writeFile(t, filepath.Join(home, ".mcplug", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "A"}}}`)
	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "B"}}}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sc, _ := cfg.Get("m"); sc.Command != "B" {
		t.Errorf("m.Command = %q, want B (project beats home)", sc.Command)
	}
}

func TestLoadExplicitBeatsEverything(t *testing.T) {
	home, cwd := isolate(t)

	writeFile(t, filepath.Join(home, ".mcplug", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "home"}}}`)
	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "project"}}}`)
	explicit := filepath.Join(t.TempDir(), "explicit.json")
	writeFile(t, explicit, `{"mcpServers": {"m": {"command": "explicit"}}}`)

	cfg, err := Load(Options{Path: explicit})
	if err != nil {
		t.Fatal(err)
	}
	if sc, _ := cfg.Get("m"); sc.Command != "explicit" {
		t.Errorf("m.Command = %q, want explicit", sc.Command)
	}
}

func TestLoadEnvVarBeatsProject(t *testing.T) {
	_, cwd := isolate(t)

	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "project"}}}`)
	envPath := filepath.Join(t.TempDir(), "env.json")
	writeFile(t, envPath, `{"mcpServers": {"m": {"command": "fromenv"}}}`)
	t.Setenv("MCPLUG_CONFIG", envPath)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sc, _ := cfg.Get("m"); sc.Command != "fromenv" {
		t.Errorf("m.Command = %q, want fromenv", sc.Command)
	}
}

func TestLoadNonOverlappingNamesMerge(t *testing.T) {
	home, cwd := isolate(t)

	writeFile(t, filepath.Join(home, ".mcplug", "mcplug.json"),
		`{"mcpServers": {"homeonly": {"command": "h"}}}`)
	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"projonly": {"command": "p"}}}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := cfg.Get("homeonly"); !ok {
		t.Error("homeonly missing")
	}
	if _, ok := cfg.Get("projonly"); !ok {
		t.Error("projonly missing")
	}
}

func TestLoadServersAreIndivisible(t *testing.T) {
	home, cwd := isolate(t)

	// The losing definition's extra fields must not bleed into the winner.
	writeFile(t, filepath.Join(home, ".mcplug", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "h", "env": {"EXTRA": "1"}}}}`)
	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "p"}}}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	sc, _ := cfg.Get("m")
	if sc.Command != "p" || len(sc.Env) != 0 {
		t.Errorf("server was deep-merged: %+v", sc)
	}
}

func TestLoadMcporterFallback(t *testing.T) {
	home, _ := isolate(t)

	writeFile(t, filepath.Join(home, ".mcporter", "mcporter.json"),
		`{"mcpServers": {"legacy": {"command": "old"}}}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sc, ok := cfg.Get("legacy"); !ok || sc.Command != "old" {
		t.Errorf("mcporter fallback not loaded: %+v", cfg.Servers)
	}
}

func TestLoadJSONCHomeConfig(t *testing.T) {
	home, _ := isolate(t)

	writeFile(t, filepath.Join(home, ".mcplug", "mcplug.jsonc"), `{
	// the only server
	"mcpServers": {
		"m": {"command": "cmt"} /* block */
	}
}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	if sc, _ := cfg.Get("m"); sc.Command != "cmt" {
		t.Errorf("jsonc config not loaded: %+v", cfg.Servers)
	}
}

func TestLoadParseFailureNamesPath(t *testing.T) {
	home, _ := isolate(t)

	bad := filepath.Join(home, ".mcplug", "mcplug.json")
	writeFile(t, bad, `{"mcpServers": {`)

	_, err := Load(Options{})
	if err == nil {
		t.Fatal("parse failure did not surface")
	}
	e, ok := mcplug.AsError(err)
	if !ok || e.Kind != mcplug.KindConfig {
		t.Fatalf("err = %v, want config error", err)
	}
	if e.Path != bad {
		t.Errorf("Path = %q, want %q", e.Path, bad)
	}
}

func TestLoadExpandsAfterMerge(t *testing.T) {
	_, cwd := isolate(t)

	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"baseUrl": "https://h.example/mcp", "headers": {"Authorization": "Bearer ${MCPLUG_TEST_LOADER_TOK:-anon}"}}}}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	sc, _ := cfg.Get("m")
	if sc.Headers["Authorization"] != "Bearer anon" {
		t.Errorf("header = %q, want Bearer anon", sc.Headers["Authorization"])
	}

	t.Setenv("MCPLUG_TEST_LOADER_TOK", "xyz")
	cfg, err = Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	sc, _ = cfg.Get("m")
	if sc.Headers["Authorization"] != "Bearer xyz" {
		t.Errorf("header = %q, want Bearer xyz", sc.Headers["Authorization"])
	}
}

func TestLoadRecordsDefiningDir(t *testing.T) {
	_, cwd := isolate(t)

	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "x"}}}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}
	sc, _ := cfg.Get("m")
	if sc.Dir != filepath.Join(cwd, "config") && sc.Dir != "config" {
		t.Errorf("Dir = %q", sc.Dir)
	}
}

func TestLoadEditorImports(t *testing.T) {
	home, cwd := isolate(t)

	writeFile(t, filepath.Join(home, ".claude", ".mcp.json"),
		`{"mcpServers": {"m": {"command": "editor"}, "extra": {"command": "new"}}}`)
	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "own"}}, "imports": ["claude-code", "claude-code"]}`)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatal(err)
	}

	// Existing names are never overridden by imports.
	if sc, _ := cfg.Get("m"); sc.Command != "own" {
		t.Errorf("m.Command = %q, want own", sc.Command)
	}
	// New names are contributed.
	if sc, ok := cfg.Get("extra"); !ok || sc.Command != "new" {
		t.Errorf("extra = %+v, ok=%v", sc, ok)
	}
	// Duplicate import identifiers collapse.
	if len(cfg.Imports) != 1 {
		t.Errorf("Imports = %v", cfg.Imports)
	}
}

func TestLoadUnknownEditorIgnored(t *testing.T) {
	_, cwd := isolate(t)

	writeFile(t, filepath.Join(cwd, "config", "mcplug.json"),
		`{"mcpServers": {"m": {"command": "x"}}, "imports": ["not-an-editor"]}`)

	if _, err := Load(Options{}); err != nil {
		t.Fatalf("unknown editor import failed the load: %v", err)
	}
}

func TestDiscoverOrder(t *testing.T) {
	home, cwd := isolate(t)

	project := filepath.Join(cwd, "config", "mcplug.json")
	homeCfg := filepath.Join(home, ".mcplug", "mcplug.json")
	writeFile(t, project, `{}`)
	writeFile(t, homeCfg, `{}`)
	explicit := filepath.Join(t.TempDir(), "e.json")
	writeFile(t, explicit, `{}`)

	files := Discover(explicit)
	if len(files) != 3 {
		t.Fatalf("Discover = %v", files)
	}
	if files[0] != explicit {
		t.Errorf("files[0] = %q, want explicit path first", files[0])
	}
	if files[1] != "config/mcplug.json" && files[1] != project {
		t.Errorf("files[1] = %q, want project config", files[1])
	}
	if files[2] != homeCfg {
		t.Errorf("files[2] = %q, want home config", files[2])
	}
}
