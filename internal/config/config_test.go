package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := Defaults()
		cfg.General.LogLevel = level
		if err := Validate(cfg); err != nil {
			t.Fatalf("logLevel %q should be valid: %v", level, err)
		}
	}
	cfg := Defaults()
	cfg.General.LogLevel = "loud"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for logLevel=loud")
	}
}

func TestValidate_DialTimeout_Boundary(t *testing.T) {
	cfg := Defaults()

	cfg.Editor.DialTimeoutSeconds = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for dialTimeoutSeconds=0")
	}
	cfg.Editor.DialTimeoutSeconds = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("dialTimeoutSeconds=1 should be valid: %v", err)
	}
	cfg.Editor.DialTimeoutSeconds = 60
	if err := Validate(cfg); err != nil {
		t.Fatalf("dialTimeoutSeconds=60 should be valid: %v", err)
	}
}

func TestValidate_RequestTimeoutZeroAllowed(t *testing.T) {
	cfg := Defaults()
	cfg.Editor.RequestTimeoutSeconds = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("requestTimeoutSeconds=0 should be valid: %v", err)
	}
	cfg.Editor.RequestTimeoutSeconds = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative request timeout")
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Editor.ListenPort = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Editor.ListenPort = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_Journal(t *testing.T) {
	cfg := Defaults()
	cfg.Journal.Enabled = true
	cfg.Journal.RetentionDays = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for retentionDays=0")
	}

	cfg = Defaults()
	cfg.Journal.Enabled = true
	cfg.Journal.DBPath = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty dbPath")
	}

	cfg = Defaults()
	cfg.Journal.Enabled = false
	cfg.Journal.DBPath = ""
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled journal should not be validated: %v", err)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Defaults()
	cfg.Editor.Host = ""
	cfg.Metrics.Enabled = true
	cfg.Metrics.Endpoint = "metrics"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected errors")
	}
	if !strings.Contains(err.Error(), "editor.host") || !strings.Contains(err.Error(), "metrics.endpoint") {
		t.Fatalf("expected both errors reported, got: %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Editor.Host = "127.0.0.1"
	original.Editor.PortFiles = []string{"/tmp/a.txt", "/tmp/b.txt"}

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Editor.Host != "127.0.0.1" {
		t.Fatalf("expected '127.0.0.1', got %q", loaded.Editor.Host)
	}
	if len(loaded.Editor.PortFiles) != 2 || loaded.Editor.PortFiles[1] != "/tmp/b.txt" {
		t.Fatalf("portFiles = %v", loaded.Editor.PortFiles)
	}
}

func TestLoadSave_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	original := Defaults()
	original.Editor.RequestTimeoutSeconds = 12
	original.Journal.Enabled = true
	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "requestTimeoutSeconds: 12") {
		t.Fatalf("expected YAML output, got:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Editor.RequestTimeout() != 12*time.Second || !loaded.Journal.Enabled {
		t.Fatalf("unexpected config %+v", loaded)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yml")
	os.WriteFile(path, []byte("editor:\n  host: 10.0.0.2\n"), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Editor.Host != "10.0.0.2" || cfg.Editor.DialTimeout() != 5*time.Second {
		t.Fatalf("unexpected config %+v", cfg.Editor)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ExpandsEnvAndHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LUKE_EDITOR_HOST", "editor.local")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{
		"editor": {"host": "${LUKE_EDITOR_HOST}", "portFiles": ["~/port.txt"]},
		"journal": {"dbPath": "~/j.db"}
	}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Editor.Host != "editor.local" {
		t.Errorf("host = %q", cfg.Editor.Host)
	}
	if cfg.Editor.PortFiles[0] != filepath.Join(home, "port.txt") {
		t.Errorf("portFiles[0] = %q", cfg.Editor.PortFiles[0])
	}
	if cfg.Journal.DBPath != filepath.Join(home, "j.db") {
		t.Errorf("dbPath = %q", cfg.Journal.DBPath)
	}
}

// --- Env vars ---

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("LB_SET", "value")
	t.Setenv("LB_EMPTY", "")

	cases := map[string]string{
		"${LB_SET}":             "value",
		"${LB_EMPTY:-fallback}": "fallback",
		"${LB_UNSET:-x}":        "x",
		"${LB_UNSET}":           "${LB_UNSET}",
		"plain":                 "plain",
	}
	for in, want := range cases {
		if got := ExpandEnvVars(in); got != want {
			t.Errorf("ExpandEnvVars(%q) = %q, want %q", in, got, want)
		}
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "editor.host")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "localhost" {
		t.Fatalf("expected 'localhost', got %v", val)
	}
}

func TestGetByPath_UnknownKey(t *testing.T) {
	cfg := Defaults()
	_, err := GetByPath(cfg, "providers.openai.apiKey")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "unknown config key") || !strings.Contains(err.Error(), "editor.host") {
		t.Errorf("error should name the key set, got %v", err)
	}
}

func TestGetByPath_PortFileIndex(t *testing.T) {
	cfg := Defaults()
	cfg.Editor.PortFiles = []string{"/a.txt", "/b.txt"}

	val, err := GetByPath(cfg, "editor.portFiles.1")
	if err != nil {
		t.Fatal(err)
	}
	if val != "/b.txt" {
		t.Errorf("got %v", val)
	}
	if _, err := GetByPath(cfg, "editor.portFiles.2"); err == nil {
		t.Error("expected error for out of range index")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "journal.enabled", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if err := SetByPath(cfg, "editor.requestTimeoutSeconds", "90"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if err := SetByPath(cfg, "editor.host", "127.0.0.1"); err != nil {
		t.Fatalf("set string: %v", err)
	}
	if !cfg.Journal.Enabled || cfg.Editor.RequestTimeoutSeconds != 90 || cfg.Editor.Host != "127.0.0.1" {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestSetByPath_PortFilesListAndHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	cfg := Defaults()

	if err := SetByPath(cfg, "editor.portFiles", "~/a.txt, /tmp/b.txt,"); err != nil {
		t.Fatal(err)
	}
	want := []string{filepath.Join(home, "a.txt"), "/tmp/b.txt"}
	if len(cfg.Editor.PortFiles) != 2 || cfg.Editor.PortFiles[0] != want[0] || cfg.Editor.PortFiles[1] != want[1] {
		t.Fatalf("portFiles = %v, want %v", cfg.Editor.PortFiles, want)
	}

	if err := SetByPath(cfg, "journal.dbPath", "~/j.db"); err != nil {
		t.Fatal(err)
	}
	if cfg.Journal.DBPath != filepath.Join(home, "j.db") {
		t.Errorf("dbPath = %s", cfg.Journal.DBPath)
	}

	if err := SetByPath(cfg, "editor.portFiles", ""); err != nil {
		t.Fatal(err)
	}
	if len(cfg.Editor.PortFiles) != 0 {
		t.Errorf("empty value should clear the list, got %v", cfg.Editor.PortFiles)
	}
}

func TestSetByPath_RejectsAndKeepsConfig(t *testing.T) {
	cfg := Defaults()

	tests := []struct{ key, value string }{
		{"editor.dialTimeoutSeconds", "abc"},
		{"editor.dialTimeoutSeconds", "0"},
		{"editor.listenPort", "70000"},
		{"general.logLevel", "verbose"},
		{"journal.enabled", "maybe"},
		{"channels.web.port", "3000"},
	}
	for _, tt := range tests {
		if err := SetByPath(cfg, tt.key, tt.value); err == nil {
			t.Errorf("SetByPath(%s, %q) should fail", tt.key, tt.value)
		}
	}

	if cfg.Editor.DialTimeoutSeconds != 5 || cfg.Editor.ListenPort != 0 || cfg.General.LogLevel != "info" {
		t.Errorf("rejected sets must not change the config: %+v", cfg)
	}
}

func TestListPaths(t *testing.T) {
	paths := ListPaths(Defaults())
	if len(paths) != len(Keys()) {
		t.Errorf("ListPaths has %d keys, Keys has %d", len(paths), len(Keys()))
	}
	for _, key := range []string{"general.logLevel", "editor.dialTimeoutSeconds", "editor.portFiles", "journal.dbPath", "metrics.endpoint"} {
		if _, ok := paths[key]; !ok {
			t.Errorf("missing path %s", key)
		}
	}
}
