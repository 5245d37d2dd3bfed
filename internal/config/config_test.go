package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	rxerrors "github.com/vango-dev/rxstore/internal/errors"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigFileName)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func code(err error) string {
	var e *rxerrors.Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

func TestNew(t *testing.T) {
	cfg := New()

	if cfg.Database != "db" || cfg.Table != "table" {
		t.Errorf("names = %q/%q, want db/table", cfg.Database, cfg.Table)
	}
	if cfg.Backend != BackendMemory {
		t.Errorf("Backend = %q, want %q", cfg.Backend, BackendMemory)
	}
	if cfg.Adapter != AdapterIndexed {
		t.Errorf("Adapter = %q, want %q", cfg.Adapter, AdapterIndexed)
	}
	if cfg.SQLite.Path != DefaultSQLitePath {
		t.Errorf("SQLite.Path = %q, want %q", cfg.SQLite.Path, DefaultSQLitePath)
	}
	if cfg.Hub.Listen != DefaultHubListen {
		t.Errorf("Hub.Listen = %q, want %q", cfg.Hub.Listen, DefaultHubListen)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults do not validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()

	_, err := Load(tmpDir)
	if code(err) != "RX080" {
		t.Errorf("missing config error = %v, want RX080", err)
	}

	writeConfig(t, tmpDir, `{
  "database": "app",
  "table": "settings",
  "backend": "sqlite",
  "sqlite": {"path": "data/app.db"},
  "hub": {"url": "http://localhost:7420"},
  "log": {"level": "debug", "format": "json"},
  "devMode": true
}
`)

	cfg, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Database != "app" || cfg.Table != "settings" {
		t.Errorf("names = %q/%q", cfg.Database, cfg.Table)
	}
	if cfg.Backend != BackendSQLite || cfg.SQLite.Path != "data/app.db" {
		t.Errorf("backend = %q %q", cfg.Backend, cfg.SQLite.Path)
	}
	if cfg.Hub.URL != "http://localhost:7420" || cfg.Hub.Listen != DefaultHubListen {
		t.Errorf("hub = %+v", cfg.Hub)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" || !cfg.DevMode {
		t.Errorf("log = %+v devMode = %v", cfg.Log, cfg.DevMode)
	}
	if cfg.Dir() != tmpDir {
		t.Errorf("Dir() = %q, want %q", cfg.Dir(), tmpDir)
	}
}

func TestLoadFile_InvalidJSON(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "{\n  \"table\": \"settings\",\n  \"backend\": \"sqlite\",,\n}\n")

	_, err := LoadFile(path)
	if code(err) != "RX081" {
		t.Fatalf("error = %v, want RX081", err)
	}

	var e *rxerrors.Error
	stderrors.As(err, &e)
	if e.Location == nil {
		t.Fatal("syntax error carries no location")
	}
	if e.Location.Line != 3 || e.Location.Column != 23 {
		t.Errorf("location = %d:%d, want 3:23", e.Location.Line, e.Location.Column)
	}
}

func TestLoadFile_InvalidValue(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"unknown backend", `{"backend": "redis"}`, "RX083"},
		{"s3 without bucket", `{"backend": "s3"}`, "RX082"},
		{"local on s3", `{"backend": "s3", "adapter": "local", "s3": {"bucket": "b"}}`, "RX082"},
		{"unknown adapter", `{"adapter": "cookie"}`, "RX082"},
		{"bad log level", `{"log": {"level": "loud"}}`, "RX082"},
		{"bad log format", `{"log": {"format": "xml"}}`, "RX082"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, t.TempDir(), tt.content)
			_, err := LoadFile(path)
			if code(err) != tt.want {
				t.Errorf("error = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ConfigFileName)

	cfg := New()
	if err := cfg.Save(); err == nil {
		t.Error("Save without a path succeeded")
	}

	cfg.Backend = BackendS3
	cfg.S3 = S3Config{Bucket: "bucket", Prefix: "p/", Region: "eu-west-1"}
	if err := cfg.SaveTo(path); err != nil {
		t.Fatalf("SaveTo error: %v", err)
	}
	if cfg.Path() != path {
		t.Errorf("Path() = %q, want %q", cfg.Path(), path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(string(data), "}\n") {
		t.Error("saved file does not end with a newline")
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile error: %v", err)
	}
	if loaded.S3 != cfg.S3 || loaded.Backend != BackendS3 {
		t.Errorf("round trip = %+v", loaded)
	}

	loaded.Table = "other"
	if err := loaded.Save(); err != nil {
		t.Fatalf("Save error: %v", err)
	}
	again, _ := LoadFile(path)
	if again.Table != "other" {
		t.Errorf("Table after Save = %q", again.Table)
	}
}

func TestPosition(t *testing.T) {
	data := []byte("ab\ncd,,\n")
	tests := []struct {
		offset    int64
		line, col int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{7, 2, 4},
		{100, 3, 1},
	}
	for _, tt := range tests {
		line, col := position(data, tt.offset)
		if line != tt.line || col != tt.col {
			t.Errorf("position(%d) = %d:%d, want %d:%d", tt.offset, line, col, tt.line, tt.col)
		}
	}
}

func TestExists(t *testing.T) {
	tmpDir := t.TempDir()

	if Exists(tmpDir) {
		t.Error("Exists should return false for an empty dir")
	}
	writeConfig(t, tmpDir, "{}")
	if !Exists(tmpDir) {
		t.Error("Exists should return true after creating the config")
	}
}

func TestFindProjectRoot(t *testing.T) {
	tmpDir := t.TempDir()
	nested := filepath.Join(tmpDir, "a", "b", "c")
	if err := os.MkdirAll(nested, 0755); err != nil {
		t.Fatal(err)
	}

	if _, err := FindProjectRoot(nested); code(err) != "RX080" {
		t.Errorf("error = %v, want RX080", err)
	}

	writeConfig(t, tmpDir, "{}")

	root, err := FindProjectRoot(nested)
	if err != nil {
		t.Fatalf("FindProjectRoot error: %v", err)
	}
	want, _ := filepath.Abs(tmpDir)
	if root != want {
		t.Errorf("root = %q, want %q", root, want)
	}
}
