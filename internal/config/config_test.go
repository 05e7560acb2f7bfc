package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"doc-loadgen/internal/logger"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return path
}

func TestLoadFileYAML(t *testing.T) {
	content := `
load:
  target: 127.0.0.1:9000
  scheme: ws
  clients: 250
  max_jitter: 20ms
  handshake_timeout: 5s
  timeout: 1m
  seed: 99
  hold: false
  log_level: debug
`
	cfg, err := LoadFile(writeTemp(t, "run.yaml", content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	run, err := cfg.ToRun()
	if err != nil {
		t.Fatalf("failed to convert: %v", err)
	}

	c := run.Coordinator
	if c.Target != "127.0.0.1:9000" {
		t.Errorf("expected target 127.0.0.1:9000, got %s", c.Target)
	}
	if c.Clients != 250 {
		t.Errorf("expected 250 clients, got %d", c.Clients)
	}
	if c.MaxJitter != 20*time.Millisecond {
		t.Errorf("expected 20ms jitter, got %v", c.MaxJitter)
	}
	if c.HandshakeTimeout != 5*time.Second {
		t.Errorf("expected 5s handshake timeout, got %v", c.HandshakeTimeout)
	}
	if c.Timeout != time.Minute {
		t.Errorf("expected 1m timeout, got %v", c.Timeout)
	}
	if c.Seed != 99 {
		t.Errorf("expected seed 99, got %d", c.Seed)
	}
	if run.Hold {
		t.Error("expected hold to be false")
	}
	if run.LogLevel != logger.LevelDebug {
		t.Errorf("expected debug level, got %s", run.LogLevel)
	}
}

func TestLoadFileJSON(t *testing.T) {
	content := `{
  "load": {
    "target": "localhost:8080",
    "clients": 3,
    "timeout": "5s"
  }
}`
	cfg, err := LoadFile(writeTemp(t, "run.json", content))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	run, err := cfg.ToRun()
	if err != nil {
		t.Fatalf("failed to convert: %v", err)
	}
	if run.Coordinator.Clients != 3 {
		t.Errorf("expected 3 clients, got %d", run.Coordinator.Clients)
	}
	// 未指定項目はデフォルトのまま
	if run.Coordinator.MaxJitter != 10*time.Millisecond {
		t.Errorf("expected default jitter, got %v", run.Coordinator.MaxJitter)
	}
	if !run.Hold {
		t.Error("expected default hold=true")
	}
}

func TestLoadFileErrors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	if _, err := LoadFile(writeTemp(t, "run.toml", "x = 1")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported format error, got %v", err)
	}

	if _, err := LoadFile(writeTemp(t, "bad.yaml", "load: [unclosed")); err == nil {
		t.Error("expected YAML parse error")
	}

	if _, err := LoadFile(writeTemp(t, "bad.json", "{")); err == nil {
		t.Error("expected JSON parse error")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		load    LoadConfig
		wantErr bool
	}{
		{"empty is valid", LoadConfig{}, false},
		{"negative clients", LoadConfig{Clients: -1}, true},
		{"bad scheme", LoadConfig{Scheme: "http"}, true},
		{"bad duration", LoadConfig{Timeout: "soon"}, true},
		{"negative duration", LoadConfig{MaxJitter: "-1s"}, true},
		{"bad log level", LoadConfig{LogLevel: "loud"}, true},
		{"wss ok", LoadConfig{Scheme: "wss", Clients: 10, Timeout: "1s"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &FileConfig{Load: tt.load}
			err := f.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyKeepsExistingValues(t *testing.T) {
	run := DefaultRun()
	run.Coordinator.Target = "from-flags:1"
	run.Coordinator.Clients = 42

	f := &FileConfig{Load: LoadConfig{Timeout: "3s"}}
	got, err := f.Apply(run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Coordinator.Target != "from-flags:1" || got.Coordinator.Clients != 42 {
		t.Errorf("expected existing values to be kept, got %+v", got.Coordinator)
	}
	if got.Coordinator.Timeout != 3*time.Second {
		t.Errorf("expected 3s timeout, got %v", got.Coordinator.Timeout)
	}
}

func TestPresets(t *testing.T) {
	names := ListPresets()
	want := []string{"burst", "smoke", "soak"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("expected presets %v, got %v", want, names)
	}

	p, ok := GetPreset("smoke")
	if !ok {
		t.Fatal("expected smoke preset")
	}
	run := p.Apply(DefaultRun())
	if run.Coordinator.Clients != 5 {
		t.Errorf("expected 5 clients, got %d", run.Coordinator.Clients)
	}
	if run.Hold {
		t.Error("expected smoke preset not to hold")
	}

	if _, ok := GetPreset("unknown"); ok {
		t.Error("expected unknown preset to be missing")
	}
}
