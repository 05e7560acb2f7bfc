// Package config loads load-run settings from YAML or JSON files and presets.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"doc-loadgen/internal/coordinator"
	"doc-loadgen/internal/docproto"
	"doc-loadgen/internal/logger"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Load LoadConfig `yaml:"load" json:"load"`
}

// LoadConfig は負荷実行の設定
type LoadConfig struct {
	Target           string `yaml:"target" json:"target"`
	Scheme           string `yaml:"scheme" json:"scheme"`
	Clients          int    `yaml:"clients" json:"clients"`
	MaxJitter        string `yaml:"max_jitter" json:"max_jitter"`
	HandshakeTimeout string `yaml:"handshake_timeout" json:"handshake_timeout"`
	Timeout          string `yaml:"timeout" json:"timeout"`
	Seed             int64  `yaml:"seed" json:"seed"`
	Hold             *bool  `yaml:"hold" json:"hold"`
	LogLevel         string `yaml:"log_level" json:"log_level"`
}

// Run はCLIが使う実行設定
type Run struct {
	Coordinator coordinator.Config
	Hold        bool         // レポート後もセッションのドレインを続ける
	LogLevel    logger.Level // ログレベル
}

// DefaultRun はデフォルトの実行設定を返す
func DefaultRun() Run {
	return Run{
		Coordinator: coordinator.DefaultConfig(),
		Hold:        true,
		LogLevel:    logger.LevelInfo,
	}
}

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	lc := f.Load

	if lc.Clients < 0 {
		return fmt.Errorf("load.clients must be non-negative")
	}

	switch lc.Scheme {
	case "", docproto.SchemeWS, docproto.SchemeWSS:
	default:
		return fmt.Errorf("load.scheme must be ws or wss, got %q", lc.Scheme)
	}

	durations := map[string]string{
		"load.max_jitter":        lc.MaxJitter,
		"load.handshake_timeout": lc.HandshakeTimeout,
		"load.timeout":           lc.Timeout,
	}
	for _, name := range sortedKeys(durations) {
		if _, err := parseDuration(durations[name]); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}

	if _, err := logger.ParseLevel(lc.LogLevel); err != nil {
		return fmt.Errorf("load.log_level: %w", err)
	}

	return nil
}

// Apply はファイルの値を既存の実行設定に上書きする（未指定の項目はそのまま）
func (f *FileConfig) Apply(run Run) (Run, error) {
	lc := f.Load
	cfg := &run.Coordinator

	if lc.Target != "" {
		cfg.Target = lc.Target
	}
	if lc.Scheme != "" {
		cfg.Scheme = lc.Scheme
	}
	if lc.Clients > 0 {
		cfg.Clients = lc.Clients
	}
	if lc.Seed != 0 {
		cfg.Seed = lc.Seed
	}

	if lc.MaxJitter != "" {
		d, err := parseDuration(lc.MaxJitter)
		if err != nil {
			return run, fmt.Errorf("invalid max_jitter: %w", err)
		}
		cfg.MaxJitter = d
	}
	if lc.HandshakeTimeout != "" {
		d, err := parseDuration(lc.HandshakeTimeout)
		if err != nil {
			return run, fmt.Errorf("invalid handshake_timeout: %w", err)
		}
		cfg.HandshakeTimeout = d
	}
	if lc.Timeout != "" {
		d, err := parseDuration(lc.Timeout)
		if err != nil {
			return run, fmt.Errorf("invalid timeout: %w", err)
		}
		cfg.Timeout = d
	}

	if lc.Hold != nil {
		run.Hold = *lc.Hold
	}
	if lc.LogLevel != "" {
		level, err := logger.ParseLevel(lc.LogLevel)
		if err != nil {
			return run, err
		}
		run.LogLevel = level
	}

	return run, nil
}

// ToRun はDefaultRunにファイルの値を適用した実行設定を返す
func (f *FileConfig) ToRun() (Run, error) {
	return f.Apply(DefaultRun())
}

// parseDuration は空文字を0として扱い、負の値を拒否する
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must be non-negative: %s", s)
	}
	return d, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
