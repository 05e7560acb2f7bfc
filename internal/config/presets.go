package config

import (
	"sort"
	"time"
)

// Preset は名前付きの負荷プロファイル
type Preset struct {
	Name        string
	Description string
	Clients     int
	MaxJitter   time.Duration
	Timeout     time.Duration
	Hold        bool
}

// presets はプリセット定義
var presets = map[string]Preset{
	"smoke": {
		Name:        "smoke",
		Description: "5 clients, quick sanity check of the handshake",
		Clients:     5,
		MaxJitter:   10 * time.Millisecond,
		Timeout:     10 * time.Second,
		Hold:        false,
	},
	"burst": {
		Name:        "burst",
		Description: "1000 clients connecting at once",
		Clients:     1000,
		MaxJitter:   10 * time.Millisecond,
		Timeout:     30 * time.Second,
		Hold:        false,
	},
	"soak": {
		Name:        "soak",
		Description: "200 clients kept connected and draining",
		Clients:     200,
		MaxJitter:   100 * time.Millisecond,
		Timeout:     0,
		Hold:        true,
	},
}

// GetPreset は名前からプリセットを取得する
func GetPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// ListPresets はプリセット名をソートして返す
func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Apply はプリセットの値を実行設定に適用する
func (p Preset) Apply(run Run) Run {
	run.Coordinator.Clients = p.Clients
	run.Coordinator.MaxJitter = p.MaxJitter
	run.Coordinator.Timeout = p.Timeout
	run.Hold = p.Hold
	return run
}
