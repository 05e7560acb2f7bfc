package metrics

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Config はメトリクスの設定
type Config struct {
	MaxLatencySamples int // 保持するレイテンシサンプル数
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		MaxLatencySamples: 10000,
	}
}

// Metrics はセッションのハンドシェイク統計を収集する
type Metrics struct {
	attempted   atomic.Uint64
	connected   atomic.Uint64
	introduced  atomic.Uint64
	failed      atomic.Uint64
	closed      atomic.Uint64
	drained     atomic.Uint64
	handshakeNs atomic.Uint64

	mu                sync.RWMutex
	latencies         []time.Duration
	maxLatencySamples int
	failuresByStage   map[string]uint64
}

// New は新しいメトリクスを作成する
func New() *Metrics {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig は設定を指定してメトリクスを作成する
func NewWithConfig(config Config) *Metrics {
	maxSamples := config.MaxLatencySamples
	if maxSamples <= 0 {
		maxSamples = DefaultConfig().MaxLatencySamples
	}
	return &Metrics{
		latencies:         make([]time.Duration, 0, min(maxSamples, 1024)),
		maxLatencySamples: maxSamples,
		failuresByStage:   make(map[string]uint64),
	}
}

// RecordAttempt はセッション開始を記録する
func (m *Metrics) RecordAttempt() {
	m.attempted.Add(1)
}

// RecordConnected は接続確立を記録する
func (m *Metrics) RecordConnected() {
	m.connected.Add(1)
}

// RecordIntroduced はハンドシェイク完了とそのレイテンシを記録する
func (m *Metrics) RecordIntroduced(latency time.Duration) {
	m.introduced.Add(1)
	m.handshakeNs.Add(uint64(latency.Nanoseconds()))

	m.mu.Lock()
	if len(m.latencies) < m.maxLatencySamples {
		m.latencies = append(m.latencies, latency)
	}
	m.mu.Unlock()
}

// RecordFailure はハンドシェイク前の失敗をステージ別に記録する
func (m *Metrics) RecordFailure(stage string) {
	m.failed.Add(1)

	m.mu.Lock()
	m.failuresByStage[stage]++
	m.mu.Unlock()
}

// RecordDrained はドレインフェーズで破棄したメッセージを記録する
func (m *Metrics) RecordDrained() {
	m.drained.Add(1)
}

// RecordClosed は接続終了を記録する
func (m *Metrics) RecordClosed() {
	m.closed.Add(1)
}

// Attempted は開始したセッション数を返す
func (m *Metrics) Attempted() uint64 {
	return m.attempted.Load()
}

// Connected は接続に成功したセッション数を返す
func (m *Metrics) Connected() uint64 {
	return m.connected.Load()
}

// Introduced はハンドシェイクを完了したセッション数を返す
func (m *Metrics) Introduced() uint64 {
	return m.introduced.Load()
}

// Failed はハンドシェイク前に失敗したセッション数を返す
func (m *Metrics) Failed() uint64 {
	return m.failed.Load()
}

// Closed は接続が終了したセッション数を返す
func (m *Metrics) Closed() uint64 {
	return m.closed.Load()
}

// Drained はドレインで破棄したメッセージ総数を返す
func (m *Metrics) Drained() uint64 {
	return m.drained.Load()
}

// Open は現在接続中のセッション数を返す
func (m *Metrics) Open() uint64 {
	connected := m.connected.Load()
	closed := m.closed.Load()
	if closed > connected {
		return 0
	}
	return connected - closed
}

// AverageHandshake は平均ハンドシェイク時間を返す
func (m *Metrics) AverageHandshake() time.Duration {
	n := m.introduced.Load()
	if n == 0 {
		return 0
	}
	return time.Duration(m.handshakeNs.Load() / n)
}

// Percentile はハンドシェイク時間のq分位点を返す（サンプルベース）
func (m *Metrics) Percentile(q float64) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.latencies) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(m.latencies))
	copy(sorted, m.latencies)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := int(float64(len(sorted)) * q)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}

// FailuresByStage はステージ別失敗数のコピーを返す
func (m *Metrics) FailuresByStage() map[string]uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]uint64, len(m.failuresByStage))
	for stage, n := range m.failuresByStage {
		out[stage] = n
	}
	return out
}

// Snapshot はメトリクスのスナップショット
type Snapshot struct {
	Attempted        uint64
	Connected        uint64
	Introduced       uint64
	Failed           uint64
	Closed           uint64
	Open             uint64
	Drained          uint64
	AverageHandshake time.Duration
	P50Handshake     time.Duration
	P99Handshake     time.Duration
	FailuresByStage  map[string]uint64
}

// Snapshot は現在のメトリクスのスナップショットを返す
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Attempted:        m.Attempted(),
		Connected:        m.Connected(),
		Introduced:       m.Introduced(),
		Failed:           m.Failed(),
		Closed:           m.Closed(),
		Open:             m.Open(),
		Drained:          m.Drained(),
		AverageHandshake: m.AverageHandshake(),
		P50Handshake:     m.Percentile(0.50),
		P99Handshake:     m.Percentile(0.99),
		FailuresByStage:  m.FailuresByStage(),
	}
}
