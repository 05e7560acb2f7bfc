package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := New()

	if m.Attempted() != 0 {
		t.Errorf("expected 0 attempted, got %d", m.Attempted())
	}
	if m.Introduced() != 0 {
		t.Errorf("expected 0 introduced, got %d", m.Introduced())
	}
	if m.AverageHandshake() != 0 {
		t.Errorf("expected 0 average, got %v", m.AverageHandshake())
	}
	if m.Percentile(0.99) != 0 {
		t.Errorf("expected 0 p99 with no samples, got %v", m.Percentile(0.99))
	}
}

func TestMetricsLifecycleCounters(t *testing.T) {
	m := New()

	for _i := 0; _i < 3; _i++ {
		m.RecordAttempt()
	}
	m.RecordConnected()
	m.RecordConnected()
	m.RecordIntroduced(10 * time.Millisecond)
	m.RecordFailure("connect")
	m.RecordDrained()
	m.RecordDrained()
	m.RecordClosed()

	snap := m.Snapshot()
	if snap.Attempted != 3 {
		t.Errorf("expected 3 attempted, got %d", snap.Attempted)
	}
	if snap.Connected != 2 {
		t.Errorf("expected 2 connected, got %d", snap.Connected)
	}
	if snap.Introduced != 1 {
		t.Errorf("expected 1 introduced, got %d", snap.Introduced)
	}
	if snap.Failed != 1 {
		t.Errorf("expected 1 failed, got %d", snap.Failed)
	}
	if snap.Drained != 2 {
		t.Errorf("expected 2 drained, got %d", snap.Drained)
	}
	if snap.Open != 1 {
		t.Errorf("expected 1 open, got %d", snap.Open)
	}
}

func TestMetricsHandshakeLatency(t *testing.T) {
	m := New()

	m.RecordIntroduced(10 * time.Millisecond)
	m.RecordIntroduced(20 * time.Millisecond)
	m.RecordIntroduced(30 * time.Millisecond)

	if avg := m.AverageHandshake(); avg != 20*time.Millisecond {
		t.Errorf("expected average 20ms, got %v", avg)
	}
	if p50 := m.Percentile(0.50); p50 != 20*time.Millisecond {
		t.Errorf("expected p50 20ms, got %v", p50)
	}
	if p99 := m.Percentile(0.99); p99 != 30*time.Millisecond {
		t.Errorf("expected p99 30ms, got %v", p99)
	}
}

func TestMetricsPercentile(t *testing.T) {
	m := New()

	for i := 1; i <= 100; i++ {
		m.RecordIntroduced(time.Duration(i) * time.Millisecond)
	}

	p99 := m.Percentile(0.99)
	if p99 < 99*time.Millisecond || p99 > 100*time.Millisecond {
		t.Errorf("expected p99 around 99-100ms, got %v", p99)
	}
}

func TestMetricsMaxSamples(t *testing.T) {
	m := NewWithConfig(Config{MaxLatencySamples: 2})

	m.RecordIntroduced(1 * time.Millisecond)
	m.RecordIntroduced(2 * time.Millisecond)
	m.RecordIntroduced(100 * time.Millisecond)

	// 3つ目はサンプルに入らないが、カウントと平均には含まれる
	if m.Introduced() != 3 {
		t.Errorf("expected 3 introduced, got %d", m.Introduced())
	}
	if p99 := m.Percentile(0.99); p99 != 2*time.Millisecond {
		t.Errorf("expected p99 from retained samples (2ms), got %v", p99)
	}
}

func TestMetricsFailuresByStage(t *testing.T) {
	m := New()

	m.RecordFailure("connect")
	m.RecordFailure("connect")
	m.RecordFailure("intro")

	stages := m.FailuresByStage()
	if stages["connect"] != 2 {
		t.Errorf("expected 2 connect failures, got %d", stages["connect"])
	}
	if stages["intro"] != 1 {
		t.Errorf("expected 1 intro failure, got %d", stages["intro"])
	}

	// 返されたマップを変更しても内部状態に影響しない
	stages["connect"] = 100
	if m.FailuresByStage()["connect"] != 2 {
		t.Error("FailuresByStage should return a copy")
	}
}

func TestMetricsOpenNeverNegative(t *testing.T) {
	m := New()
	m.RecordClosed()

	if m.Open() != 0 {
		t.Errorf("expected 0 open, got %d", m.Open())
	}
}

func TestMetricsConcurrent(t *testing.T) {
	m := New()
	var wg sync.WaitGroup

	const goroutines = 50
	const perGoroutine = 100

	for _i := 0; _i < goroutines; _i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _i := 0; _i < perGoroutine; _i++ {
				m.RecordAttempt()
				m.RecordIntroduced(time.Millisecond)
				m.RecordDrained()
			}
		}()
	}
	wg.Wait()

	expected := uint64(goroutines * perGoroutine)
	if m.Attempted() != expected {
		t.Errorf("expected %d attempted, got %d", expected, m.Attempted())
	}
	if m.Introduced() != expected {
		t.Errorf("expected %d introduced, got %d", expected, m.Introduced())
	}
	if m.Drained() != expected {
		t.Errorf("expected %d drained, got %d", expected, m.Drained())
	}
}
