// Package metrics collects handshake statistics for a load run.
//
// Metrics counts sessions as they move through the handshake (attempted,
// connected, introduced, failed, closed), keeps a bounded sample of
// handshake latencies for percentile estimates, and counts messages
// discarded during the drain phase.
//
// # Basic Usage
//
//	m := metrics.New()
//
//	m.RecordAttempt()
//	m.RecordConnected()
//	m.RecordIntroduced(time.Since(start))
//
//	snap := m.Snapshot()
//	fmt.Printf("introduced: %d, p99: %v\n", snap.Introduced, snap.P99Handshake)
//
// # Configuration
//
// Use NewWithConfig to change the number of retained latency samples:
//
//	m := metrics.NewWithConfig(metrics.Config{MaxLatencySamples: 50000})
//
// # Thread Safety
//
// Counters are atomic; the latency sample and per-stage failure table are
// guarded by a RWMutex. All methods are safe for concurrent use.
package metrics
