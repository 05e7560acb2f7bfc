package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"doc-loadgen/internal/client"
	"doc-loadgen/internal/docproto"
	"doc-loadgen/internal/events"
	"doc-loadgen/internal/logger"
	"doc-loadgen/internal/metrics"
	"doc-loadgen/internal/worker"
)

var (
	ErrNoClients  = errors.New("client count must be at least 1")
	ErrIncomplete = errors.New("not every client was introduced")
	ErrTimeout    = errors.New("timed out waiting for introductions")
)

// Config はコーディネーターの設定
type Config struct {
	Target           string        // host:port
	Scheme           string        // ws または wss
	Clients          int           // クライアント数
	MaxJitter        time.Duration // 接続前待機の上限（[0, MaxJitter) で一様）
	HandshakeTimeout time.Duration // WebSocketハンドシェイクのタイムアウト
	Timeout          time.Duration // 全員の紹介完了を待つ上限（0で無制限）
	Seed             int64         // ジッタ用乱数シード（0で時刻から生成）
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Scheme:           docproto.SchemeWS,
		Clients:          1,
		MaxJitter:        10 * time.Millisecond,
		HandshakeTimeout: 10 * time.Second,
		Timeout:          0,
	}
}

// JitterFunc はセッションIDごとの接続前待機時間を返す
type JitterFunc func(id int) time.Duration

// Result は1回の実行結果
type Result struct {
	Target     string
	Requested  int
	Introduced int
	Failed     int
	Pending    int // 成功も失敗も報告しなかったセッション数
	StartTime  time.Time
	Elapsed    time.Duration // 開始から最後の紹介完了（または待機終了）まで
	Metrics    metrics.Snapshot
}

// Coordinator はセッションを起動し、ハンドシェイク完了を集計する
type Coordinator struct {
	config   Config
	jitter   JitterFunc
	dialer   client.Dialer
	eventBus *events.Bus
	metrics  *metrics.Metrics

	mu      sync.Mutex
	group   *worker.Group
	running bool
}

// New は新しいCoordinatorを作成する
func New(config Config) *Coordinator {
	return &Coordinator{
		config:  config,
		metrics: metrics.New(),
	}
}

// SetJitterFunc はジッタの算出方法を差し替える
func (c *Coordinator) SetJitterFunc(fn JitterFunc) {
	c.jitter = fn
}

// SetDialer はセッションが使うDialerを差し替える
func (c *Coordinator) SetDialer(d client.Dialer) {
	c.dialer = d
}

// SetEventBus はイベントバスを設定する
func (c *Coordinator) SetEventBus(bus *events.Bus) {
	c.eventBus = bus
}

// Metrics はメトリクスを返す
func (c *Coordinator) Metrics() *metrics.Metrics {
	return c.metrics
}

// newJitter はシード付き乱数から [0, MaxJitter) のジッタを返す関数を作る。
// Run のゴルーチンからのみ呼ばれる
func (c *Coordinator) newJitter() JitterFunc {
	if c.jitter != nil {
		return c.jitter
	}
	maxJitter := c.config.MaxJitter
	if maxJitter <= 0 {
		return func(int) time.Duration { return 0 }
	}
	seed := c.config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	return func(int) time.Duration {
		return time.Duration(rng.Int63n(int64(maxJitter)))
	}
}

// Run は全セッションを起動し、全員の紹介完了までの時間を計測する
func (c *Coordinator) Run(ctx context.Context) (*Result, error) {
	n := c.config.Clients
	if n <= 0 {
		return nil, ErrNoClients
	}
	target, err := docproto.TargetURL(c.config.Scheme, c.config.Target)
	if err != nil {
		return nil, fmt.Errorf("invalid target: %w", err)
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return nil, fmt.Errorf("coordinator is already running")
	}
	c.running = true
	group := worker.NewGroup(ctx)
	c.group = group
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
	}()

	jitter := c.newJitter()
	completions := make(chan client.Completion, n)
	failures := make(chan *client.Failure, n)

	result := &Result{
		Target:    target.String(),
		Requested: n,
	}

	start := time.Now()
	result.StartTime = start

	for id := 0; id < n; id++ {
		s := client.NewSession(id, target, client.Config{
			Jitter:           jitter(id),
			HandshakeTimeout: c.config.HandshakeTimeout,
			Dialer:           c.dialer,
		})
		s.SetMetrics(c.metrics)
		s.SetEventBus(c.eventBus)

		if !group.Go(func(ctx context.Context) {
			c.runSession(ctx, s, completions, failures)
		}) {
			logger.Warn("", "launch stopped at client %d: context done", id)
			break
		}
	}
	logger.Debug("", "launched %d clients against %s", group.Launched(), target)

	err = c.wait(ctx, result, completions, failures)
	result.Elapsed = time.Since(start)
	result.Pending = result.Requested - result.Introduced - result.Failed
	result.Metrics = c.metrics.Snapshot()

	if err != nil {
		logger.Warn("", "%d/%d clients introduced after %v (%d failed, %d pending): %v",
			result.Introduced, n, result.Elapsed, result.Failed, result.Pending, err)
		return result, err
	}

	logger.Info("", "All clients introduced in %v", result.Elapsed)
	return result, nil
}

// wait は全セッションが紹介完了または失敗を報告するまで待つ
func (c *Coordinator) wait(ctx context.Context, result *Result, completions <-chan client.Completion, failures <-chan *client.Failure) error {
	var timeout <-chan time.Time
	if c.config.Timeout > 0 {
		timer := time.NewTimer(c.config.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	remaining := result.Requested
	for remaining > 0 {
		select {
		case <-completions:
			result.Introduced++
		case <-failures:
			result.Failed++
		case <-timeout:
			return ErrTimeout
		case <-ctx.Done():
			return ctx.Err()
		}
		remaining--
	}

	if result.Failed > 0 {
		// キャンセルによる失敗はキャンセルとして報告する
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrIncomplete
	}
	return nil
}

func (c *Coordinator) runSession(ctx context.Context, s *client.Session, completions chan<- client.Completion, failures chan<- *client.Failure) {
	err := s.Run(ctx, completions)
	if err == nil {
		logger.Info(s.Label(), "Client %d finished", s.ID())
		return
	}

	logger.Error(s.Label(), "Error: %v", err)

	var f *client.Failure
	if errors.As(err, &f) && !s.Signalled() {
		// 容量はクライアント数と同じなのでブロックしない
		failures <- f
	}
}

// Wait は起動済みの全セッションが終了するまで待つ
func (c *Coordinator) Wait() {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()

	if group != nil {
		group.Wait()
	}
}

// Shutdown は全セッションをキャンセルし、終了を待つ
func (c *Coordinator) Shutdown() {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()

	if group != nil {
		group.Stop()
	}
}

// Active は実行中のセッション数を返す
func (c *Coordinator) Active() int {
	c.mu.Lock()
	group := c.group
	c.mu.Unlock()

	if group == nil {
		return 0
	}
	return group.Active()
}

// Report は結果をフォーマットして返す
func (r *Result) Report() string {
	report := fmt.Sprintf(`
================================================================================
                         LOAD REPORT: %s
================================================================================

EXECUTION SUMMARY
-----------------
  Start Time:       %s
  Clients:          %d
  Introduced:       %d
  Failed:           %d
  Pending:          %d
  Elapsed:          %v

HANDSHAKE LATENCY
-----------------
  Avg:              %v
  P50:              %v
  P99:              %v

CONNECTIONS
-----------
  Connected:        %d
  Open:             %d
  Drained Messages: %d
`,
		r.Target,
		r.StartTime.Format("2006-01-02 15:04:05"),
		r.Requested,
		r.Introduced,
		r.Failed,
		r.Pending,
		r.Elapsed.Round(time.Microsecond),
		r.Metrics.AverageHandshake.Round(time.Microsecond),
		r.Metrics.P50Handshake.Round(time.Microsecond),
		r.Metrics.P99Handshake.Round(time.Microsecond),
		r.Metrics.Connected,
		r.Metrics.Open,
		r.Metrics.Drained,
	)

	if len(r.Metrics.FailuresByStage) > 0 {
		report += "\nFAILURES BY STAGE\n-----------------\n"
		stages := make([]string, 0, len(r.Metrics.FailuresByStage))
		for stage := range r.Metrics.FailuresByStage {
			stages = append(stages, stage)
		}
		sort.Strings(stages)
		for _, stage := range stages {
			report += fmt.Sprintf("  %-17s %d\n", stage+":", r.Metrics.FailuresByStage[stage])
		}
	}

	report += "\n================================================================================"

	return report
}
