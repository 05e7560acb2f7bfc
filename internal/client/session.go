package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"doc-loadgen/internal/docproto"
	"doc-loadgen/internal/events"
	"doc-loadgen/internal/logger"
	"doc-loadgen/internal/metrics"

	"github.com/gorilla/websocket"
)

// Stage はセッションの処理段階を表す
type Stage string

const (
	StageJitter  Stage = "jitter"
	StageConnect Stage = "connect"
	StageAuth    Stage = "auth"
	StageIntro   Stage = "intro"
	StageSignal  Stage = "signal"
)

// introMessages は完了とみなすまでに受信するメッセージ数
const introMessages = 2

var (
	ErrConnect = errors.New("connect failed")
	ErrAuth    = errors.New("auth send failed")
	ErrIntro   = errors.New("introduction incomplete")
	ErrSignal  = errors.New("completion not delivered")
)

// Failure はハンドシェイク完了前のセッション失敗
type Failure struct {
	ID    int
	Stage Stage
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("client %d: %s: %v", f.ID, f.Stage, f.Err)
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// Completion はハンドシェイク完了シグナル
type Completion struct {
	ID        int
	Handshake time.Duration // 接続開始から2つ目の紹介メッセージ受信まで
}

// Dialer はWebSocket接続を確立する
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// Config はSessionの設定
type Config struct {
	Jitter           time.Duration // 接続前の待機時間
	HandshakeTimeout time.Duration // WebSocketハンドシェイクのタイムアウト
	Dialer           Dialer        // nilの場合はgorillaのDialerを使用
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		Jitter:           0,
		HandshakeTimeout: 10 * time.Second,
	}
}

// Session は1クライアント分の接続を管理する
type Session struct {
	id     int
	label  string
	target *url.URL
	config Config
	dialer Dialer

	eventBus *events.Bus
	metrics  *metrics.Metrics

	signalled atomic.Bool
	drained   atomic.Uint64
}

// NewSession は新しいSessionを作成する
func NewSession(id int, target *url.URL, config Config) *Session {
	dialer := config.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: config.HandshakeTimeout,
		}
	}
	return &Session{
		id:     id,
		label:  fmt.Sprintf("client-%d", id),
		target: target,
		config: config,
		dialer: dialer,
	}
}

// SetEventBus はイベントバスを設定する
func (s *Session) SetEventBus(bus *events.Bus) {
	s.eventBus = bus
}

// SetMetrics はメトリクスの記録先を設定する
func (s *Session) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// ID はセッションIDを返す
func (s *Session) ID() int {
	return s.id
}

// Label はログ用のラベルを返す
func (s *Session) Label() string {
	return s.label
}

// Signalled は完了シグナルを送信済みかどうかを返す
func (s *Session) Signalled() bool {
	return s.signalled.Load()
}

// Drained はドレインで破棄したメッセージ数を返す
func (s *Session) Drained() uint64 {
	return s.drained.Load()
}

func (s *Session) publishEvent(event events.Event) {
	if s.eventBus != nil {
		s.eventBus.Publish(event)
	}
}

// Run はハンドシェイクを実行し、完了後はストリームが終わるまでドレインする
func (s *Session) Run(ctx context.Context, completions chan<- Completion) error {
	if s.metrics != nil {
		s.metrics.RecordAttempt()
	}

	if err := s.waitJitter(ctx); err != nil {
		return s.fail(StageJitter, err)
	}

	start := time.Now()
	conn, _, err := s.dialer.DialContext(ctx, s.target.String(), nil)
	if err != nil {
		return s.fail(StageConnect, fmt.Errorf("%w: %w", ErrConnect, err))
	}
	logger.Debug(s.label, "connected to %s", s.target)
	if s.metrics != nil {
		s.metrics.RecordConnected()
	}
	s.publishEvent(events.NewConnectedEvent(s.id))

	// シャットダウン時のみ自分から接続を閉じる
	stop := context.AfterFunc(ctx, func() {
		_ = conn.Close()
	})
	defer stop()
	defer s.release(conn)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(docproto.AuthMessage)); err != nil {
		return s.fail(StageAuth, fmt.Errorf("%w: %w", ErrAuth, err))
	}

	for i := 1; i <= introMessages; i++ {
		if _, _, err := conn.ReadMessage(); err != nil {
			return s.fail(StageIntro, fmt.Errorf("%w: no intro%d: %w", ErrIntro, i, err))
		}
		logger.Debug(s.label, "intro %d received", i)
	}
	handshake := time.Since(start)

	if err := s.signal(ctx, completions, handshake); err != nil {
		return err
	}

	s.drain(conn)
	return nil
}

func (s *Session) waitJitter(ctx context.Context) error {
	if s.config.Jitter <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(s.config.Jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// signal は完了シグナルを一度だけ送信する
func (s *Session) signal(ctx context.Context, completions chan<- Completion, handshake time.Duration) error {
	if s.signalled.Load() {
		return nil
	}

	select {
	case completions <- Completion{ID: s.id, Handshake: handshake}:
		s.signalled.Store(true)
	case <-ctx.Done():
		return s.fail(StageSignal, fmt.Errorf("%w: %w", ErrSignal, ctx.Err()))
	}

	if s.metrics != nil {
		s.metrics.RecordIntroduced(handshake)
	}
	s.publishEvent(events.NewIntroducedEvent(s.id, handshake))
	logger.Debug(s.label, "introduced in %v", handshake)
	return nil
}

// drain は受信メッセージを破棄し続ける。送信は一切行わない
func (s *Session) drain(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug(s.label, "peer closed the stream")
			} else {
				logger.Debug(s.label, "drain ended: %v", err)
			}
			return
		}
		s.drained.Add(1)
		if s.metrics != nil {
			s.metrics.RecordDrained()
		}
	}
}

func (s *Session) release(conn *websocket.Conn) {
	_ = conn.Close()
	if s.metrics != nil {
		s.metrics.RecordClosed()
	}
	s.publishEvent(events.NewClosedEvent(s.id, s.drained.Load()))
}

func (s *Session) fail(stage Stage, err error) error {
	if s.metrics != nil {
		s.metrics.RecordFailure(string(stage))
	}
	s.publishEvent(events.NewFailedEvent(s.id, string(stage), err))
	return &Failure{ID: s.id, Stage: stage, Err: err}
}
