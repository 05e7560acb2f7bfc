package docserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"doc-loadgen/internal/docproto"
	"doc-loadgen/internal/logger"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"golang.org/x/net/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config はスタブサーバーの設定
type Config struct {
	IntroMessages  int           // 送信する紹介メッセージ数（0〜2）
	Updates        int           // 紹介後に送る更新メッセージ数
	UpdateInterval time.Duration // 更新メッセージの送信間隔
	CloseAfterSend bool          // 送信完了後にサーバー側から切断する
	RejectAuth     bool          // 認証を拒否する
}

// DefaultConfig はデフォルト設定を返す
func DefaultConfig() Config {
	return Config{
		IntroMessages:  2,
		Updates:        0,
		UpdateInterval: 100 * time.Millisecond,
		CloseAfterSend: false,
		RejectAuth:     false,
	}
}

// Stats はサーバー側で観測した統計
type Stats struct {
	Connections   uint64
	Authenticated uint64
	Introduced    uint64
	Inbound       uint64 // クライアントから受信したフレーム総数
}

// Server はスタブのドキュメントサーバー
type Server struct {
	config Config

	mu           sync.Mutex
	conns        map[*websocket.Conn]struct{}
	authPayloads []string
	closed       bool
	wg           sync.WaitGroup

	connections   atomic.Uint64
	authenticated atomic.Uint64
	introduced    atomic.Uint64
	inbound       atomic.Uint64

	done chan struct{}
}

// New は新しいサーバーを作成する
func New(config Config) *Server {
	return &Server{
		config: config,
		conns:  make(map[*websocket.Conn]struct{}),
		done:   make(chan struct{}),
	}
}

// Handler はHTTPハンドラを返す
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	// websocket.Handler は Origin ヘッダを要求するため、チェックなしの Server を使う
	mux.Handle(docproto.DocPath, websocket.Server{Handler: s.handleDoc})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// ListenAndServe はサーバーを起動し、ctx がキャンセルされるまでブロックする
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	logger.Info("", "Doc server listening on ws://%s%s", addr, docproto.DocPath)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		s.Close()
	}()

	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close は全接続を切断し、ハンドラの終了を待つ
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.wg.Wait()
		return
	}
	s.closed = true
	close(s.done)
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for ws := range s.conns {
		conns = append(conns, ws)
	}
	s.mu.Unlock()

	for _, ws := range conns {
		_ = ws.Close()
	}
	s.wg.Wait()
}

// Stats は統計を返す
func (s *Server) Stats() Stats {
	return Stats{
		Connections:   s.connections.Load(),
		Authenticated: s.authenticated.Load(),
		Introduced:    s.introduced.Load(),
		Inbound:       s.inbound.Load(),
	}
}

// AuthPayloads は受信した認証メッセージの生データを返す
func (s *Server) AuthPayloads() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.authPayloads))
	copy(out, s.authPayloads)
	return out
}

func (s *Server) register(ws *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[ws] = struct{}{}
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(ws *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, ws)
	s.mu.Unlock()
	_ = ws.Close()
	s.wg.Done()
}

// handleDoc は1接続分のハンドシェイクと更新配信を行う
func (s *Server) handleDoc(ws *websocket.Conn) {
	if !s.register(ws) {
		_ = ws.Close()
		return
	}
	defer s.unregister(ws)

	s.connections.Add(1)

	docID := ws.Request().URL.Query().Get("docId")
	if docID == "" {
		logger.Warn("", "rejecting connection: missing docId search parameter")
		return
	}

	var raw string
	if err := websocket.Message.Receive(ws, &raw); err != nil {
		return
	}
	s.inbound.Add(1)
	s.mu.Lock()
	s.authPayloads = append(s.authPayloads, raw)
	s.mu.Unlock()

	var auth docproto.AuthRequest
	if err := json.UnmarshalFromString(raw, &auth); err != nil || auth.Type != docproto.TypeAuth {
		logger.Info("", "unexpected message: %q", raw)
		return
	}

	clientID := "sid:" + uuid.NewString()

	if s.config.RejectAuth {
		_ = s.send(ws, docproto.AuthResult{
			Type:    docproto.TypeAuthResult,
			Success: false,
			Issue:   "invalidToken",
		})
		return
	}
	s.authenticated.Add(1)

	intro := []any{
		docproto.AuthResult{
			Type:    docproto.TypeAuthResult,
			Success: true,
			User:    &docproto.User{ID: "bob", Name: "Bob"},
			Authz:   "write",
		},
		docproto.DocIntro{
			Type:     docproto.TypeDoc,
			DocID:    docID,
			ClientID: clientID,
		},
	}
	for i := 0; i < s.config.IntroMessages && i < len(intro); i++ {
		if err := s.send(ws, intro[i]); err != nil {
			logger.Debug(clientID, "intro send failed: %v", err)
			return
		}
	}
	if s.config.IntroMessages < len(intro) {
		// 紹介を途中で打ち切って切断する
		return
	}
	s.introduced.Add(1)

	if err := s.sendUpdates(ws); err != nil {
		logger.Debug(clientID, "update send failed: %v", err)
		return
	}

	if s.config.CloseAfterSend {
		return
	}

	// クライアントが切断するかサーバーが閉じるまで保持する
	for {
		var msg []byte
		if err := websocket.Message.Receive(ws, &msg); err != nil {
			return
		}
		s.inbound.Add(1)
	}
}

func (s *Server) sendUpdates(ws *websocket.Conn) error {
	for seq := 0; seq < s.config.Updates; seq++ {
		if seq > 0 && s.config.UpdateInterval > 0 {
			select {
			case <-s.done:
				return fmt.Errorf("server closed")
			case <-time.After(s.config.UpdateInterval):
			}
		}
		if err := s.send(ws, docproto.Update{Type: docproto.TypeUpdate, Seq: seq}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Server) send(ws *websocket.Conn, msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return websocket.Message.Send(ws, string(data))
}
