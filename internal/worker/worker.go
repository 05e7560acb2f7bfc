package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"doc-loadgen/internal/logger"
)

// Task はグループで実行されるタスク
type Task func(ctx context.Context)

// Group はファイア・アンド・フォーゲットのゴルーチンを管理する
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	launched atomic.Uint64
	active   atomic.Int64
	stopping atomic.Bool
	mu       sync.Mutex
}

// NewGroup は親コンテキストに紐づく新しいグループを作成する
func NewGroup(parent context.Context) *Group {
	ctx, cancel := context.WithCancel(parent)
	return &Group{
		ctx:    ctx,
		cancel: cancel,
	}
}

// Go はタスクを新しいゴルーチンで起動する（ブロックしない）
func (g *Group) Go(task Task) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.stopping.Load() {
		return false
	}
	select {
	case <-g.ctx.Done():
		return false
	default:
	}

	g.wg.Add(1)
	g.launched.Add(1)
	g.active.Add(1)

	go func() {
		defer g.wg.Done()
		defer g.active.Add(-1)
		defer func() {
			if r := recover(); r != nil {
				logger.Error("", "task panicked: %v", r)
			}
		}()
		task(g.ctx)
	}()

	return true
}

// Wait は全タスクの終了を待つ
func (g *Group) Wait() {
	g.wg.Wait()
}

// Stop は全タスクをキャンセルし、終了を待つ
func (g *Group) Stop() {
	g.mu.Lock()
	if g.stopping.Swap(true) {
		g.mu.Unlock()
		g.wg.Wait()
		return
	}
	g.mu.Unlock()

	g.cancel()
	g.wg.Wait()

	logger.Debug("", "worker group stopped (%d tasks launched)", g.launched.Load())
}

// Launched は起動したタスクの総数を返す
func (g *Group) Launched() uint64 {
	return g.launched.Load()
}

// Active は実行中のタスク数を返す
func (g *Group) Active() int {
	return int(g.active.Load())
}
