// Package bridge 将可能无限期阻塞的原生调用移出调用方 goroutine
//
// 每次调用在独立 goroutine 中执行，结果经容量为 1 的 channel 返回。
// 并发上限由加权信号量控制。调用方取消时原生调用不会被打断：
// 它会运行到结束，结果交给 discard 回收。
package bridge

import (
	"context"
	"errors"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultMaxInFlight 默认并发上限
const DefaultMaxInFlight = 512

// ErrDispatchFailed 调用未能派发（池已关闭）
//
// 与被派发的操作自身返回的失败相互独立。
var ErrDispatchFailed = errors.New("blocking call dispatch failed")

// Config 池配置
type Config struct {
	// MaxInFlight 同时运行的阻塞调用上限，<= 0 使用 DefaultMaxInFlight
	MaxInFlight int64
}

// Pool 阻塞调用池
type Pool struct {
	sem      *semaphore.Weighted
	closed   atomic.Bool
	inFlight atomic.Int64
	total    atomic.Uint64
}

// New 创建池
func New(cfg Config) *Pool {
	n := cfg.MaxInFlight
	if n <= 0 {
		n = DefaultMaxInFlight
	}
	return &Pool{sem: semaphore.NewWeighted(n)}
}

// Close 拒绝后续派发；已在运行的调用不受影响
func (p *Pool) Close() {
	p.closed.Store(true)
}

// Closed 是否已关闭
func (p *Pool) Closed() bool {
	return p.closed.Load()
}

// InFlight 正在运行的调用数
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

// Total 已派发的调用总数
func (p *Pool) Total() uint64 {
	return p.total.Load()
}

// Call 在池中运行 fn 并等待结果
//
// 返回的 error 只描述派发与取消：fn 自身的失败应编码在 T 中。
// ctx 结束时立即返回 ctx.Err()，fn 之后产生的结果交给 discard（可为 nil）。
func Call[T any](ctx context.Context, p *Pool, fn func() T, discard func(T)) (T, error) {
	var zero T
	if p == nil || p.closed.Load() {
		return zero, ErrDispatchFailed
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return zero, err
	}
	if p.closed.Load() {
		p.sem.Release(1)
		return zero, ErrDispatchFailed
	}

	done := make(chan T, 1)
	p.inFlight.Add(1)
	p.total.Add(1)
	go func() {
		defer func() {
			p.inFlight.Add(-1)
			p.sem.Release(1)
		}()
		done <- fn()
	}()

	select {
	case v := <-done:
		return v, nil
	case <-ctx.Done():
		if discard != nil {
			go func() { discard(<-done) }()
		}
		return zero, ctx.Err()
	}
}
