package tailscale

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/dep2p/go-tailscale/pkg/lib/log"
)

var serveLog = log.Logger("tailscale/serve")

// 接受失败后的默认重试节奏
const (
	defaultAcceptRetryEvery = 100 * time.Millisecond
	defaultAcceptRetryBurst = 5
)

// Handler 处理一个已接受的连接；返回后连接被关闭
type Handler func(ctx context.Context, c *Conn)

// Server 接受循环
type Server struct {
	Handler Handler

	// AcceptRetry 接受失败后的重试节奏，nil 使用默认值
	AcceptRetry *rate.Limiter
}

// Serve 使用 h 在 ln 上提供服务，见 Server.Serve
func Serve(ctx context.Context, ln *Listener, h Handler) error {
	return (&Server{Handler: h}).Serve(ctx, ln)
}

// Serve 循环接受连接，每个连接在独立 goroutine 中处理
//
// ctx 结束或 ln 被关闭时停止接受，等待所有 handler 返回后返回 nil。
// 返回时 ln 已关闭。
func (srv *Server) Serve(ctx context.Context, ln *Listener) error {
	if srv.Handler == nil {
		return errors.New("tailscale: nil handler")
	}
	limiter := srv.AcceptRetry
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Every(defaultAcceptRetryEvery), defaultAcceptRetryBurst)
	}

	// 先关闭监听器并取消 ctx，再等待 handler
	var wg sync.WaitGroup
	defer wg.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()
	defer ln.Close()

	for {
		c, err := ln.AcceptContext(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, ErrListenerClosed) || errors.Is(err, ErrSessionClosed) {
				return nil
			}
			serveLog.Warn("接受连接失败", "addr", ln.address, "error", err)
			if err := limiter.Wait(ctx); err != nil {
				return nil
			}
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer c.Close()
			srv.Handler(ctx, c)
		}()
	}
}
