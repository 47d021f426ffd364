package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	tailscale "github.com/dep2p/go-tailscale"
)

// openSession 按配置创建会话并加入网格
//
// 返回的 stop 关闭指标服务与会话。
func (a *app) openSession(ctx context.Context, extra ...tailscale.Option) (*tailscale.Session, func(), error) {
	s, err := a.cfg.NewSession(append(append([]tailscale.Option{}, a.extra...), extra...)...)
	if err != nil {
		return nil, nil, err
	}
	cmdLog.Info("会话已创建", "session", s.ID(), "hostname", a.cfg.Hostname)

	stopMetrics := a.serveMetrics()
	stop := func() {
		stopMetrics()
		if err := s.Close(); err != nil {
			cmdLog.Warn("关闭会话失败", "session", s.ID(), "error", err)
		}
	}

	upCtx, cancel := a.cfg.UpContext(ctx)
	defer cancel()
	if err := s.Up(upCtx); err != nil {
		stop()
		return nil, nil, err
	}
	cmdLog.Info("已加入网格", "session", s.ID())
	return s, stop, nil
}

// serveMetrics 按配置启动指标 HTTP 服务
func (a *app) serveMetrics() func() {
	if !a.cfg.Metrics.Enabled || a.cfg.Metrics.Listen == "" {
		return func() {}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			cmdLog.Warn("指标服务退出", "addr", srv.Addr, "error", err)
		}
	}()
	cmdLog.Info("指标服务已启动", "addr", srv.Addr)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}
