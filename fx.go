package tailscale

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// Module 返回 Fx 模块
//
// 使用 opts 创建 *Session 并注册生命周期钩子：
//   - OnStart: Session.Up，受启动超时约束
//   - OnStop: Session.Close
//
// 示例:
//
//	app := fx.New(
//	    tailscale.Module(tailscale.WithHostname("tsnode")),
//	    tailscale.FxLogger(zapLogger),
//	    fx.Invoke(func(s *tailscale.Session) { ... }),
//	)
func Module(opts ...Option) fx.Option {
	return fx.Module("tailscale",
		fx.Provide(func() (*Session, error) {
			return New(opts...)
		}),
		fx.Invoke(registerLifecycleHooks),
	)
}

// lifecycleHooksParams 生命周期钩子参数
type lifecycleHooksParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Session   *Session
}

// registerLifecycleHooks 注册生命周期钩子
//
// Close 单独成钩子并先注册：Up 失败时 Fx 回滚已启动的钩子，会话仍会被关闭。
func registerLifecycleHooks(params lifecycleHooksParams) {
	params.Lifecycle.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return params.Session.Close()
		},
	})
	params.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return params.Session.Up(ctx)
		},
	})
}

// FxLogger 将 Fx 事件输出到 l，nil 时丢弃
func FxLogger(l *zap.Logger) fx.Option {
	if l == nil {
		l = zap.NewNop()
	}
	return fx.WithLogger(func() fxevent.Logger {
		return &fxevent.ZapLogger{Logger: l}
	})
}
