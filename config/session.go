package config

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	tailscale "github.com/dep2p/go-tailscale"
)

// Options 转换为会话选项
//
// Log.Mode 为 file 时不包含日志文件，见 NewSession。
func (c *Config) Options() ([]tailscale.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	opts := []tailscale.Option{tailscale.WithEphemeral(c.Ephemeral)}
	if c.Hostname != "" {
		opts = append(opts, tailscale.WithHostname(c.Hostname))
	}
	if c.Dir != "" {
		opts = append(opts, tailscale.WithDir(c.Dir))
	}
	if c.AuthKey != "" {
		opts = append(opts, tailscale.WithAuthKey(c.AuthKey))
	}
	if c.ControlURL != "" {
		opts = append(opts, tailscale.WithControlURL(c.ControlURL))
	}
	if c.MaxBlockingCalls > 0 {
		opts = append(opts, tailscale.WithMaxBlockingCalls(c.MaxBlockingCalls))
	}
	if c.Log.Mode == LogModeDiscard {
		opts = append(opts, tailscale.WithLogDiscard())
	}
	if c.Metrics.Enabled {
		opts = append(opts, tailscale.WithMetricsRegisterer(prometheus.DefaultRegisterer))
	}
	return opts, nil
}

// NewSession 按配置创建会话
//
// Log.Mode 为 file 时以追加方式打开日志文件并交给会话；创建失败时文件被关闭。
// extra 在配置选项之后应用。
func (c *Config) NewSession(extra ...tailscale.Option) (*tailscale.Session, error) {
	opts, err := c.Options()
	if err != nil {
		return nil, err
	}

	var logFile *os.File
	if c.Log.Mode == LogModeFile {
		logFile, err = os.OpenFile(c.Log.File, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		opts = append(opts, tailscale.WithLogFile(logFile))
	}

	s, err := tailscale.New(append(opts, extra...)...)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}
	return s, nil
}

// UpContext 返回带 UpTimeout 的上下文
func (c *Config) UpContext(parent context.Context) (context.Context, context.CancelFunc) {
	if c.UpTimeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.UpTimeout.Duration())
}
