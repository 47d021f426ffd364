package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/dep2p/go-tailscale/internal/util/logger"
)

// 配置错误
var (
	// ErrInvalidConfig 配置无效
	ErrInvalidConfig = errors.New("invalid config")
)

// Validate 验证配置的有效性
//
// 只做本地检查；主机名、认证密钥等是否被控制服务器接受由原生引擎判断。
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("%w: config is nil", ErrInvalidConfig)
	}

	for name, v := range map[string]string{
		"hostname":    c.Hostname,
		"dir":         c.Dir,
		"auth_key":    c.AuthKey,
		"control_url": c.ControlURL,
		"log.file":    c.Log.File,
	} {
		if strings.IndexByte(v, 0) >= 0 {
			return fmt.Errorf("%w: %s contains NUL", ErrInvalidConfig, name)
		}
	}

	if c.ControlURL != "" {
		u, err := url.Parse(c.ControlURL)
		if err != nil {
			return fmt.Errorf("%w: control_url: %v", ErrInvalidConfig, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("%w: control_url must be http or https, got %q", ErrInvalidConfig, c.ControlURL)
		}
		if u.Host == "" {
			return fmt.Errorf("%w: control_url has no host", ErrInvalidConfig)
		}
	}

	if c.UpTimeout < 0 {
		return fmt.Errorf("%w: up_timeout must be non-negative", ErrInvalidConfig)
	}
	if c.MaxBlockingCalls < 0 {
		return fmt.Errorf("%w: max_blocking_calls must be non-negative", ErrInvalidConfig)
	}

	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.Metrics.Validate()
}

// Validate 验证日志配置
func (c *LogConfig) Validate() error {
	switch c.Mode {
	case "", LogModeDefault, LogModeDiscard:
	case LogModeFile:
		if c.File == "" {
			return fmt.Errorf("%w: log.file is required when log.mode is %q", ErrInvalidConfig, LogModeFile)
		}
	default:
		return fmt.Errorf("%w: unknown log.mode %q", ErrInvalidConfig, c.Mode)
	}
	for _, part := range strings.Split(c.Level, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		_, name, found := strings.Cut(part, "=")
		if !found {
			name = part
		}
		if _, ok := logger.ParseLevel(strings.TrimSpace(name)); !ok {
			return fmt.Errorf("%w: log.level: unknown level in %q", ErrInvalidConfig, part)
		}
	}
	switch strings.ToLower(c.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", ErrInvalidConfig, c.Format)
	}
	return nil
}

// LoggerConfig 转换为本进程日志配置
func (c *LogConfig) LoggerConfig() *logger.Config {
	return logger.ParseConfig(c.Level, c.Format, "")
}

// Validate 验证指标配置
func (c *MetricsConfig) Validate() error {
	if c.Listen == "" {
		return nil
	}
	if !c.Enabled {
		return fmt.Errorf("%w: metrics.listen requires metrics.enabled", ErrInvalidConfig)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("%w: metrics.listen: %v", ErrInvalidConfig, err)
	}
	return nil
}
