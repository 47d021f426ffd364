package logger

import (
	"log/slog"
	"os"
	"strings"
)

// 环境变量
const (
	EnvLevel     = "TSNODE_LOG_LEVEL"
	EnvFormat    = "TSNODE_LOG_FORMAT"
	EnvAddSource = "TSNODE_LOG_ADD_SOURCE"
)

// LogFormat 日志输出格式
type LogFormat int

const (
	// FormatText 文本格式（默认）
	FormatText LogFormat = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// Config 日志配置
type Config struct {
	// DefaultLevel 默认日志级别
	DefaultLevel slog.Level

	// SubsystemLevels 各组件的日志级别，键为组件名（如 tailscale/conn）
	SubsystemLevels map[string]slog.Level

	// Format 输出格式
	Format LogFormat

	// AddSource 是否添加源码位置
	AddSource bool
}

// LevelForSubsystem 获取组件的日志级别
//
// 先精确匹配，再按 "/" 逐级回退到父组件，最后使用默认级别。
func (c *Config) LevelForSubsystem(subsystem string) slog.Level {
	for s := subsystem; s != ""; {
		if level, ok := c.SubsystemLevels[s]; ok {
			return level
		}
		i := strings.LastIndexByte(s, '/')
		if i < 0 {
			break
		}
		s = s[:i]
	}
	return c.DefaultLevel
}

// ConfigFromEnv 从环境变量解析配置
//
//   - TSNODE_LOG_LEVEL: 组件=级别,组件=级别,默认级别
//     示例: tailscale/conn=debug,warn
//   - TSNODE_LOG_FORMAT: text 或 json
//   - TSNODE_LOG_ADD_SOURCE: true 或 false
func ConfigFromEnv() *Config {
	return ParseConfig(os.Getenv(EnvLevel), os.Getenv(EnvFormat), os.Getenv(EnvAddSource))
}

// ParseConfig 解析配置字符串，空值使用默认值
func ParseConfig(levels, format, addSource string) *Config {
	cfg := &Config{
		DefaultLevel:    slog.LevelInfo,
		SubsystemLevels: make(map[string]slog.Level),
		Format:          FormatText,
	}

	parseLevelConfig(cfg, levels)

	if strings.EqualFold(strings.TrimSpace(format), "json") {
		cfg.Format = FormatJSON
	}

	switch strings.ToLower(strings.TrimSpace(addSource)) {
	case "true", "1", "yes":
		cfg.AddSource = true
	}

	return cfg
}

// parseLevelConfig 解析日志级别配置字符串
func parseLevelConfig(cfg *Config, levelStr string) {
	for _, part := range strings.Split(levelStr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		subsystem, levelName, found := strings.Cut(part, "=")
		if !found {
			if level, ok := ParseLevel(part); ok {
				cfg.DefaultLevel = level
			}
			continue
		}
		if level, ok := ParseLevel(strings.TrimSpace(levelName)); ok {
			cfg.SubsystemLevels[strings.TrimSpace(subsystem)] = level
		}
	}
}

// ParseLevel 解析日志级别名称
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}
