// Package logger 安装 go-tailscale 进程级日志输出
//
// 库代码只通过 pkg/lib/log 记录日志；本包在进程入口处根据环境变量
// 构造按组件分级的 slog.Handler 并设为默认 logger。
//
// 环境变量配置:
//
//	# 所有组件 info，连接相关 debug
//	TSNODE_LOG_LEVEL=tailscale/conn=debug,info
//
//	# 使用 JSON 格式输出
//	TSNODE_LOG_FORMAT=json
package logger

import (
	"bufio"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/dep2p/go-tailscale/pkg/lib/log"
)

var (
	installedMu sync.Mutex
	installed   *componentHandler
)

// Install 使用环境变量配置将默认 logger 输出到 w
func Install(w io.Writer) *slog.Logger {
	return InstallConfig(w, ConfigFromEnv())
}

// InstallConfig 使用给定配置将默认 logger 输出到 w
func InstallConfig(w io.Writer, cfg *Config) *slog.Logger {
	if cfg.SubsystemLevels == nil {
		cfg.SubsystemLevels = make(map[string]slog.Level)
	}
	h := newHandler(w, cfg)

	installedMu.Lock()
	installed = h
	installedMu.Unlock()

	l := slog.New(h)
	log.SetDefault(l)
	return l
}

// SetLevel 动态设置组件的日志级别，component 为空时设置默认级别
//
// 仅对 Install 安装的 handler 生效。
//
//	logger.SetLevel("tailscale/conn", slog.LevelDebug)
func SetLevel(component string, level slog.Level) {
	installedMu.Lock()
	h := installed
	installedMu.Unlock()
	if h != nil {
		h.levels.set(component, level)
	}
}

// Discard 返回一个丢弃所有日志的 Logger
//
// 主要用于测试，避免日志输出干扰测试结果。
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// ForwardLines 将 r 中的每一行作为 component 下的 Info 日志输出，直到 r 结束
//
// 用于转发原生库写入日志 fd 的内容。返回读取过程中的错误（EOF 除外）。
func ForwardLines(r io.Reader, component string) error {
	l := log.Logger(component)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 64<<10)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if line == "" {
			continue
		}
		l.Info(line)
	}
	return sc.Err()
}
