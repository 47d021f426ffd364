package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	tailscale "github.com/dep2p/go-tailscale"
	"github.com/dep2p/go-tailscale/config"
	"github.com/dep2p/go-tailscale/internal/util/logger"
	"github.com/dep2p/go-tailscale/pkg/lib/log"
)

var cmdLog = log.Logger("tsnode/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：这次运行的覆盖
//   配置文件：这个节点的固定配置
//   环境变量：介于两者之间（TS_AUTHKEY 等）
//
// ═══════════════════════════════════════════════════════════════════════════

// globalFlags 全局参数
type globalFlags struct {
	configFile string
	hostname   string
	dir        string
	controlURL string
	ephemeral  bool
	upTimeout  time.Duration
	nativeLog  string
	logLevel   string
	logFormat  string
}

// app 一次命令执行的共享状态
type app struct {
	flags globalFlags
	cfg   *config.Config

	// extra 追加到会话的选项（测试注入原生实现）
	extra []tailscale.Option
}

func newRootCommand(extra ...tailscale.Option) *cobra.Command {
	a := &app{extra: extra}

	cmd := &cobra.Command{
		Use:   "tsnode",
		Short: "go-tailscale 演示节点",
		Long: `tsnode 使用嵌入式 tailscale 引擎加入网格，
可以作为回显服务端 (echo)、发送端 (send)，或查看节点地址 (ips)。

配置优先级：命令行参数 > 环境变量 > 配置文件 > 默认值。`,
		SilenceUsage:      true,
		PersistentPreRunE: a.prepare,
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&a.flags.configFile, "config", "c", "", "配置文件路径 (.json/.toml/.yaml)")
	f.StringVar(&a.flags.hostname, "hostname", "", "节点主机名")
	f.StringVar(&a.flags.dir, "dir", "", "状态目录")
	f.StringVar(&a.flags.controlURL, "control-url", "", "控制服务器地址")
	f.BoolVar(&a.flags.ephemeral, "ephemeral", false, "注册为临时节点")
	f.DurationVar(&a.flags.upTimeout, "up-timeout", 0, "等待加入网格的超时 (0 = 不限)")
	f.StringVar(&a.flags.nativeLog, "native-log", "", "原生日志去向 (default/discard/file:<path>)")
	f.StringVar(&a.flags.logLevel, "log-level", "", "日志级别，如 tailscale/conn=debug,info")
	f.StringVar(&a.flags.logFormat, "log-format", "", "日志格式 (text/json)")

	cmd.AddCommand(
		newEchoCommand(a),
		newSendCommand(a),
		newIPsCommand(a),
		newLoopbackCommand(a),
		newLogDemoCommand(a),
		newVersionCommand(),
	)
	return cmd
}

// prepare 合并配置并安装日志
func (a *app) prepare(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	if a.flags.configFile != "" {
		loaded, err := config.LoadFile(a.flags.configFile)
		if err != nil {
			return fmt.Errorf("配置错误: %w", err)
		}
		cfg = loaded
	}
	if err := cfg.ApplyEnv(); err != nil {
		return fmt.Errorf("环境变量错误: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("hostname") {
		cfg.Hostname = a.flags.hostname
	}
	if flags.Changed("dir") {
		cfg.Dir = a.flags.dir
	}
	if flags.Changed("control-url") {
		cfg.ControlURL = a.flags.controlURL
	}
	if flags.Changed("ephemeral") {
		cfg.Ephemeral = a.flags.ephemeral
	}
	if flags.Changed("up-timeout") {
		cfg.UpTimeout = config.Duration(a.flags.upTimeout)
	}
	if flags.Changed("native-log") {
		if err := applyNativeLog(&cfg.Log, a.flags.nativeLog); err != nil {
			return err
		}
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = a.flags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.flags.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	logCfg := cfg.Log.LoggerConfig()
	if v := os.Getenv(logger.EnvLevel); v != "" && !flags.Changed("log-level") {
		logCfg = logger.ParseConfig(v, cfg.Log.Format, os.Getenv(logger.EnvAddSource))
	}
	logger.InstallConfig(cmd.ErrOrStderr(), logCfg)

	a.cfg = cfg
	return nil
}

var errNativeLog = errors.New("native-log must be default, discard or file:<path>")

// applyNativeLog 解析 --native-log
func applyNativeLog(c *config.LogConfig, v string) error {
	switch {
	case v == config.LogModeDefault || v == config.LogModeDiscard:
		c.Mode = v
		c.File = ""
	default:
		path, ok := strings.CutPrefix(v, "file:")
		if !ok || path == "" {
			return errNativeLog
		}
		c.Mode = config.LogModeFile
		c.File = path
	}
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本信息",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), tailscale.VersionInfo())
			return err
		},
	}
}
