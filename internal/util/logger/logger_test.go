package logger

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tailscale/pkg/lib/log"
)

func restoreDefault(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() {
		slog.SetDefault(prev)
		installedMu.Lock()
		installed = nil
		installedMu.Unlock()
	})
}

// TestParseConfig 测试级别字符串解析
func TestParseConfig(t *testing.T) {
	cfg := ParseConfig("tailscale/conn=debug, tailscale=error,warn,bogus=loud", "JSON", "1")

	assert.Equal(t, slog.LevelWarn, cfg.DefaultLevel)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.True(t, cfg.AddSource)
	assert.NotContains(t, cfg.SubsystemLevels, "bogus")

	assert.Equal(t, slog.LevelDebug, cfg.LevelForSubsystem("tailscale/conn"))
	// 父组件回退
	assert.Equal(t, slog.LevelError, cfg.LevelForSubsystem("tailscale/session"))
	assert.Equal(t, slog.LevelWarn, cfg.LevelForSubsystem("tsnode"))
}

// TestParseConfig_Defaults 测试空配置
func TestParseConfig_Defaults(t *testing.T) {
	cfg := ParseConfig("", "", "")
	assert.Equal(t, slog.LevelInfo, cfg.DefaultLevel)
	assert.Equal(t, FormatText, cfg.Format)
	assert.False(t, cfg.AddSource)
}

// TestConfigFromEnv 测试环境变量读取
func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvLevel, "debug")
	t.Setenv(EnvFormat, "text")
	t.Setenv(EnvAddSource, "")

	cfg := ConfigFromEnv()
	assert.Equal(t, slog.LevelDebug, cfg.DefaultLevel)
	assert.Equal(t, FormatText, cfg.Format)
}

// TestInstall_ComponentLevels 测试按组件过滤
func TestInstall_ComponentLevels(t *testing.T) {
	restoreDefault(t)
	buf := &bytes.Buffer{}
	InstallConfig(buf, ParseConfig("tailscale/conn=debug,warn", "", ""))

	conn := log.Logger("tailscale/conn")
	session := log.Logger("tailscale/session")

	conn.Debug("conn debug")
	session.Info("session info")
	session.Warn("session warn")

	out := buf.String()
	assert.Contains(t, out, "conn debug")
	assert.Contains(t, out, "component=tailscale/conn")
	assert.Contains(t, out, "level=debug")
	assert.NotContains(t, out, "session info")
	assert.Contains(t, out, "session warn")
}

// TestInstall_JSON 测试 JSON 输出
func TestInstall_JSON(t *testing.T) {
	restoreDefault(t)
	buf := &bytes.Buffer{}
	InstallConfig(buf, ParseConfig("", "json", ""))

	log.Logger("tailscale/listener").Info("accepted", "remote", "100.64.0.2")

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "{"), out)
	assert.Contains(t, out, `"component":"tailscale/listener"`)
	assert.Contains(t, out, `"ts":`)
}

// TestSetLevel 测试动态调整级别
func TestSetLevel(t *testing.T) {
	restoreDefault(t)
	buf := &bytes.Buffer{}
	InstallConfig(buf, ParseConfig("info", "", ""))

	l := log.Logger("tailscale/bridge")
	l.Debug("before")
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))

	SetLevel("tailscale/bridge", slog.LevelDebug)
	l.Debug("after")

	SetLevel("", slog.LevelError)
	log.Logger("other").Warn("suppressed")

	out := buf.String()
	assert.NotContains(t, out, "before")
	assert.Contains(t, out, "after")
	assert.NotContains(t, out, "suppressed")
}

// TestForwardLines 测试按行转发
func TestForwardLines(t *testing.T) {
	restoreDefault(t)
	buf := &bytes.Buffer{}
	InstallConfig(buf, ParseConfig("", "", ""))

	in := strings.NewReader("magicsock: starting\r\n\nnetmap: 3 peers\n")
	require.NoError(t, ForwardLines(in, "libtailscale"))

	out := buf.String()
	assert.Contains(t, out, `msg="magicsock: starting"`)
	assert.Contains(t, out, `msg="netmap: 3 peers"`)
	assert.Equal(t, 2, strings.Count(out, "component=libtailscale"))
}

// TestDiscard 测试丢弃 logger
func TestDiscard(t *testing.T) {
	l := Discard()
	assert.False(t, l.Enabled(context.Background(), slog.LevelError))
	l.Error("nothing")
}
