package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func captureDefault(t *testing.T, level slog.Level) *bytes.Buffer {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	buf := &bytes.Buffer{}
	SetOutputWithLevel(buf, level)
	return buf
}

// TestLazyLogger_UsesCurrentDefault 测试 logger 在创建后切换输出仍然生效
func TestLazyLogger_UsesCurrentDefault(t *testing.T) {
	logger := Logger("tailscale/test")
	buf := captureDefault(t, LevelInfo)

	logger.Info("session created", "session", "abc")

	out := buf.String()
	assert.Contains(t, out, "session created")
	assert.Contains(t, out, "component=tailscale/test")
	assert.Contains(t, out, "session=abc")
	assert.Equal(t, "tailscale/test", logger.Component())
}

// TestLazyLogger_Level 测试级别过滤
func TestLazyLogger_Level(t *testing.T) {
	logger := Logger("tailscale/test")
	buf := captureDefault(t, LevelWarn)

	logger.Debug("hidden")
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.False(t, logger.Enabled(context.Background(), LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), LevelError))
}
