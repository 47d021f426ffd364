package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tailscale "github.com/dep2p/go-tailscale"
	"github.com/dep2p/go-tailscale/internal/native/fakenative"
)

// TestNewConfig 测试创建默认配置
func TestNewConfig(t *testing.T) {
	cfg := NewConfig()
	require.NotNil(t, cfg)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, LogModeDefault, cfg.Log.Mode)
	assert.False(t, cfg.Ephemeral)
}

// TestConfig_Validate 测试配置验证
func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"default", func(*Config) {}, false},
		{"https control", func(c *Config) { c.ControlURL = "https://control.example" }, false},
		{"ftp control", func(c *Config) { c.ControlURL = "ftp://control.example" }, true},
		{"control without host", func(c *Config) { c.ControlURL = "https://" }, true},
		{"NUL hostname", func(c *Config) { c.Hostname = "a\x00b" }, true},
		{"negative timeout", func(c *Config) { c.UpTimeout = Duration(-time.Second) }, true},
		{"negative max calls", func(c *Config) { c.MaxBlockingCalls = -1 }, true},
		{"file mode without file", func(c *Config) { c.Log.Mode = LogModeFile }, true},
		{"file mode", func(c *Config) { c.Log.Mode = LogModeFile; c.Log.File = "/tmp/ts.log" }, false},
		{"unknown mode", func(c *Config) { c.Log.Mode = "syslog" }, true},
		{"component level", func(c *Config) { c.Log.Level = "tailscale/conn=debug,warn" }, false},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, true},
		{"listen without enabled", func(c *Config) { c.Metrics.Listen = ":9100" }, true},
		{"metrics listen", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = ":9100" }, false},
		{"bad listen", func(c *Config) { c.Metrics.Enabled = true; c.Metrics.Listen = "9100" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}

	var nilCfg *Config
	assert.ErrorIs(t, nilCfg.Validate(), ErrInvalidConfig)
}

// TestLoadFile 测试三种格式得到相同配置
func TestLoadFile(t *testing.T) {
	files := map[string]string{
		"node.json": `{
  "hostname": "foo",
  "dir": "/var/lib/tsnode",
  "ephemeral": true,
  "up_timeout": "30s",
  "log": {"mode": "discard", "level": "debug"}
}`,
		"node.toml": `
hostname = "foo"
dir = "/var/lib/tsnode"
ephemeral = true
up_timeout = "30s"

[log]
mode = "discard"
level = "debug"
`,
		"node.yaml": `
hostname: foo
dir: /var/lib/tsnode
ephemeral: true
up_timeout: 30s
log:
  mode: discard
  level: debug
`,
	}

	dir := t.TempDir()
	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

			cfg, err := LoadFile(path)
			require.NoError(t, err)
			assert.Equal(t, "foo", cfg.Hostname)
			assert.Equal(t, "/var/lib/tsnode", cfg.Dir)
			assert.True(t, cfg.Ephemeral)
			assert.Equal(t, 30*time.Second, cfg.UpTimeout.Duration())
			assert.Equal(t, LogModeDiscard, cfg.Log.Mode)
			assert.Equal(t, "debug", cfg.Log.Level)
			// 未出现的字段保留默认值
			assert.Equal(t, "text", cfg.Log.Format)
		})
	}
}

// TestLoadFile_Errors 测试加载失败
func TestLoadFile_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		return path
	}

	_, err := LoadFile(write("node.ini", "hostname=foo"))
	assert.ErrorContains(t, err, "unsupported")

	_, err = LoadFile(write("unknown.json", `{"hostnme": "foo"}`))
	assert.Error(t, err)

	_, err = LoadFile(write("unknown.toml", `hostnme = "foo"`))
	assert.ErrorContains(t, err, "hostnme")

	_, err = LoadFile(write("unknown.yaml", "hostnme: foo\n"))
	assert.Error(t, err)

	_, err = LoadFile(write("duration.toml", `up_timeout = "soon"`))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// TestDuration_Numeric 测试纳秒数形式
func TestDuration_Numeric(t *testing.T) {
	cfg, err := FromJSON([]byte(`{"up_timeout": 1000000000}`))
	require.NoError(t, err)
	assert.Equal(t, time.Second, cfg.UpTimeout.Duration())

	cfg, err = FromYAML([]byte("up_timeout: 2000000000\n"))
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, cfg.UpTimeout.Duration())

	cfg, err = FromYAML(nil)
	require.NoError(t, err)
	assert.Equal(t, NewConfig(), cfg)

	data, err := cfg.ToJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"up_timeout": "0s"`)
}

// TestApplyEnv 测试环境变量覆盖
func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		EnvAuthKey:    "tskey-env",
		EnvHostname:   "env-host",
		EnvStateDir:   "/srv/ts",
		EnvControlURL: "https://hs.example",
		EnvEphemeral:  "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := NewConfig()
	cfg.Hostname = "file-host"
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, "tskey-env", cfg.AuthKey)
	assert.Equal(t, "env-host", cfg.Hostname)
	assert.Equal(t, "/srv/ts", cfg.Dir)
	assert.Equal(t, "https://hs.example", cfg.ControlURL)
	assert.True(t, cfg.Ephemeral)

	env[EnvEphemeral] = "maybe"
	assert.Error(t, cfg.applyEnv(lookup))

	t.Setenv(EnvHostname, "process-host")
	cfg = NewConfig()
	require.NoError(t, cfg.ApplyEnv())
	assert.Equal(t, "process-host", cfg.Hostname)
}

// TestConfig_NewSession 测试按配置创建会话
func TestConfig_NewSession(t *testing.T) {
	cfg := NewConfig()
	cfg.Hostname = "cfg-node"
	cfg.Dir = "/var/lib/tsnode"
	cfg.Ephemeral = true
	cfg.Log.Mode = LogModeDiscard

	fake := fakenative.New()
	s, err := cfg.NewSession(tailscale.WithNative(fake))
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, fake.Listeners(), 0)
	assert.Equal(t, 1, fake.Sessions())
	assert.Equal(t, 1, fake.Calls(fakenative.OpSetHostname))
	assert.Equal(t, 1, fake.Calls(fakenative.OpSetLogFD))
	assert.Equal(t, 1, fake.Calls(fakenative.OpSetEphemeral))
	assert.Zero(t, fake.Calls(fakenative.OpSetAuthKey))
}

// TestConfig_NewSessionLogFile 测试日志文件模式
func TestConfig_NewSessionLogFile(t *testing.T) {
	cfg := NewConfig()
	cfg.Log.Mode = LogModeFile
	cfg.Log.File = filepath.Join(t.TempDir(), "native.log")

	fake := fakenative.New()
	s, err := cfg.NewSession(tailscale.WithNative(fake))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.FileExists(t, cfg.Log.File)

	fake.Fail(fakenative.OpSetLogFD, 9, "bad fd")
	_, err = cfg.NewSession(tailscale.WithNative(fake))
	assert.ErrorIs(t, err, tailscale.ErrSetLog)
}

// TestConfig_OptionsInvalid 测试无效配置不产生选项
func TestConfig_OptionsInvalid(t *testing.T) {
	cfg := NewConfig()
	cfg.Log.Mode = "syslog"
	_, err := cfg.Options()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
