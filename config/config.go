// Package config 提供节点配置文件的加载与转换
//
// 本包负责：
//   - 定义节点配置结构（JSON / TOML / YAML 三种格式共用一套字段）
//   - 按文件扩展名加载配置
//   - 应用环境变量覆盖
//   - 转换为 tailscale.Option 并创建会话
//
// 使用示例：
//
//	cfg, err := config.LoadFile("tsnode.toml")
//	if err != nil { ... }
//	cfg.ApplyEnv()
//	if err := cfg.Validate(); err != nil { ... }
//
//	s, err := cfg.NewSession()
package config

// 日志去向
const (
	// LogModeDefault 原生引擎使用自身默认的日志去向
	LogModeDefault = "default"

	// LogModeDiscard 丢弃原生引擎日志
	LogModeDiscard = "discard"

	// LogModeFile 原生引擎日志写入 Log.File
	LogModeFile = "file"
)

// Config 节点配置
type Config struct {
	// Hostname 节点在网格中的主机名
	Hostname string `json:"hostname,omitempty" toml:"hostname" yaml:"hostname,omitempty"`

	// Dir 状态目录
	Dir string `json:"dir,omitempty" toml:"dir" yaml:"dir,omitempty"`

	// AuthKey 认证密钥，通常通过 TS_AUTHKEY 提供而不写入文件
	AuthKey string `json:"auth_key,omitempty" toml:"auth_key" yaml:"auth_key,omitempty"`

	// ControlURL 控制服务器地址
	ControlURL string `json:"control_url,omitempty" toml:"control_url" yaml:"control_url,omitempty"`

	// Ephemeral 是否为临时节点
	Ephemeral bool `json:"ephemeral" toml:"ephemeral" yaml:"ephemeral"`

	// UpTimeout 等待加入网格的超时，0 表示不限
	UpTimeout Duration `json:"up_timeout" toml:"up_timeout" yaml:"up_timeout"`

	// MaxBlockingCalls 同时进行的阻塞原生调用上限，0 表示不限
	MaxBlockingCalls int64 `json:"max_blocking_calls" toml:"max_blocking_calls" yaml:"max_blocking_calls"`

	// Log 日志配置
	Log LogConfig `json:"log" toml:"log" yaml:"log"`

	// Metrics 指标配置
	Metrics MetricsConfig `json:"metrics" toml:"metrics" yaml:"metrics"`
}

// LogConfig 日志配置
type LogConfig struct {
	// Mode 原生引擎日志去向: default / discard / file
	Mode string `json:"mode" toml:"mode" yaml:"mode"`

	// File Mode 为 file 时的日志文件路径
	File string `json:"file,omitempty" toml:"file" yaml:"file,omitempty"`

	// Level 本进程日志级别，格式同 TSNODE_LOG_LEVEL
	Level string `json:"level,omitempty" toml:"level" yaml:"level,omitempty"`

	// Format 本进程日志格式: text / json
	Format string `json:"format,omitempty" toml:"format" yaml:"format,omitempty"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// Enabled 是否注册 Prometheus 指标
	Enabled bool `json:"enabled" toml:"enabled" yaml:"enabled"`

	// Listen 指标 HTTP 服务地址，空表示不启动
	Listen string `json:"listen,omitempty" toml:"listen" yaml:"listen,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Log: LogConfig{
			Mode:   LogModeDefault,
			Level:  "info",
			Format: "text",
		},
	}
}
