package config

import (
	"fmt"
	"os"
	"strconv"
)

// 环境变量
//
// 环境变量优先级高于配置文件，但低于命令行参数。
const (
	// EnvAuthKey 认证密钥
	EnvAuthKey = "TS_AUTHKEY"

	// EnvHostname 主机名
	EnvHostname = "TSNODE_HOSTNAME"

	// EnvStateDir 状态目录
	EnvStateDir = "TSNODE_STATE_DIR"

	// EnvControlURL 控制服务器地址
	EnvControlURL = "TSNODE_CONTROL_URL"

	// EnvEphemeral 是否为临时节点（true/false）
	EnvEphemeral = "TSNODE_EPHEMERAL"
)

// ApplyEnv 使用进程环境变量覆盖配置
func (c *Config) ApplyEnv() error {
	return c.applyEnv(os.LookupEnv)
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvAuthKey); ok && v != "" {
		c.AuthKey = v
	}
	if v, ok := lookup(EnvHostname); ok && v != "" {
		c.Hostname = v
	}
	if v, ok := lookup(EnvStateDir); ok && v != "" {
		c.Dir = v
	}
	if v, ok := lookup(EnvControlURL); ok && v != "" {
		c.ControlURL = v
	}
	if v, ok := lookup(EnvEphemeral); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvEphemeral, err)
		}
		c.Ephemeral = b
	}
	return nil
}
