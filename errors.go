package tailscale

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dep2p/go-tailscale/internal/bridge"
	"github.com/dep2p/go-tailscale/internal/native"
	"github.com/dep2p/go-tailscale/internal/util/addrutil"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 配置错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrCreateFailed 原生会话分配失败
	ErrCreateFailed = errors.New("failed to create session")

	// ErrSetEphemeral 设置临时节点失败
	ErrSetEphemeral = errors.New("failed to set ephemeral status")

	// ErrSetDir 设置状态目录失败
	ErrSetDir = errors.New("failed to set dir")

	// ErrSetHostname 设置主机名失败
	ErrSetHostname = errors.New("failed to set hostname")

	// ErrSetAuthKey 设置认证密钥失败
	ErrSetAuthKey = errors.New("failed to set auth key")

	// ErrSetControlURL 设置控制服务器地址失败
	ErrSetControlURL = errors.New("failed to set control url")

	// ErrSetLog 设置日志描述符失败
	ErrSetLog = errors.New("failed to set log destination")

	// ErrBuilderConsumed Builder 已经构建过
	ErrBuilderConsumed = errors.New("builder already consumed")

	// ────────────────────────────────────────────────────────────────────────
	// 会话错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrUp 加入网格失败
	ErrUp = errors.New("failed to bring session up")

	// ErrStart 启动失败
	ErrStart = errors.New("failed to start session")

	// ErrIPs 查询地址失败
	ErrIPs = errors.New("failed to query assigned addresses")

	// ErrLoopback 启动回环代理失败
	ErrLoopback = errors.New("failed to start loopback")

	// ErrErrMsg 读取错误文本失败
	ErrErrMsg = errors.New("failed to read error message")

	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("session closed")

	// ────────────────────────────────────────────────────────────────────────
	// 网络错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrListen 创建监听器失败
	ErrListen = errors.New("failed to listen")

	// ErrDial 拨号失败
	ErrDial = errors.New("failed to dial")

	// ErrAccept 接受连接失败
	ErrAccept = errors.New("failed to accept")

	// ErrRemoteAddr 查询远端地址失败
	ErrRemoteAddr = errors.New("failed to query remote address")

	// ErrInvalidNetwork 网络类型不是 tcp / udp
	ErrInvalidNetwork = errors.New("invalid network")

	// ErrListenerClosed 监听器已关闭
	ErrListenerClosed = errors.New("listener closed")

	// ────────────────────────────────────────────────────────────────────────
	// 底层错误（重新导出）
	// ────────────────────────────────────────────────────────────────────────

	// ErrDispatchFailed 阻塞调用未能派发
	ErrDispatchFailed = bridge.ErrDispatchFailed

	// ErrEmbeddedNUL 文本包含 NUL
	ErrEmbeddedNUL = native.ErrEmbeddedNUL

	// ErrMissingNUL 原生输出缺少 NUL 终止符
	ErrMissingNUL = native.ErrMissingNUL

	// ErrInvalidUTF8 原生输出不是合法 UTF-8
	ErrInvalidUTF8 = native.ErrInvalidUTF8

	// ErrIPListShape 地址列表不是 "ipv4,ipv6"
	ErrIPListShape = addrutil.ErrIPListShape
)

// OpError 原生操作失败
//
// Err 为对应的哨兵错误，Message 为会话最近一次的错误文本。
type OpError struct {
	Op      string
	Network Network
	Address string
	Code    int
	Message string
	Err     error
}

func (e *OpError) Error() string {
	var b strings.Builder
	b.WriteString("tailscale: ")
	b.WriteString(e.Op)
	if e.Network != "" {
		b.WriteByte(' ')
		b.WriteString(string(e.Network))
	}
	if e.Address != "" {
		b.WriteByte(' ')
		b.WriteString(e.Address)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// AddrParseError 原生返回的地址文本无法解析
type AddrParseError struct {
	Text string
	Err  error
}

func (e *AddrParseError) Error() string {
	return fmt.Sprintf("tailscale: could not parse address %q: %v", e.Text, e.Err)
}

func (e *AddrParseError) Unwrap() error {
	return e.Err
}

// IPListError 地址列表形状错误
type IPListError struct {
	Text string
}

func (e *IPListError) Error() string {
	return fmt.Sprintf("tailscale: invalid ip addresses returned: %q", e.Text)
}

func (e *IPListError) Unwrap() error {
	return ErrIPListShape
}
