package native

import "golang.org/x/sys/unix"

// Handle 原生描述符（会话、监听器或连接）
type Handle = int

const (
	// InvalidHandle 表示"无描述符"
	//
	// tailscale_new 分配失败时返回该值；传给 SetLogFD 时表示丢弃全部日志。
	InvalidHandle Handle = -1

	// CodeOK 原生调用成功
	CodeOK = 0

	// CodeRange 输出缓冲容量不足
	CodeRange = int(unix.ERANGE)
)

// Surface 原生描述符函数表
//
// 每个方法对应一个 C 函数，返回原生返回码（0 表示成功）。
// 除 ErrMsg / GetIPs / RemoteAddr 外，实现可以无限期阻塞。
type Surface interface {
	// New 分配新会话，失败返回 InvalidHandle
	New() Handle

	// Start 异步启动会话
	Start(sd Handle) int

	// Up 启动会话并等待其可用
	Up(sd Handle) int

	// Close 关闭会话
	Close(sd Handle) int

	SetEphemeral(sd Handle, ephemeral bool) int
	SetDir(sd Handle, dir string) int
	SetHostname(sd Handle, hostname string) int
	SetAuthKey(sd Handle, authKey string) int
	SetControlURL(sd Handle, controlURL string) int

	// SetLogFD 设置日志输出描述符，InvalidHandle 表示丢弃
	SetLogFD(sd Handle, fd Handle) int

	// Listen 创建监听器
	Listen(sd Handle, network, addr string) (Handle, int)

	// Dial 拨号，返回连接描述符
	Dial(sd Handle, network, addr string) (Handle, int)

	// Accept 等待入站连接
	Accept(ln Handle) (Handle, int)

	// ShutdownListener 唤醒阻塞在 ln 上的 Accept，描述符本身保持有效
	ShutdownListener(ln Handle) int

	// CloseListener 关闭监听器描述符
	CloseListener(ln Handle) int

	// RemoteAddr 将 (ln, conn) 对应的远端地址写入 buf
	RemoteAddr(ln, conn Handle, buf []byte) int

	// GetIPs 将 "ipv4,ipv6" 写入 buf，尚未分配时写入空串
	GetIPs(sd Handle, buf []byte) int

	// ErrMsg 将最近一次错误文本写入 buf
	ErrMsg(sd Handle, buf []byte) int

	// Loopback 启动本地回环代理，返回 "ip:port" 与两个凭据
	Loopback(sd Handle, addr []byte, proxyCred, localAPICred []byte) int
}
