package tailscale

import (
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/dep2p/go-tailscale/internal/fdio"
	"github.com/dep2p/go-tailscale/internal/metrics"
	"github.com/dep2p/go-tailscale/internal/native"
)

// peerInfo 接受连接时查询到的远端地址
type peerInfo struct {
	ip  netip.Addr
	err error
}

// Conn 网格连接，实现 net.Conn
//
// 读写通过 Go netpoller 等待就绪，不占用线程。
// 同一方向上的调用互斥；Close 可与读写并发调用，描述符恰好关闭一次。
type Conn struct {
	s       *Session
	fd      *fdio.FD
	network Network
	local   Addr
	remote  Addr

	// 拨号连接为 nil
	peer *peerInfo

	closeOnce sync.Once
	closeErr  error
}

var _ net.Conn = (*Conn)(nil)

// newConn 接管 fd 与调用方已持有的会话引用
//
// 失败时 fd 与会话引用仍归调用方。
func newConn(s *Session, fd native.Handle, network Network, local, remote Addr, peer *peerInfo) (*Conn, error) {
	f, err := fdio.New(fd, "tailscale-"+string(network))
	if err != nil {
		return nil, err
	}
	c := &Conn{
		s:       s,
		fd:      f,
		network: network,
		local:   local,
		remote:  remote,
		peer:    peer,
	}
	s.metrics.HandleOpened(metrics.KindConn)
	return c, nil
}

// Read 读取数据；对端关闭时返回 0, io.EOF
func (c *Conn) Read(p []byte) (int, error) {
	n, err := c.fd.Read(p)
	if n > 0 {
		c.s.metrics.LogRecv(int64(n), string(c.network))
	}
	return n, err
}

// Write 写出全部数据，或返回错误
func (c *Conn) Write(p []byte) (int, error) {
	n, err := c.fd.Write(p)
	if n > 0 {
		c.s.metrics.LogSent(int64(n), string(c.network))
	}
	return n, err
}

// Close 关闭连接并释放会话引用，重复调用返回首次结果
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.fd.Close()
		c.s.metrics.HandleClosed(metrics.KindConn)
		c.s.release()
	})
	return c.closeErr
}

// RemoteIP 返回远端 IP
//
// 拨号连接没有可查询的远端地址，返回零值 netip.Addr 与 nil，不发起原生调用；
// 用 ip.IsValid() 或 Accepted() 区分“无远端地址”。
// 接受的连接返回 accept 时查询到的地址或查询错误，此时有效地址一定 IsValid。
func (c *Conn) RemoteIP() (netip.Addr, error) {
	if c.peer == nil {
		return netip.Addr{}, nil
	}
	return c.peer.ip, c.peer.err
}

// Accepted 连接是否由 Listener 接受
func (c *Conn) Accepted() bool {
	return c.peer != nil
}

// Network 返回网络类型
func (c *Conn) Network() Network {
	return c.network
}

// LocalAddr 返回本地地址；拨号连接的本地地址为空
func (c *Conn) LocalAddr() net.Addr {
	return c.local
}

// RemoteAddr 返回远端地址：拨号目标或原生返回的远端文本
func (c *Conn) RemoteAddr() net.Addr {
	return c.remote
}

func (c *Conn) SetDeadline(t time.Time) error {
	return c.fd.SetDeadline(t)
}

func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.fd.SetReadDeadline(t)
}

func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.fd.SetWriteDeadline(t)
}
