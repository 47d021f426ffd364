package tailscale

import (
	"context"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/dep2p/go-tailscale/internal/metrics"
	"github.com/dep2p/go-tailscale/internal/native"
	"github.com/dep2p/go-tailscale/internal/util/addrutil"
	"github.com/dep2p/go-tailscale/pkg/lib/log"
)

var listenerLog = log.Logger("tailscale/listener")

// Listener 网格监听器，实现 net.Listener
//
// 多个 goroutine 可以同时调用 Accept，得到的 Conn 相互独立。
// 原生 accept 与随后的远端地址查询在同一临界区内完成。
type Listener struct {
	s       *Session
	ln      native.Handle
	network Network
	address string

	// 串行化 accept 与远端地址查询
	mu sync.Mutex

	// 创建者一个引用，每个进行中的 accept 一个
	refs      atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

var _ net.Listener = (*Listener)(nil)

// newListener 接管 ln 与调用方已持有的会话引用
func newListener(s *Session, ln native.Handle, network Network, address string) *Listener {
	l := &Listener{
		s:       s,
		ln:      ln,
		network: network,
		address: address,
	}
	l.refs.Store(1)
	s.metrics.HandleOpened(metrics.KindListener)
	return l
}

func (l *Listener) retain() bool {
	for {
		n := l.refs.Load()
		if n <= 0 {
			return false
		}
		if l.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release 最后一个引用释放时关闭原生监听器并归还会话引用
func (l *Listener) release() {
	if l.refs.Add(-1) != 0 {
		return
	}
	if code := l.s.lib.CloseListener(l.ln); code != native.CodeOK {
		l.s.metrics.NativeError("close_listener")
		listenerLog.Warn("关闭原生监听器失败", "session", l.s.id, "addr", l.address, "code", code)
	}
	l.s.metrics.HandleClosed(metrics.KindListener)
	l.s.release()
}

// acceptResult accept 与远端地址查询的结果
type acceptResult struct {
	fd     native.Handle
	code   int
	msg    string
	closed bool

	remote     string
	remoteCode int
	remoteMsg  string
	remoteErr  error
}

// acceptLocked 在监听器临界区内接受连接并查询其远端地址
func (l *Listener) acceptLocked() acceptResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed.Load() {
		return acceptResult{fd: native.InvalidHandle, closed: true}
	}
	fd, code := l.s.lib.Accept(l.ln)
	if code != native.CodeOK {
		return acceptResult{fd: native.InvalidHandle, code: code, msg: l.s.errorMessage()}
	}

	r := acceptResult{fd: fd}
	r.remote, r.remoteCode, r.remoteErr = native.ReadText(remoteAddrBufSize, func(buf []byte) int {
		return l.s.lib.RemoteAddr(l.ln, fd, buf)
	})
	if r.remoteCode != native.CodeOK {
		r.remoteMsg = l.s.errorMessage()
	}
	return r
}

// remoteIP 将查询结果转换为远端地址或错误
func (l *Listener) remoteIP(r acceptResult) (netip.Addr, error) {
	if r.remoteCode != native.CodeOK {
		return netip.Addr{}, l.s.opError("getremoteaddr", ErrRemoteAddr, r.remoteCode, r.remoteMsg, l.network, l.address)
	}
	if r.remoteErr != nil {
		return netip.Addr{}, &OpError{Op: "getremoteaddr", Network: l.network, Address: l.address, Err: r.remoteErr}
	}
	ip, err := addrutil.ParseIP(r.remote)
	if err != nil {
		return netip.Addr{}, &AddrParseError{Text: r.remote, Err: err}
	}
	return ip, nil
}

// Accept 等待下一个入站连接
func (l *Listener) Accept() (net.Conn, error) {
	c, err := l.AcceptContext(context.Background())
	if err != nil {
		return nil, err
	}
	return c, nil
}

// AcceptContext 等待下一个入站连接，ctx 结束时放弃等待
//
// 放弃等待后才到达的连接会被关闭，不会泄漏。
func (l *Listener) AcceptContext(ctx context.Context) (*Conn, error) {
	if l.closed.Load() || !l.retain() {
		return nil, ErrListenerClosed
	}
	// 会话引用，成功时转交给 Conn
	if !l.s.retain() {
		l.release()
		return nil, ErrSessionClosed
	}

	res, err := call(ctx, l.s, acceptResult{fd: native.InvalidHandle}, l.acceptLocked, func(r acceptResult) {
		closeFD(r.fd)
	}, l.release)
	if err != nil {
		l.s.release()
		return nil, err
	}
	if res.closed {
		l.s.release()
		return nil, ErrListenerClosed
	}
	if res.code != native.CodeOK {
		l.s.release()
		if l.closed.Load() {
			return nil, ErrListenerClosed
		}
		return nil, l.s.opError("accept", ErrAccept, res.code, res.msg, l.network, l.address)
	}

	ip, ipErr := l.remoteIP(res)
	if ipErr != nil {
		listenerLog.Debug("远端地址不可用", "session", l.s.id, "addr", l.address, "error", ipErr)
	}
	local := Addr{Net: l.network, Address: l.address}
	remote := Addr{Net: l.network, Address: res.remote}
	c, err := newConn(l.s, res.fd, l.network, local, remote, &peerInfo{ip: ip, err: ipErr})
	if err != nil {
		closeFD(res.fd)
		l.s.release()
		return nil, &OpError{Op: "accept", Network: l.network, Address: l.address, Err: err}
	}
	return c, nil
}

// Close 停止接受连接
//
// 阻塞中的 Accept 返回 ErrListenerClosed。原生监听器在所有进行中的
// accept 返回后关闭恰好一次；已接受的 Conn 不受影响。
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		if code := l.s.lib.ShutdownListener(l.ln); code != native.CodeOK {
			listenerLog.Debug("停止原生监听器失败", "session", l.s.id, "addr", l.address, "code", code)
		}
		l.release()
	})
	return nil
}

// Addr 返回监听地址
func (l *Listener) Addr() net.Addr {
	return Addr{Net: l.network, Address: l.address}
}

// Network 返回网络类型
func (l *Listener) Network() Network {
	return l.network
}
