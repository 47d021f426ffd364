package tailscale

import (
	"context"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/go-tailscale/internal/native/fakenative"
)

// newTestListener 创建会话与监听器
func newTestListener(t *testing.T) (*Session, *Listener, *fakenative.Surface) {
	t.Helper()
	s, fake := newTestSession(t)
	ln, err := s.Listen(context.Background(), TCP, ":1999")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })
	return s, ln, fake
}

// TestSession_Listen 测试创建监听器
func TestSession_Listen(t *testing.T) {
	_, ln, fake := newTestListener(t)

	assert.Equal(t, "tcp", ln.Addr().Network())
	assert.Equal(t, ":1999", ln.Addr().String())
	assert.Equal(t, TCP, ln.Network())
	assert.Len(t, fake.Listeners(), 1)
}

// TestSession_ListenFailure 测试监听失败携带网络与地址
func TestSession_ListenFailure(t *testing.T) {
	s, fake := newTestSession(t)
	fake.Fail(fakenative.OpListen, 98, "address in use")

	_, err := s.Listen(context.Background(), UDP, ":53")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrListen)

	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, UDP, opErr.Network)
	assert.Equal(t, ":53", opErr.Address)
	assert.Equal(t, "address in use", opErr.Message)
	assert.Equal(t, "tailscale: listen udp :53: failed to listen: address in use", err.Error())
}

// TestSession_ListenInvalid 测试非法参数不进入原生层
func TestSession_ListenInvalid(t *testing.T) {
	s, fake := newTestSession(t)
	ctx := context.Background()

	_, err := s.Listen(ctx, Network("sctp"), ":1")
	assert.ErrorIs(t, err, ErrInvalidNetwork)

	_, err = s.Listen(ctx, TCP, ":1\x00")
	assert.ErrorIs(t, err, ErrEmbeddedNUL)

	assert.Zero(t, fake.Calls(fakenative.OpListen))
}

// TestListener_AcceptConcurrent 测试两个 goroutine 并发接受得到独立连接
func TestListener_AcceptConcurrent(t *testing.T) {
	_, ln, fake := newTestListener(t)
	lnHandle := ln.ln

	conns := make(chan *Conn, 2)
	var g errgroup.Group
	for i := 0; i < 2; i++ {
		g.Go(func() error {
			c, err := ln.AcceptContext(context.Background())
			if err != nil {
				return err
			}
			conns <- c
			return nil
		})
	}

	peerA, err := fake.Inject(lnHandle, "100.64.0.2")
	require.NoError(t, err)
	defer peerA.Close()
	peerB, err := fake.Inject(lnHandle, "100.64.0.3")
	require.NoError(t, err)
	defer peerB.Close()

	require.NoError(t, g.Wait())
	close(conns)

	var got []*Conn
	remotes := map[netip.Addr]bool{}
	for c := range conns {
		got = append(got, c)
		ip, err := c.RemoteIP()
		require.NoError(t, err)
		remotes[ip] = true
		assert.True(t, c.Accepted())
		assert.Equal(t, ":1999", c.LocalAddr().String())
	}
	require.Len(t, got, 2)
	assert.NotEqual(t, got[0].fd.Fd(), got[1].fd.Fd())
	assert.True(t, remotes[netip.MustParseAddr("100.64.0.2")])
	assert.True(t, remotes[netip.MustParseAddr("100.64.0.3")])

	// 关闭其中一个不影响另一个
	require.NoError(t, got[0].Close())
	_, err = got[1].Write([]byte("ok"))
	require.NoError(t, err)
	require.NoError(t, got[1].Close())
}

// TestListener_RemoteAddrFailure 测试远端地址查询失败不影响接受
func TestListener_RemoteAddrFailure(t *testing.T) {
	_, ln, fake := newTestListener(t)
	fake.Fail(fakenative.OpRemoteAddr, 2, "no such connection")

	peer, err := fake.Inject(ln.ln, "100.64.0.2")
	require.NoError(t, err)
	defer peer.Close()

	c, err := ln.AcceptContext(context.Background())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.RemoteIP()
	assert.ErrorIs(t, err, ErrRemoteAddr)
	assert.Contains(t, err.Error(), "no such connection")
}

// TestListener_RemoteAddrParseError 测试远端地址文本无法解析
func TestListener_RemoteAddrParseError(t *testing.T) {
	_, ln, fake := newTestListener(t)

	peer, err := fake.Inject(ln.ln, "not-an-ip")
	require.NoError(t, err)
	defer peer.Close()

	c, err := ln.AcceptContext(context.Background())
	require.NoError(t, err)
	defer c.Close()

	_, err = c.RemoteIP()
	var parseErr *AddrParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Equal(t, "not-an-ip", parseErr.Text)
	assert.Equal(t, "not-an-ip", c.RemoteAddr().String())
}

// TestListener_AcceptFailure 测试原生 accept 失败
func TestListener_AcceptFailure(t *testing.T) {
	_, ln, fake := newTestListener(t)
	fake.Fail(fakenative.OpAccept, 24, "too many open files")

	_, err := ln.Accept()
	assert.ErrorIs(t, err, ErrAccept)
	assert.Contains(t, err.Error(), "too many open files")
}

// TestListener_CloseUnblocksAccept 测试关闭唤醒阻塞的 Accept
func TestListener_CloseUnblocksAccept(t *testing.T) {
	_, ln, fake := newTestListener(t)
	handle := ln.ln

	done := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		done <- err
	}()
	require.Eventually(t, func() bool {
		return fake.Calls(fakenative.OpAccept) == 1
	}, waitTimeout, 5*time.Millisecond)

	require.NoError(t, ln.Close())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrListenerClosed)
	case <-time.After(waitTimeout):
		t.Fatal("accept not unblocked")
	}

	require.Eventually(t, func() bool {
		return fake.ListenerCloses(handle) == 1
	}, waitTimeout, 5*time.Millisecond)

	_, err := ln.Accept()
	assert.ErrorIs(t, err, ErrListenerClosed)
	require.NoError(t, ln.Close())
	assert.Equal(t, 1, fake.ListenerCloses(handle))
}

// TestListener_AcceptCancelled 测试取消后才到达的连接被关闭
func TestListener_AcceptCancelled(t *testing.T) {
	s, ln, fake := newTestListener(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := ln.AcceptContext(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// 原生 accept 仍在等待，此时到达的连接应被回收
	peer, err := fake.Inject(ln.ln, "100.64.0.9")
	require.NoError(t, err)
	defer peer.Close()
	requireEOF(t, peer)

	require.Eventually(t, func() bool { return s.Stats().InFlight == 0 }, waitTimeout, 5*time.Millisecond)
	assert.Zero(t, s.Stats().OpenConns)
}

// TestListener_ConnOutlivesListener 测试已接受的连接在监听器关闭后可用
func TestListener_ConnOutlivesListener(t *testing.T) {
	s, ln, fake := newTestListener(t)

	peer, err := fake.Inject(ln.ln, "100.64.0.2")
	require.NoError(t, err)
	defer peer.Close()

	c, err := ln.AcceptContext(context.Background())
	require.NoError(t, err)

	require.NoError(t, ln.Close())
	require.NoError(t, s.Close())
	assert.Equal(t, 0, sessionCloses(t, fake, s))

	_, err = peer.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	require.NoError(t, c.Close())
	assert.Equal(t, 1, sessionCloses(t, fake, s))
	requireEOF(t, peer)
}

// TestListener_AcceptAfterSessionClose 测试创建者关闭会话后监听器继续工作
func TestListener_AcceptAfterSessionClose(t *testing.T) {
	s, ln, fake := newTestListener(t)
	require.NoError(t, s.Close())

	peer, err := fake.Inject(ln.ln, "100.64.0.4")
	require.NoError(t, err)
	defer peer.Close()

	c, err := ln.AcceptContext(context.Background())
	require.NoError(t, err)
	require.NoError(t, c.Close())

	require.NoError(t, ln.Close())
	require.Eventually(t, func() bool {
		return sessionCloses(t, fake, s) == 1
	}, waitTimeout, 5*time.Millisecond)
}
