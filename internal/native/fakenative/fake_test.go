package fakenative

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/dep2p/go-tailscale/internal/native"
)

// TestSurface_FailOnce 测试故障只作用于下一次调用并写入错误文本
func TestSurface_FailOnce(t *testing.T) {
	s := New()
	sd := s.New()
	require.NotEqual(t, native.InvalidHandle, sd)

	s.Fail(OpUp, 7, "boom")
	assert.Equal(t, 7, s.Up(sd))

	msg, code, err := native.ReadText(64, func(buf []byte) int { return s.ErrMsg(sd, buf) })
	require.NoError(t, err)
	assert.Equal(t, native.CodeOK, code)
	assert.Equal(t, "boom", msg)

	assert.Equal(t, native.CodeOK, s.Up(sd))
	assert.Equal(t, 2, s.Calls(OpUp))
}

// TestSurface_ShutdownWakesAccept 测试 ShutdownListener 唤醒阻塞的 Accept
func TestSurface_ShutdownWakesAccept(t *testing.T) {
	s := New()
	sd := s.New()
	ln, code := s.Listen(sd, "tcp", ":80")
	require.Equal(t, native.CodeOK, code)

	done := make(chan int, 1)
	go func() {
		_, code := s.Accept(ln)
		done <- code
	}()

	require.Equal(t, native.CodeOK, s.ShutdownListener(ln))
	select {
	case code := <-done:
		assert.NotEqual(t, native.CodeOK, code)
	case <-time.After(2 * time.Second):
		t.Fatal("accept not woken")
	}

	_, err := s.Inject(ln, "100.64.0.2")
	assert.Error(t, err)
}

// TestSurface_CloseListenerDrains 测试关闭监听器回收未接受的入站连接
func TestSurface_CloseListenerDrains(t *testing.T) {
	s := New()
	sd := s.New()
	ln, _ := s.Listen(sd, "tcp", ":80")

	peer, err := s.Inject(ln, "100.64.0.2")
	require.NoError(t, err)
	defer peer.Close()

	require.Equal(t, native.CodeOK, s.CloseListener(ln))
	assert.Equal(t, 1, s.ListenerCloses(ln))

	require.NoError(t, peer.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = peer.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

// TestSurface_DialPeer 测试拨号两端互通，对端只能取走一次
func TestSurface_DialPeer(t *testing.T) {
	s := New()
	sd := s.New()
	fd, code := s.Dial(sd, "tcp", "peer:80")
	require.Equal(t, native.CodeOK, code)
	defer unix.Close(fd)
	assert.Equal(t, []native.Handle{fd}, s.Dialed())

	peer := s.Peer(fd)
	require.NotNil(t, peer)
	defer peer.Close()
	assert.Nil(t, s.Peer(fd))

	// 对端文件已注册到 netpoller，支持截止时间
	require.NoError(t, peer.SetReadDeadline(time.Now().Add(20*time.Millisecond)))
	_, err := peer.Read(make([]byte, 1))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)

	_, err = peer.Write([]byte("hi"))
	require.NoError(t, err)
}
