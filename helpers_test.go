package tailscale

import (
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-tailscale/internal/native/fakenative"
)

const waitTimeout = 2 * time.Second

// newTestSession 使用 fakenative 创建会话，测试结束时关闭
func newTestSession(t *testing.T, opts ...Option) (*Session, *fakenative.Surface) {
	t.Helper()
	fake := fakenative.New()
	s, err := New(append([]Option{WithNative(fake)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, fake
}

// sessionCloses 返回原生会话被关闭的次数
func sessionCloses(t *testing.T, fake *fakenative.Surface, s *Session) int {
	t.Helper()
	st, ok := fake.Session(s.sd)
	require.True(t, ok)
	return st.Closes
}

// readFull 在超时内从 f 读满 n 字节
func readFull(t *testing.T, f *os.File, n int) []byte {
	t.Helper()
	require.NoError(t, f.SetReadDeadline(time.Now().Add(waitTimeout)))
	buf := make([]byte, n)
	_, err := io.ReadFull(f, buf)
	require.NoError(t, err)
	return buf
}

// requireEOF 断言 f 的对端已关闭
func requireEOF(t *testing.T, f *os.File) {
	t.Helper()
	require.NoError(t, f.SetReadDeadline(time.Now().Add(waitTimeout)))
	n, err := f.Read(make([]byte, 1))
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
}
