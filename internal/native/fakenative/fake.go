// Package fakenative 提供 native.Surface 的进程内实现
//
// 会话与监听器只是内存中的记录，连接则是真实的 socketpair(2) 描述符，
// 因此上层的就绪桥接、非阻塞 I/O 与关闭语义都能在测试中被真实地执行。
//
// 支持故障注入（Fail）、调用阻塞（Block）与入站连接注入（Inject）。
package fakenative

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/dep2p/go-tailscale/internal/native"
)

// 操作名，用于 Fail / Block / Calls
const (
	OpNew           = "new"
	OpStart         = "start"
	OpUp            = "up"
	OpClose         = "close"
	OpSetEphemeral  = "set_ephemeral"
	OpSetDir        = "set_dir"
	OpSetHostname   = "set_hostname"
	OpSetAuthKey    = "set_authkey"
	OpSetControlURL = "set_control_url"
	OpSetLogFD      = "set_logfd"
	OpListen        = "listen"
	OpDial          = "dial"
	OpAccept        = "accept"
	OpShutdown      = "shutdown_listener"
	OpCloseListener = "close_listener"
	OpRemoteAddr    = "getremoteaddr"
	OpGetIPs        = "getips"
	OpErrMsg        = "errmsg"
	OpLoopback      = "loopback"
)

// SessionState 会话状态快照
type SessionState struct {
	Ephemeral  bool
	Dir        string
	Hostname   string
	AuthKey    string
	ControlURL string
	LogFD      native.Handle
	LogFDSet   bool
	Up         bool
	Started    bool
	Closes     int

	// Applied 按调用顺序记录的配置操作
	Applied []string
}

type session struct {
	state  SessionState
	errmsg string
	ips    string
}

type inbound struct {
	fd     int
	remote string
}

type listener struct {
	sd      native.Handle
	network string
	addr    string
	inbound chan inbound
	done    chan struct{}
	shut    bool
	closes  int
}

type conn struct {
	ln     native.Handle
	remote string
	peer   int
}

type fault struct {
	code int
	msg  string
}

// Surface 进程内原生实现
type Surface struct {
	mu sync.Mutex

	nextSD native.Handle
	nextLn native.Handle

	sessions  map[native.Handle]*session
	listeners map[native.Handle]*listener
	conns     map[native.Handle]*conn
	dialed    []native.Handle

	faults map[string][]fault
	gates  map[string]chan struct{}
	calls  map[string]int
}

var _ native.Surface = (*Surface)(nil)

// New 创建 Surface
func New() *Surface {
	return &Surface{
		nextSD:    1,
		nextLn:    1000,
		sessions:  make(map[native.Handle]*session),
		listeners: make(map[native.Handle]*listener),
		conns:     make(map[native.Handle]*conn),
		faults:    make(map[string][]fault),
		gates:     make(map[string]chan struct{}),
		calls:     make(map[string]int),
	}
}

// ============================================================================
//                              测试控制
// ============================================================================

// Fail 让 op 的下一次调用返回 code，并把 msg 设为会话的错误文本
func (s *Surface) Fail(op string, code int, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], fault{code: code, msg: msg})
}

// Block 让 op 的后续调用阻塞，直到返回的 release 被调用
func (s *Surface) Block(op string) (release func()) {
	gate := make(chan struct{})
	s.mu.Lock()
	s.gates[op] = gate
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[op] == gate {
				delete(s.gates, op)
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// SetIPs 设置 GetIPs 返回的原始文本
func (s *Surface) SetIPs(sd native.Handle, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss := s.sessions[sd]; ss != nil {
		ss.ips = text
	}
}

// Inject 向监听器投递一个入站连接，返回对端文件
func (s *Surface) Inject(ln native.Handle, remote string) (*os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, os.NewSyscallError("socketpair", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.listeners[ln]
	if l == nil || l.shut {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("fakenative: listener %d not accepting", ln)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, os.NewSyscallError("setnonblock", err)
	}
	select {
	case l.inbound <- inbound{fd: fds[0], remote: remote}:
	default:
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, fmt.Errorf("fakenative: listener %d backlog full", ln)
	}
	return os.NewFile(uintptr(fds[1]), "peer"), nil
}

// Peer 取走拨号连接的对端文件
func (s *Surface) Peer(fd native.Handle) *os.File {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[fd]
	if c == nil || c.peer < 0 {
		return nil
	}
	peer := c.peer
	c.peer = -1
	// 非阻塞后运行时才会注册到 netpoller，对端文件才支持截止时间
	if err := unix.SetNonblock(peer, true); err != nil {
		unix.Close(peer)
		return nil
	}
	return os.NewFile(uintptr(peer), "peer")
}

// Session 返回会话状态快照
func (s *Surface) Session(sd native.Handle) (SessionState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := s.sessions[sd]
	if ss == nil {
		return SessionState{}, false
	}
	st := ss.state
	st.Applied = append([]string(nil), ss.state.Applied...)
	return st, true
}

// Sessions 返回已分配的会话句柄数量
func (s *Surface) Sessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// ListenerCloses 返回监听器被关闭的次数
func (s *Surface) ListenerCloses(ln native.Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l := s.listeners[ln]; l != nil {
		return l.closes
	}
	return 0
}

// Listeners 返回已创建的监听器句柄
func (s *Surface) Listeners() []native.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]native.Handle, 0, len(s.listeners))
	for ln := range s.listeners {
		out = append(out, ln)
	}
	return out
}

// Dialed 按创建顺序返回 Dial 产生的描述符
func (s *Surface) Dialed() []native.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]native.Handle(nil), s.dialed...)
}

// Calls 返回 op 被调用的次数
func (s *Surface) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// ============================================================================
//                              内部辅助
// ============================================================================

// enter 记录调用，在门控存在时阻塞，然后取出待注入的故障
func (s *Surface) enter(op string) (fault, bool) {
	s.mu.Lock()
	s.calls[op]++
	gate := s.gates[op]
	s.mu.Unlock()

	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	q := s.faults[op]
	if len(q) == 0 {
		return fault{}, false
	}
	f := q[0]
	s.faults[op] = q[1:]
	return f, true
}

// failLocked 设置错误文本并返回错误码
func (s *Surface) failLocked(sd native.Handle, f fault) int {
	if ss := s.sessions[sd]; ss != nil {
		ss.errmsg = f.msg
	}
	return f.code
}

func (s *Surface) fail(sd native.Handle, f fault) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failLocked(sd, f)
}

// set 统一处理配置类调用
func (s *Surface) set(op string, sd native.Handle, apply func(*SessionState)) int {
	if f, ok := s.enter(op); ok {
		return s.fail(sd, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := s.sessions[sd]
	if ss == nil {
		return int(unix.EBADF)
	}
	apply(&ss.state)
	ss.state.Applied = append(ss.state.Applied, op)
	return native.CodeOK
}

// ============================================================================
//                              native.Surface
// ============================================================================

// New 分配会话
func (s *Surface) New() native.Handle {
	if _, ok := s.enter(OpNew); ok {
		return native.InvalidHandle
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	sd := s.nextSD
	s.nextSD++
	s.sessions[sd] = &session{state: SessionState{LogFD: native.InvalidHandle}}
	return sd
}

// Start 启动会话
func (s *Surface) Start(sd native.Handle) int {
	if f, ok := s.enter(OpStart); ok {
		return s.fail(sd, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss := s.sessions[sd]; ss != nil {
		ss.state.Started = true
		return native.CodeOK
	}
	return int(unix.EBADF)
}

// Up 启动会话并等待可用
func (s *Surface) Up(sd native.Handle) int {
	if f, ok := s.enter(OpUp); ok {
		return s.fail(sd, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if ss := s.sessions[sd]; ss != nil {
		ss.state.Started = true
		ss.state.Up = true
		return native.CodeOK
	}
	return int(unix.EBADF)
}

// Close 关闭会话；会话记录保留以便断言关闭次数
func (s *Surface) Close(sd native.Handle) int {
	f, failed := s.enter(OpClose)
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := s.sessions[sd]
	if ss == nil {
		return int(unix.EBADF)
	}
	ss.state.Closes++
	if failed {
		return s.failLocked(sd, f)
	}
	return native.CodeOK
}

func (s *Surface) SetEphemeral(sd native.Handle, ephemeral bool) int {
	return s.set(OpSetEphemeral, sd, func(st *SessionState) { st.Ephemeral = ephemeral })
}

func (s *Surface) SetDir(sd native.Handle, dir string) int {
	return s.set(OpSetDir, sd, func(st *SessionState) { st.Dir = dir })
}

func (s *Surface) SetHostname(sd native.Handle, hostname string) int {
	return s.set(OpSetHostname, sd, func(st *SessionState) { st.Hostname = hostname })
}

func (s *Surface) SetAuthKey(sd native.Handle, authKey string) int {
	return s.set(OpSetAuthKey, sd, func(st *SessionState) { st.AuthKey = authKey })
}

func (s *Surface) SetControlURL(sd native.Handle, controlURL string) int {
	return s.set(OpSetControlURL, sd, func(st *SessionState) { st.ControlURL = controlURL })
}

func (s *Surface) SetLogFD(sd native.Handle, fd native.Handle) int {
	return s.set(OpSetLogFD, sd, func(st *SessionState) {
		st.LogFD = fd
		st.LogFDSet = true
	})
}

// Listen 创建监听器
func (s *Surface) Listen(sd native.Handle, network, addr string) (native.Handle, int) {
	if f, ok := s.enter(OpListen); ok {
		return native.InvalidHandle, s.fail(sd, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[sd] == nil {
		return native.InvalidHandle, int(unix.EBADF)
	}
	ln := s.nextLn
	s.nextLn++
	s.listeners[ln] = &listener{
		sd:      sd,
		network: network,
		addr:    addr,
		inbound: make(chan inbound, 16),
		done:    make(chan struct{}),
	}
	return ln, native.CodeOK
}

// Dial 建立 socketpair，一端返回给调用方，另一端通过 Peer 取得
func (s *Surface) Dial(sd native.Handle, network, addr string) (native.Handle, int) {
	if f, ok := s.enter(OpDial); ok {
		return native.InvalidHandle, s.fail(sd, f)
	}
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return native.InvalidHandle, s.fail(sd, fault{code: int(unix.EMFILE), msg: err.Error()})
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[fds[0]] = &conn{ln: native.InvalidHandle, remote: addr, peer: fds[1]}
	s.dialed = append(s.dialed, fds[0])
	return fds[0], native.CodeOK
}

// Accept 阻塞直到有入站连接或监听器被关闭
func (s *Surface) Accept(ln native.Handle) (native.Handle, int) {
	s.mu.Lock()
	l := s.listeners[ln]
	s.mu.Unlock()
	if l == nil {
		return native.InvalidHandle, int(unix.EBADF)
	}

	if f, ok := s.enter(OpAccept); ok {
		return native.InvalidHandle, s.fail(l.sd, f)
	}

	select {
	case <-l.done:
		return native.InvalidHandle, s.fail(l.sd, fault{code: int(unix.EBADF), msg: "listener closed"})
	default:
	}

	select {
	case in := <-l.inbound:
		s.mu.Lock()
		s.conns[in.fd] = &conn{ln: ln, remote: in.remote, peer: -1}
		s.mu.Unlock()
		return in.fd, native.CodeOK
	case <-l.done:
		return native.InvalidHandle, s.fail(l.sd, fault{code: int(unix.EBADF), msg: "listener closed"})
	}
}

// ShutdownListener 唤醒阻塞中的 Accept
func (s *Surface) ShutdownListener(ln native.Handle) int {
	f, failed := s.enter(OpShutdown)
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.listeners[ln]
	if l == nil {
		return int(unix.EBADF)
	}
	l.shutdownLocked()
	if failed {
		return s.failLocked(l.sd, f)
	}
	return native.CodeOK
}

// CloseListener 关闭监听器并丢弃尚未被接受的入站连接
func (s *Surface) CloseListener(ln native.Handle) int {
	f, failed := s.enter(OpCloseListener)
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.listeners[ln]
	if l == nil {
		return int(unix.EBADF)
	}
	l.closes++
	l.shutdownLocked()
drain:
	for {
		select {
		case in := <-l.inbound:
			unix.Close(in.fd)
		default:
			break drain
		}
	}
	if failed {
		return s.failLocked(l.sd, f)
	}
	return native.CodeOK
}

func (l *listener) shutdownLocked() {
	if !l.shut {
		l.shut = true
		close(l.done)
	}
}

// RemoteAddr 写入入站连接的远端地址
func (s *Surface) RemoteAddr(ln, fd native.Handle, buf []byte) int {
	s.mu.Lock()
	l := s.listeners[ln]
	s.mu.Unlock()
	if l == nil {
		return int(unix.EBADF)
	}
	if f, ok := s.enter(OpRemoteAddr); ok {
		return s.fail(l.sd, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.conns[fd]
	if c == nil || c.ln != ln {
		return s.failLocked(l.sd, fault{code: int(unix.ENOENT), msg: "connection not found"})
	}
	return native.WriteText(buf, c.remote)
}

// GetIPs 写入 SetIPs 设置的文本
func (s *Surface) GetIPs(sd native.Handle, buf []byte) int {
	if f, ok := s.enter(OpGetIPs); ok {
		return s.fail(sd, f)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := s.sessions[sd]
	if ss == nil {
		return int(unix.EBADF)
	}
	return native.WriteText(buf, ss.ips)
}

// ErrMsg 写入最近一次错误文本
func (s *Surface) ErrMsg(sd native.Handle, buf []byte) int {
	if f, ok := s.enter(OpErrMsg); ok {
		return f.code
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ss := s.sessions[sd]
	if ss == nil {
		return int(unix.EBADF)
	}
	return native.WriteText(buf, ss.errmsg)
}

// Loopback 写入固定的回环地址与凭据
func (s *Surface) Loopback(sd native.Handle, addr []byte, proxyCred, localAPICred []byte) int {
	if f, ok := s.enter(OpLoopback); ok {
		return s.fail(sd, f)
	}
	s.mu.Lock()
	ss := s.sessions[sd]
	s.mu.Unlock()
	if ss == nil {
		return int(unix.EBADF)
	}
	if code := native.WriteText(addr, "127.0.0.1:41641"); code != native.CodeOK {
		return code
	}
	if code := native.WriteText(proxyCred, fmt.Sprintf("%032x", sd)); code != native.CodeOK {
		return code
	}
	return native.WriteText(localAPICred, fmt.Sprintf("%032x", sd+1))
}
