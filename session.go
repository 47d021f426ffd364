package tailscale

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"

	"github.com/dep2p/go-tailscale/internal/bridge"
	"github.com/dep2p/go-tailscale/internal/metrics"
	"github.com/dep2p/go-tailscale/internal/native"
	"github.com/dep2p/go-tailscale/internal/util/addrutil"
	"github.com/dep2p/go-tailscale/pkg/lib/log"
)

var logger = log.Logger("tailscale/session")

// 原生输出缓冲初始容量
const (
	errMsgBufSize     = 256
	ipsBufSize        = 256
	remoteAddrBufSize = 128
	loopbackBufSize   = 64
)

// Session 网格节点会话
//
// Session 拥有原生会话描述符。描述符在所有引用释放后关闭恰好一次：
// 创建者持有一个引用，每个 Listener、Conn 与进行中的阻塞调用各持有一个。
// 调用 Close 之后，Session 上的新操作返回 ErrSessionClosed，
// 已派生的 Listener / Conn 继续可用直到各自关闭。
type Session struct {
	id  string
	lib native.Surface
	sd  native.Handle

	pool    *bridge.Pool
	metrics *metrics.Collector

	// 构建成功后归会话所有的日志文件
	logSink *os.File

	refs      atomic.Int64
	closed    atomic.Bool
	closeOnce sync.Once
}

// build 分配原生会话并按固定顺序应用配置
func build(o *options) (*Session, error) {
	lib := o.lib
	if lib == nil {
		lib = native.Lib()
	}

	// 文本先于分配校验，失败时不产生原生资源
	texts := []struct {
		name string
		v    *string
	}{
		{"dir", o.dir},
		{"hostname", o.hostname},
		{"auth key", o.authKey},
		{"control url", o.controlURL},
	}
	for _, t := range texts {
		if t.v == nil {
			continue
		}
		if err := native.CheckText(*t.v); err != nil {
			return nil, fmt.Errorf("%s: %w", t.name, err)
		}
	}

	sd := lib.New()
	if sd == native.InvalidHandle {
		return nil, ErrCreateFailed
	}

	s := &Session{
		id:   uuid.NewString(),
		lib:  lib,
		sd:   sd,
		pool: bridge.New(bridge.Config{MaxInFlight: o.maxBlockingCalls}),
	}
	s.metrics = metrics.NewCollector(o.registerer, s.id, func() float64 {
		return float64(s.pool.InFlight())
	})

	steps := []struct {
		op   string
		err  error
		skip bool
		call func() int
	}{
		// false 是原生默认值，只在 true 时下发
		{"set_ephemeral", ErrSetEphemeral, !o.ephemeral, func() int { return lib.SetEphemeral(sd, true) }},
		{"set_dir", ErrSetDir, o.dir == nil, func() int { return lib.SetDir(sd, deref(o.dir)) }},
		{"set_hostname", ErrSetHostname, o.hostname == nil, func() int { return lib.SetHostname(sd, deref(o.hostname)) }},
		{"set_authkey", ErrSetAuthKey, o.authKey == nil, func() int { return lib.SetAuthKey(sd, deref(o.authKey)) }},
		{"set_control_url", ErrSetControlURL, o.controlURL == nil, func() int { return lib.SetControlURL(sd, deref(o.controlURL)) }},
		{"set_logfd", ErrSetLog, o.logMode == LogDefault, func() int { return lib.SetLogFD(sd, logFD(o)) }},
	}

	for _, st := range steps {
		if st.skip {
			continue
		}
		if code := st.call(); code != native.CodeOK {
			var err error = s.nativeError(st.op, st.err, code, "", "")
			if c := lib.Close(sd); c != native.CodeOK {
				err = multierr.Append(err, s.nativeError("close", ErrCreateFailed, c, "", ""))
			}
			s.pool.Close()
			s.metrics.Unregister()
			return nil, err
		}
	}

	if o.logMode == LogSink {
		s.logSink = o.logSink
	}
	s.refs.Store(1)
	s.metrics.HandleOpened(metrics.KindSession)

	logger.Debug("会话已创建", "session", s.id, "handle", sd)
	return s, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func logFD(o *options) native.Handle {
	if o.logMode == LogSink && o.logSink != nil {
		return native.Handle(o.logSink.Fd())
	}
	return native.InvalidHandle
}

// ============================================================================
//                              引用计数
// ============================================================================

// retain 在会话描述符仍然存活时增加引用
func (s *Session) retain() bool {
	for {
		n := s.refs.Load()
		if n <= 0 {
			return false
		}
		if s.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// acquire 为新操作增加引用；创建者已关闭时失败
func (s *Session) acquire() error {
	if s.closed.Load() || !s.retain() {
		return ErrSessionClosed
	}
	return nil
}

// release 释放引用，最后一个引用释放时关闭原生会话
func (s *Session) release() {
	n := s.refs.Add(-1)
	switch {
	case n == 0:
		s.destroy()
	case n < 0:
		panic("tailscale: session reference released too many times")
	}
}

// destroy 关闭原生会话与日志文件；失败只记录，不返回
func (s *Session) destroy() {
	s.pool.Close()

	if code := s.lib.Close(s.sd); code != native.CodeOK {
		s.metrics.NativeError("close")
		logger.Warn("关闭原生会话失败", "session", s.id, "code", code)
	}
	if s.logSink != nil {
		if err := s.logSink.Close(); err != nil {
			logger.Warn("关闭日志文件失败", "session", s.id, "error", err)
		}
	}

	s.metrics.HandleClosed(metrics.KindSession)
	s.metrics.Unregister()
	logger.Debug("会话已销毁", "session", s.id)
}

// ============================================================================
//                              阻塞调用
// ============================================================================

// codeResult 返回码形式的原生调用结果，失败时附带错误文本
type codeResult struct {
	code int
	msg  string
}

// handleResult 产生描述符的原生调用结果
type handleResult struct {
	h    native.Handle
	code int
	msg  string
}

var noHandle = handleResult{h: native.InvalidHandle}

// call 在桥接池中执行 fn
//
// 执行期间持有一个会话引用。若调用方在 fn 开始前放弃（取消或派发失败），
// fn 不再执行并返回 skipped；done 在工作结束或被跳过时恰好执行一次。
func call[T any](ctx context.Context, s *Session, skipped T, fn func() T, discard func(T), done func()) (T, error) {
	if !s.retain() {
		if done != nil {
			done()
		}
		return skipped, ErrSessionClosed
	}
	finish := func() {
		s.release()
		if done != nil {
			done()
		}
	}

	var claimed atomic.Bool
	v, err := bridge.Call(ctx, s.pool, func() T {
		if !claimed.CompareAndSwap(false, true) {
			return skipped
		}
		defer finish()
		return fn()
	}, discard)
	if err != nil && claimed.CompareAndSwap(false, true) {
		finish()
	}
	return v, err
}

// run 执行返回码形式的阻塞调用
func (s *Session) run(ctx context.Context, fn func() int) (codeResult, error) {
	return call(ctx, s, codeResult{}, func() codeResult {
		if code := fn(); code != native.CodeOK {
			return codeResult{code: code, msg: s.errorMessage()}
		}
		return codeResult{}
	}, nil, nil)
}

// errorMessage 读取会话最近一次的错误文本，读取失败时返回占位文本
func (s *Session) errorMessage() string {
	msg, code, err := native.ReadText(errMsgBufSize, func(buf []byte) int {
		return s.lib.ErrMsg(s.sd, buf)
	})
	if code != native.CodeOK {
		return fmt.Sprintf("unknown error (code %d)", code)
	}
	if err != nil {
		return fmt.Sprintf("unknown error (%v)", err)
	}
	return msg
}

// nativeError 构造原生失败并读取错误文本
func (s *Session) nativeError(op string, sentinel error, code int, network Network, address string) *OpError {
	s.metrics.NativeError(op)
	return &OpError{
		Op:      op,
		Network: network,
		Address: address,
		Code:    code,
		Message: s.errorMessage(),
		Err:     sentinel,
	}
}

// opError 使用已取得的错误文本构造原生失败
func (s *Session) opError(op string, sentinel error, code int, msg string, network Network, address string) *OpError {
	s.metrics.NativeError(op)
	return &OpError{
		Op:      op,
		Network: network,
		Address: address,
		Code:    code,
		Message: msg,
		Err:     sentinel,
	}
}

// ============================================================================
//                              会话操作
// ============================================================================

// ID 会话标识，仅用于日志与指标
func (s *Session) ID() string {
	return s.id
}

// Up 加入网格并等待可用
func (s *Session) Up(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	res, err := s.run(ctx, func() int { return s.lib.Up(s.sd) })
	if err != nil {
		return err
	}
	if res.code != native.CodeOK {
		return s.opError("up", ErrUp, res.code, res.msg, "", "")
	}
	logger.Info("会话已加入网格", "session", s.id)
	return nil
}

// Start 启动会话但不等待其可用
func (s *Session) Start(ctx context.Context) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.release()

	res, err := s.run(ctx, func() int { return s.lib.Start(s.sd) })
	if err != nil {
		return err
	}
	if res.code != native.CodeOK {
		return s.opError("start", ErrStart, res.code, res.msg, "", "")
	}
	logger.Debug("会话已启动", "session", s.id)
	return nil
}

// Listen 在网格上创建监听器
//
//	ln, err := s.Listen(ctx, tailscale.TCP, ":1999")
func (s *Session) Listen(ctx context.Context, network Network, address string) (*Listener, error) {
	if !network.Valid() {
		return nil, &OpError{Op: "listen", Network: network, Address: address, Err: ErrInvalidNetwork}
	}
	if err := native.CheckText(address); err != nil {
		return nil, &OpError{Op: "listen", Network: network, Address: address, Err: err}
	}
	// 该引用成功时转交给 Listener
	if err := s.acquire(); err != nil {
		return nil, err
	}

	res, err := call(ctx, s, noHandle, func() handleResult {
		ln, code := s.lib.Listen(s.sd, string(network), address)
		if code != native.CodeOK {
			return handleResult{h: native.InvalidHandle, code: code, msg: s.errorMessage()}
		}
		return handleResult{h: ln}
	}, func(r handleResult) {
		if r.h != native.InvalidHandle {
			s.lib.ShutdownListener(r.h)
			s.lib.CloseListener(r.h)
		}
	}, nil)
	if err != nil {
		s.release()
		return nil, err
	}
	if res.code != native.CodeOK {
		s.release()
		return nil, s.opError("listen", ErrListen, res.code, res.msg, network, address)
	}

	l := newListener(s, res.h, network, address)
	logger.Debug("监听器已创建", "session", s.id, "network", network, "addr", address)
	return l, nil
}

// Dial 通过网格连接 address
//
//	conn, err := s.Dial(ctx, tailscale.TCP, "peer:8000")
func (s *Session) Dial(ctx context.Context, network Network, address string) (*Conn, error) {
	if !network.Valid() {
		return nil, &OpError{Op: "dial", Network: network, Address: address, Err: ErrInvalidNetwork}
	}
	if err := native.CheckText(address); err != nil {
		return nil, &OpError{Op: "dial", Network: network, Address: address, Err: err}
	}
	// 该引用成功时转交给 Conn
	if err := s.acquire(); err != nil {
		return nil, err
	}

	res, err := call(ctx, s, noHandle, func() handleResult {
		fd, code := s.lib.Dial(s.sd, string(network), address)
		if code != native.CodeOK {
			return handleResult{h: native.InvalidHandle, code: code, msg: s.errorMessage()}
		}
		return handleResult{h: fd}
	}, func(r handleResult) {
		closeFD(r.h)
	}, nil)
	if err != nil {
		s.release()
		return nil, err
	}
	if res.code != native.CodeOK {
		s.release()
		return nil, s.opError("dial", ErrDial, res.code, res.msg, network, address)
	}

	c, err := newConn(s, res.h, network, Addr{Net: network}, Addr{Net: network, Address: address}, nil)
	if err != nil {
		closeFD(res.h)
		s.release()
		return nil, &OpError{Op: "dial", Network: network, Address: address, Err: err}
	}
	logger.Debug("拨号成功", "session", s.id, "network", network, "addr", address)
	return c, nil
}

// IPs 查询分配给节点的地址
//
// 尚未分配时返回 nil, nil。
func (s *Session) IPs() (*IPPair, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.release()

	text, code, err := native.ReadText(ipsBufSize, func(buf []byte) int {
		return s.lib.GetIPs(s.sd, buf)
	})
	if code != native.CodeOK {
		return nil, s.nativeError("getips", ErrIPs, code, "", "")
	}
	if err != nil {
		return nil, err
	}
	return parseIPPair(text)
}

var (
	errNotIPv4 = errors.New("not an IPv4 address")
	errNotIPv6 = errors.New("not an IPv6 address")
)

// parseIPPair 解析 "ipv4,ipv6"，空文本表示尚未分配
func parseIPPair(text string) (*IPPair, error) {
	if text == "" {
		return nil, nil
	}
	a, b, err := addrutil.SplitIPList(text)
	if err != nil {
		return nil, &IPListError{Text: text}
	}

	v4, err := netip.ParseAddr(a)
	if err == nil && !v4.Is4() {
		err = errNotIPv4
	}
	if err != nil {
		return nil, &AddrParseError{Text: a, Err: err}
	}

	v6, err := netip.ParseAddr(b)
	if err == nil && !v6.Is6() {
		err = errNotIPv6
	}
	if err != nil {
		return nil, &AddrParseError{Text: b, Err: err}
	}
	return &IPPair{IPv4: v4, IPv6: v6}, nil
}

// Loopback 启动本地回环代理（SOCKS5 与 LocalAPI）
func (s *Session) Loopback(ctx context.Context) (LoopbackInfo, error) {
	if err := s.acquire(); err != nil {
		return LoopbackInfo{}, err
	}
	defer s.release()

	type loopbackResult struct {
		info LoopbackInfo
		code int
		msg  string
		err  error
	}
	res, err := call(ctx, s, loopbackResult{}, func() loopbackResult {
		proxy := make([]byte, native.CredentialLen)
		local := make([]byte, native.CredentialLen)
		var r loopbackResult
		r.info.Addr, r.code, r.err = native.ReadText(loopbackBufSize, func(addr []byte) int {
			return s.lib.Loopback(s.sd, addr, proxy, local)
		})
		if r.code != native.CodeOK {
			r.msg = s.errorMessage()
			return r
		}
		if r.err != nil {
			return r
		}
		if r.info.ProxyCredential, r.err = native.DecodeText(proxy); r.err != nil {
			return r
		}
		r.info.LocalAPICredential, r.err = native.DecodeText(local)
		return r
	}, nil, nil)
	if err != nil {
		return LoopbackInfo{}, err
	}
	if res.code != native.CodeOK {
		return LoopbackInfo{}, s.opError("loopback", ErrLoopback, res.code, res.msg, "", "")
	}
	if res.err != nil {
		return LoopbackInfo{}, &OpError{Op: "loopback", Err: res.err}
	}
	return res.info, nil
}

// ErrorMessage 返回会话最近一次的原生错误文本
func (s *Session) ErrorMessage() (string, error) {
	if err := s.acquire(); err != nil {
		return "", err
	}
	defer s.release()

	msg, code, err := native.ReadText(errMsgBufSize, func(buf []byte) int {
		return s.lib.ErrMsg(s.sd, buf)
	})
	if code != native.CodeOK {
		return "", &OpError{Op: "errmsg", Code: code, Err: ErrErrMsg}
	}
	return msg, err
}

// Stats 返回会话统计
func (s *Session) Stats() Stats {
	bw := s.metrics.Bandwidth().Totals()
	return Stats{
		OpenListeners: int(s.metrics.OpenHandles(metrics.KindListener)),
		OpenConns:     int(s.metrics.OpenHandles(metrics.KindConn)),
		InFlight:      s.pool.InFlight(),
		BytesIn:       bw.TotalIn,
		BytesOut:      bw.TotalOut,
		RateIn:        bw.RateIn,
		RateOut:       bw.RateOut,
	}
}

// Close 释放创建者持有的引用
//
// 原生会话在最后一个 Listener / Conn 关闭、所有进行中的阻塞调用返回后关闭。
// 原生关闭失败只记录日志。重复调用无副作用。
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.release()
	})
	return nil
}

// closeFD 关闭原生返回的连接描述符
func closeFD(fd native.Handle) {
	if fd == native.InvalidHandle {
		return
	}
	if err := unix.Close(fd); err != nil {
		logger.Debug("关闭描述符失败", "fd", fd, "error", err)
	}
}
