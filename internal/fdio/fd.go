// Package fdio 将外部创建的描述符接入 Go 运行时的就绪通知
//
// 描述符先被置为非阻塞，再交给 os.NewFile：运行时检测到 O_NONBLOCK 后会把它
// 注册到 netpoller。读写通过 syscall.RawConn 完成：
//
//	等待就绪 → 直接 read/write → EAGAIN 时清除就绪状态并重新等待
//
// 就绪通知可能是虚假的（边沿触发、竞争唤醒），重试循环不可省略。
package fdio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrInvalidFD 描述符无效
var ErrInvalidFD = errors.New("invalid file descriptor")

// FD 非阻塞描述符
//
// 同一方向上的操作互斥（一个读者、一个写者），关闭恰好发生一次，
// 并且发生在所有进行中的读写释放描述符之后。
type FD struct {
	file *os.File
	rc   syscall.RawConn

	// 每个方向的访问权；持有期间才能对描述符发起系统调用
	rmu sync.Mutex
	wmu sync.Mutex

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

// New 接管 fd：置为非阻塞并注册就绪通知
//
// 失败时 fd 不会被关闭，由调用方负责。
func New(fd int, name string) (*FD, error) {
	if fd < 0 {
		return nil, ErrInvalidFD
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return nil, os.NewSyscallError("setnonblock", err)
	}
	file := os.NewFile(uintptr(fd), name)
	if file == nil {
		return nil, ErrInvalidFD
	}
	rc, err := file.SyscallConn()
	if err != nil {
		// os.File 已拥有 fd，这里只能释放对象而不关闭描述符
		return nil, fmt.Errorf("syscall conn: %w", err)
	}
	return &FD{file: file, rc: rc}, nil
}

// Read 读取数据；对端有序关闭时返回 0, io.EOF
func (f *FD) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	f.rmu.Lock()
	defer f.rmu.Unlock()

	var (
		n     int
		operr error
	)
	err := f.rc.Read(func(fd uintptr) bool {
		for {
			n, operr = unix.Read(int(fd), p)
			switch operr {
			case unix.EINTR:
				continue
			case unix.EAGAIN:
				// 虚假唤醒：返回 false 让运行时清除就绪状态并重新等待
				return false
			}
			return true
		}
	})
	if err != nil {
		return 0, f.closedErr(err)
	}
	if operr != nil {
		return 0, os.NewSyscallError("read", operr)
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

// Write 写入全部数据或返回错误
func (f *FD) Write(p []byte) (int, error) {
	f.wmu.Lock()
	defer f.wmu.Unlock()

	var (
		written int
		operr   error
	)
	err := f.rc.Write(func(fd uintptr) bool {
		for written < len(p) {
			n, e := unix.Write(int(fd), p[written:])
			switch e {
			case nil:
				written += n
			case unix.EINTR:
			case unix.EAGAIN:
				return false
			default:
				operr = e
				return true
			}
		}
		return true
	})
	if err != nil {
		return written, f.closedErr(err)
	}
	if operr != nil {
		return written, os.NewSyscallError("write", operr)
	}
	return written, nil
}

// closedErr 关闭后运行时返回的 "use of closed file" 不匹配任何导出错误，统一为 net.ErrClosed
func (f *FD) closedErr(err error) error {
	if f.closed.Load() {
		return net.ErrClosed
	}
	return err
}

// Close 关闭描述符，重复调用返回首次结果
//
// 阻塞中与之后的读写返回 net.ErrClosed；底层 close(2) 在它们释放描述符后执行。
func (f *FD) Close() error {
	f.closeOnce.Do(func() {
		f.closed.Store(true)
		f.closeErr = f.file.Close()
	})
	return f.closeErr
}

// Fd 返回原始描述符，仅用于日志与诊断
func (f *FD) Fd() int {
	var fd int
	if err := f.rc.Control(func(raw uintptr) { fd = int(raw) }); err != nil {
		return -1
	}
	return fd
}

// SetDeadline 设置读写截止时间
func (f *FD) SetDeadline(t time.Time) error {
	return f.file.SetDeadline(t)
}

// SetReadDeadline 设置读截止时间
func (f *FD) SetReadDeadline(t time.Time) error {
	return f.file.SetReadDeadline(t)
}

// SetWriteDeadline 设置写截止时间
func (f *FD) SetWriteDeadline(t time.Time) error {
	return f.file.SetWriteDeadline(t)
}
