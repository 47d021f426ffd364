//go:build cgo && libtailscale

package native

/*
#cgo LDFLAGS: -L${SRCDIR} -L. -ltailscale
#cgo darwin LDFLAGS: -framework CoreFoundation -framework IOKit -framework Security
#include <stdlib.h>
#include "tailscale.h"
*/
import "C"

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// Lib 返回链接到 libtailscale 的 Surface
func Lib() Surface {
	return cgoSurface{}
}

type cgoSurface struct{}

var _ Surface = cgoSurface{}

// withCString 调用方已通过 CheckText 校验，这里只负责分配与释放
func withCString(s string, fn func(*C.char) C.int) int {
	cs := C.CString(s)
	defer C.free(unsafe.Pointer(cs))
	return int(fn(cs))
}

func bufPtr(buf []byte) (*C.char, C.size_t) {
	if len(buf) == 0 {
		return nil, 0
	}
	return (*C.char)(unsafe.Pointer(&buf[0])), C.size_t(len(buf))
}

func (cgoSurface) New() Handle {
	return Handle(C.tailscale_new())
}

func (cgoSurface) Start(sd Handle) int {
	return int(C.tailscale_start(C.tailscale(sd)))
}

func (cgoSurface) Up(sd Handle) int {
	return int(C.tailscale_up(C.tailscale(sd)))
}

func (cgoSurface) Close(sd Handle) int {
	return int(C.tailscale_close(C.tailscale(sd)))
}

func (cgoSurface) SetEphemeral(sd Handle, ephemeral bool) int {
	var v C.int
	if ephemeral {
		v = 1
	}
	return int(C.tailscale_set_ephemeral(C.tailscale(sd), v))
}

func (cgoSurface) SetDir(sd Handle, dir string) int {
	return withCString(dir, func(cs *C.char) C.int {
		return C.tailscale_set_dir(C.tailscale(sd), cs)
	})
}

func (cgoSurface) SetHostname(sd Handle, hostname string) int {
	return withCString(hostname, func(cs *C.char) C.int {
		return C.tailscale_set_hostname(C.tailscale(sd), cs)
	})
}

func (cgoSurface) SetAuthKey(sd Handle, authKey string) int {
	return withCString(authKey, func(cs *C.char) C.int {
		return C.tailscale_set_authkey(C.tailscale(sd), cs)
	})
}

func (cgoSurface) SetControlURL(sd Handle, controlURL string) int {
	return withCString(controlURL, func(cs *C.char) C.int {
		return C.tailscale_set_control_url(C.tailscale(sd), cs)
	})
}

func (cgoSurface) SetLogFD(sd Handle, fd Handle) int {
	return int(C.tailscale_set_logfd(C.tailscale(sd), C.int(fd)))
}

func (cgoSurface) Listen(sd Handle, network, addr string) (Handle, int) {
	cn := C.CString(network)
	defer C.free(unsafe.Pointer(cn))
	ca := C.CString(addr)
	defer C.free(unsafe.Pointer(ca))

	var out C.tailscale_listener
	ret := C.tailscale_listen(C.tailscale(sd), cn, ca, &out)
	return Handle(out), int(ret)
}

func (cgoSurface) Dial(sd Handle, network, addr string) (Handle, int) {
	cn := C.CString(network)
	defer C.free(unsafe.Pointer(cn))
	ca := C.CString(addr)
	defer C.free(unsafe.Pointer(ca))

	var out C.tailscale_conn
	ret := C.tailscale_dial(C.tailscale(sd), cn, ca, &out)
	return Handle(out), int(ret)
}

func (cgoSurface) Accept(ln Handle) (Handle, int) {
	var out C.tailscale_conn
	ret := C.tailscale_accept(C.tailscale_listener(ln), &out)
	return Handle(out), int(ret)
}

// ShutdownListener 监听器在 libtailscale 中是 socketpair 的一端；
// 对其 shutdown 会让阻塞在 recvmsg 上的 tailscale_accept 返回
func (cgoSurface) ShutdownListener(ln Handle) int {
	return errnoCode(unix.Shutdown(ln, unix.SHUT_RDWR))
}

// CloseListener 监听器在 libtailscale 中是普通描述符
func (cgoSurface) CloseListener(ln Handle) int {
	return errnoCode(unix.Close(ln))
}

func errnoCode(err error) int {
	if err == nil {
		return CodeOK
	}
	if errno, ok := err.(unix.Errno); ok {
		return int(errno)
	}
	return int(unix.EIO)
}

func (cgoSurface) RemoteAddr(ln, conn Handle, buf []byte) int {
	p, n := bufPtr(buf)
	return int(C.tailscale_getremoteaddr(C.tailscale_listener(ln), C.tailscale_conn(conn), p, n))
}

func (cgoSurface) GetIPs(sd Handle, buf []byte) int {
	p, n := bufPtr(buf)
	return int(C.tailscale_getips(C.tailscale(sd), p, n))
}

func (cgoSurface) ErrMsg(sd Handle, buf []byte) int {
	p, n := bufPtr(buf)
	return int(C.tailscale_errmsg(C.tailscale(sd), p, n))
}

func (cgoSurface) Loopback(sd Handle, addr []byte, proxyCred, localAPICred []byte) int {
	if len(proxyCred) < CredentialLen || len(localAPICred) < CredentialLen {
		return CodeRange
	}
	p, n := bufPtr(addr)
	pc, _ := bufPtr(proxyCred)
	lc, _ := bufPtr(localAPICred)
	return int(C.tailscale_loopback(C.tailscale(sd), p, n, pc, lc))
}
