//go:build !cgo || !libtailscale

package native

import "golang.org/x/sys/unix"

// unavailableMsg 未链接原生库时 ErrMsg 返回的文本
const unavailableMsg = "libtailscale is not linked into this binary (build with cgo and -tags libtailscale)"

// Lib 返回未链接原生库时的 Surface
//
// New 总是返回 InvalidHandle，因此 Build 会以 ErrCreateFailed 失败。
func Lib() Surface {
	return unavailable{}
}

type unavailable struct{}

var _ Surface = unavailable{}

const codeUnavailable = int(unix.ENOSYS)

func (unavailable) New() Handle                                 { return InvalidHandle }
func (unavailable) Start(Handle) int                            { return codeUnavailable }
func (unavailable) Up(Handle) int                               { return codeUnavailable }
func (unavailable) Close(Handle) int                            { return codeUnavailable }
func (unavailable) SetEphemeral(Handle, bool) int               { return codeUnavailable }
func (unavailable) SetDir(Handle, string) int                   { return codeUnavailable }
func (unavailable) SetHostname(Handle, string) int              { return codeUnavailable }
func (unavailable) SetAuthKey(Handle, string) int               { return codeUnavailable }
func (unavailable) SetControlURL(Handle, string) int            { return codeUnavailable }
func (unavailable) SetLogFD(Handle, Handle) int                 { return codeUnavailable }
func (unavailable) ShutdownListener(Handle) int                 { return codeUnavailable }
func (unavailable) CloseListener(Handle) int                    { return codeUnavailable }
func (unavailable) RemoteAddr(Handle, Handle, []byte) int       { return codeUnavailable }
func (unavailable) GetIPs(Handle, []byte) int                   { return codeUnavailable }
func (unavailable) Loopback(Handle, []byte, []byte, []byte) int { return codeUnavailable }

func (unavailable) Listen(Handle, string, string) (Handle, int) {
	return InvalidHandle, codeUnavailable
}

func (unavailable) Dial(Handle, string, string) (Handle, int) {
	return InvalidHandle, codeUnavailable
}

func (unavailable) Accept(Handle) (Handle, int) {
	return InvalidHandle, codeUnavailable
}

func (unavailable) ErrMsg(_ Handle, buf []byte) int {
	return WriteText(buf, unavailableMsg)
}
