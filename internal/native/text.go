package native

import (
	"bytes"
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	// ErrEmbeddedNUL 文本包含 NUL，无法作为 C 字符串传递
	ErrEmbeddedNUL = errors.New("text contains embedded NUL byte")

	// ErrMissingNUL 输出缓冲中没有 NUL 终止符
	ErrMissingNUL = errors.New("missing NUL terminator")

	// ErrInvalidUTF8 输出文本不是合法 UTF-8
	ErrInvalidUTF8 = errors.New("invalid utf-8 string")
)

const (
	// CredentialLen 回环凭据缓冲长度（32 字节十六进制 + NUL）
	CredentialLen = 33

	// MaxTextLen 输出缓冲增长上限
	MaxTextLen = 64 << 10
)

// CheckText 校验文本可以安全地作为 NUL 结尾字符串跨越边界
func CheckText(s string) error {
	if strings.IndexByte(s, 0) >= 0 {
		return ErrEmbeddedNUL
	}
	return nil
}

// DecodeText 读取原生写入的 NUL 结尾文本
func DecodeText(buf []byte) (string, error) {
	i := bytes.IndexByte(buf, 0)
	if i < 0 {
		return "", ErrMissingNUL
	}
	if !utf8.Valid(buf[:i]) {
		return "", ErrInvalidUTF8
	}
	return string(buf[:i]), nil
}

// ReadText 以 size 为初始容量调用 fn，遇到 CodeRange 时翻倍重试
//
// 返回最后一次调用的返回码；返回码非 0 时文本为空。
func ReadText(size int, fn func(buf []byte) int) (string, int, error) {
	for {
		buf := make([]byte, size)
		code := fn(buf)
		if code == CodeRange && size < MaxTextLen {
			size *= 2
			continue
		}
		if code != CodeOK {
			return "", code, nil
		}
		s, err := DecodeText(buf)
		return s, CodeOK, err
	}
}

// WriteText 将 s 以 NUL 结尾写入 buf，容量不足时返回 CodeRange
//
// 供非 cgo 实现使用。
func WriteText(buf []byte, s string) int {
	if len(s)+1 > len(buf) {
		return CodeRange
	}
	n := copy(buf, s)
	buf[n] = 0
	return CodeOK
}
