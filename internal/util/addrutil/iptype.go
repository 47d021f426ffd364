// Package addrutil 解析原生层返回的地址文本
package addrutil

import (
	"errors"
	"net/netip"
	"strings"
)

var (
	// ErrIPListShape 地址列表不是 "ipv4,ipv6" 形式
	ErrIPListShape = errors.New("ip list must be exactly two comma-separated addresses")

	// ErrEmptyAddr 地址文本为空
	ErrEmptyAddr = errors.New("empty address")
)

// ============================================================================
//                              文本解析
// ============================================================================

// SplitIPList 将 "a,b" 拆成两段
//
// 段数不是 2 时返回 ErrIPListShape。空文本由调用方先行判断。
func SplitIPList(text string) (string, string, error) {
	parts := strings.Split(text, ",")
	if len(parts) != 2 {
		return "", "", ErrIPListShape
	}
	return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1]), nil
}

// ParseIP 解析原生返回的单个地址
//
// 接受纯 IP、host:port 与 [ipv6]:port，端口被丢弃。
func ParseIP(text string) (netip.Addr, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return netip.Addr{}, ErrEmptyAddr
	}
	if ap, err := netip.ParseAddrPort(text); err == nil {
		return ap.Addr(), nil
	}
	return netip.ParseAddr(text)
}

// ============================================================================
//                              地址类型判断
// ============================================================================

var (
	// tailnetV4 分配给节点的 CGNAT 地址段
	tailnetV4 = netip.MustParsePrefix("100.64.0.0/10")

	// tailnetV6 分配给节点的 ULA 地址段
	tailnetV6 = netip.MustParsePrefix("fd7a:115c:a1e0::/48")
)

// IsTailnetAddr 判断地址是否属于网格分配的地址段
func IsTailnetAddr(ip netip.Addr) bool {
	ip = ip.Unmap()
	return tailnetV4.Contains(ip) || tailnetV6.Contains(ip)
}

// AddrType 返回地址类型描述
//
// 返回值：
//   - "tailnet" - 网格地址
//   - "loopback" - 回环地址
//   - "private" - 私网或链路本地地址
//   - "public" - 公网地址
//   - "unknown" - 无效地址
func AddrType(ip netip.Addr) string {
	ip = ip.Unmap()
	switch {
	case !ip.IsValid():
		return "unknown"
	case IsTailnetAddr(ip):
		return "tailnet"
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate() || ip.IsLinkLocalUnicast():
		return "private"
	case ip.IsGlobalUnicast():
		return "public"
	default:
		return "unknown"
	}
}
