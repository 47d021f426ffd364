package tailscale

import "net/netip"

// IPPair 分配给节点的一对地址
type IPPair struct {
	IPv4 netip.Addr
	IPv6 netip.Addr
}

// LoopbackInfo 本地回环代理信息
type LoopbackInfo struct {
	// Addr 代理监听地址 "ip:port"
	Addr string

	// ProxyCredential SOCKS5 代理凭据
	ProxyCredential string

	// LocalAPICredential LocalAPI 凭据
	LocalAPICredential string
}

// Stats 会话运行统计
type Stats struct {
	OpenListeners int
	OpenConns     int

	// InFlight 正在执行的阻塞原生调用数
	InFlight int64

	BytesIn  int64
	BytesOut int64
	RateIn   float64
	RateOut  float64
}
