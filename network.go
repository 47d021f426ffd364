package tailscale

import "fmt"

// Network 网络类型
type Network string

const (
	// TCP 流式连接
	TCP Network = "tcp"

	// UDP 数据报
	UDP Network = "udp"
)

// ParseNetwork 解析网络类型（区分大小写，与原生层一致）
func ParseNetwork(s string) (Network, error) {
	n := Network(s)
	if !n.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidNetwork, s)
	}
	return n, nil
}

// Valid 是否为受支持的网络类型
func (n Network) Valid() bool {
	return n == TCP || n == UDP
}

func (n Network) String() string {
	return string(n)
}

// Addr 网格上的地址，实现 net.Addr
type Addr struct {
	Net     Network
	Address string
}

// Network 返回网络类型
func (a Addr) Network() string {
	return string(a.Net)
}

func (a Addr) String() string {
	return a.Address
}
