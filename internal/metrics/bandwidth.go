package metrics

import (
	"sync"
	"sync/atomic"
)

// Stats 带宽统计快照
type Stats struct {
	TotalIn  int64   // 总入站字节
	TotalOut int64   // 总出站字节
	RateIn   float64 // 入站速率（字节/秒）
	RateOut  float64 // 出站速率（字节/秒）
}

// Reporter 记录与查询连接流量
type Reporter interface {
	// LogSent 记录 network 上写出的字节数
	LogSent(n int64, network string)

	// LogRecv 记录 network 上读入的字节数
	LogRecv(n int64, network string)

	// Totals 返回总流量
	Totals() Stats

	// ForNetwork 返回单个网络类型的流量
	ForNetwork(network string) Stats

	// Reset 重置所有统计
	Reset()
}

var _ Reporter = (*BandwidthCounter)(nil)

// direction 单方向的计数器与速率
type direction struct {
	total atomic.Int64
	rate  *RateMeter
}

func newDirection() *direction {
	return &direction{rate: NewRateMeter()}
}

func (d *direction) add(n int64) {
	d.total.Add(n)
	d.rate.Add(n)
}

// BandwidthCounter 带宽计数器
//
// 全局计数使用原子操作，按网络类型的计数器在首次出现时创建。
type BandwidthCounter struct {
	in  *direction
	out *direction

	mu         sync.RWMutex
	networkIn  map[string]*direction
	networkOut map[string]*direction
}

// NewBandwidthCounter 创建新的 BandwidthCounter
func NewBandwidthCounter() *BandwidthCounter {
	return &BandwidthCounter{
		in:         newDirection(),
		out:        newDirection(),
		networkIn:  make(map[string]*direction),
		networkOut: make(map[string]*direction),
	}
}

func (bwc *BandwidthCounter) lookup(m map[string]*direction, network string) *direction {
	bwc.mu.RLock()
	d := m[network]
	bwc.mu.RUnlock()
	if d != nil {
		return d
	}

	bwc.mu.Lock()
	defer bwc.mu.Unlock()
	if d = m[network]; d == nil {
		d = newDirection()
		m[network] = d
	}
	return d
}

// LogSent 记录出站字节
func (bwc *BandwidthCounter) LogSent(n int64, network string) {
	if n <= 0 {
		return
	}
	bwc.out.add(n)
	bwc.lookup(bwc.networkOut, network).add(n)
}

// LogRecv 记录入站字节
func (bwc *BandwidthCounter) LogRecv(n int64, network string) {
	if n <= 0 {
		return
	}
	bwc.in.add(n)
	bwc.lookup(bwc.networkIn, network).add(n)
}

// Totals 返回总带宽统计
func (bwc *BandwidthCounter) Totals() Stats {
	return Stats{
		TotalIn:  bwc.in.total.Load(),
		TotalOut: bwc.out.total.Load(),
		RateIn:   bwc.in.rate.Rate(),
		RateOut:  bwc.out.rate.Rate(),
	}
}

// ForNetwork 返回网络类型的带宽统计
func (bwc *BandwidthCounter) ForNetwork(network string) Stats {
	bwc.mu.RLock()
	in := bwc.networkIn[network]
	out := bwc.networkOut[network]
	bwc.mu.RUnlock()

	var s Stats
	if in != nil {
		s.TotalIn = in.total.Load()
		s.RateIn = in.rate.Rate()
	}
	if out != nil {
		s.TotalOut = out.total.Load()
		s.RateOut = out.rate.Rate()
	}
	return s
}

// Reset 清除所有统计
func (bwc *BandwidthCounter) Reset() {
	for _, d := range []*direction{bwc.in, bwc.out} {
		d.total.Store(0)
		d.rate.Reset()
	}

	bwc.mu.Lock()
	defer bwc.mu.Unlock()
	bwc.networkIn = make(map[string]*direction)
	bwc.networkOut = make(map[string]*direction)
}
