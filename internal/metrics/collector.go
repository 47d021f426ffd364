package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// 句柄类型标签
const (
	KindSession  = "session"
	KindListener = "listener"
	KindConn     = "conn"
)

const namespace = "tailscale"

// Collector 单个会话的指标
//
// 所有指标带有常量标签 session=<id>，因此多个会话可以注册到同一个 Registerer。
// reg 为 nil 时指标只在内存中计数，不注册。
type Collector struct {
	reg prometheus.Registerer

	bandwidth *BandwidthCounter

	handles      *prometheus.GaugeVec
	nativeErrors *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	bridgeCalls  prometheus.GaugeFunc

	collectors []prometheus.Collector
}

// NewCollector 创建并注册会话指标
//
// inFlight 返回当前阻塞调用数，可为 nil。
func NewCollector(reg prometheus.Registerer, sessionID string, inFlight func() float64) *Collector {
	labels := prometheus.Labels{"session": sessionID}
	factory := promauto.With(reg)
	if inFlight == nil {
		inFlight = func() float64 { return 0 }
	}

	c := &Collector{
		reg:       reg,
		bandwidth: NewBandwidthCounter(),
		handles: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "handles_open",
			Help:        "Native handles currently open, by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		nativeErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "native_errors_total",
			Help:        "Non-zero return codes from the native surface, by operation.",
			ConstLabels: labels,
		}, []string{"op"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "conn_bytes_total",
			Help:        "Bytes transferred over connections, by direction and network.",
			ConstLabels: labels,
		}, []string{"direction", "network"}),
		bridgeCalls: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "bridge_calls_in_flight",
			Help:        "Blocking native calls currently running off the caller goroutine.",
			ConstLabels: labels,
		}, inFlight),
	}
	c.collectors = []prometheus.Collector{c.handles, c.nativeErrors, c.bytes, c.bridgeCalls}
	return c
}

// HandleOpened 记录句柄打开
func (c *Collector) HandleOpened(kind string) {
	c.handles.WithLabelValues(kind).Inc()
}

// HandleClosed 记录句柄关闭
func (c *Collector) HandleClosed(kind string) {
	c.handles.WithLabelValues(kind).Dec()
}

// OpenHandles 返回某类句柄的当前数量
func (c *Collector) OpenHandles(kind string) float64 {
	return gaugeValue(c.handles.WithLabelValues(kind))
}

// NativeError 记录一次原生失败
func (c *Collector) NativeError(op string) {
	c.nativeErrors.WithLabelValues(op).Inc()
}

// LogSent 记录出站字节
func (c *Collector) LogSent(n int64, network string) {
	if n <= 0 {
		return
	}
	c.bandwidth.LogSent(n, network)
	c.bytes.WithLabelValues("out", network).Add(float64(n))
}

// LogRecv 记录入站字节
func (c *Collector) LogRecv(n int64, network string) {
	if n <= 0 {
		return
	}
	c.bandwidth.LogRecv(n, network)
	c.bytes.WithLabelValues("in", network).Add(float64(n))
}

// Bandwidth 返回带宽统计
func (c *Collector) Bandwidth() Reporter {
	return c.bandwidth
}

// Unregister 从 Registerer 中移除本会话的指标
func (c *Collector) Unregister() {
	if c.reg == nil {
		return
	}
	for _, col := range c.collectors {
		c.reg.Unregister(col)
	}
}

func gaugeValue(g prometheus.Gauge) float64 {
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		return 0
	}
	return m.GetGauge().GetValue()
}
