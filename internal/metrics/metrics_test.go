package metrics

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// RateMeter 测试
// ============================================================================

// TestRateMeter_Window 测试滑动窗口过期
func TestRateMeter_Window(t *testing.T) {
	clk := clock.NewMock()
	r := NewRateMeterWithClock(clk)

	r.Add(600)
	assert.EqualValues(t, 600, r.Total())
	assert.InDelta(t, 10.0, r.Rate(), 0.001)

	clk.Add(30 * time.Second)
	r.Add(60)
	assert.EqualValues(t, 660, r.Total())

	// 61 秒后第一个桶已经滑出窗口
	clk.Add(31 * time.Second)
	assert.EqualValues(t, 60, r.Total())

	clk.Add(2 * time.Minute)
	assert.EqualValues(t, 0, r.Total())
}

// TestRateMeter_Reset 测试重置
func TestRateMeter_Reset(t *testing.T) {
	r := NewRateMeter()
	r.Add(100)
	r.Reset()
	assert.EqualValues(t, 0, r.Total())
}

// ============================================================================
// BandwidthCounter 测试
// ============================================================================

// TestBandwidthCounter_PerNetwork 测试按网络统计
func TestBandwidthCounter_PerNetwork(t *testing.T) {
	bwc := NewBandwidthCounter()

	bwc.LogSent(100, "tcp")
	bwc.LogSent(50, "udp")
	bwc.LogRecv(30, "tcp")
	bwc.LogRecv(0, "tcp")
	bwc.LogSent(-1, "tcp")

	totals := bwc.Totals()
	assert.EqualValues(t, 150, totals.TotalOut)
	assert.EqualValues(t, 30, totals.TotalIn)

	tcp := bwc.ForNetwork("tcp")
	assert.EqualValues(t, 100, tcp.TotalOut)
	assert.EqualValues(t, 30, tcp.TotalIn)

	assert.Equal(t, Stats{}, bwc.ForNetwork("unknown"))

	bwc.Reset()
	assert.Zero(t, bwc.Totals().TotalOut)
	assert.Equal(t, Stats{}, bwc.ForNetwork("tcp"))
}

// TestBandwidthCounter_Concurrent 测试并发计数
func TestBandwidthCounter_Concurrent(t *testing.T) {
	bwc := NewBandwidthCounter()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bwc.LogSent(1, "tcp")
				bwc.LogRecv(2, "udp")
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1600, bwc.Totals().TotalOut)
	assert.EqualValues(t, 3200, bwc.ForNetwork("udp").TotalIn)
}

// ============================================================================
// Collector 测试
// ============================================================================

// TestCollector_Handles 测试句柄计数
func TestCollector_Handles(t *testing.T) {
	c := NewCollector(nil, "s1", nil)

	c.HandleOpened(KindConn)
	c.HandleOpened(KindConn)
	c.HandleClosed(KindConn)
	c.HandleOpened(KindListener)

	assert.EqualValues(t, 1, c.OpenHandles(KindConn))
	assert.EqualValues(t, 1, c.OpenHandles(KindListener))
	assert.EqualValues(t, 0, c.OpenHandles(KindSession))
}

// TestCollector_Registry 测试注册与注销
func TestCollector_Registry(t *testing.T) {
	reg := prometheus.NewPedanticRegistry()
	inFlight := 3.0

	a := NewCollector(reg, "a", func() float64 { return inFlight })
	b := NewCollector(reg, "b", nil)

	a.NativeError("dial")
	a.LogSent(5, "tcp")
	b.LogRecv(7, "udp")

	assert.EqualValues(t, 1, testutil.ToFloat64(a.nativeErrors.WithLabelValues("dial")))
	assert.EqualValues(t, 5, testutil.ToFloat64(a.bytes.WithLabelValues("out", "tcp")))
	assert.EqualValues(t, 7, b.Bandwidth().Totals().TotalIn)

	expected := `
# HELP tailscale_bridge_calls_in_flight Blocking native calls currently running off the caller goroutine.
# TYPE tailscale_bridge_calls_in_flight gauge
tailscale_bridge_calls_in_flight{session="a"} 3
tailscale_bridge_calls_in_flight{session="b"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "tailscale_bridge_calls_in_flight"))

	a.Unregister()
	count, err := testutil.GatherAndCount(reg, "tailscale_bridge_calls_in_flight")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
