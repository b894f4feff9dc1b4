// Package metrics 为媒体缓存提供 Prometheus 指标。
//
// *Metrics 的方法均可在 nil 接收者上调用，不需要指标时直接传 nil。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics 持有缓存用到的全部指标。
type Metrics struct {
	mediaRequests        *prometheus.CounterVec
	upstreamFetches      *prometheus.CounterVec
	evictions            *prometheus.CounterVec
	storedBytes          prometheus.Counter
	notificationsDropped prometheus.Counter
}

// New 创建 Metrics 并把全部指标注册到 reg。
// 测试中使用 prometheus.NewRegistry()，避免用例之间相互干扰。
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		mediaRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecache_media_requests_total",
				Help: "Media requests by the source that answered them (cache, network, stale, error).",
			},
			[]string{"source"},
		),
		upstreamFetches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecache_upstream_fetch_total",
				Help: "Upstream whole-file fetch attempts by result.",
			},
			[]string{"result"},
		),
		evictions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecache_evictions_total",
				Help: "Cache entries removed by reason.",
			},
			[]string{"reason"},
		),
		storedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tunecache_stored_bytes_total",
			Help: "Bytes written into the media cache.",
		}),
		notificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tunecache_notifications_dropped_total",
			Help: "trackCached notifications dropped because a subscriber buffer was full.",
		}),
	}
	reg.MustRegister(
		m.mediaRequests,
		m.upstreamFetches,
		m.evictions,
		m.storedBytes,
		m.notificationsDropped,
	)
	return m
}

// MediaRequest 按应答来源统计媒体请求。
func (m *Metrics) MediaRequest(source string) {
	if m == nil {
		return
	}
	m.mediaRequests.WithLabelValues(source).Inc()
}

// UpstreamFetch 记录一次回源结果（ok / error / timeout）。
func (m *Metrics) UpstreamFetch(result string) {
	if m == nil {
		return
	}
	m.upstreamFetches.WithLabelValues(result).Inc()
}

// Evicted 按原因累计被淘汰的条目数。
func (m *Metrics) Evicted(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evictions.WithLabelValues(reason).Add(float64(n))
}

// Stored 累计写入缓存的字节数。
func (m *Metrics) Stored(bytes int64) {
	if m == nil || bytes <= 0 {
		return
	}
	m.storedBytes.Add(float64(bytes))
}

// NotificationDropped 实现 notify.DropCounter。
func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.notificationsDropped.Inc()
}
