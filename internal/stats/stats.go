// Package stats tracks the broker's process-wide counters and gauges and
// exposes them both as Prometheus metrics and as a cheap in-process
// Snapshot, so a background reporter never needs to scrape Prometheus in
// process.
package stats

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus series. Counters are monotonic; gauges track live state.
var (
	PostedMsgs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qpipe_posted_msgs_total",
		Help: "Total frames accepted from producers.",
	})
	PostedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qpipe_posted_bytes_total",
		Help: "Total payload bytes accepted from producers.",
	})
	CollectedMsgs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qpipe_collected_msgs_total",
		Help: "Total frames successfully delivered to a consumer.",
	})
	CollectedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qpipe_collected_bytes_total",
		Help: "Total payload bytes successfully delivered to a consumer.",
	})
	DroppedMsgs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qpipe_dropped_msgs_total",
		Help: "Total frames popped from the queue and lost to a failed consumer write.",
	})
	DroppedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "qpipe_dropped_bytes_total",
		Help: "Total payload bytes lost to a failed consumer write.",
	})
	ActiveProducers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qpipe_active_producers",
		Help: "Current number of connected producer sessions.",
	})
	ActiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qpipe_active_consumers",
		Help: "Current number of connected consumer sessions.",
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "qpipe_queue_depth",
		Help: "Current number of frames buffered in the queue.",
	})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qpipe_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})
)

// Error label constants (bounded cardinality).
const (
	ErrHandshake = "handshake"
	ErrConnRead  = "conn_read"
	ErrConnWrite = "conn_write"
	ErrAccept    = "accept"
	ErrListen    = "listen"
	ErrOversize  = "oversize_frame"
)

// Local mirrored atomics, read cheaply by the reporter without touching
// Prometheus's registry.
var (
	localPostedMsgs      uint64
	localPostedBytes     uint64
	localCollectedMsgs   uint64
	localCollectedBytes  uint64
	localDroppedMsgs     uint64
	localDroppedBytes    uint64
	localActiveProducers int64
	localActiveConsumers int64
)

// Snapshot is a cheap, consistent-per-field copy of the counters and gauges.
// Cross-field consistency across fields is only guaranteed at quiescence.
type Snapshot struct {
	PostedMsgs      uint64
	PostedBytes     uint64
	CollectedMsgs   uint64
	CollectedBytes  uint64
	DroppedMsgs     uint64
	DroppedBytes    uint64
	ActiveProducers int64
	ActiveConsumers int64
	QueueDepth      int
}

// depthFn is registered by the broker so Snap() can report live queue depth.
var depthFn atomic.Pointer[func() int]

// SetDepthFunc registers the function Snap uses to read current queue depth.
func SetDepthFunc(fn func() int) {
	depthFn.Store(&fn)
}

// Snap takes an instantaneous snapshot of all counters and gauges.
func Snap() Snapshot {
	var depth int
	if fn := depthFn.Load(); fn != nil {
		depth = (*fn)()
	}
	return Snapshot{
		PostedMsgs:      atomic.LoadUint64(&localPostedMsgs),
		PostedBytes:     atomic.LoadUint64(&localPostedBytes),
		CollectedMsgs:   atomic.LoadUint64(&localCollectedMsgs),
		CollectedBytes:  atomic.LoadUint64(&localCollectedBytes),
		DroppedMsgs:     atomic.LoadUint64(&localDroppedMsgs),
		DroppedBytes:    atomic.LoadUint64(&localDroppedBytes),
		ActiveProducers: atomic.LoadInt64(&localActiveProducers),
		ActiveConsumers: atomic.LoadInt64(&localActiveConsumers),
		QueueDepth:      depth,
	}
}

// AddPosted records a posted frame of n bytes.
func AddPosted(n int) {
	PostedMsgs.Inc()
	PostedBytes.Add(float64(n))
	atomic.AddUint64(&localPostedMsgs, 1)
	atomic.AddUint64(&localPostedBytes, uint64(n))
}

// AddCollected records a frame of n bytes delivered to a consumer.
func AddCollected(n int) {
	CollectedMsgs.Inc()
	CollectedBytes.Add(float64(n))
	atomic.AddUint64(&localCollectedMsgs, 1)
	atomic.AddUint64(&localCollectedBytes, uint64(n))
}

// AddDropped records a frame of n bytes popped but never delivered.
func AddDropped(n int) {
	DroppedMsgs.Inc()
	DroppedBytes.Add(float64(n))
	atomic.AddUint64(&localDroppedMsgs, 1)
	atomic.AddUint64(&localDroppedBytes, uint64(n))
}

// IncProducers / DecProducers maintain the active-producer gauge. Callers
// must guarantee a matching Dec on every exit path (see session's connGuard).
func IncProducers() {
	ActiveProducers.Inc()
	atomic.AddInt64(&localActiveProducers, 1)
}

func DecProducers() {
	ActiveProducers.Dec()
	atomic.AddInt64(&localActiveProducers, -1)
}

// IncConsumers / DecConsumers maintain the active-consumer gauge.
func IncConsumers() {
	ActiveConsumers.Inc()
	atomic.AddInt64(&localActiveConsumers, 1)
}

func DecConsumers() {
	ActiveConsumers.Dec()
	atomic.AddInt64(&localActiveConsumers, -1)
}

// SetQueueDepth mirrors the queue depth gauge into Prometheus.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

// IncError increments the bounded-cardinality error counter for where.
func IncError(where string) {
	Errors.WithLabelValues(where).Inc()
}

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready.
func StartHTTP(addr string, ready func() bool) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if ready == nil || ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			_ = err // listen/serve errors are discarded, not reported to the caller
		}
	}()
	return srv
}
