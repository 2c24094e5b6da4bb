package stats

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReportInterval is the reporting cadence used when Report is called
// with a non-positive interval.
const DefaultReportInterval = time.Second

// Report is a background worker that wakes every interval, snapshots the
// counters and gauges, computes per-counter deltas against the previous
// snapshot, and logs a single summary line.
func Report(ctx context.Context, interval time.Duration, l *slog.Logger) {
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	prev := Snap()
	for {
		select {
		case <-t.C:
			cur := Snap()
			l.Info("stats_report",
				"posted_msgs_rate", cur.PostedMsgs-prev.PostedMsgs,
				"posted_bytes_rate", cur.PostedBytes-prev.PostedBytes,
				"collected_msgs_rate", cur.CollectedMsgs-prev.CollectedMsgs,
				"collected_bytes_rate", cur.CollectedBytes-prev.CollectedBytes,
				"dropped_msgs_rate", cur.DroppedMsgs-prev.DroppedMsgs,
				"dropped_bytes_rate", cur.DroppedBytes-prev.DroppedBytes,
				"queue_depth", cur.QueueDepth,
				"active_producers", cur.ActiveProducers,
				"active_consumers", cur.ActiveConsumers,
				"posted_msgs_total", cur.PostedMsgs,
				"collected_msgs_total", cur.CollectedMsgs,
				"dropped_msgs_total", cur.DroppedMsgs,
			)
			prev = cur
		case <-ctx.Done():
			return
		}
	}
}
