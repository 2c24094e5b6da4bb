package stats

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReportLogsAtLeastOneLineWithinFourIntervals(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, nil))

	ctx, cancel := context.WithCancel(context.Background())
	AddPosted(1) // precedes Report's baseline snapshot: counted in posted_msgs_total, not in the rate

	done := make(chan struct{})
	go func() {
		Report(ctx, 20*time.Millisecond, l)
		close(done)
	}()

	time.Sleep(70 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Report did not exit after ctx cancellation")
	}

	require.Contains(t, buf.String(), "stats_report")
	require.True(t, strings.Count(buf.String(), "stats_report") >= 1)
}

func TestDefaultReportIntervalIsOneSecond(t *testing.T) {
	require.Equal(t, time.Second, DefaultReportInterval)
}
