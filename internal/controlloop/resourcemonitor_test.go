package controlloop

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajoudaki/scheduler/internal/metrics"
)

func TestResourceMonitorSamplesOnStart(t *testing.T) {
	monitor, err := NewResourceMonitor(time.Hour, silentLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go monitor.Run(ctx)
	defer monitor.Stop()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SelfMemoryUsageBytes) > 0
	}, time.Second, 10*time.Millisecond)
}

func TestResourceMonitorStopReturnsPromptly(t *testing.T) {
	monitor, err := NewResourceMonitor(time.Hour, silentLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Run(ctx)

	done := make(chan struct{})
	go func() {
		monitor.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return in time")
	}
}
