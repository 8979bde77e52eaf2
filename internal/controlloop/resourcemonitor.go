package controlloop

import (
	"context"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"

	"github.com/ajoudaki/scheduler/internal/metrics"
)

// ResourceMonitor periodically samples the daemon's own CPU and memory
// usage and publishes it to the metrics package, grounded on the teacher's
// worker.ResourceMonitor (internal/worker/monitor.go), narrowed from a
// per-worker monitor with job counters to a single daemon-wide self-sample.
type ResourceMonitor struct {
	proc     *process.Process
	interval time.Duration
	logger   *logrus.Logger
	stop     chan struct{}
	done     chan struct{}
}

func NewResourceMonitor(interval time.Duration, logger *logrus.Logger) (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ResourceMonitor{
		proc:     proc,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run samples resource usage on a ticker until the context is cancelled or
// Stop is called.
func (m *ResourceMonitor) Run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *ResourceMonitor) sample() {
	if cpuPct, err := m.proc.CPUPercent(); err == nil {
		metrics.SelfCPUUsage.Set(cpuPct)
	}
	if memInfo, err := m.proc.MemoryInfo(); err == nil && memInfo != nil {
		metrics.SelfMemoryUsageBytes.Set(float64(memInfo.RSS))
	}
}

func (m *ResourceMonitor) Stop() {
	close(m.stop)
	<-m.done
}
