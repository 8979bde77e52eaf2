// Package controlloop drives the scheduler's single timed sequencer: poll
// GPUs, reap finished jobs, run placement, sleep. Grounded on
// gpu-scheduler.py's _monitor_loop, generalized into a stoppable Go
// goroutine with context cancellation instead of a daemon thread flag.
package controlloop

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ajoudaki/scheduler/internal/metrics"
	"github.com/ajoudaki/scheduler/internal/scheduler"
)

// Config carries the poll-dependent thresholds from §6 of the daemon's
// external interface: poll cadence and the GPU availability thresholds the
// Poller's reconciliation step applies.
type Config struct {
	PollInterval    time.Duration
	MinFreeMemoryMB int
	MaxGPUUtilPct   int
}

// Poller is the subset of probe.Poller the loop needs, narrowed to an
// interface so tests can substitute a fake without forking gpu-query.
type Poller interface {
	Poll(ctx context.Context) ([]scheduler.GPU, error)
}

// Dispatcher is the subset of supervisor.Dispatcher the loop drives each
// tick, narrowed the same way.
type Dispatcher interface {
	Reap()
	Launch(ctx context.Context, instructions []scheduler.LaunchInstruction, jobs map[string]*scheduler.Job)
	ShutdownSignalAll()
}

// Loop is the Control Loop component (spec.md §4.F): a single long-lived
// worker that never exits except on Stop.
type Loop struct {
	engine     *scheduler.Engine
	poller     Poller
	dispatcher Dispatcher
	cfg        Config
	logger     *logrus.Logger

	stop chan struct{}
	done chan struct{}
}

func New(engine *scheduler.Engine, poller Poller, dispatcher Dispatcher, cfg Config, logger *logrus.Logger) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Loop{
		engine:     engine,
		poller:     poller,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run blocks, ticking until Stop is called. Intended to be launched with
// `go loop.Run(ctx)` from main.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	l.tick(ctx)
	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("recovered from panic in control loop tick")
		}
	}()

	rows, err := l.poller.Poll(ctx)
	if err != nil {
		l.logger.WithError(err).Warn("gpu poll failed, retaining prior snapshot")
	} else {
		l.engine.ReconcileGPUs(rows, l.cfg.MinFreeMemoryMB, l.cfg.MaxGPUUtilPct)
	}
	l.publishGPUMetrics()

	l.dispatcher.Reap()

	instructions := l.engine.RunPlacement()
	metrics.QueueDepth.Set(float64(l.engine.QueueDepth()))
	if len(instructions) == 0 {
		return
	}
	jobs := l.engine.ListJobs()
	l.dispatcher.Launch(ctx, instructions, jobs)
}

// publishGPUMetrics exports the current inventory snapshot as gauges, run
// after every reconciliation regardless of whether this tick's poll
// succeeded, so the exported numbers always reflect the last known state.
func (l *Loop) publishGPUMetrics() {
	gpus := l.engine.ListGPUs()
	available := 0
	for _, gpu := range gpus {
		metrics.GPUUtilization.WithLabelValues(strconv.Itoa(gpu.ID)).Set(float64(gpu.UtilizationPct))
		if gpu.IsAvailable {
			available++
		}
	}
	metrics.GPUsAvailable.Set(float64(available))
}

// Stop halts the loop and signals every still-running job's process group,
// mirroring gpu-scheduler.py's shutdown().
func (l *Loop) Stop() {
	close(l.stop)
	<-l.done
	l.dispatcher.ShutdownSignalAll()
}
