package supervisor

import (
	"context"

	"github.com/gammazero/workerpool"
	"github.com/sirupsen/logrus"

	"github.com/ajoudaki/scheduler/internal/output"
	"github.com/ajoudaki/scheduler/internal/scheduler"
)

// Dispatcher turns a placement pass's LaunchInstructions into running
// processes. Multiple launches from the same pass run concurrently on a
// worker pool, grounded on the teacher's cmd/api.go startup dispatch
// (workerpool.New + Submit) — launching N jobs for the same tick has no
// ordering requirement among themselves, only relative to reap/placement.
type Dispatcher struct {
	engine      *scheduler.Engine
	runner      JobRunner
	output      *output.Store
	logger      *logrus.Logger
	concurrency int
	pool        *workerpool.WorkerPool
}

func NewDispatcher(engine *scheduler.Engine, runner JobRunner, store *output.Store, logger *logrus.Logger, concurrency int) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		engine:      engine,
		runner:      runner,
		output:      store,
		logger:      logger,
		concurrency: concurrency,
		pool:        workerpool.New(concurrency),
	}
}

// Launch executes every instruction from one placement pass and blocks
// until all of them have either started or failed to start, committing the
// resulting state transition on the Engine for each.
func (d *Dispatcher) Launch(ctx context.Context, instructions []scheduler.LaunchInstruction, jobs map[string]*scheduler.Job) {
	for _, inst := range instructions {
		inst := inst
		job := jobs[inst.JobID]
		d.pool.Submit(func() {
			d.launchOne(ctx, inst, job)
		})
	}
	d.pool.StopWait()
	d.pool = workerpool.New(d.concurrency)
}

func (d *Dispatcher) launchOne(ctx context.Context, inst scheduler.LaunchInstruction, job *scheduler.Job) {
	if job == nil {
		return
	}
	logger := d.logger.WithField("job_id", inst.JobID)

	paths, err := d.output.PrepareJobDir(inst.JobID)
	if err != nil {
		logger.WithError(err).Error("failed to prepare output directory")
		d.engine.FailLaunch(inst.JobID, inst.AssignedGPUs)
		return
	}

	pid, err := d.runner.Spawn(ctx, LaunchConfig{
		JobID:         inst.JobID,
		Command:       job.Command,
		Env:           job.Env,
		WorkingDir:    job.WorkingDir,
		MemoryLimitGB: job.MemoryLimitGB,
		GPUIDs:        inst.AssignedGPUs,
		StdoutPath:    paths.Stdout,
		StderrPath:    paths.Stderr,
	})
	if err != nil {
		logger.WithError(err).Error("failed to launch job")
		d.engine.FailLaunch(inst.JobID, inst.AssignedGPUs)
		return
	}

	d.engine.CommitLaunch(inst.JobID, inst.AssignedGPUs, pid, pid, paths.Stdout, paths.Stderr)
	logger.WithFields(logrus.Fields{"pid": pid, "gpus": inst.AssignedGPUs}).Info("job launched")
}

// Reap checks every running job's process and transitions completed ones,
// grounded on gpu-scheduler.py's _check_running_jobs.
func (d *Dispatcher) Reap() {
	for _, running := range d.engine.RunningSnapshot() {
		exitCode, ok := d.runner.Reap(running.PID)
		if !ok {
			continue
		}
		d.engine.MarkCompleted(running.JobID, exitCode)
		d.logger.WithFields(logrus.Fields{"job_id": running.JobID, "exit_code": exitCode}).Info("job reaped")
	}
}

// CancelRunning sends a termination signal to a running job's process
// group and commits the cancellation regardless of whether the signal
// succeeded, per spec.md §4.E ("errors signalling are logged but still
// report success if state was updated").
func (d *Dispatcher) CancelRunning(jobID string) error {
	pid, pgid, err := d.engine.RunningForCancel(jobID)
	if err != nil {
		return err
	}
	if sigErr := d.runner.SignalGroup(pgid); sigErr != nil {
		d.logger.WithError(sigErr).WithField("job_id", jobID).Warn("failed to signal process group")
	}
	_ = pid
	d.engine.MarkCancelledRunning(jobID)
	return nil
}

// ShutdownSignalAll best-effort terminates every running job's process
// group, for use during daemon shutdown (spec.md §4.E shutdown()).
func (d *Dispatcher) ShutdownSignalAll() {
	for _, running := range d.engine.RunningSnapshot() {
		if err := d.runner.SignalGroup(running.PGID); err != nil {
			d.logger.WithError(err).WithField("job_id", running.JobID).Warn("failed to signal process group during shutdown")
		}
	}
}
