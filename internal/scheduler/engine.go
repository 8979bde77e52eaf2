// Package scheduler holds the in-memory Job Store, Priority Queue, GPU
// inventory, and Placement Engine described in spec.md §§3-4, all guarded by
// one Engine mutex per the concurrency model of spec.md §5.
package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/catalystcommunity/app-utils-go/logging"

	"github.com/ajoudaki/scheduler/internal/metrics"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrInvalidInput  = errors.New("invalid job configuration")
	ErrNotCancelable = errors.New("job is not in a cancelable state")
)

// Clock is overridable for tests; production code uses nowUnix.
type Clock func() int64

// Engine is the scheduler's single piece of shared mutable state: the Job
// Store, Priority Queue and GPU inventory map, all behind one mutex. Modeled
// on the teacher's PriorityScheduler (one RWMutex guarding queue config and
// routing rules), generalized here to guard job/GPU state directly since
// spec.md §5 calls for exactly one central lock across all three stores.
type Engine struct {
	mu sync.Mutex

	jobs   map[string]*Job
	nextID int
	queue  *priorityQueue
	gpus   map[int]*GPU

	now    Clock
	logger *logrus.Logger
}

// New creates an empty Engine. now defaults to wall-clock seconds.
func New(now Clock, logger *logrus.Logger) *Engine {
	if now == nil {
		now = nowUnix
	}
	if logger == nil {
		logger = logging.Log
	}
	return &Engine{
		jobs:   make(map[string]*Job),
		queue:  newPriorityQueue(),
		gpus:   make(map[int]*GPU),
		now:    now,
		logger: logger,
	}
}

// SubmitJob validates a JobConfig, assigns a monotonic job id, inserts it
// queued, and appends it to the priority queue. Job ids are "job<N>",
// N monotone from 1, never reused within the process lifetime (invariant 4).
func (e *Engine) SubmitJob(cfg JobConfig) (*Job, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("%w: command is required", ErrInvalidInput)
	}
	if len(cfg.GPUIDs) == 0 && cfg.NumGPUs == 0 {
		cfg.NumGPUs = 1
	}
	if len(cfg.GPUIDs) == 0 && cfg.NumGPUs < 1 {
		return nil, fmt.Errorf("%w: num_gpus must be positive", ErrInvalidInput)
	}
	if len(cfg.GPUIDs) > 0 {
		seen := make(map[int]struct{}, len(cfg.GPUIDs))
		for _, id := range cfg.GPUIDs {
			if id < 0 {
				return nil, fmt.Errorf("%w: gpu_ids must be non-negative", ErrInvalidInput)
			}
			if _, dup := seen[id]; dup {
				return nil, fmt.Errorf("%w: gpu_ids must not repeat", ErrInvalidInput)
			}
			seen[id] = struct{}{}
		}
	}
	if cfg.MemoryLimitGB == 0 {
		cfg.MemoryLimitGB = 5
	}
	if cfg.MemoryLimitGB < 1 {
		return nil, fmt.Errorf("%w: memory_limit must be at least 1 GB", ErrInvalidInput)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.nextID++
	jobID := fmt.Sprintf("job%d", e.nextID)

	name := cfg.Name
	if name == "" {
		name = fmt.Sprintf("job-%s", jobID)
	}

	job := &Job{
		JobID:         jobID,
		Name:          name,
		Command:       cfg.Command,
		GPUIDs:        append([]int(nil), cfg.GPUIDs...),
		NumGPUs:       cfg.NumGPUs,
		MemoryLimitGB: cfg.MemoryLimitGB,
		Env:           cfg.Env,
		WorkingDir:    cfg.WorkingDir,
		Priority:      cfg.Priority,
		Status:        StatusQueued,
		SubmitTime:    e.now(),
		ExitCode:      -1,
	}
	e.jobs[jobID] = job
	e.queue.push(jobID, job.Priority, job.SubmitTime)

	e.logger.WithFields(logrus.Fields{"job_id": jobID, "priority": job.Priority}).Info("job submitted")
	return job.clone(), nil
}

// GetJob returns a copy of the job record, or ErrNotFound.
func (e *Engine) GetJob(jobID string) (*Job, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	return job.clone(), nil
}

// ListJobs returns a copy of every job record, keyed by job id.
func (e *Engine) ListJobs() map[string]*Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]*Job, len(e.jobs))
	for id, job := range e.jobs {
		out[id] = job.clone()
	}
	return out
}

// QueueDepth returns the number of jobs currently waiting in the priority
// queue, for the Control Loop to publish as a gauge after each placement pass.
func (e *Engine) QueueDepth() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.queue.len()
}

// ListGPUs returns a copy of every known GPU record, sorted by id.
func (e *Engine) ListGPUs() []*GPU {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*GPU, 0, len(e.gpus))
	for _, g := range e.gpus {
		out = append(out, g.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// CancelQueued marks a queued job cancelled and removes its entry from the
// priority queue at once. Returns ErrNotCancelable if the job is not
// currently queued, ErrNotFound if unknown.
func (e *Engine) CancelQueued(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return ErrNotFound
	}
	if job.Status != StatusQueued {
		return ErrNotCancelable
	}
	job.Status = StatusCancelled
	job.EndTime = e.now()
	e.queue.remove(jobID)
	e.logger.WithField("job_id", jobID).Info("queued job cancelled")
	return nil
}

// RunningSnapshot returns the PID/PGID of every currently running job, for
// the Process Supervisor's reap pass — a read-only copy taken under lock.
type RunningSnapshot struct {
	JobID string
	PID   int
	PGID  int
}

func (e *Engine) RunningSnapshot() []RunningSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	var out []RunningSnapshot
	for _, job := range e.jobs {
		if job.Status == StatusRunning && job.PID > 0 {
			out = append(out, RunningSnapshot{JobID: job.JobID, PID: job.PID, PGID: job.PGID})
		}
	}
	return out
}

// RunningForCancel returns the PID/PGID to signal for cancelling a running
// job, or ErrNotCancelable/ErrNotFound. The caller signals outside the lock
// and then calls MarkCancelledRunning to commit the state transition.
func (e *Engine) RunningForCancel(jobID string) (pid, pgid int, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return 0, 0, ErrNotFound
	}
	if job.Status != StatusRunning {
		return 0, 0, ErrNotCancelable
	}
	return job.PID, job.PGID, nil
}

// MarkCancelledRunning finalizes cancellation of a running job: flips status,
// stamps end_time, releases its GPUs. Called after the supervisor has sent
// (or attempted) the termination signal — signalling errors are logged but
// the cancellation still reports success once state is updated, per spec.md §4.E.
func (e *Engine) MarkCancelledRunning(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok || job.Status != StatusRunning {
		return
	}
	job.Status = StatusCancelled
	job.EndTime = e.now()
	e.releaseGPUsLocked(job)
}

// MarkCompleted finalizes a reaped job: status completed, end_time, exit
// code, GPU release. The open design question on failed-vs-completed is
// resolved per spec.md §9: any exit, zero or non-zero, is "completed";
// only launch errors produce "failed".
func (e *Engine) MarkCompleted(jobID string, exitCode int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok || job.Status != StatusRunning {
		return
	}
	job.Status = StatusCompleted
	job.EndTime = e.now()
	job.ExitCode = exitCode
	e.releaseGPUsLocked(job)
	metrics.RecordJobFinished(string(StatusCompleted), float64(job.EndTime-job.StartTime))
	e.logger.WithFields(logrus.Fields{"job_id": jobID, "exit_code": exitCode}).Info("job completed")
}

func (e *Engine) releaseGPUsLocked(job *Job) {
	for _, id := range job.AssignedGPUs {
		if gpu, ok := e.gpus[id]; ok {
			gpu.IsAvailable = true
			gpu.AssignedJobID = ""
		}
	}
}

// RunPlacement runs one placement pass (spec.md §4.D) over the queue and
// the current free-GPU set, reserving the chosen GPUs (is_available=false,
// assigned_job_id stamped) and returning launch instructions for the
// Process Supervisor to execute. Deferred entries are reinserted before
// returning so a later tick tries them again.
func (e *Engine) RunPlacement() []LaunchInstruction {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.queue.len() == 0 {
		return nil
	}

	free := intSet{}
	for id, gpu := range e.gpus {
		if gpu.IsAvailable && gpu.AssignedJobID == "" {
			free[id] = struct{}{}
		}
	}
	if len(free) == 0 {
		return nil
	}

	drained := e.queue.drainAll()
	launches, deferred := decidePlacement(free, drained, func(id string) *Job {
		return e.jobs[id]
	})
	e.queue.requeue(deferred)

	for _, inst := range launches {
		job := e.jobs[inst.JobID]
		for _, id := range inst.AssignedGPUs {
			if gpu, ok := e.gpus[id]; ok {
				gpu.IsAvailable = false
				gpu.AssignedJobID = job.JobID
			}
		}
	}

	return launches
}

// CommitLaunch transitions a job to running after the supervisor has
// successfully started its process (spec.md §4.E step 1).
func (e *Engine) CommitLaunch(jobID string, assignedGPUs []int, pid, pgid int, outFile, errFile string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return
	}
	job.Status = StatusRunning
	job.StartTime = e.now()
	job.AssignedGPUs = append([]int(nil), assignedGPUs...)
	job.PID = pid
	job.PGID = pgid
	job.OutputFile = outFile
	job.ErrorFile = errFile
}

// FailLaunch transitions a job to failed after the supervisor could not
// start its process, and releases the GPUs RunPlacement had reserved for it
// (spec.md §4.E step 6).
func (e *Engine) FailLaunch(jobID string, assignedGPUs []int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	job, ok := e.jobs[jobID]
	if !ok {
		return
	}
	job.Status = StatusFailed
	job.ExitCode = -1
	job.EndTime = e.now()
	for _, id := range assignedGPUs {
		if gpu, ok := e.gpus[id]; ok {
			gpu.IsAvailable = true
			gpu.AssignedJobID = ""
		}
	}
	// A launch failure never started, so it is recorded with a zero
	// wall-clock duration.
	metrics.RecordJobFinished(string(StatusFailed), 0)
	e.logger.WithField("job_id", jobID).Warn("job launch failed")
}

// ReconcileGPUs merges freshly-parsed probe rows into inventory per spec.md
// §4.A: rows are created on first sight, never removed, and their
// availability is computed from either a running job's assignment or the
// free-memory/utilization thresholds.
func (e *Engine) ReconcileGPUs(rows []GPU, minFreeMemoryMB, maxGPUUtilPct int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	assignedTo := make(map[int]string)
	for _, job := range e.jobs {
		if job.Status != StatusRunning {
			continue
		}
		for _, id := range job.AssignedGPUs {
			assignedTo[id] = job.JobID
		}
	}

	for _, row := range rows {
		gpu, exists := e.gpus[row.ID]
		if !exists {
			gpu = &GPU{ID: row.ID}
			e.gpus[row.ID] = gpu
		}
		gpu.Name = row.Name
		gpu.TotalMemoryMB = row.TotalMemoryMB
		gpu.UsedMemoryMB = row.UsedMemoryMB
		gpu.UtilizationPct = row.UtilizationPct
		gpu.TemperatureC = row.TemperatureC
		gpu.PowerDrawW = row.PowerDrawW
		gpu.PowerLimitW = row.PowerLimitW

		if jobID, ok := assignedTo[row.ID]; ok {
			gpu.IsAvailable = false
			gpu.AssignedJobID = jobID
			continue
		}

		gpu.AssignedJobID = ""
		freeMem := gpu.TotalMemoryMB - gpu.UsedMemoryMB
		gpu.IsAvailable = freeMem >= minFreeMemoryMB && gpu.UtilizationPct <= maxGPUUtilPct
	}
}
