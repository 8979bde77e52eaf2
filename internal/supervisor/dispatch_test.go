package supervisor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajoudaki/scheduler/internal/output"
	"github.com/ajoudaki/scheduler/internal/scheduler"
)

// fakeRunner implements JobRunner without touching any real process, so
// dispatcher tests exercise the Engine state machine and not os/exec.
type fakeRunner struct {
	mu          sync.Mutex
	nextPID     int
	spawnErr    error
	reapResults map[int]int // pid -> exit code, present once reapable
	signalled   []int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{reapResults: make(map[int]int)}
}

func (f *fakeRunner) Spawn(ctx context.Context, cfg LaunchConfig) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnErr != nil {
		return 0, f.spawnErr
	}
	f.nextPID++
	return f.nextPID, nil
}

func (f *fakeRunner) Alive(pid int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, reaped := f.reapResults[pid]
	return !reaped
}

func (f *fakeRunner) Reap(pid int) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	code, ok := f.reapResults[pid]
	return code, ok
}

func (f *fakeRunner) SignalGroup(pgid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signalled = append(f.signalled, pgid)
	return nil
}

func (f *fakeRunner) setReapable(pid, exitCode int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reapResults[pid] = exitCode
}

func newTestDispatcher(t *testing.T, runner JobRunner) (*Dispatcher, *scheduler.Engine) {
	t.Helper()
	engine := scheduler.New(nil, silentLogger())
	store, err := output.NewStore(t.TempDir())
	require.NoError(t, err)
	return NewDispatcher(engine, runner, store, silentLogger(), 2), engine
}

func TestDispatcherLaunchCommitsRunningState(t *testing.T) {
	runner := newFakeRunner()
	d, engine := newTestDispatcher(t, runner)

	job, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo hi", NumGPUs: 1})
	require.NoError(t, err)

	d.Launch(context.Background(), []scheduler.LaunchInstruction{
		{JobID: job.JobID, AssignedGPUs: []int{0}},
	}, map[string]*scheduler.Job{job.JobID: job})

	got, err := engine.GetJob(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusRunning, got.Status)
	assert.Greater(t, got.PID, 0)
}

func TestDispatcherLaunchFailsJobOnSpawnError(t *testing.T) {
	runner := newFakeRunner()
	runner.spawnErr = fmt.Errorf("boom")
	d, engine := newTestDispatcher(t, runner)

	job, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo hi", NumGPUs: 1})
	require.NoError(t, err)

	d.Launch(context.Background(), []scheduler.LaunchInstruction{
		{JobID: job.JobID, AssignedGPUs: []int{0}},
	}, map[string]*scheduler.Job{job.JobID: job})

	got, err := engine.GetJob(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusFailed, got.Status)
}

func TestDispatcherReapMarksCompleted(t *testing.T) {
	runner := newFakeRunner()
	d, engine := newTestDispatcher(t, runner)

	job, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo hi", NumGPUs: 1})
	require.NoError(t, err)
	d.Launch(context.Background(), []scheduler.LaunchInstruction{
		{JobID: job.JobID, AssignedGPUs: []int{0}},
	}, map[string]*scheduler.Job{job.JobID: job})

	running, err := engine.GetJob(job.JobID)
	require.NoError(t, err)
	runner.setReapable(running.PID, 7)

	d.Reap()

	got, err := engine.GetJob(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusCompleted, got.Status)
	assert.Equal(t, 7, got.ExitCode)
}

func TestDispatcherCancelRunningSignalsAndCommits(t *testing.T) {
	runner := newFakeRunner()
	d, engine := newTestDispatcher(t, runner)

	job, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo hi", NumGPUs: 1})
	require.NoError(t, err)
	d.Launch(context.Background(), []scheduler.LaunchInstruction{
		{JobID: job.JobID, AssignedGPUs: []int{0}},
	}, map[string]*scheduler.Job{job.JobID: job})

	err = d.CancelRunning(job.JobID)
	require.NoError(t, err)

	got, err := engine.GetJob(job.JobID)
	require.NoError(t, err)
	assert.Equal(t, scheduler.StatusCancelled, got.Status)
	assert.Len(t, runner.signalled, 1)
}

func TestDispatcherShutdownSignalAllSignalsEveryRunningJob(t *testing.T) {
	runner := newFakeRunner()
	d, engine := newTestDispatcher(t, runner)

	jobA, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo a", NumGPUs: 1})
	require.NoError(t, err)
	jobB, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo b", NumGPUs: 1})
	require.NoError(t, err)

	d.Launch(context.Background(), []scheduler.LaunchInstruction{
		{JobID: jobA.JobID, AssignedGPUs: []int{0}},
		{JobID: jobB.JobID, AssignedGPUs: []int{1}},
	}, map[string]*scheduler.Job{jobA.JobID: jobA, jobB.JobID: jobB})

	d.ShutdownSignalAll()
	assert.Len(t, runner.signalled, 2)
}

func TestDispatcherLaunchHandlesMultipleInstructionsConcurrently(t *testing.T) {
	runner := newFakeRunner()
	d, engine := newTestDispatcher(t, runner)

	var jobs []*scheduler.Job
	instructions := make([]scheduler.LaunchInstruction, 0, 5)
	byID := make(map[string]*scheduler.Job)
	for i := 0; i < 5; i++ {
		job, err := engine.SubmitJob(scheduler.JobConfig{Command: "echo hi", NumGPUs: 1})
		require.NoError(t, err)
		jobs = append(jobs, job)
		instructions = append(instructions, scheduler.LaunchInstruction{JobID: job.JobID, AssignedGPUs: []int{i}})
		byID[job.JobID] = job
	}

	done := make(chan struct{})
	go func() {
		d.Launch(context.Background(), instructions, byID)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Launch did not return in time")
	}

	for _, job := range jobs {
		got, err := engine.GetJob(job.JobID)
		require.NoError(t, err)
		assert.Equal(t, scheduler.StatusRunning, got.Status)
	}
}
