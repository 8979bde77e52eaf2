package scheduler

import "sort"

// Status is a job's position in the lifecycle DAG:
// queued -> running -> {completed, failed, cancelled}, queued -> cancelled.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// GPU is the in-memory record for one local accelerator, augmented with
// assignment state. Created on first poll, mutated by the Poller and by
// assignment/release transitions, never destroyed while the daemon runs.
type GPU struct {
	ID             int     `json:"id"`
	Name           string  `json:"name"`
	TotalMemoryMB  int     `json:"total_memory_mb"`
	UsedMemoryMB   int     `json:"used_memory_mb"`
	UtilizationPct int     `json:"utilization_pct"`
	TemperatureC   int     `json:"temperature_c"`
	PowerDrawW     float64 `json:"power_draw_w"`
	PowerLimitW    float64 `json:"power_limit_w"`
	IsAvailable    bool    `json:"is_available"`
	AssignedJobID  string  `json:"assigned_job_id,omitempty"`
}

// JobConfig is the submission shape: the fields a client may set. It carries
// no scheduler-managed fields (status, timestamps, assignment) — those live
// only on Job.
type JobConfig struct {
	Name          string            `json:"name,omitempty"`
	Command       string            `json:"command"`
	GPUIDs        []int             `json:"gpu_ids,omitempty"`
	NumGPUs       int               `json:"num_gpus,omitempty"`
	MemoryLimitGB int               `json:"memory_limit,omitempty"`
	Env           map[string]string `json:"env,omitempty"`
	WorkingDir    string            `json:"working_dir,omitempty"`
	Priority      int               `json:"priority,omitempty"`
}

// Job is the full lifecycle record for one submission. It repeats
// JobConfig's fields and extends them with status/timestamps/assignment.
type Job struct {
	JobID         string            `json:"job_id"`
	Name          string            `json:"name"`
	Command       string            `json:"command"`
	GPUIDs        []int             `json:"gpu_ids,omitempty"`
	NumGPUs       int               `json:"num_gpus"`
	MemoryLimitGB int               `json:"memory_limit"`
	Env           map[string]string `json:"env,omitempty"`
	WorkingDir    string            `json:"working_dir,omitempty"`
	Priority      int               `json:"priority"`

	Status       Status `json:"status"`
	AssignedGPUs []int  `json:"assigned_gpus,omitempty"`

	SubmitTime int64 `json:"submit_time"`
	StartTime  int64 `json:"start_time,omitempty"`
	EndTime    int64 `json:"end_time,omitempty"`

	ExitCode int `json:"exit_code"`
	PID      int `json:"pid,omitempty"`
	PGID     int `json:"-"`

	OutputFile string `json:"output_file,omitempty"`
	ErrorFile  string `json:"error_file,omitempty"`
}

// clone returns a deep-enough copy safe to hand out of the lock: slices and
// maps are copied so callers cannot mutate Engine-owned state through them.
func (j *Job) clone() *Job {
	cp := *j
	if j.GPUIDs != nil {
		cp.GPUIDs = append([]int(nil), j.GPUIDs...)
	}
	if j.AssignedGPUs != nil {
		cp.AssignedGPUs = append([]int(nil), j.AssignedGPUs...)
	}
	if j.Env != nil {
		cp.Env = make(map[string]string, len(j.Env))
		for k, v := range j.Env {
			cp.Env[k] = v
		}
	}
	return &cp
}

func (g *GPU) clone() *GPU {
	cp := *g
	return &cp
}

// sortedIntsEqual reports whether two int slices contain the same elements,
// order-insensitive, per invariant 5 ("assigned_gpus == gpu_ids" order-insensitive).
func sortedIntsEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]int(nil), a...)
	sb := append([]int(nil), b...)
	sort.Ints(sa)
	sort.Ints(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}
