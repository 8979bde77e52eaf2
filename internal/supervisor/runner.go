// Package supervisor launches, tracks, reaps, and group-terminates job
// child processes. The JobRunner interface shape is grounded on the
// teacher's worker.JobRunner (internal/worker/interfaces.go) — the same
// spawn/wait/cleanup contract, generalized here from a container runtime to
// a bare OS process, in its own process group.
package supervisor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/sirupsen/logrus"
)

// JobRunner spawns a single job's process and manages its lifetime.
// ProcessRunner is the only implementation; the interface exists so tests
// can substitute a fake without forking real processes, the way the teacher
// substitutes DockerRunner/KubernetesRunner/ContainerdRunner behind JobRunner.
type JobRunner interface {
	// Spawn starts the child in its own process group, redirecting stdout
	// and stderr to the given files. Returns the child's pid (== pgid).
	Spawn(ctx context.Context, cfg LaunchConfig) (pid int, err error)

	// Alive reports whether pid is still running (signal 0 probe).
	Alive(pid int) bool

	// Reap performs a non-blocking wait for pid, returning the exit code
	// (-1 if unavailable or not a normal exit) once the child has exited.
	// ok is false if the child has not exited yet.
	Reap(pid int) (exitCode int, ok bool)

	// SignalGroup sends SIGTERM to the process group rooted at pgid.
	SignalGroup(pgid int) error
}

// LaunchConfig is everything ProcessRunner needs to start one job, mirroring
// the teacher's worker.JobConfig shape (image/command/env/workdir/limits)
// adapted from a container image+command to a shell command string.
type LaunchConfig struct {
	JobID         string
	Command       string
	Env           map[string]string
	WorkingDir    string
	MemoryLimitGB int
	GPUIDs        []int
	StdoutPath    string
	StderrPath    string
}

// ProcessRunner implements JobRunner using os/exec and raw process-group
// syscalls, grounded on gpu-scheduler.py's _launch_job: prefer systemd-run
// --user --scope for a memory cgroup, fall back to a ulimit-wrapped shell.
type ProcessRunner struct {
	logger        *logrus.Logger
	systemdRunBin string // resolved path to systemd-run, empty if absent
}

func NewProcessRunner(logger *logrus.Logger) *ProcessRunner {
	bin, _ := exec.LookPath("systemd-run")
	return &ProcessRunner{logger: logger, systemdRunBin: bin}
}

func (r *ProcessRunner) Spawn(ctx context.Context, cfg LaunchConfig) (int, error) {
	stdout, err := os.OpenFile(cfg.StdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open stdout file: %w", err)
	}
	defer stdout.Close()

	stderr, err := os.OpenFile(cfg.StderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open stderr file: %w", err)
	}
	defer stderr.Close()

	name, args := r.buildCommand(cfg)
	cmd := exec.Command(name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = cfg.WorkingDir
	cmd.Env = buildEnv(cfg)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start process: %w", err)
	}

	// The child is not waited on here; it is reaped later by Reap, once
	// per Control Loop tick, matching the original daemon's design where
	// the monitor thread (not the launcher) owns exit-status collection.
	go releaseProcess(cmd)

	return cmd.Process.Pid, nil
}

// releaseProcess lets the OS accumulate the child's zombie state until
// Reap performs its own wait, while still letting the cmd object itself be
// garbage collected once Start's internal goroutines settle.
func releaseProcess(cmd *exec.Cmd) {
	_ = cmd.Process.Release()
}

func (r *ProcessRunner) buildCommand(cfg LaunchConfig) (string, []string) {
	if r.systemdRunBin != "" {
		memProp := fmt.Sprintf("--property=MemoryLimit=%dG", cfg.MemoryLimitGB)
		return r.systemdRunBin, []string{"--user", "--scope", memProp, "bash", "-c", cfg.Command}
	}
	memoryLimitKB := cfg.MemoryLimitGB * 1024 * 1024
	wrapped := fmt.Sprintf("ulimit -v %d && %s", memoryLimitKB, cfg.Command)
	return "bash", []string{"-c", wrapped}
}

func buildEnv(cfg LaunchConfig) []string {
	env := os.Environ()
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	env = append(env, "CUDA_VISIBLE_DEVICES="+joinInts(cfg.GPUIDs))
	return env
}

func joinInts(ids []int) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += strconv.Itoa(id)
	}
	return out
}

// Alive is a coarse liveness probe; it cannot distinguish a running process
// from a not-yet-reaped zombie, so the reap loop uses Reap's own WNOHANG
// result as the authoritative completion signal rather than calling Alive
// first, unlike the original daemon's kill(pid, 0) check.
func (r *ProcessRunner) Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return process.Signal(syscall.Signal(0)) == nil
}

func (r *ProcessRunner) Reap(pid int) (int, bool) {
	if pid <= 0 {
		return -1, false
	}
	var status syscall.WaitStatus
	wpid, err := syscall.Wait4(pid, &status, syscall.WNOHANG, nil)
	if err != nil || wpid != pid {
		return -1, false
	}
	if status.Exited() {
		return status.ExitStatus(), true
	}
	return -1, true
}

func (r *ProcessRunner) SignalGroup(pgid int) error {
	if pgid <= 0 {
		return fmt.Errorf("invalid pgid %d", pgid)
	}
	return syscall.Kill(-pgid, syscall.SIGTERM)
}

