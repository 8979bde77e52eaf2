// Package config holds the daemon's package-level configuration variables,
// grounded on the teacher's internal/config/config.go: env-backed defaults
// via catalystcommunity/app-utils-go/env, overridable by CLI flags bound
// with cli.Flag.Destination in cmd/serve.go.
package config

import (
	"github.com/catalystcommunity/app-utils-go/env"
)

var (
	// Port is the HTTP control API's listen port (spec.md §6).
	Port = env.GetEnvAsIntOrDefault("GPU_SCHEDULER_PORT", "8000")

	// PollIntervalSeconds is the Control Loop's tick cadence.
	PollIntervalSeconds = env.GetEnvAsIntOrDefault("GPU_SCHEDULER_POLL_INTERVAL", "30")

	// MinFreeMemoryMB is the free-memory floor below which a GPU is
	// considered unavailable by the Poller's reconciliation step.
	MinFreeMemoryMB = env.GetEnvAsIntOrDefault("GPU_SCHEDULER_MIN_FREE_MEMORY", "1000")

	// MaxGPUUtilPct is the utilization ceiling above which a GPU is
	// considered unavailable.
	MaxGPUUtilPct = env.GetEnvAsIntOrDefault("GPU_SCHEDULER_MAX_GPU_UTIL", "10")

	// OutputRoot is the directory under which per-job stdout.txt/stderr.txt
	// live. Empty resolves to "<home>/gpu-scheduler/output" at startup.
	OutputRoot = env.GetEnvOrDefault("GPU_SCHEDULER_OUTPUT_ROOT", "")

	// GPUQueryPath is the executable invoked each tick to snapshot GPU
	// state (spec.md's external gpu-query contract).
	GPUQueryPath = env.GetEnvOrDefault("GPU_SCHEDULER_GPU_QUERY_PATH", "gpu-query")

	// LogLevel controls the logrus logger's verbosity ("debug", "info",
	// "warn", "error").
	LogLevel = env.GetEnvOrDefault("GPU_SCHEDULER_LOG_LEVEL", "info")

	// ConfigFile optionally points at a YAML file whose values are applied
	// after flag parsing, only to settings no flag or env var set explicitly.
	ConfigFile = env.GetEnvOrDefault("GPU_SCHEDULER_CONFIG_FILE", "")

	// LaunchConcurrency bounds how many jobs a single placement pass may
	// launch concurrently on the dispatcher's worker pool.
	LaunchConcurrency = env.GetEnvAsIntOrDefault("GPU_SCHEDULER_LAUNCH_CONCURRENCY", "4")
)
