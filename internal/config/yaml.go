package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML config file shape, grounded on the
// teacher's worker.JobSpec YAML-loading idiom (yaml-tagged struct,
// unmarshalled with gopkg.in/yaml.v3). Values loaded here seed the package
// config vars; CLI flags and env vars still take precedence over them.
type FileConfig struct {
	Port                int    `yaml:"port"`
	PollIntervalSeconds int    `yaml:"poll_interval"`
	MinFreeMemoryMB     int    `yaml:"min_free_memory"`
	MaxGPUUtilPct       int    `yaml:"max_gpu_util"`
	OutputRoot          string `yaml:"output_root"`
	GPUQueryPath        string `yaml:"gpu_query_path"`
	LogLevel            string `yaml:"log_level"`
	LaunchConcurrency   int    `yaml:"launch_concurrency"`
}

// LoadFile reads and parses a YAML config file.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &fc, nil
}

// ApplyFileDefaults overlays non-zero fields from fc onto the package
// config vars, skipping any field whose flag the caller already set
// explicitly via command line or env var (isSet reports that per flag
// name, e.g. cli.Context.IsSet) so that "flag > env > YAML > built-in
// default" holds: a YAML value only ever fills in a var still holding its
// built-in default. Zero-value fields in fc are always left alone, so an
// explicit zero in YAML cannot be distinguished from "unset" — acceptable
// since every field here has a sensible non-zero default.
func ApplyFileDefaults(fc *FileConfig, isSet func(name string) bool) {
	if fc.Port != 0 && !isSet("port") {
		Port = fc.Port
	}
	if fc.PollIntervalSeconds != 0 && !isSet("poll-interval") {
		PollIntervalSeconds = fc.PollIntervalSeconds
	}
	if fc.MinFreeMemoryMB != 0 && !isSet("min-free-memory") {
		MinFreeMemoryMB = fc.MinFreeMemoryMB
	}
	if fc.MaxGPUUtilPct != 0 && !isSet("max-gpu-util") {
		MaxGPUUtilPct = fc.MaxGPUUtilPct
	}
	if fc.OutputRoot != "" && !isSet("output-root") {
		OutputRoot = fc.OutputRoot
	}
	if fc.GPUQueryPath != "" && !isSet("gpu-query-path") {
		GPUQueryPath = fc.GPUQueryPath
	}
	if fc.LogLevel != "" && !isSet("log-level") {
		LogLevel = fc.LogLevel
	}
	// LaunchConcurrency has no CLI flag, so its env var is checked directly.
	if fc.LaunchConcurrency != 0 && !isSet("launch-concurrency") && os.Getenv("GPU_SCHEDULER_LAUNCH_CONCURRENCY") == "" {
		LaunchConcurrency = fc.LaunchConcurrency
	}
}
