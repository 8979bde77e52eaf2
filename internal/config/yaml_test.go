package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFileParsesYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "port: 9000\npoll_interval: 5\nlog_level: debug\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	fc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, fc.Port)
	assert.Equal(t, 5, fc.PollIntervalSeconds)
	assert.Equal(t, "debug", fc.LogLevel)
}

func TestLoadFileMissingReturnsError(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestApplyFileDefaultsOnlyOverridesNonZero(t *testing.T) {
	originalPort := Port
	originalUtil := MaxGPUUtilPct
	defer func() { Port = originalPort; MaxGPUUtilPct = originalUtil }()

	noneSet := func(name string) bool { return false }
	ApplyFileDefaults(&FileConfig{Port: 9999}, noneSet)
	assert.Equal(t, 9999, Port)
	assert.Equal(t, originalUtil, MaxGPUUtilPct)
}

func TestApplyFileDefaultsSkipsExplicitlySetFlags(t *testing.T) {
	originalPort := Port
	defer func() { Port = originalPort }()
	Port = 7000 // simulates a flag/env value already bound by the CLI parser

	portIsSet := func(name string) bool { return name == "port" }
	ApplyFileDefaults(&FileConfig{Port: 9999}, portIsSet)
	assert.Equal(t, 7000, Port, "an explicitly-set flag must not be overwritten by the YAML default")
}
