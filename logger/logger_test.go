package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"factorlab/config"
)

func TestBuildWritesConsoleAndFile(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "efa.log")

	log, err := build(config.LogConfig{Level: "debug", File: path, MaxSizeMB: 1}, &console)
	require.NoError(t, err)

	log.Debug("stage finished", zap.String("stage", "standardize"))
	require.NoError(t, log.Sync())

	assert.Contains(t, console.String(), "stage finished")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stage":"standardize"`)
}

func TestBuildRejectsUnknownLevel(t *testing.T) {
	_, err := build(config.LogConfig{Level: "loud"}, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestLevelFilters(t *testing.T) {
	var console bytes.Buffer
	log, err := build(config.LogConfig{Level: "warn"}, &console)
	require.NoError(t, err)

	log.Info("hidden")
	log.Warn("shown")
	assert.NotContains(t, console.String(), "hidden")
	assert.Contains(t, console.String(), "shown")
}

func TestNamedToleratesNil(t *testing.T) {
	assert.NotNil(t, Named(nil, "pipeline"))
}
