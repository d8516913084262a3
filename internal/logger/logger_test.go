package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"courserag/internal/config"
)

func TestNew_WritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	log, err := New(config.LogConfig{Level: "info", File: path})
	require.NoError(t, err)

	log.Info("ingested course")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ingested course")
}

func TestNew_RejectsBadLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestQuiet_NopWithoutFile(t *testing.T) {
	log, err := Quiet(config.LogConfig{Level: "info"})
	require.NoError(t, err)
	assert.NotNil(t, log)
	log.Info("dropped")
}
