package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alantheprice/sitebuilder/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWritesConsoleAndFile(t *testing.T) {
	cfg := *config.DefaultLogConfig()
	cfg.File = filepath.Join(t.TempDir(), "logs", "sitebuilder.log")

	var console bytes.Buffer
	logger, err := New(cfg, &console)
	require.NoError(t, err)

	logger.Info("preview written", zap.Int("bytes", 42))
	logger.Debug("hidden at info level")
	require.NoError(t, logger.Close())

	assert.Contains(t, console.String(), "preview written")
	assert.Contains(t, console.String(), "INFO")
	assert.NotContains(t, console.String(), "hidden at info level")

	data, err := os.ReadFile(cfg.File)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "preview written", entry["msg"])
	assert.Equal(t, float64(42), entry["bytes"])
	assert.Equal(t, "info", entry["level"])
}

func TestNewJSONConsoleWithoutFile(t *testing.T) {
	cfg := config.LogConfig{Level: "debug", Format: "json"}

	var console bytes.Buffer
	logger, err := New(cfg, &console)
	require.NoError(t, err)
	logger.Debug("agent run started", zap.String("model", "m"))
	require.NoError(t, logger.Close())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(console.Bytes()), &entry))
	assert.Equal(t, "m", entry["model"])
	assert.Equal(t, "debug", entry["level"])
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(config.LogConfig{Level: "chatty"}, &bytes.Buffer{})
	assert.Error(t, err)
}
