package logging

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "info", Format: "json", Output: &buf})
	log.Debug("hidden")
	log.Info("run started")
	require.NoError(t, log.Sync())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "run started", entry["msg"])
	assert.Equal(t, "stackprobe", entry["logger"])
}

func TestVerboseForcesDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Verbose: true, Output: &buf})
	log.Debug("detail")
	assert.Contains(t, buf.String(), "detail")
	assert.NotContains(t, buf.String(), "\x1b[")
}

func TestQuiet(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Quiet: true, Output: &buf})
	log.Info("chatty")
	log.Warn("important")
	assert.NotContains(t, buf.String(), "chatty")
	assert.Contains(t, buf.String(), "important")
}

func TestExtraSinkIsJSON(t *testing.T) {
	var console, file bytes.Buffer
	log := New(Options{Level: "info", Output: &console, Extra: []io.Writer{&file}})
	log.Info("probe bound")

	assert.Contains(t, console.String(), "probe bound")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(file.Bytes()), &entry))
	assert.Equal(t, "probe bound", entry["msg"])
}
