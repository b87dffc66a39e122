package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/redclawsec/redclaw/internal/config"
)

// memSink is an in-memory WriteSyncer for asserting on console output.
type memSink struct {
	strings.Builder
}

func (s *memSink) Sync() error { return nil }

func TestInitializeConsoleLogger(t *testing.T) {
	ResetForTest()
	sink := &memSink{}

	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "redclaw-test",
	}, zapcore.AddSync(sink))

	GetLogger().Info("console message")

	out := sink.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "console message")
	assert.Contains(t, out, colorGreen, "info level is colorized")
	assert.Contains(t, out, "redclaw-test.")
}

func TestInitializeJSONFileLogger(t *testing.T) {
	ResetForTest()
	dir := t.TempDir()
	logFile := filepath.Join(dir, "redclaw.log")
	sink := &memSink{}

	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "redclaw-test",
		LogFile:     logFile,
		MaxSize:     1,
	}, zapcore.AddSync(sink))

	GetLogger().Info("file message")
	Sync()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.Split(strings.TrimSpace(string(data)), "\n")[0]), &entry))
	assert.Equal(t, "file message", entry["msg"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	first := &memSink{}
	second := &memSink{}

	Initialize(config.LoggerConfig{Level: "info", Format: "console"}, zapcore.AddSync(first))
	Initialize(config.LoggerConfig{Level: "info", Format: "console"}, zapcore.AddSync(second))

	GetLogger().Info("routed to first sink")
	assert.Contains(t, first.String(), "routed to first sink")
	assert.Empty(t, second.String())
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	sink := &memSink{}

	Initialize(config.LoggerConfig{Level: "chatty", Format: "console"}, zapcore.AddSync(sink))
	GetLogger().Debug("hidden")
	GetLogger().Info("visible")

	out := sink.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible")
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	assert.NotNil(t, GetLogger())
}
