package reverb

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(buf *bytes.Buffer, level LogLevel) *Logger {
	return NewLogger(&LogConfig{Level: level, Output: buf})
}

func lastEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	return entry
}

func TestParseLogLevel(t *testing.T) {
	for in, want := range map[string]LogLevel{
		"trace": TraceLevel, "DEBUG": DebugLevel, "Info": InfoLevel,
		"WARNING": WarnLevel, "error": ErrorLevel, "OFF": Disabled,
	} {
		got, ok := ParseLogLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ParseLogLevel("LOUD")
	assert.False(t, ok)
}

func TestLoggerLevelsAndFields(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, InfoLevel).WithComponent("gateway")

	logger.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.WithField("guild_id", 7).Infof("hello %s", "node")
	entry := lastEntry(t, &buf)
	assert.Equal(t, "hello node", entry["message"])
	assert.Equal(t, "gateway", entry["component"])
	assert.Equal(t, float64(7), entry["guild_id"])
}

func TestLogNotification(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, DebugLevel)

	logger.LogNotification(TrackEnd{GuildID: 42, Reason: TrackEndFinished})
	entry := lastEntry(t, &buf)
	assert.Equal(t, "event", entry["op"])
	assert.Equal(t, "TrackEndEvent", entry["track_event"])
	assert.Equal(t, float64(42), entry["guild_id"])
}

func TestLogError(t *testing.T) {
	var buf bytes.Buffer
	logger := jsonLogger(&buf, InfoLevel)

	logger.LogError(NewHandshakeError("dial gateway", assert.AnError).AddDetail("url", "ws://x"))
	entry := lastEntry(t, &buf)
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, ErrCodeHandshakeFailed, entry["error_code"])
	assert.Equal(t, "ws://x", entry["url"])
	assert.Equal(t, assert.AnError.Error(), entry["cause"])
}

func TestLogConnectionEvent(t *testing.T) {
	var buf bytes.Buffer
	jsonLogger(&buf, InfoLevel).LogConnectionEvent("connected", Connected, map[string]interface{}{"remote": "1.2.3.4"})
	entry := lastEntry(t, &buf)
	assert.Equal(t, "connection", entry["event_type"])
	assert.Equal(t, "connected", entry["state"])
	assert.Equal(t, "1.2.3.4", entry["remote"])
}
