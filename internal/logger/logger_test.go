package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", "unknown"} {
		assert.NotNil(t, New(level), level)
	}
}

func TestNewJSON(t *testing.T) {
	logger := NewJSON("info")
	assert.NotNil(t, logger)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, parseLevel("INFO"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "json", "info")

	logger.Info("model switch", "from", "claude-sonnet", "to", "gpt-4o")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "model switch", entry["msg"])
	assert.Equal(t, "gpt-4o", entry["to"])
}

func TestNewLogger_TextFormatFiltersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "text", "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestTruncateErrorMessage_Short(t *testing.T) {
	assert.Equal(t, "rate limited", TruncateErrorMessage("rate limited", 100))
	assert.Equal(t, "anything", TruncateErrorMessage("anything", 0))
}

func TestTruncateErrorMessage_PlainText(t *testing.T) {
	msg := strings.Repeat("x", 200)

	result := TruncateErrorMessage(msg, 50)

	assert.True(t, strings.HasPrefix(result, strings.Repeat("x", 50)))
	assert.Contains(t, result, "[truncated 150 chars]")
}

func TestTruncateErrorMessage_JSONBody(t *testing.T) {
	body := `{"error":{"type":"overloaded_error","message":"` + strings.Repeat("m", 200) + `"}}`

	result := TruncateErrorMessage(body, 50)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(result), &data))
	inner := data["error"].(map[string]interface{})
	assert.Equal(t, "overloaded_error", inner["type"])
	assert.Contains(t, inner["message"].(string), "truncated")
}

func TestTruncateErrorMessage_JSONArrayFallsBackToText(t *testing.T) {
	body := `["` + strings.Repeat("a", 100) + `"]`

	result := TruncateErrorMessage(body, 20)

	assert.Contains(t, result, "[truncated")
	assert.True(t, len(result) < len(body))
}

func TestTruncateValue_NestedSlices(t *testing.T) {
	data := map[string]interface{}{
		"details": []interface{}{
			strings.Repeat("d", 30),
			map[string]interface{}{"reason": strings.Repeat("r", 30)},
		},
	}

	truncateValue(data, 10)

	details := data["details"].([]interface{})
	assert.Contains(t, details[0].(string), "truncated")
	assert.Contains(t, details[1].(map[string]interface{})["reason"].(string), "truncated")
}
