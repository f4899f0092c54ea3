package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// New creates a text logger writing to stdout.
// level can be: "debug", "info", "warn", "error"; anything else means "info".
func New(level string) *slog.Logger {
	return newLogger(os.Stdout, "text", level)
}

// NewJSON creates a logger with JSON output
func NewJSON(level string) *slog.Logger {
	return newLogger(os.Stdout, "json", level)
}

// NewWithFormat picks the handler from the server.log_format setting
func NewWithFormat(format, level string) *slog.Logger {
	return newLogger(os.Stdout, format, level)
}

func newLogger(w io.Writer, format, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// parseLevel converts string level to slog.Level
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// TruncateErrorMessage shortens a provider error message for logs and the
// attempt log. JSON bodies keep their shape with long string fields cut;
// plain text is cut at maxLength.
func TruncateErrorMessage(msg string, maxLength int) string {
	if maxLength <= 0 || len(msg) <= maxLength {
		return msg
	}

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(msg), &data); err == nil {
		truncateValue(data, maxLength)
		if truncated, err := json.Marshal(data); err == nil && len(truncated) < len(msg) {
			return string(truncated)
		}
	}

	return fmt.Sprintf("%s... [truncated %d chars]", msg[:maxLength], len(msg)-maxLength)
}

// truncateValue recursively truncates long string values in a map or slice
func truncateValue(v interface{}, maxLength int) {
	switch val := v.(type) {
	case map[string]interface{}:
		for key, value := range val {
			if str, ok := value.(string); ok && len(str) > maxLength {
				val[key] = str[:maxLength] + "... [truncated]"
				continue
			}
			truncateValue(value, maxLength)
		}
	case []interface{}:
		for i, item := range val {
			if str, ok := item.(string); ok && len(str) > maxLength {
				val[i] = str[:maxLength] + "... [truncated]"
				continue
			}
			truncateValue(item, maxLength)
		}
	}
}
