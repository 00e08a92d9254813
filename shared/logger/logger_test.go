package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		config    Config
		checkFunc func(t *testing.T, logger *Logger, output *bytes.Buffer)
	}{
		{
			name:   "json with debug level",
			config: Config{Level: "debug", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Debug("Polling job", slog.String("job_id", "job-1"))

				var entry map[string]any
				require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
				assert.Equal(t, "DEBUG", entry["level"])
				assert.Equal(t, "Polling job", entry["msg"])
				assert.Equal(t, "job-1", entry["job_id"])
			},
		},
		{
			name:   "warn level drops info",
			config: Config{Level: "warn", Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("Job submitted")
				logger.Warn("Transient poll failure", slog.Int("failures", 3))

				lines := strings.Split(strings.TrimSpace(output.String()), "\n")
				require.Len(t, lines, 1)

				var entry map[string]any
				require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
				assert.Equal(t, "WARN", entry["level"])
				assert.Equal(t, float64(3), entry["failures"])
			},
		},
		{
			name:   "console format",
			config: Config{Level: "info", Format: "console", NoColor: true},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("Job finished", slog.String("outcome", "completed"))

				// tint abbreviates levels
				assert.Contains(t, output.String(), "INF")
				assert.Contains(t, output.String(), "Job finished")
				assert.Contains(t, output.String(), "outcome=completed")
			},
		},
		{
			name:   "source location",
			config: Config{Format: "json", EnableSource: true},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.Info("with source")

				var entry map[string]any
				require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
				source, ok := entry["source"].(map[string]any)
				require.True(t, ok)
				assert.Contains(t, source, "file")
				assert.Contains(t, source, "line")
			},
		},
		{
			name:   "with attributes",
			config: Config{Format: "json"},
			checkFunc: func(t *testing.T, logger *Logger, output *bytes.Buffer) {
				logger.With(slog.String("session_id", "s1")).Info("Chat turn settled")

				var entry map[string]any
				require.NoError(t, json.Unmarshal(output.Bytes(), &entry))
				assert.Equal(t, "s1", entry["session_id"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			cfg := tt.config
			cfg.writer = output

			logger, err := New(&cfg)
			require.NoError(t, err)
			require.NotNil(t, logger)
			tt.checkFunc(t, logger, output)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docintel.log")

	logger, err := New(&Config{Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("Written to file")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Written to file")
}

func TestNew_FileOutputError(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open log file")
}

func TestNewDefault(t *testing.T) {
	logger := NewDefault()
	require.NotNil(t, logger)
	assert.NoError(t, logger.Close())
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "DEBUG", expected: slog.LevelDebug},
		{level: "info", expected: slog.LevelInfo},
		{level: "warning", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "", expected: slog.LevelInfo},
		{level: "verbose", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}
