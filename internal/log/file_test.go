// internal/log/file_test.go
package log

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileHandler(t *testing.T, cfg *Config) (*FileHandler, string) {
	t.Helper()
	cfg.FilePath = filepath.Join(t.TempDir(), "chatlite.log")
	h, err := NewFileHandler(cfg, slog.LevelInfo)
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h, cfg.FilePath
}

func TestFileHandler_Write(t *testing.T) {
	h, path := newTestFileHandler(t, &Config{
		Format:     "text",
		MaxSizeMB:  1,
		MaxAgeDays: 7,
		MaxBackups: 3,
	})

	slog.New(h).Info("session opened", "session_id", "abc123")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session opened")
	assert.Contains(t, string(data), "session_id=abc123")
}

func TestFileHandler_Rotation(t *testing.T) {
	// A zero MaxSizeMB falls back to the 1KB floor so a handful of lines
	// crosses the rotation threshold.
	h, path := newTestFileHandler(t, &Config{
		Format:     "text",
		MaxSizeMB:  0,
		MaxAgeDays: 7,
		MaxBackups: 2,
	})

	logger := slog.New(h)
	for i := 0; i < 100; i++ {
		logger.Info("padding line long enough to fill the rotation window", "i", i)
	}
	h.checkRotate()

	files, err := filepath.Glob(path + "*")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(files), 2, "rotation should leave the live file plus a backup")
}
