package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Closeable is implemented by handlers holding resources that must be
// released on shutdown.
type Closeable interface {
	Close() error
}

// FileHandler is a slog handler over a size-rotated log file. A rotated
// file gets a timestamp suffix; old rotations are pruned by count and by
// age.
type FileHandler struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxAge     int // days
	maxBackups int
	size       int64
	format     string
	level      slog.Level
	inner      slog.Handler
}

// NewFileHandler opens or creates cfg.FilePath and returns a rotating
// handler over it.
func NewFileHandler(cfg *Config, level slog.Level) (*FileHandler, error) {
	if dir := filepath.Dir(cfg.FilePath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat log file: %w", err)
	}

	// 1KB floor keeps a zero MaxSizeMB usable.
	maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
	if maxSize < 1024 {
		maxSize = 1024
	}

	h := &FileHandler{
		file:       file,
		path:       cfg.FilePath,
		maxSize:    maxSize,
		maxAge:     cfg.MaxAgeDays,
		maxBackups: cfg.MaxBackups,
		size:       info.Size(),
		format:     cfg.Format,
		level:      level,
	}
	h.inner = newFormatHandler(cfg.Format, file, level)
	return h, nil
}

func (h *FileHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle writes the record, rotating first when the file is over size.
func (h *FileHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size >= h.maxSize {
		if err := h.rotate(); err != nil {
			return err
		}
	}

	// The inner handler writes straight to the file; track its growth
	// through the file position.
	pos, _ := h.file.Seek(0, io.SeekCurrent)
	err := h.inner.Handle(ctx, r)
	newPos, _ := h.file.Seek(0, io.SeekCurrent)
	h.size += newPos - pos
	return err
}

func (h *FileHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clone(h.inner.WithAttrs(attrs))
}

func (h *FileHandler) WithGroup(name string) slog.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clone(h.inner.WithGroup(name))
}

func (h *FileHandler) clone(inner slog.Handler) *FileHandler {
	return &FileHandler{
		file:       h.file,
		path:       h.path,
		maxSize:    h.maxSize,
		maxAge:     h.maxAge,
		maxBackups: h.maxBackups,
		size:       h.size,
		format:     h.format,
		level:      h.level,
		inner:      inner,
	}
}

// rotate renames the current file with a timestamp suffix, prunes old
// rotations, and starts a fresh file.
func (h *FileHandler) rotate() error {
	h.file.Close()

	backup := h.path + "." + time.Now().Format("2006-01-02T15-04-05")
	if err := os.Rename(h.path, backup); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename log file: %w", err)
	}
	h.pruneBackups()

	file, err := os.OpenFile(h.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("create new log file: %w", err)
	}
	h.file = file
	h.size = 0
	h.inner = newFormatHandler(h.format, file, h.level)
	return nil
}

// pruneBackups removes rotated files beyond maxBackups or older than
// maxAge days, keeping the newest ones.
func (h *FileHandler) pruneBackups() {
	matches, err := filepath.Glob(h.path + ".*")
	if err != nil {
		return
	}

	sort.Slice(matches, func(i, j int) bool {
		fi, _ := os.Stat(matches[i])
		fj, _ := os.Stat(matches[j])
		if fi == nil || fj == nil {
			return false
		}
		return fi.ModTime().After(fj.ModTime())
	})

	cutoff := time.Now().AddDate(0, 0, -h.maxAge)
	for i, path := range matches {
		if i >= h.maxBackups {
			os.Remove(path)
			continue
		}
		if info, err := os.Stat(path); err == nil && info.ModTime().Before(cutoff) {
			os.Remove(path)
		}
	}
}

// checkRotate rotates now when the file is over size. Used by tests.
func (h *FileHandler) checkRotate() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.size >= h.maxSize {
		h.rotate()
	}
}

// Close releases the log file.
func (h *FileHandler) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.file != nil {
		return h.file.Close()
	}
	return nil
}
