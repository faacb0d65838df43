// Package logging provides the process-wide structured logger used by every
// other package in the module. It wraps log/slog behind a small package-level
// singleton, the same shape as a zap.S()-style global sugared logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	mu    sync.RWMutex
	level = new(slog.LevelVar) // LevelInfo until SetLevel is called
	log   = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

// SetOutput redirects the default logger to w, preserving its current level.
// Tests use this to capture log output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	log = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// SetLevel adjusts the minimum level the default logger emits.
func SetLevel(l slog.Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(l)
}

func logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func Debug(msg string, args ...any) { logger().Debug(msg, args...) }
func Info(msg string, args ...any)  { logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { logger().Warn(msg, args...) }
func Error(msg string, args ...any) { logger().Error(msg, args...) }
