package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"time"

	"github.com/lmittmann/tint"
)

// Setup configures the default slog logger for the CLI.
// Setting the DEBUG environment variable enables debug-level output.
func Setup() {
	level := slog.LevelInfo
	if len(os.Getenv("DEBUG")) > 0 {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	})))
}

func Log(ctx context.Context, lvl slog.Level, msg string, attrs ...slog.Attr) {
	logger := slog.Default()
	if !logger.Enabled(ctx, lvl) {
		return
	}
	// Caller information (PC, Func, etc)
	var pcs [1]uintptr
	runtime.Callers(2, pcs[:])
	fs := runtime.CallersFrames(pcs[:])
	f, _ := fs.Next()

	record := slog.NewRecord(time.Now(), lvl, msg, f.PC)

	// Add any attributes passed to the Log function to the record
	record.AddAttrs(attrs...)
	_ = logger.Handler().Handle(ctx, record)
}

// Err - log error with a message
func Err(err error) slog.Attr {
	return slog.Any("error", err)
}

// Fatal - log error and exit with code 1
func Fatal(ctx context.Context, msg string) {
	Log(ctx, slog.LevelError, msg)
	os.Exit(1)
}
