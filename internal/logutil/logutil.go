// Package logutil builds the slog loggers used by tpload.
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// LevelTrace is below slog.LevelDebug and logs every checkpoint entry.
const LevelTrace slog.Level = -8

// NewLogger returns a text logger that prints TRACE for LevelTrace and only
// the base name of source files.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if level, ok := attr.Value.Any().(slog.Level); ok && level == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

// Trace logs msg at LevelTrace on logger, attributing it to the caller.
func Trace(logger *slog.Logger, msg string, args ...any) {
	trace(context.Background(), logger, 1, msg, args...)
}

func trace(ctx context.Context, logger *slog.Logger, skip int, msg string, args ...any) {
	if logger == nil {
		logger = slog.Default()
	}
	if !logger.Enabled(ctx, LevelTrace) {
		return
	}

	pc, _, _, _ := runtime.Caller(1 + skip)
	record := slog.NewRecord(time.Now(), LevelTrace, msg, pc)
	record.Add(args...)
	_ = logger.Handler().Handle(ctx, record)
}
