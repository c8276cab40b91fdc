package logging

import (
	"log/slog"
	"strings"
)

// Writer is an io.Writer that forwards job output to the structured logger,
// one log record per line.
type Writer struct {
	logger *slog.Logger
	attrs  []any
}

// NewWriter constructs a Writer bound to the given logger. The attrs are
// attached to every emitted record, e.g. the job name.
func NewWriter(logger *slog.Logger, attrs ...any) *Writer {
	return &Writer{logger: logger, attrs: attrs}
}

// Write logs each non-empty line of p at info level.
func (w *Writer) Write(p []byte) (int, error) {
	if w.logger == nil {
		return len(p), nil
	}
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		args := append([]any{"line", line}, w.attrs...)
		w.logger.Info("job output", args...)
	}
	return len(p), nil
}
