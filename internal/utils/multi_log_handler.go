package utils

import (
	"context"
	"errors"
	"log/slog"
)

// MultiLogHandler fans each slog record out to every wrapped handler, so
// the daemon can log to both a colorized terminal and a plain log file.
type MultiLogHandler struct {
	handlers []slog.Handler
}

var _ slog.Handler = (*MultiLogHandler)(nil)

func NewMultiLogHandler(handlers ...slog.Handler) *MultiLogHandler {
	return &MultiLogHandler{handlers: handlers}
}

// Enabled reports true when any wrapped handler would accept the level.
func (h *MultiLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hh := range h.handlers {
		if hh.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *MultiLogHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, hh := range h.handlers {
		if !hh.Enabled(ctx, r.Level) {
			continue
		}
		if err := hh.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *MultiLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.apply(func(hh slog.Handler) slog.Handler { return hh.WithAttrs(attrs) })
}

func (h *MultiLogHandler) WithGroup(name string) slog.Handler {
	return h.apply(func(hh slog.Handler) slog.Handler { return hh.WithGroup(name) })
}

func (h *MultiLogHandler) apply(f func(slog.Handler) slog.Handler) slog.Handler {
	next := make([]slog.Handler, len(h.handlers))
	for i, hh := range h.handlers {
		next[i] = f(hh)
	}
	return NewMultiLogHandler(next...)
}
