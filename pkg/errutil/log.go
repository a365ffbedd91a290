// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package errutil bridges oops errors to structured logging and tests.
package errutil

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/oops"
)

// Code returns the innermost oops code carried by err, or "" if none.
func Code(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	switch code := oopsErr.Code().(type) {
	case nil:
		return ""
	case string:
		return code
	default:
		return fmt.Sprint(code)
	}
}

// Attrs flattens err into slog key/value pairs. Oops errors contribute
// their code and context; other errors only their message.
func Attrs(err error) []any {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return []any{"error", err.Error()}
	}
	attrs := []any{"error", oopsErr.Error()}
	if code := Code(err); code != "" {
		attrs = append(attrs, "code", code)
	}
	if ctx := oopsErr.Context(); len(ctx) > 0 {
		attrs = append(attrs, "context", ctx)
	}
	return attrs
}

// LogError logs err at error level with its structured context.
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error, extra ...any) {
	Log(ctx, logger, slog.LevelError, msg, err, extra...)
}

// Log logs err at the given level with its structured context.
func Log(ctx context.Context, logger *slog.Logger, level slog.Level, msg string, err error, extra ...any) {
	if err == nil {
		logger.Log(ctx, level, msg, extra...)
		return
	}
	logger.Log(ctx, level, msg, append(Attrs(err), extra...)...)
}
