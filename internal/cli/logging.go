// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// newLogger builds the run logger from --log-level, --quiet, --verbose and
// --log-file. The returned func closes the log file, if any.
func newLogger(ro *RootOpts, stderr io.Writer) (*slog.Logger, func(), error) {
	level, err := parseLevel(ro.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	switch {
	case ro.Verbose:
		level = slog.LevelDebug
	case ro.Quiet:
		level = slog.LevelError
	}

	w := stderr
	closeFn := func() {}
	if ro.LogFile != "" {
		f, err := os.OpenFile(ro.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(stderr, f)
		closeFn = func() { f.Close() }
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(h), closeFn, nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("invalid log level %q (want debug, info, warn or error)", s)
}
