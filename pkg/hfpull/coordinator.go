// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// FileFetcher downloads one file. *Fetcher implements it.
type FileFetcher interface {
	Fetch(ctx context.Context, src, dst string) (skipped bool, err error)
}

// Coordinator runs a bounded pool of fetches over a manifest.
type Coordinator struct {
	// Root is the destination directory; entry names are relative to it.
	Root string

	// Threads bounds the number of concurrent fetches. Values <= 0 mean
	// DefaultThreads.
	Threads int

	// Exists reports whether a destination path is already present.
	Exists func(path string) bool

	// Fetcher does the actual transfers.
	Fetcher FileFetcher

	// Confirm is asked once before any fetch starts; nil approves.
	Confirm func(Pending) bool

	Progress ProgressFunc
	Logger   *slog.Logger
}

// Partition splits m into the names already present under Root and the
// entries still to fetch, keeping manifest order in both.
func (c *Coordinator) Partition(m Manifest) (existing []string, pending Manifest) {
	for _, e := range m {
		if c.Exists != nil && c.Exists(Destination(c.Root, e)) {
			existing = append(existing, e.Name)
			continue
		}
		pending = append(pending, e)
	}
	return existing, pending
}

// Run partitions m, asks for confirmation and fetches the pending entries.
//
// Every submitted fetch runs to completion; a failure only lowers the
// success count. The returned error is non-nil only when ctx was cancelled.
func (c *Coordinator) Run(ctx context.Context, m Manifest) (Summary, error) {
	emit := emitter(c.Progress)
	log := c.Logger
	if log == nil {
		log = slog.Default()
	}

	existing, pending := c.Partition(m)
	sum := Summary{Found: len(m), Existing: existing}
	for _, name := range existing {
		emit(ProgressEvent{Event: "file_done", Path: name, Message: "skip (already exists)"})
	}
	if len(pending) == 0 {
		log.Info("nothing to download", "existing", len(existing))
		return sum, nil
	}

	if c.Confirm != nil && !c.Confirm(Pending{Root: c.Root, Existing: existing, Entries: pending}) {
		sum.Declined = true
		log.Info("download declined", "pending", len(pending))
		return sum, nil
	}

	for _, e := range pending {
		emit(ProgressEvent{Event: "plan_item", Path: e.Name, Message: e.Size})
	}

	threads := c.Threads
	if threads <= 0 {
		threads = DefaultThreads
	}

	results := make([]error, len(pending))
	var g errgroup.Group
	g.SetLimit(threads)
	for i, e := range pending {
		g.Go(func() error {
			dst := Destination(c.Root, e)
			if _, err := c.Fetcher.Fetch(ctx, e.URL, dst); err != nil {
				results[i] = err
			}
			// Failures stay local to the task.
			return nil
		})
	}
	_ = g.Wait()

	sum.Attempted = len(pending)
	for i, err := range results {
		if err != nil {
			log.Error("download failed", "file", pending[i].Name, "err", err)
			sum.Failures = append(sum.Failures, err)
			continue
		}
		sum.Succeeded++
	}

	emit(ProgressEvent{Event: "done", Message: sum.Line()})
	return sum, ctx.Err()
}
