// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"

	"github.com/spf13/afero"
)

// Pull runs the whole pipeline: discover (or load) the manifest, skip what is
// already on disk, ask hooks.Confirm, then fetch the rest with cfg.Threads
// workers.
//
// Listing failures are logged and reported as ErrNoEntries. Manifest load
// and save failures are returned as *ManifestError. Per-file failures do not
// produce an error; they show up in Summary.Failures.
func Pull(ctx context.Context, src Source, cfg Settings, hooks Hooks) (Summary, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := src.Validate(); err != nil {
		return Summary{}, err
	}
	cfg = cfg.withDefaults()
	log := hooks.Logger
	if log == nil {
		log = slog.Default()
	}
	emit := emitter(hooks.Progress)
	fs := afero.NewOsFs()

	m, manifestPath, err := resolve(ctx, src, cfg, fs, emit, log)
	if err != nil {
		return Summary{ManifestPath: manifestPath}, err
	}

	c := &Coordinator{
		Root:     cfg.OutputDir,
		Threads:  cfg.Threads,
		Exists:   func(p string) bool { ok, _ := afero.Exists(fs, p); return ok },
		Fetcher:  NewFetcher(cfg, fs, hooks.Progress),
		Confirm:  hooks.Confirm,
		Progress: hooks.Progress,
		Logger:   log,
	}
	sum, err := c.Run(ctx, m)
	sum.ManifestPath = manifestPath
	return sum, err
}

// Plan discovers (or loads) the manifest without fetching anything. A
// discovered manifest is saved exactly as Pull would save it.
func Plan(ctx context.Context, src Source, cfg Settings, hooks Hooks) (Manifest, string, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := src.Validate(); err != nil {
		return nil, "", err
	}
	cfg = cfg.withDefaults()
	log := hooks.Logger
	if log == nil {
		log = slog.Default()
	}
	return resolve(ctx, src, cfg, afero.NewOsFs(), emitter(hooks.Progress), log)
}

func resolve(ctx context.Context, src Source, cfg Settings, fs afero.Fs, emit func(ProgressEvent), log *slog.Logger) (Manifest, string, error) {
	if src.Manifest != "" {
		var (
			m   Manifest
			err error
		)
		if IsBucketURL(src.Manifest) {
			m, err = OpenManifest(ctx, src.Manifest)
		} else {
			m, err = NewManifestStore(fs).Load(src.Manifest)
		}
		if err != nil {
			log.Error("cannot read manifest", "path", src.Manifest, "err", err)
			return nil, src.Manifest, err
		}
		log.Debug("manifest loaded", "path", src.Manifest, "entries", len(m))
		emit(ProgressEvent{Event: "manifest_loaded", Path: src.Manifest, Total: int64(len(m))})
		return m, src.Manifest, nil
	}

	emit(ProgressEvent{Event: "scan_start", Source: src.URL})
	m, err := Discover(ctx, src.URL, cfg)
	if err != nil {
		log.Warn("cannot read listing page", "url", src.URL, "err", err)
		emit(ProgressEvent{Level: "warn", Event: "error", Source: src.URL, Message: err.Error()})
		m = nil
	}
	if len(m) == 0 {
		return nil, "", ErrNoEntries
	}

	p := ManifestPath(cfg.OutputDir, src.URL)
	if err := NewManifestStore(fs).Save(p, m); err != nil {
		return nil, p, err
	}
	log.Debug("manifest saved", "path", p, "entries", len(m))
	emit(ProgressEvent{Event: "manifest_saved", Source: src.URL, Path: p, Total: int64(len(m))})
	return m, p, nil
}

// IsNothingFound reports whether err means discovery found no entries.
func IsNothingFound(err error) bool {
	return errors.Is(err, ErrNoEntries)
}

// Destination is where entry e lands under root.
func Destination(root string, e FileEntry) string {
	return filepath.Join(root, e.Name)
}
