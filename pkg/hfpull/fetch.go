// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"context"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Fetcher streams single files to disk.
type Fetcher struct {
	httpc *http.Client
	fs    afero.Fs
	cfg   Settings
	emit  func(ProgressEvent)
}

// NewFetcher returns a Fetcher writing to fs (the OS filesystem when nil).
// progress may be nil.
func NewFetcher(cfg Settings, fs afero.Fs, progress ProgressFunc) *Fetcher {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Fetcher{
		httpc: buildHTTPClient(),
		fs:    fs,
		cfg:   cfg.withDefaults(),
		emit:  emitter(progress),
	}
}

// Fetch downloads src to dst.
//
// If dst already exists Fetch returns (true, nil) without touching the
// network; any existing file counts as complete. Otherwise the body is
// streamed in cfg.ChunkSize pieces into dst+".part", which is renamed to dst
// once the whole body is written and removed if anything fails.
func (f *Fetcher) Fetch(ctx context.Context, src, dst string) (skipped bool, err error) {
	name := filepath.Base(dst)
	if ok, _ := afero.Exists(f.fs, dst); ok {
		f.emit(ProgressEvent{Event: "file_done", Path: name, Message: "skip (already exists)"})
		return true, nil
	}
	if err := f.download(ctx, src, dst, name); err != nil {
		fe := &FetchError{Name: name, Err: err}
		f.emit(ProgressEvent{Level: "error", Event: "error", Path: name, Message: fe.Error()})
		return false, fe
	}
	f.emit(ProgressEvent{Event: "file_done", Path: name})
	return false, nil
}

func (f *Fetcher) download(ctx context.Context, src, dst, name string) error {
	if f.cfg.Mirror {
		src = MirrorURL(src)
	}
	req, err := newRequest(ctx, src, f.cfg)
	if err != nil {
		return err
	}
	resp, err := f.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp, src); err != nil {
		return err
	}

	if err := f.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	total := resp.ContentLength // -1 when unknown
	f.emit(ProgressEvent{Event: "file_start", Path: name, Total: total})

	tmp := dst + ".part"
	out, err := f.fs.Create(tmp)
	if err != nil {
		return err
	}
	pr := newProgressReader(resp.Body, total, name, f.emit)
	if err := copyChunks(out, pr, f.cfg.ChunkSize); err != nil {
		out.Close()
		_ = f.fs.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = f.fs.Remove(tmp)
		return err
	}
	if err := f.fs.Rename(tmp, dst); err != nil {
		_ = f.fs.Remove(tmp)
		return err
	}
	return nil
}

// copyChunks reads src in fixed-size chunks and writes each one to dst.
func copyChunks(dst io.Writer, src io.Reader, chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// progressReader wraps an io.Reader and emits progress events during reads.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	path       string
	emit       func(ProgressEvent)
	lastEmit   time.Time
	interval   time.Duration
}

func newProgressReader(r io.Reader, total int64, path string, emit func(ProgressEvent)) *progressReader {
	return &progressReader{
		reader:   r,
		total:    total,
		path:     path,
		emit:     emit,
		lastEmit: time.Now(),
		interval: 200 * time.Millisecond,
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	pr.downloaded += int64(n)
	if (n > 0 && time.Since(pr.lastEmit) >= pr.interval) || err == io.EOF {
		pr.emit(ProgressEvent{
			Event:      "file_progress",
			Path:       pr.path,
			Downloaded: pr.downloaded,
			Total:      pr.total,
		})
		pr.lastEmit = time.Now()
	}
	return n, err
}

// emitter stamps events and forwards them to progress, if any.
func emitter(progress ProgressFunc) func(ProgressEvent) {
	return func(ev ProgressEvent) {
		if progress == nil {
			return
		}
		if ev.Time.IsZero() {
			ev.Time = time.Now().UTC()
		}
		progress(ev)
	}
}
