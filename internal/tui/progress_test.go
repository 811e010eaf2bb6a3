// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

func TestLiveRenderer_FinalTable(t *testing.T) {
	var buf bytes.Buffer
	lr := NewLiveRenderer(Options{
		Source:    "https://huggingface.co/org/repo/tree/main",
		OutputDir: "./models",
		Threads:   3,
		Out:       &buf,
	})
	h := lr.Handler()
	h(hfpull.ProgressEvent{Event: "file_done", Path: "old.bin", Message: "skip (already exists)"})
	h(hfpull.ProgressEvent{Event: "plan_item", Path: "a.bin", Message: "4 kB"})
	h(hfpull.ProgressEvent{Event: "plan_item", Path: "b.bin", Message: "1 kB"})
	h(hfpull.ProgressEvent{Event: "plan_item", Path: "c.bin", Message: "?"})
	h(hfpull.ProgressEvent{Event: "file_start", Path: "a.bin", Total: 4096})
	h(hfpull.ProgressEvent{Event: "file_progress", Path: "a.bin", Total: 4096, Downloaded: 4096})
	h(hfpull.ProgressEvent{Event: "file_done", Path: "a.bin"})
	h(hfpull.ProgressEvent{Event: "file_start", Path: "b.bin", Total: 1024})
	h(hfpull.ProgressEvent{Level: "error", Event: "error", Path: "b.bin", Message: "b.bin: connection reset"})
	h(hfpull.ProgressEvent{Event: "file_start", Path: "c.bin", Total: -1})
	h(hfpull.ProgressEvent{Event: "file_progress", Path: "c.bin", Total: -1, Downloaded: 10})
	lr.Close()

	out := buf.String()
	assert.NotContains(t, out, "\x1b[", "no escape codes without a terminal")
	assert.Contains(t, out, "Source: https://huggingface.co/org/repo/tree/main")
	assert.Contains(t, out, "Out: ./models   Threads: 3   Mirror: false")
	assert.Contains(t, out, "0 queued  1 active  1 done  1 skipped  1 failed")
	assert.Contains(t, out, "already on disk")
	assert.Contains(t, out, "connection reset")
	assert.Contains(t, out, "10 B / ?")
	assert.Contains(t, out, "/?", "overall total is unknown while one file has no length")

	// Only the final table is drawn.
	assert.Equal(t, 1, strings.Count(out, "Source:"))
}

func TestLiveRenderer_CloseTwice(t *testing.T) {
	var buf bytes.Buffer
	lr := NewLiveRenderer(Options{Out: &buf})
	lr.Close()
	lr.Close()

	// Events after Close are dropped rather than blocking.
	done := make(chan struct{})
	go func() {
		lr.Handler()(hfpull.ProgressEvent{Event: "file_done", Path: "x"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler blocked after Close")
	}
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "512 B", humanBytes(512))
	assert.Equal(t, "1.0 KiB", humanBytes(1024))
	assert.Equal(t, "1.5 MiB", humanBytes(1536*1024))
	assert.Equal(t, "2.0 GiB", HumanBytes(2<<30))
}

func TestFmtDuration(t *testing.T) {
	assert.Equal(t, "00:05", fmtDuration(5*time.Second))
	assert.Equal(t, "02:03", fmtDuration(123*time.Second))
	assert.Equal(t, "01:00:01", fmtDuration(time.Hour+time.Second))
	assert.Equal(t, "00:00", fmtDuration(-time.Second))
}
