// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventLog struct {
	mu     sync.Mutex
	events []ProgressEvent
}

func (l *eventLog) record(ev ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, ev := range l.events {
		out = append(out, ev.Event)
	}
	return out
}

func (l *eventLog) find(kind string) (ProgressEvent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, ev := range l.events {
		if ev.Event == kind {
			return ev, true
		}
	}
	return ProgressEvent{}, false
}

func fileServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	payload := strings.Repeat("0123456789", 2000)
	mux := http.NewServeMux()
	mux.HandleFunc("/ok.bin", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(payload))
	})
	mux.HandleFunc("/boom.bin", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	mux.HandleFunc("/short.bin", func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Length", "1000")
		w.Write([]byte("only a few bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestFetcher_Download(t *testing.T) {
	var hits atomic.Int32
	srv := fileServer(t, &hits)
	fs := afero.NewMemMapFs()
	var log eventLog
	f := NewFetcher(Settings{}, fs, log.record)

	dst := filepath.Join("models", "sub", "ok.bin")
	skipped, err := f.Fetch(context.Background(), srv.URL+"/ok.bin", dst)
	require.NoError(t, err)
	assert.False(t, skipped)

	data, err := afero.ReadFile(fs, dst)
	require.NoError(t, err)
	assert.Len(t, data, 20000)

	exists, _ := afero.Exists(fs, dst+".part")
	assert.False(t, exists)

	start, ok := log.find("file_start")
	require.True(t, ok)
	assert.Equal(t, "ok.bin", start.Path)
	assert.Equal(t, int64(20000), start.Total)
	assert.False(t, start.Time.IsZero())

	prog, ok := log.find("file_progress")
	require.True(t, ok, "the last read always reports progress")
	assert.Equal(t, int64(20000), prog.Downloaded)

	kinds := log.kinds()
	assert.Equal(t, "file_done", kinds[len(kinds)-1])
}

func TestFetcher_SkipsExisting(t *testing.T) {
	var hits atomic.Int32
	srv := fileServer(t, &hits)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "models/ok.bin", []byte("partial from an old run"), 0o644))

	var log eventLog
	f := NewFetcher(Settings{}, fs, log.record)
	skipped, err := f.Fetch(context.Background(), srv.URL+"/ok.bin", "models/ok.bin")
	require.NoError(t, err)
	assert.True(t, skipped)
	assert.Zero(t, hits.Load(), "no request for an existing file")

	data, _ := afero.ReadFile(fs, "models/ok.bin")
	assert.Equal(t, "partial from an old run", string(data))

	done, ok := log.find("file_done")
	require.True(t, ok)
	assert.Equal(t, "skip (already exists)", done.Message)
}

func TestFetcher_Failures(t *testing.T) {
	var hits atomic.Int32
	srv := fileServer(t, &hits)

	tests := []struct {
		name  string
		path  string
		check func(t *testing.T, err error)
	}{
		{
			name: "server error",
			path: "/boom.bin",
			check: func(t *testing.T, err error) {
				var se *StatusError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
			},
		},
		{
			name: "truncated body",
			path: "/short.bin",
			check: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
		{
			name: "not found",
			path: "/nope.bin",
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, ErrNotFound))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			var log eventLog
			f := NewFetcher(Settings{}, fs, log.record)

			dst := "models" + tt.path
			skipped, err := f.Fetch(context.Background(), srv.URL+tt.path, dst)
			require.Error(t, err)
			assert.False(t, skipped)
			tt.check(t, err)

			var fe *FetchError
			require.ErrorAs(t, err, &fe)
			assert.Equal(t, filepath.Base(dst), fe.Name)

			for _, p := range []string{dst, dst + ".part"} {
				exists, _ := afero.Exists(fs, p)
				assert.False(t, exists, "%s must not be left behind", p)
			}

			ev, ok := log.find("error")
			require.True(t, ok)
			assert.Equal(t, "error", ev.Level)
		})
	}
}

func TestFetcher_Cancelled(t *testing.T) {
	var hits atomic.Int32
	srv := fileServer(t, &hits)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	fs := afero.NewMemMapFs()
	_, err := NewFetcher(Settings{}, fs, nil).Fetch(ctx, srv.URL+"/ok.bin", "ok.bin")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))

	exists, _ := afero.Exists(fs, "ok.bin")
	assert.False(t, exists)
}

type recordingWriter struct {
	sizes []int
	buf   bytes.Buffer
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.sizes = append(w.sizes, len(p))
	return w.buf.Write(p)
}

func TestCopyChunks(t *testing.T) {
	src := bytes.Repeat([]byte("x"), 20000)
	var w recordingWriter
	require.NoError(t, copyChunks(&w, bytes.NewReader(src), 8192))
	assert.Equal(t, []int{8192, 8192, 3616}, w.sizes)
	assert.Equal(t, src, w.buf.Bytes())
}
