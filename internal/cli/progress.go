// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"

	"github.com/hfpull/hfpull/internal/tui"
	"github.com/hfpull/hfpull/pkg/hfpull"
)

// progressView receives pipeline events. Start is called once the user has
// confirmed the download; Close must be safe to call more than once.
type progressView interface {
	Handle(ev hfpull.ProgressEvent)
	Start()
	Close()
}

func newProgressView(mode string, quiet bool, out io.Writer, label string, cfg hfpull.Settings) (progressView, error) {
	switch strings.ToLower(mode) {
	case "", "auto":
		if quiet {
			return &plainView{out: out, quiet: true}, nil
		}
		if out == os.Stdout && tui.IsTerminal() {
			return &tableView{opts: tableOptions(label, cfg)}, nil
		}
		return newPlainView(out, false), nil
	case "table":
		opts := tableOptions(label, cfg)
		if out != os.Stdout {
			opts.Out = out
		}
		return &tableView{opts: opts}, nil
	case "bars":
		return &barsView{out: out, bars: map[string]*pb.ProgressBar{}}, nil
	case "plain":
		return newPlainView(out, quiet), nil
	case "json":
		return newJSONView(out), nil
	}
	return nil, fmt.Errorf("invalid --progress %q (want auto, table, bars, plain or json)", mode)
}

func tableOptions(label string, cfg hfpull.Settings) tui.Options {
	threads := cfg.Threads
	if threads <= 0 {
		threads = hfpull.DefaultThreads
	}
	return tui.Options{Source: label, OutputDir: cfg.OutputDir, Threads: threads, Mirror: cfg.Mirror}
}

// plainView prints one line per state change.
type plainView struct {
	out   io.Writer
	quiet bool
	mu    sync.Mutex

	ok, skip, fail, info *color.Color
}

func newPlainView(out io.Writer, quiet bool) *plainView {
	v := &plainView{
		out:   out,
		quiet: quiet,
		ok:    color.New(color.FgGreen),
		skip:  color.New(color.FgBlue),
		fail:  color.New(color.FgRed),
		info:  color.New(color.FgCyan),
	}
	if out != os.Stdout {
		for _, c := range []*color.Color{v.ok, v.skip, v.fail, v.info} {
			c.DisableColor()
		}
	}
	return v
}

func (v *plainView) Handle(ev hfpull.ProgressEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.quiet {
		if ev.Event == "error" {
			fmt.Fprintf(v.out, "error: %s\n", ev.Message)
		}
		return
	}
	switch ev.Event {
	case "scan_start":
		v.info.Fprintf(v.out, "scanning %s ...\n", ev.Source)
	case "manifest_saved":
		v.info.Fprintf(v.out, "found %d file(s), manifest saved to %s\n", ev.Total, ev.Path)
	case "manifest_loaded":
		v.info.Fprintf(v.out, "loaded %d file(s) from %s\n", ev.Total, ev.Path)
	case "file_start":
		if ev.Total < 0 {
			fmt.Fprintf(v.out, "downloading: %s (unknown size)\n", ev.Path)
		} else {
			fmt.Fprintf(v.out, "downloading: %s (%s)\n", ev.Path, tui.HumanBytes(ev.Total))
		}
	case "file_done":
		if strings.HasPrefix(ev.Message, "skip") {
			v.skip.Fprintf(v.out, "skip: %s %s\n", ev.Path, ev.Message)
		} else {
			v.ok.Fprintf(v.out, "done: %s\n", ev.Path)
		}
	case "error":
		v.fail.Fprintf(v.out, "%s: %s\n", ev.Level, ev.Message)
	}
}

func (v *plainView) Start() {}
func (v *plainView) Close() {}

// jsonView writes every event as one JSON line.
type jsonView struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newJSONView(w io.Writer) *jsonView {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &jsonView{enc: enc}
}

func (v *jsonView) Handle(ev hfpull.ProgressEvent) {
	v.mu.Lock()
	_ = v.enc.Encode(ev)
	v.mu.Unlock()
}

func (v *jsonView) Start() {}
func (v *jsonView) Close() {}

// tableView starts the live table after confirmation; earlier events are
// covered by the prompt.
type tableView struct {
	opts tui.Options

	mu sync.Mutex
	lr *tui.LiveRenderer
	fn hfpull.ProgressFunc
}

func (v *tableView) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.lr == nil {
		v.lr = tui.NewLiveRenderer(v.opts)
		v.fn = v.lr.Handler()
	}
}

func (v *tableView) Handle(ev hfpull.ProgressEvent) {
	v.mu.Lock()
	fn := v.fn
	v.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (v *tableView) Close() {
	v.mu.Lock()
	lr := v.lr
	v.fn = nil
	v.mu.Unlock()
	if lr != nil {
		lr.Close()
	}
}

// barsView draws one pb bar per file in a shared pool.
type barsView struct {
	out io.Writer

	mu     sync.Mutex
	pool   *pb.Pool
	bars   map[string]*pb.ProgressBar
	closed bool
}

func (v *barsView) Start() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pool != nil || v.closed {
		return
	}
	v.pool = pb.NewPool()
	v.pool.Output = v.out
	if err := v.pool.Start(); err != nil {
		v.pool = nil
	}
}

func (v *barsView) Handle(ev hfpull.ProgressEvent) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.pool == nil || v.closed {
		return
	}

	switch ev.Event {
	case "file_start":
		bar := v.bar(ev.Path)
		if ev.Total > 0 {
			bar.SetTotal(ev.Total)
		}
	case "file_progress":
		v.bar(ev.Path).SetCurrent(ev.Downloaded)
	case "file_done":
		if strings.HasPrefix(ev.Message, "skip") {
			return
		}
		bar := v.bar(ev.Path)
		if bar.Total() <= 0 {
			bar.SetTotal(bar.Current())
		}
		bar.SetCurrent(bar.Total())
		bar.Finish()
	case "error":
		if b, ok := v.bars[ev.Path]; ok {
			b.Set("prefix", "FAILED "+ev.Path+" ")
			b.Finish()
		}
	}
}

func (v *barsView) bar(name string) *pb.ProgressBar {
	if b, ok := v.bars[name]; ok {
		return b
	}
	b := pb.New64(0)
	b.Set(pb.Bytes, true)
	b.Set("prefix", name+" ")
	v.bars[name] = b
	v.pool.Add(b)
	return b
}

func (v *barsView) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return
	}
	v.closed = true
	if v.pool != nil {
		_ = v.pool.Stop()
	}
}
