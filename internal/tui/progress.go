// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package tui

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

// Options describes the run shown in the table header.
type Options struct {
	Source    string // listing URL or manifest path
	OutputDir string
	Threads   int
	Mirror    bool

	// Out defaults to os.Stdout. Interactive is detected for os.Stdout and
	// false for any other writer unless ForceInteractive is set.
	Out              io.Writer
	ForceInteractive bool
}

// LiveRenderer redraws a table of file rows with per-file and overall
// progress. Without an interactive terminal it prints only the final table.
type LiveRenderer struct {
	opts Options
	out  io.Writer

	mu          sync.Mutex
	events      chan hfpull.ProgressEvent
	done        chan struct{}
	exited      chan struct{}
	stopped     bool
	interactive bool
	palette     palette

	files map[string]*fileRow
	order int

	lastAgg  int64
	lastTick time.Time
	speed    float64
}

type fileRow struct {
	name   string
	size   string // listing size label from the manifest
	total  int64  // -1 when the server sent no Content-Length
	bytes  int64
	status string // queued, downloading, done, skip, error
	err    string
	seq    int

	lastBytes int64
	lastTime  time.Time
	speed     float64
}

const speedSmoothing = 0.3

func ema(cur, prev float64) float64 {
	if prev == 0 {
		return cur
	}
	return speedSmoothing*cur + (1-speedSmoothing)*prev
}

// NewLiveRenderer starts a renderer. Call Close when the run ends.
func NewLiveRenderer(opts Options) *LiveRenderer {
	out := opts.Out
	interactive := opts.ForceInteractive
	if out == nil {
		out = os.Stdout
		interactive = interactive || (term.IsTerminal(int(os.Stdout.Fd())) && ansiOkay())
	}
	lr := &LiveRenderer{
		opts:        opts,
		out:         out,
		events:      make(chan hfpull.ProgressEvent, 2048),
		done:        make(chan struct{}),
		exited:      make(chan struct{}),
		interactive: interactive,
		files:       map[string]*fileRow{},
	}
	lr.palette = newPalette(interactive && os.Getenv("NO_COLOR") == "")
	if lr.interactive {
		fmt.Fprint(lr.out, "\x1b[?25l")
	}
	go lr.loop()
	return lr
}

// Handler returns a ProgressFunc feeding the renderer. Progress updates are
// dropped when the queue is full; state changes never are.
func (lr *LiveRenderer) Handler() hfpull.ProgressFunc {
	return func(ev hfpull.ProgressEvent) {
		if ev.Event == "file_progress" {
			select {
			case lr.events <- ev:
			default:
			}
			return
		}
		select {
		case lr.events <- ev:
		case <-lr.done:
		}
	}
}

// Close drains pending events, draws the final table and restores the cursor.
func (lr *LiveRenderer) Close() {
	lr.mu.Lock()
	if lr.stopped {
		lr.mu.Unlock()
		return
	}
	lr.stopped = true
	close(lr.done)
	lr.mu.Unlock()

	<-lr.exited
	if lr.interactive {
		fmt.Fprint(lr.out, "\x1b[?25h")
	}
	fmt.Fprintln(lr.out)
}

func (lr *LiveRenderer) loop() {
	defer close(lr.exited)
	ticker := time.NewTicker(150 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-lr.done:
			for {
				select {
				case ev := <-lr.events:
					lr.apply(ev)
				default:
					lr.render()
					return
				}
			}
		case ev := <-lr.events:
			lr.apply(ev)
		case <-ticker.C:
			if lr.interactive {
				lr.render()
			}
		}
	}
}

func (lr *LiveRenderer) apply(ev hfpull.ProgressEvent) {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	switch ev.Event {
	case "plan_item":
		r := lr.row(ev.Path)
		r.size = ev.Message
		r.status = "queued"
	case "file_start":
		r := lr.row(ev.Path)
		r.total = ev.Total
		r.status = "downloading"
	case "file_progress":
		r := lr.row(ev.Path)
		if ev.Total != 0 {
			r.total = ev.Total
		}
		r.bytes = ev.Downloaded
		if r.status == "" || r.status == "queued" {
			r.status = "downloading"
		}
	case "file_done":
		r := lr.row(ev.Path)
		if strings.HasPrefix(ev.Message, "skip") {
			r.status = "skip"
			return
		}
		r.status = "done"
		if r.total < 0 {
			r.total = r.bytes
		} else {
			r.bytes = r.total
		}
	case "error":
		if ev.Path == "" {
			return
		}
		r := lr.row(ev.Path)
		r.status = "error"
		r.err = ev.Message
	}
}

func (lr *LiveRenderer) row(name string) *fileRow {
	if r, ok := lr.files[name]; ok {
		return r
	}
	lr.order++
	r := &fileRow{name: name, seq: lr.order}
	lr.files[name] = r
	return r
}

func (lr *LiveRenderer) render() {
	lr.mu.Lock()
	defer lr.mu.Unlock()

	w, h := 100, 30
	if lr.interactive {
		w, h = termSize()
	}
	if w < 70 {
		w = 70
	}
	if h < 12 {
		h = 12
	}

	var (
		agg, total       int64
		unknown          bool
		counts           = map[string]int{}
		active, finished []*fileRow
	)
	for _, r := range lr.files {
		counts[r.status]++
		switch r.status {
		case "downloading":
			active = append(active, r)
		case "done", "skip", "error":
			finished = append(finished, r)
		}
		if r.status == "skip" {
			continue
		}
		agg += r.bytes
		if r.total < 0 {
			unknown = true
		} else {
			total += r.total
		}
	}

	now := time.Now()
	if !lr.lastTick.IsZero() {
		if dt := now.Sub(lr.lastTick).Seconds(); dt > 0.05 {
			if inst := float64(agg-lr.lastAgg) / dt; inst >= 0 {
				lr.speed = ema(inst, lr.speed)
			}
			lr.lastTick, lr.lastAgg = now, agg
		}
	} else {
		lr.lastTick, lr.lastAgg = now, agg
	}

	if lr.interactive {
		fmt.Fprint(lr.out, "\x1b[H\x1b[2J")
	}

	p := lr.palette
	fmt.Fprintln(lr.out, p.title("Source: "+lr.opts.Source))
	fmt.Fprintln(lr.out, p.dim(fmt.Sprintf("Out: %s   Threads: %d   Mirror: %v",
		lr.opts.OutputDir, lr.opts.Threads, lr.opts.Mirror)))

	frac := ratio(agg, total)
	totalTxt := humanBytes(total)
	eta := "—"
	if unknown {
		totalTxt = "?"
	} else if lr.speed > 0 && agg < total {
		eta = fmtDuration(time.Duration(float64(total-agg)/lr.speed) * time.Second)
	}
	fmt.Fprintf(lr.out, "%s  %s  %s/%s  %s/s  ETA %s\n",
		p.green(bar(w*2/5, frac)), percent(frac),
		humanBytes(agg), totalTxt, humanBytes(int64(lr.speed)), eta)
	fmt.Fprintf(lr.out, "%d queued  %d active  %d done  %d skipped  %d failed\n",
		counts["queued"], counts["downloading"], counts["done"], counts["skip"], counts["error"])

	fmt.Fprintln(lr.out)
	fmt.Fprintln(lr.out, p.bold(strings.Join([]string{"Status   ", "File", "Progress", "Speed", "ETA"}, "  ")))

	limit := h - 8
	if limit < 3 {
		limit = 3
	}
	sort.Slice(active, func(i, j int) bool { return active[i].bytes > active[j].bytes })
	sort.Slice(finished, func(i, j int) bool { return finished[i].seq < finished[j].seq })

	shown := 0
	for _, group := range [][]*fileRow{active, finished} {
		for _, r := range group {
			if shown >= limit {
				break
			}
			fmt.Fprintln(lr.out, lr.fileLine(r, w, now))
			shown++
		}
	}

	if lr.interactive {
		fmt.Fprintln(lr.out, p.dim(fmt.Sprintf("Press Ctrl+C to cancel • %s %s", runtime.GOOS, runtime.GOARCH)))
	}
}

func (lr *LiveRenderer) fileLine(r *fileRow, w int, now time.Time) string {
	const statusW, speedW, etaW = 12, 10, 9
	remain := w - (statusW + speedW + etaW + 8)
	if remain < 20 {
		remain = 20
	}
	nameW := remain / 2
	if nameW < 18 {
		nameW = 18
	}
	progW := remain - nameW

	if !r.lastTime.IsZero() {
		if dt := now.Sub(r.lastTime).Seconds(); dt > 0.05 {
			if inst := float64(r.bytes-r.lastBytes) / dt; inst >= 0 {
				r.speed = ema(inst, r.speed)
			}
			r.lastTime, r.lastBytes = now, r.bytes
		}
	} else {
		r.lastTime, r.lastBytes = now, r.bytes
	}

	p := lr.palette
	var status string
	switch r.status {
	case "downloading":
		status = p.yellow("▶ " + r.status)
	case "done":
		status = p.green("✓ done")
	case "skip":
		status = p.blue("• exists")
	case "error":
		status = p.red("× failed")
	default:
		status = p.magenta("… queued")
	}

	var progress string
	switch {
	case r.status == "skip":
		progress = "already on disk"
	case r.status == "error":
		progress = r.err
	case r.total < 0:
		progress = humanBytes(r.bytes) + " / ?"
	case r.total == 0 && r.status == "queued":
		progress = r.size
	default:
		frac := ratio(r.bytes, r.total)
		progress = fmt.Sprintf("%s %s/%s %s", bar(progW-20, frac), humanBytes(r.bytes), humanBytes(r.total), percent(frac))
	}
	progress = truncate(progress, progW)

	eta := "—"
	if r.speed > 0 && r.total > 0 && r.bytes < r.total {
		eta = fmtDuration(time.Duration(float64(r.total-r.bytes)/r.speed) * time.Second)
	}

	return fmt.Sprintf("%s  %s  %s  %s  %s",
		pad(status, statusW), pad(ellipsize(r.name, nameW), nameW), pad(progress, progW),
		pad(humanBytes(int64(r.speed))+"/s", speedW), eta)
}

type palette struct {
	green, yellow, red, blue, magenta, title, bold, dim func(a ...interface{}) string
}

func newPalette(enabled bool) palette {
	mk := func(attrs ...color.Attribute) func(a ...interface{}) string {
		c := color.New(attrs...)
		if enabled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c.SprintFunc()
	}
	return palette{
		green:   mk(color.FgGreen),
		yellow:  mk(color.FgYellow),
		red:     mk(color.FgRed),
		blue:    mk(color.FgBlue),
		magenta: mk(color.FgMagenta),
		title:   mk(color.FgCyan, color.Bold),
		bold:    mk(color.Bold),
		dim:     mk(color.Faint),
	}
}

func ratio(n, total int64) float64 {
	if total <= 0 {
		return 0
	}
	f := float64(n) / float64(total)
	if f > 1 {
		return 1
	}
	if f < 0 {
		return 0
	}
	return f
}

func bar(width int, frac float64) string {
	if width < 3 {
		width = 3
	}
	filled := int(frac * float64(width))
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func percent(f float64) string {
	return fmt.Sprintf("%3.0f%%", f*100)
}

func truncate(s string, w int) string {
	if utf8.RuneCountInString(s) <= w {
		return s
	}
	return string([]rune(s)[:w])
}

func ellipsize(s string, w int) string {
	runes := []rune(s)
	if w <= 3 || len(runes) <= w {
		return s
	}
	half := (w - 3) / 2
	return string(runes[:half]) + "..." + string(runes[len(runes)-half:])
}

// pad counts runes, so colored text gets no padding beyond its escape codes.
func pad(s string, w int) string {
	n := utf8.RuneCountInString(s)
	if n >= w {
		return s
	}
	return s + strings.Repeat(" ", w-n)
}

// HumanBytes formats n with binary units.
func HumanBytes(n int64) string { return humanBytes(n) }

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit && exp < 5 {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func fmtDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

func termSize() (int, int) {
	w, h, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 || h <= 0 {
		return 100, 30
	}
	return w, h
}

// IsTerminal reports whether stdout is an interactive terminal that accepts
// ANSI sequences.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) && ansiOkay()
}

func ansiOkay() bool {
	return strings.ToLower(os.Getenv("TERM")) != "dumb"
}
