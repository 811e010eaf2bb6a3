// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hfpull

import (
	"fmt"
	"log/slog"
	"time"
)

// FileEntry is one downloadable file discovered on a listing page.
//
// Name is the file's basename and doubles as its identity within a Manifest
// and as its path relative to the output directory. Size is the text shown
// next to the link on the page; it is never parsed.
type FileEntry struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
	Size string `json:"size" yaml:"size"`
}

// Manifest is the ordered list of entries discovered on one listing page.
type Manifest []FileEntry

// Names returns the entry names in manifest order.
func (m Manifest) Names() []string {
	out := make([]string, len(m))
	for i, e := range m {
		out[i] = e.Name
	}
	return out
}

// Source selects where a run gets its manifest from.
// Exactly one of URL and Manifest must be set.
type Source struct {
	// URL is a listing page, e.g. https://huggingface.co/org/repo/tree/main.
	URL string

	// Manifest is a previously saved manifest: a local path or a bucket URL
	// such as s3://bucket/org_repo.json.
	Manifest string
}

// Validate reports whether exactly one of URL and Manifest is set.
func (s Source) Validate() error {
	switch {
	case s.URL == "" && s.Manifest == "":
		return ErrNoSource
	case s.URL != "" && s.Manifest != "":
		return ErrConflictingSource
	}
	return nil
}

// Settings configures discovery and fetching.
//
// Example:
//
//	cfg := hfpull.DefaultSettings()
//	cfg.OutputDir = "./weights"
//	cfg.Extensions = []string{".bin", ".json"}
//	cfg.Mirror = true
type Settings struct {
	// OutputDir receives the manifest and the downloaded files.
	// If empty, defaults to "./models".
	OutputDir string

	// Extensions are the accepted filename suffixes, matched case-sensitively.
	// The literal "all" accepts every file. If empty, defaults to ".safetensors".
	Extensions []string

	// Threads is the number of files fetched at once.
	// If <= 0, defaults to 3.
	Threads int

	// Mirror rewrites huggingface.co to hf-mirror.com in every outbound URL.
	Mirror bool

	// ChunkSize is the read buffer used while streaming a file to disk.
	// If <= 0, defaults to 8192.
	ChunkSize int

	// Token is sent as a bearer token for gated repositories.
	Token string

	// UserAgent overrides the default User-Agent header.
	UserAgent string
}

// DefaultSettings returns Settings with the defaults filled in.
func DefaultSettings() Settings {
	return Settings{
		OutputDir:  DefaultOutputDir,
		Extensions: []string{DefaultExtension},
		Threads:    DefaultThreads,
		ChunkSize:  DefaultChunkSize,
	}
}

func (c Settings) withDefaults() Settings {
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{DefaultExtension}
	}
	if c.Threads <= 0 {
		c.Threads = DefaultThreads
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.UserAgent == "" {
		c.UserAgent = defaultUserAgent
	}
	return c
}

// Defaults used when a Settings field is left zero.
const (
	DefaultOutputDir = "./models"
	DefaultExtension = ".safetensors"
	DefaultThreads   = 3
	DefaultChunkSize = 8192

	defaultUserAgent = "hfpull/1"
)

// ProgressEvent is emitted while a run discovers, plans and fetches files.
//
// Event is one of:
//   - "scan_start": the listing page is being fetched (Source holds the URL)
//   - "manifest_saved", "manifest_loaded": Path is the manifest location, Total the entry count
//   - "plan_item": a file was queued for download
//   - "file_start": a download started; Total is -1 when the server sent no length
//   - "file_progress": periodic byte count for a download
//   - "file_done": a file finished; Message starts with "skip" when it was already present
//   - "error": a file failed, or the listing could not be read (Level "warn")
//   - "done": the run finished; Message holds the summary line
type ProgressEvent struct {
	Time       time.Time `json:"time"`
	Level      string    `json:"level,omitempty"`
	Event      string    `json:"event"`
	Source     string    `json:"source,omitempty"`
	Path       string    `json:"path,omitempty"`
	Total      int64     `json:"total,omitempty"`
	Downloaded int64     `json:"downloaded,omitempty"`
	Message    string    `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It is called from worker goroutines
// and must be safe for concurrent use.
type ProgressFunc func(ProgressEvent)

// Pending is what the confirmation hook gets to decide on.
type Pending struct {
	Root     string
	Existing []string
	Entries  Manifest
}

// Hooks plugs the caller into a Pull run. Every field is optional.
type Hooks struct {
	// Confirm is asked once before any file is fetched. A nil Confirm
	// approves every run.
	Confirm func(Pending) bool

	// Progress receives events for the whole run.
	Progress ProgressFunc

	// Logger receives diagnostics. Defaults to slog.Default().
	Logger *slog.Logger
}

// Summary describes the outcome of a Pull run.
type Summary struct {
	ManifestPath string   `json:"manifestPath,omitempty"`
	Found        int      `json:"found"`
	Existing     []string `json:"existing,omitempty"`
	Attempted    int      `json:"attempted"`
	Succeeded    int      `json:"succeeded"`
	Declined     bool     `json:"declined,omitempty"`
	Failures     []error  `json:"-"`
}

// Line is the human-readable result line printed at the end of a run.
func (s Summary) Line() string {
	return fmt.Sprintf("download complete, succeeded: %d/%d", s.Succeeded, s.Attempted)
}
