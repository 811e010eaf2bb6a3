// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hfpull/hfpull/pkg/hfpull"
)

// JobStatus represents the state of a pull job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

func (s JobStatus) active() bool {
	return s == JobStatusQueued || s == JobStatusRunning
}

// Job is one run of the pull pipeline.
type Job struct {
	ID         string            `json:"id"`
	URL        string            `json:"url,omitempty"`
	Manifest   string            `json:"manifest,omitempty"`
	Extensions []string          `json:"extensions,omitempty"`
	OutputDir  string            `json:"outputDir"`
	Status     JobStatus         `json:"status"`
	Progress   JobProgress       `json:"progress"`
	Summary    string            `json:"summary,omitempty"`
	Error      string            `json:"error,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
	StartedAt  *time.Time        `json:"startedAt,omitempty"`
	EndedAt    *time.Time        `json:"endedAt,omitempty"`
	Files      []JobFileProgress `json:"files,omitempty"`

	cancel context.CancelFunc
}

// JobProgress holds aggregate progress info.
type JobProgress struct {
	TotalFiles      int   `json:"totalFiles"`
	CompletedFiles  int   `json:"completedFiles"`
	SkippedFiles    int   `json:"skippedFiles"`
	FailedFiles     int   `json:"failedFiles"`
	DownloadedBytes int64 `json:"downloadedBytes"`
}

// JobFileProgress holds per-file progress.
type JobFileProgress struct {
	Path       string `json:"path"`
	Size       string `json:"size,omitempty"` // size label from the listing
	TotalBytes int64  `json:"totalBytes"`     // -1 when unknown
	Downloaded int64  `json:"downloaded"`
	Status     string `json:"status"` // pending, active, complete, skipped, error
	Error      string `json:"error,omitempty"`
}

// source is the dedupe key for active jobs.
func (j *Job) source() string {
	if j.URL != "" {
		return "url:" + j.URL + "|" + strings.Join(j.Extensions, ",")
	}
	return "manifest:" + j.Manifest
}

// snapshot copies the job so it can be encoded without holding the lock.
func (j *Job) snapshot() Job {
	c := *j
	c.cancel = nil
	c.Files = append([]JobFileProgress(nil), j.Files...)
	return c
}

func (j *Job) file(path string) *JobFileProgress {
	for i := range j.Files {
		if j.Files[i].Path == path {
			return &j.Files[i]
		}
	}
	j.Files = append(j.Files, JobFileProgress{Path: path, Status: "pending"})
	return &j.Files[len(j.Files)-1]
}

// JobRequest describes a job to start. Exactly one of URL or Manifest is set;
// Manifest is a path already confined to the output directory.
type JobRequest struct {
	URL        string
	Manifest   string
	Extensions []string
}

// JobManager manages pull jobs.
type JobManager struct {
	mu     sync.RWMutex
	jobs   map[string]*Job
	config Config
	wsHub  *WSHub
	wg     sync.WaitGroup

	// pull is hfpull.Pull; tests replace it.
	pull func(context.Context, hfpull.Source, hfpull.Settings, hfpull.Hooks) (hfpull.Summary, error)
}

// NewJobManager creates a new job manager.
func NewJobManager(cfg Config, wsHub *WSHub) *JobManager {
	return &JobManager{
		jobs:   make(map[string]*Job),
		config: cfg,
		wsHub:  wsHub,
		pull:   hfpull.Pull,
	}
}

// CreateJob starts a job, or returns the active job for the same source with
// wasExisting set.
func (m *JobManager) CreateJob(req JobRequest) (job Job, wasExisting bool) {
	cfg := m.config.settings(req.Extensions)
	j := &Job{
		ID:        uuid.NewString(),
		URL:       req.URL,
		Manifest:  req.Manifest,
		OutputDir: m.config.OutputDir,
		Status:    JobStatusQueued,
		CreatedAt: time.Now(),
	}
	if req.URL != "" {
		j.Extensions = hfpull.ParseExtensions(cfg.Extensions)
	}

	m.mu.Lock()
	for _, existing := range m.jobs {
		if existing.Status.active() && existing.source() == j.source() {
			snap := existing.snapshot()
			m.mu.Unlock()
			return snap, true
		}
	}
	ctx, cancel := context.WithCancel(context.Background())
	j.cancel = cancel
	m.jobs[j.ID] = j
	snap := j.snapshot()
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runJob(ctx, j, cfg)
	}()
	return snap, false
}

// GetJob returns a copy of the job with the given ID.
func (m *JobManager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return j.snapshot(), true
}

// ListJobs returns copies of all jobs, oldest first.
func (m *JobManager) ListJobs() []Job {
	m.mu.RLock()
	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j.snapshot())
	}
	m.mu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.Before(jobs[b].CreatedAt) })
	return jobs
}

// CancelJob cancels a queued or running job. It reports false for unknown
// or finished jobs.
func (m *JobManager) CancelJob(id string) bool {
	m.mu.Lock()
	j, ok := m.jobs[id]
	if !ok || !j.Status.active() {
		m.mu.Unlock()
		return false
	}
	j.cancel()
	j.Status = JobStatusCancelled
	now := time.Now()
	j.EndedAt = &now
	snap := j.snapshot()
	m.mu.Unlock()

	m.notify(snap)
	return true
}

// CancelAll cancels every active job.
func (m *JobManager) CancelAll() {
	m.mu.RLock()
	var ids []string
	for id, j := range m.jobs {
		if j.Status.active() {
			ids = append(ids, id)
		}
	}
	m.mu.RUnlock()
	for _, id := range ids {
		m.CancelJob(id)
	}
}

// Wait blocks until every started job has returned.
func (m *JobManager) Wait() {
	m.wg.Wait()
}

func (m *JobManager) notify(job Job) {
	if m.wsHub != nil {
		m.wsHub.BroadcastJob(job)
	}
}

// update applies fn to the job under the lock and broadcasts the result.
func (m *JobManager) update(j *Job, fn func(*Job)) {
	m.mu.Lock()
	fn(j)
	snap := j.snapshot()
	m.mu.Unlock()
	m.notify(snap)
}

func (m *JobManager) runJob(ctx context.Context, job *Job, cfg hfpull.Settings) {
	m.update(job, func(j *Job) {
		if j.Status != JobStatusQueued {
			return
		}
		j.Status = JobStatusRunning
		now := time.Now()
		j.StartedAt = &now
	})

	progress := func(ev hfpull.ProgressEvent) {
		m.update(job, func(j *Job) { applyEvent(j, ev) })
	}

	src := hfpull.Source{URL: job.URL, Manifest: job.Manifest}
	sum, err := m.pull(ctx, src, cfg, hfpull.Hooks{
		Progress: progress,
		Logger:   m.config.Logger,
	})

	m.update(job, func(j *Job) {
		if j.EndedAt == nil {
			now := time.Now()
			j.EndedAt = &now
		}
		switch {
		case j.Status == JobStatusCancelled || ctx.Err() != nil:
			j.Status = JobStatusCancelled
		case hfpull.IsNothingFound(err):
			j.Status = JobStatusCompleted
			j.Summary = "no matching files found"
		case err != nil:
			j.Status = JobStatusFailed
			j.Error = err.Error()
		default:
			j.Status = JobStatusCompleted
			j.Summary = sum.Line()
			if sum.Attempted == 0 {
				j.Summary = "all files already exist"
			}
		}
	})
}

func applyEvent(j *Job, ev hfpull.ProgressEvent) {
	switch ev.Event {
	case "plan_item":
		f := j.file(ev.Path)
		f.Size = ev.Message
		j.Progress.TotalFiles++
	case "file_start":
		f := j.file(ev.Path)
		f.Status = "active"
		f.TotalBytes = ev.Total
	case "file_progress":
		f := j.file(ev.Path)
		f.Downloaded = ev.Downloaded
		if ev.Total != 0 {
			f.TotalBytes = ev.Total
		}
	case "file_done":
		f := j.file(ev.Path)
		if strings.HasPrefix(ev.Message, "skip") {
			f.Status = "skipped"
			j.Progress.SkippedFiles++
			return
		}
		f.Status = "complete"
		if f.TotalBytes > 0 {
			f.Downloaded = f.TotalBytes
		}
		j.Progress.CompletedFiles++
	case "error":
		if ev.Path == "" {
			return
		}
		f := j.file(ev.Path)
		f.Status = "error"
		f.Error = ev.Message
		j.Progress.FailedFiles++
	default:
		return
	}

	var total int64
	for _, f := range j.Files {
		total += f.Downloaded
	}
	j.Progress.DownloadedBytes = total
}
