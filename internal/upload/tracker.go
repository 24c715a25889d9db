// Package upload tracks in-flight file uploads: their progress, their
// cancellation flag and the preview handle held while they are pending.
// It reports into the engine by record id and never mutates records.
package upload

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"sendme/internal/blob"
	"sendme/internal/logging"
	"sendme/internal/types"
)

const (
	CancelReason            = "cancelled by user"
	DefaultProgressInterval = 100 * time.Millisecond
)

// Reporter receives progress and synthetic failures. The engine implements
// it.
type Reporter interface {
	ApplyProgress(id string, percent int) bool
	ApplyFailure(id, reason string) bool
}

type Job struct {
	RecordID string
	File     File
	Preview  blob.Handle

	cancelled atomic.Bool
	disposed  bool
	last      atomic.Int32
	throttle  *rate.Sometimes
}

func (j *Job) Cancelled() bool {
	return j.cancelled.Load()
}

type Tracker struct {
	mu       sync.Mutex
	jobs     map[string]*Job
	reporter Reporter
	previews *blob.Registry
	logger   logging.Logger
	interval time.Duration
}

type Option func(*Tracker)

// WithProgressInterval sets the minimum spacing between forwarded
// intermediate progress values. Zero forwards every value.
func WithProgressInterval(d time.Duration) Option {
	return func(t *Tracker) {
		t.interval = d
	}
}

func WithLogger(logger logging.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

func NewTracker(reporter Reporter, previews *blob.Registry, opts ...Option) *Tracker {
	if previews == nil {
		previews = blob.NewRegistry(0)
	}
	t := &Tracker{
		jobs:     map[string]*Job{},
		reporter: reporter,
		previews: previews,
		logger:   logging.Nop(),
		interval: DefaultProgressInterval,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t
}

func (t *Tracker) Previews() *blob.Registry {
	return t.previews
}

// Begin registers the upload job for a pending image or file record. Images
// get a local preview handle; a preview that cannot be decoded is skipped.
func (t *Tracker) Begin(rec types.Record, file File) *Job {
	job := &Job{RecordID: rec.ID, File: file}
	if t.interval > 0 {
		job.throttle = &rate.Sometimes{Interval: t.interval}
	}
	if rec.Kind == types.KindImage && file != nil {
		job.Preview = t.createPreview(rec.ID, file)
	}

	t.mu.Lock()
	previous := t.jobs[rec.ID]
	t.jobs[rec.ID] = job
	t.mu.Unlock()

	if previous != nil {
		t.logger.Warn("upload job replaced", logging.F("id", rec.ID))
		t.release(previous)
	}
	return job
}

func (t *Tracker) createPreview(id string, file File) blob.Handle {
	src, err := file.Open()
	if err != nil {
		t.logger.Debug("preview open failed", logging.F("id", id), logging.Err(err))
		return blob.Handle{}
	}
	defer src.Close()
	handle, err := t.previews.CreatePreview(src)
	if err != nil {
		t.logger.Debug("preview skipped", logging.F("id", id), logging.Err(err))
		return blob.Handle{}
	}
	return handle
}

func (t *Tracker) Job(id string) (*Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	return job, ok
}

func (t *Tracker) Active() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.jobs))
	for id := range t.jobs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Percent converts a byte count into a whole percentage. An unknown total
// falls back to the file size.
func Percent(loaded, total, fallback int64) int {
	if total <= 0 {
		total = fallback
	}
	if total <= 0 {
		return 0
	}
	pct := int(math.Round(float64(loaded) * 100 / float64(total)))
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func (t *Tracker) ReportProgress(jobID string, loaded, total int64) {
	job, ok := t.Job(jobID)
	if !ok || job.Cancelled() {
		return
	}
	var size int64
	if job.File != nil {
		size = job.File.Size()
	}
	pct := Percent(loaded, total, size)
	if int32(pct) <= job.last.Load() && pct != 0 {
		return
	}
	forward := func() {
		job.last.Store(int32(pct))
		if t.reporter != nil {
			t.reporter.ApplyProgress(jobID, pct)
		}
	}
	if job.throttle == nil || pct == 0 || pct == 100 {
		forward()
		return
	}
	job.throttle.Do(forward)
}

// Cancel flags the job and reports a synthetic failure. It does not stop the
// transfer itself.
func (t *Tracker) Cancel(jobID string) bool {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok || job.disposed || job.Cancelled() {
		t.mu.Unlock()
		return false
	}
	job.cancelled.Store(true)
	t.mu.Unlock()

	t.logger.Info("upload cancelled", logging.F("id", jobID))
	if t.reporter != nil {
		t.reporter.ApplyFailure(jobID, CancelReason)
	}
	return true
}

// Dispose releases the job and its preview handle. Only the first call for a
// job has any effect.
func (t *Tracker) Dispose(jobID string) bool {
	t.mu.Lock()
	job, ok := t.jobs[jobID]
	if !ok || job.disposed {
		t.mu.Unlock()
		return false
	}
	delete(t.jobs, jobID)
	t.mu.Unlock()
	return t.release(job)
}

func (t *Tracker) DisposeAll() int {
	t.mu.Lock()
	jobs := make([]*Job, 0, len(t.jobs))
	for id, job := range t.jobs {
		jobs = append(jobs, job)
		delete(t.jobs, id)
	}
	t.mu.Unlock()
	count := 0
	for _, job := range jobs {
		if t.release(job) {
			count++
		}
	}
	return count
}

func (t *Tracker) release(job *Job) bool {
	t.mu.Lock()
	if job.disposed {
		t.mu.Unlock()
		return false
	}
	job.disposed = true
	t.mu.Unlock()
	if !job.Preview.Empty() {
		if !t.previews.Revoke(job.Preview.URL) {
			t.logger.Warn("preview already revoked", logging.F("id", job.RecordID), logging.F("handle", job.Preview.URL))
		}
	}
	return true
}
