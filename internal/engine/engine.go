// Package engine owns the ordered record collection and reconciles
// optimistic inserts with the outcomes the transport reports. Every
// mutation is keyed by record id; completions may arrive in any order.
package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"sendme/internal/blob"
	"sendme/internal/ids"
	"sendme/internal/logging"
	"sendme/internal/types"
	"sendme/internal/upload"
)

const (
	DefaultCopyWindow           = 2 * time.Second
	DefaultMaxConcurrentUploads = 3
	subscriberBuffer            = 256
)

var (
	ErrRecordNotFound = errors.New("record not found")
	ErrRecordPending  = errors.New("record is still pending")
	ErrNotFailed      = errors.New("only failed records can be resubmitted")
	ErrNoTransport    = errors.New("no transport configured")
	ErrClosed         = errors.New("engine is closed")
)

// Transport performs the network calls. Each call settles exactly once:
// a record or an error.
type Transport interface {
	SendText(ctx context.Context, content string, device types.Device) (*types.ServerRecord, error)
	UploadFile(ctx context.Context, file upload.File, device types.Device, onProgress func(loaded, total int64)) (*types.ServerRecord, error)
	FetchAll(ctx context.Context) ([]*types.ServerRecord, error)
}

// DetailedError is implemented by transport errors that carry a
// human-readable reason from the backend.
type DetailedError interface {
	Detail() string
}

type entry struct {
	rec       types.Record
	cancel    context.CancelFunc
	file      upload.File
	copyTimer Timer
	copyGen   uint64
}

type Engine struct {
	mu      sync.Mutex
	entries []*entry
	byID    map[string]*entry
	byRef   map[uint64]*entry
	nextRef uint64
	subs    map[int]chan Event
	nextSub int
	closed  bool

	transport  Transport
	ids        ids.Allocator
	previews   *blob.Registry
	tracker    *upload.Tracker
	device     types.Device
	logger     logging.Logger
	copyWindow time.Duration
	scheduler  Scheduler
	now        func() time.Time
	uploads    *semaphore.Weighted

	progressInterval time.Duration
	maxUploads       int

	ctx     context.Context
	stop    context.CancelFunc
	tasks   sync.WaitGroup
	dropped atomic.Uint64
}

type Option func(*Engine)

// WithTransport attaches the network collaborator. Without one, text is
// echoed locally and file submissions fail immediately.
func WithTransport(t Transport) Option {
	return func(e *Engine) { e.transport = t }
}

func WithAllocator(a ids.Allocator) Option {
	return func(e *Engine) {
		if a != nil {
			e.ids = a
		}
	}
}

func WithPreviews(r *blob.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.previews = r
		}
	}
}

func WithDevice(d types.Device) Option {
	return func(e *Engine) { e.device = types.ParseDevice(string(d)) }
}

func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

func WithCopyWindow(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.copyWindow = d
		}
	}
}

func WithMaxConcurrentUploads(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxUploads = n
		}
	}
}

func WithProgressInterval(d time.Duration) Option {
	return func(e *Engine) {
		if d >= 0 {
			e.progressInterval = d
		}
	}
}

func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		if s != nil {
			e.scheduler = s
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

func New(opts ...Option) *Engine {
	ctx, stop := context.WithCancel(context.Background())
	e := &Engine{
		byID:             map[string]*entry{},
		byRef:            map[uint64]*entry{},
		subs:             map[int]chan Event{},
		ids:              ids.NewAllocator(),
		device:           types.DeviceDesktop,
		logger:           logging.Nop(),
		copyWindow:       DefaultCopyWindow,
		scheduler:        realScheduler{},
		now:              time.Now,
		progressInterval: upload.DefaultProgressInterval,
		maxUploads:       DefaultMaxConcurrentUploads,
		ctx:              ctx,
		stop:             stop,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.previews == nil {
		e.previews = blob.NewRegistry(0)
	}
	e.uploads = semaphore.NewWeighted(int64(e.maxUploads))
	e.tracker = upload.NewTracker(e, e.previews,
		upload.WithProgressInterval(e.progressInterval),
		upload.WithLogger(e.logger.With(logging.F("component", "upload"))),
	)
	return e
}

func (e *Engine) Tracker() *upload.Tracker {
	return e.tracker
}

func (e *Engine) Previews() *blob.Registry {
	return e.previews
}

func (e *Engine) Device() types.Device {
	return e.device
}

// Snapshot returns a copy of the collection in insertion order.
func (e *Engine) Snapshot() []types.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]types.Record, len(e.entries))
	for i, ent := range e.entries {
		out[i] = ent.rec
	}
	return out
}

// Get resolves both current ids and the temporary id a record had before
// reconciliation.
func (e *Engine) Get(id string) (types.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok {
		return types.Record{}, false
	}
	return ent.rec, true
}

func (e *Engine) GetByRef(ref uint64) (types.Record, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byRef[ref]
	if !ok {
		return types.Record{}, false
	}
	return ent.rec, true
}

func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.entries)
}

type Stats struct {
	Total   int
	Pending int
	Success int
	Error   int
}

func (e *Engine) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	stats := Stats{Total: len(e.entries)}
	for _, ent := range e.entries {
		switch ent.rec.Status {
		case types.StatusPending:
			stats.Pending++
		case types.StatusSuccess:
			stats.Success++
		case types.StatusError:
			stats.Error++
		}
	}
	return stats
}

// Load fetches the backend's records once and appends those not already in
// the collection.
func (e *Engine) Load(ctx context.Context) (int, error) {
	if e.transport == nil {
		return 0, ErrNoTransport
	}
	records, err := e.transport.FetchAll(ctx)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrClosed
	}
	added := 0
	for _, server := range records {
		if server == nil || server.ID == "" {
			continue
		}
		if _, ok := e.byID[server.ID]; ok {
			continue
		}
		e.insertLocked(server.ToRecord())
		added++
	}
	e.logger.Info("records loaded", logging.F("fetched", len(records)), logging.F("added", added))
	return added, nil
}

// Wait blocks until every in-flight transport task has settled.
func (e *Engine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels outstanding tasks, stops copy timers, releases every preview
// handle still held and closes subscriber channels.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	for _, ent := range e.entries {
		if ent.copyTimer != nil {
			ent.copyTimer.Stop()
			ent.copyTimer = nil
		}
	}
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.mu.Unlock()

	e.stop()
	e.tasks.Wait()
	if n := e.tracker.DisposeAll(); n > 0 {
		e.logger.Debug("disposed jobs on close", logging.F("count", n))
	}
	return nil
}

func (e *Engine) insertLocked(rec types.Record) *entry {
	e.nextRef++
	rec.Ref = e.nextRef
	ent := &entry{rec: rec}
	e.entries = append(e.entries, ent)
	e.byID[rec.ID] = ent
	e.byRef[rec.Ref] = ent
	e.publishLocked(EventInserted, ent)
	return ent
}
