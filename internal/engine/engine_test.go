package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"sendme/internal/blob"
	"sendme/internal/ids"
	"sendme/internal/types"
	"sendme/internal/upload"
)

type transportCall struct {
	content  string
	file     upload.File
	progress func(loaded, total int64)
	reply    chan transportResult
}

type transportResult struct {
	rec *types.ServerRecord
	err error
}

func (c *transportCall) succeed(rec *types.ServerRecord) {
	c.reply <- transportResult{rec: rec}
}

func (c *transportCall) fail(err error) {
	c.reply <- transportResult{err: err}
}

type fakeTransport struct {
	calls    chan *transportCall
	fetch    []*types.ServerRecord
	fetchErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{calls: make(chan *transportCall, 16)}
}

func (f *fakeTransport) await(ctx context.Context, call *transportCall) (*types.ServerRecord, error) {
	select {
	case f.calls <- call:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case res := <-call.reply:
		return res.rec, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeTransport) SendText(ctx context.Context, content string, _ types.Device) (*types.ServerRecord, error) {
	return f.await(ctx, &transportCall{content: content, reply: make(chan transportResult, 1)})
}

func (f *fakeTransport) UploadFile(ctx context.Context, file upload.File, _ types.Device, onProgress func(loaded, total int64)) (*types.ServerRecord, error) {
	return f.await(ctx, &transportCall{file: file, progress: onProgress, reply: make(chan transportResult, 1)})
}

func (f *fakeTransport) FetchAll(context.Context) ([]*types.ServerRecord, error) {
	return f.fetch, f.fetchErr
}

func (f *fakeTransport) next(t *testing.T) *transportCall {
	t.Helper()
	select {
	case call := <-f.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transport call")
		return nil
	}
}

func (f *fakeTransport) nextUploads(t *testing.T, n int) map[string]*transportCall {
	t.Helper()
	out := map[string]*transportCall{}
	for len(out) < n {
		call := f.next(t)
		out[call.file.Name()] = call
	}
	return out
}

type detailError string

func (e detailError) Error() string  { return "status 413: " + string(e) }
func (e detailError) Detail() string { return string(e) }

type manualTimer struct {
	f       func()
	stopped bool
}

func (t *manualTimer) Stop() bool {
	wasActive := !t.stopped
	t.stopped = true
	return wasActive
}

type manualScheduler struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (s *manualScheduler) AfterFunc(_ time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	timer := &manualTimer{f: f}
	s.timers = append(s.timers, timer)
	return timer
}

// fire runs the callback even when the timer was stopped, the way a real
// timer can fire concurrently with Stop.
func (s *manualScheduler) fire(i int) {
	s.mu.Lock()
	timer := s.timers[i]
	s.mu.Unlock()
	timer.f()
}

func (s *manualScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func newTestEngine(t *testing.T, transport Transport, opts ...Option) *Engine {
	t.Helper()
	base := []Option{
		WithAllocator(ids.NewSequence()),
		WithProgressInterval(0),
	}
	if transport != nil {
		base = append(base, WithTransport(transport))
	}
	eng := New(append(base, opts...)...)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func waitSettled(t *testing.T, eng *Engine) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := eng.Wait(ctx); err != nil {
		t.Fatalf("wait: %v", err)
	}
}

func mustGet(t *testing.T, eng *Engine, id string) types.Record {
	t.Helper()
	rec, ok := eng.Get(id)
	if !ok {
		t.Fatalf("record %q not found", id)
	}
	return rec
}

func pngFile(t *testing.T, name string) *upload.MemoryFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 40, 20))
	for x := 0; x < 40; x++ {
		for y := 0; y < 20; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return upload.NewMemoryFile(name, "image/png", buf.Bytes())
}

func TestSubmitTextIgnoresBlankContent(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	for _, content := range []string{"", "   ", "\n\t "} {
		if id, ok := eng.SubmitText(content); ok || id != "" {
			t.Fatalf("expected %q to be rejected, got id %q", content, id)
		}
	}
	if eng.Len() != 0 {
		t.Fatalf("expected empty collection, got %d", eng.Len())
	}
	select {
	case call := <-transport.calls:
		t.Fatalf("unexpected transport call for %q", call.content)
	default:
	}
}

func TestSubmitTextReconcilesWithServerRecord(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	id, ok := eng.SubmitText("  hello there ")
	if !ok || id != "text_1" {
		t.Fatalf("unexpected submit result %q %v", id, ok)
	}
	pending := mustGet(t, eng, id)
	if pending.Status != types.StatusPending {
		t.Fatalf("expected pending, got %s", pending.Status)
	}

	call := transport.next(t)
	if call.content != "hello there" {
		t.Fatalf("expected trimmed content, got %q", call.content)
	}
	created := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	call.succeed(&types.ServerRecord{ID: "42", Kind: types.KindText, Content: "hello there", CreatedAt: created})
	waitSettled(t, eng)

	rec := mustGet(t, eng, "42")
	if rec.Status != types.StatusSuccess || rec.ID != "42" {
		t.Fatalf("unexpected reconciled record %#v", rec)
	}
	if !rec.CreatedAt.Equal(created) {
		t.Fatalf("expected server timestamp, got %v", rec.CreatedAt)
	}
	if rec.Ref != pending.Ref {
		t.Fatalf("expected ref to survive reconciliation")
	}
	if alias := mustGet(t, eng, id); alias.ID != "42" {
		t.Fatalf("expected temp id to resolve to reconciled record, got %q", alias.ID)
	}
	if got := types.CopyTextContent(rec); got != "hello there" {
		t.Fatalf("unexpected copy content %q", got)
	}
	if eng.Len() != 1 {
		t.Fatalf("expected single record, got %d", eng.Len())
	}
}

func TestSubmitTextFailureUsesDetail(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	first, _ := eng.SubmitText("one")
	transport.next(t).fail(detailError("Not authenticated"))
	second, _ := eng.SubmitText("two")
	transport.next(t).fail(errors.New("dial tcp: refused"))
	waitSettled(t, eng)

	if got := mustGet(t, eng, first).ErrorDetail; got != "Not authenticated" {
		t.Fatalf("unexpected detail %q", got)
	}
	if got := mustGet(t, eng, second).ErrorDetail; got != "Failed to send" {
		t.Fatalf("unexpected fallback %q", got)
	}
}

func TestUploadsSettleOutOfOrder(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	out := eng.SubmitFiles([]upload.File{
		upload.NewMemoryFile("a.txt", "text/plain", []byte("aaaa")),
		upload.NewMemoryFile("b.txt", "text/plain", []byte("bbbbbbbb")),
	})
	if len(out) != 2 || out[0] != "file_1" || out[1] != "file_2" {
		t.Fatalf("unexpected ids %v", out)
	}
	snapshot := eng.Snapshot()
	if len(snapshot) != 2 || snapshot[0].ID != "file_1" || snapshot[1].ID != "file_2" {
		t.Fatalf("expected records in input order, got %#v", snapshot)
	}
	if p, _ := snapshot[1].File(); p.SizeLabel != "8 Bytes" {
		t.Fatalf("unexpected size label %q", p.SizeLabel)
	}

	calls := transport.nextUploads(t, 2)
	calls["b.txt"].succeed(&types.ServerRecord{ID: "srv-b", Kind: types.KindFile, FileName: "b.txt", FilePath: "uploads/b.txt", FileSize: "8 Bytes"})
	deadline := time.Now().Add(2 * time.Second)
	for {
		if rec, ok := eng.Get("srv-b"); ok && rec.Status == types.StatusSuccess {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("second upload never settled")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if rec := mustGet(t, eng, "file_1"); rec.Status != types.StatusPending {
		t.Fatalf("expected first upload still pending, got %s", rec.Status)
	}

	calls["a.txt"].fail(detailError("File too large"))
	waitSettled(t, eng)

	snapshot = eng.Snapshot()
	if snapshot[0].ID != "file_1" || snapshot[0].Status != types.StatusError || snapshot[0].ErrorDetail != "File too large" {
		t.Fatalf("unexpected first record %#v", snapshot[0])
	}
	if snapshot[1].ID != "srv-b" || snapshot[1].Status != types.StatusSuccess || snapshot[1].Progress != 100 {
		t.Fatalf("unexpected second record %#v", snapshot[1])
	}
	if p, _ := snapshot[1].File(); p.Handle != "uploads/b.txt" {
		t.Fatalf("expected server path as handle, got %q", p.Handle)
	}
}

func TestLateFailureAfterSuccessIsIgnored(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	out := eng.SubmitFiles([]upload.File{upload.NewMemoryFile("doc.pdf", "application/pdf", []byte("%PDF"))})
	call := transport.next(t)

	if !eng.ApplySuccess(out[0], &types.ServerRecord{ID: "7", Kind: types.KindFile, FileName: "doc.pdf"}) {
		t.Fatalf("expected success to apply")
	}
	if eng.ApplyFailure(out[0], "boom") || eng.ApplyFailure("7", "boom") {
		t.Fatalf("expected failure after success to be ignored")
	}
	if eng.ApplyProgress("7", 10) {
		t.Fatalf("expected progress after success to be ignored")
	}
	call.fail(errors.New("late"))
	waitSettled(t, eng)

	rec := mustGet(t, eng, "7")
	if rec.Status != types.StatusSuccess || rec.ErrorDetail != "" || rec.Progress != 100 {
		t.Fatalf("unexpected record %#v", rec)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	out := eng.SubmitFiles([]upload.File{upload.NewMemoryFile("a.bin", "application/octet-stream", []byte("x"))})
	transport.next(t)
	id := out[0]

	if !eng.ApplyProgress(id, 40) {
		t.Fatalf("expected progress to apply")
	}
	if eng.ApplyProgress(id, 30) || eng.ApplyProgress(id, 40) {
		t.Fatalf("expected stale progress to be ignored")
	}
	eng.ApplyProgress(id, 250)
	if got := mustGet(t, eng, id).Progress; got != 100 {
		t.Fatalf("expected clamped progress, got %d", got)
	}

	text, _ := eng.SubmitText("hi")
	if eng.ApplyProgress(text, 50) {
		t.Fatalf("expected text progress to be ignored")
	}
	if eng.ApplyProgress("missing", 50) {
		t.Fatalf("expected unknown id to be ignored")
	}
}

func TestCancelUploadRevokesPreviewOnce(t *testing.T) {
	transport := newFakeTransport()
	previews := blob.NewRegistry(16)
	eng := newTestEngine(t, transport, WithPreviews(previews))

	out := eng.SubmitFiles([]upload.File{pngFile(t, "shot.png")})
	id := out[0]
	if id != "image_1" {
		t.Fatalf("unexpected id %q", id)
	}
	rec := mustGet(t, eng, id)
	p, _ := rec.File()
	if !blob.IsBlob(p.Handle) || previews.Live() != 1 {
		t.Fatalf("expected live preview handle, got %q live=%d", p.Handle, previews.Live())
	}
	if p.Width != 40 || p.Height != 20 {
		t.Fatalf("unexpected preview dimensions %dx%d", p.Width, p.Height)
	}

	call := transport.next(t)
	call.progress(50, 100)
	if got := mustGet(t, eng, id).Progress; got != 50 {
		t.Fatalf("expected progress 50, got %d", got)
	}

	if !eng.Cancel(id) {
		t.Fatalf("expected cancel to apply")
	}
	if eng.Cancel(id) {
		t.Fatalf("expected second cancel to be a no-op")
	}
	call.progress(80, 100)
	waitSettled(t, eng)

	rec = mustGet(t, eng, id)
	if rec.Status != types.StatusError || rec.ErrorDetail != upload.CancelReason || rec.Progress != 0 {
		t.Fatalf("unexpected cancelled record %#v", rec)
	}
	if p, _ := rec.File(); p.Handle != "" {
		t.Fatalf("expected handle cleared, got %q", p.Handle)
	}
	if eng.ApplySuccess(id, &types.ServerRecord{ID: "99"}) {
		t.Fatalf("expected late success to be ignored")
	}
	created, revoked := previews.Stats()
	if created != 1 || revoked != 1 || previews.Live() != 0 {
		t.Fatalf("expected one preview revoked once, created=%d revoked=%d live=%d", created, revoked, previews.Live())
	}
}

func TestCancelIgnoresTextAndSettledRecords(t *testing.T) {
	eng := newTestEngine(t, nil)
	id, _ := eng.SubmitText("local")
	if eng.Cancel(id) {
		t.Fatalf("expected text cancel to be ignored")
	}
	if eng.Cancel("missing") {
		t.Fatalf("expected unknown cancel to be ignored")
	}
}

func TestSiblingFailureDoesNotTouchOtherRecords(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	text, _ := eng.SubmitText("keep me")
	textCall := transport.next(t)
	out := eng.SubmitFiles([]upload.File{upload.NewMemoryFile("x.zip", "application/zip", []byte("zip"))})
	transport.next(t).fail(errors.New("connection reset"))
	waitUntil(t, func() bool {
		rec, _ := eng.Get(out[0])
		return rec.Status == types.StatusError
	})

	if rec := mustGet(t, eng, text); rec.Status != types.StatusPending {
		t.Fatalf("expected text untouched, got %s", rec.Status)
	}
	if got := mustGet(t, eng, out[0]).ErrorDetail; got != "connection reset" {
		t.Fatalf("expected error message as reason, got %q", got)
	}
	textCall.succeed(&types.ServerRecord{ID: "t1", Kind: types.KindText, Content: "keep me"})
	waitSettled(t, eng)
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestToggleCopiedRestartsWindow(t *testing.T) {
	sched := &manualScheduler{}
	eng := newTestEngine(t, nil, WithScheduler(sched))
	id, _ := eng.SubmitText("copy me")

	if !eng.ToggleCopied(id) || !mustGet(t, eng, id).Copied {
		t.Fatalf("expected copied flag set")
	}
	if !eng.ToggleCopied(id) {
		t.Fatalf("expected second toggle to apply")
	}
	if sched.count() != 2 {
		t.Fatalf("expected two timers, got %d", sched.count())
	}

	sched.fire(0)
	if !mustGet(t, eng, id).Copied {
		t.Fatalf("expected superseded timer to leave flag set")
	}
	sched.fire(1)
	if mustGet(t, eng, id).Copied {
		t.Fatalf("expected latest timer to clear flag")
	}
	if eng.ToggleCopied("missing") {
		t.Fatalf("expected unknown id to be ignored")
	}
}

func TestRemoveRequiresSettledRecord(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	id, _ := eng.SubmitText("pending")
	if err := eng.Remove(id); !errors.Is(err, ErrRecordPending) {
		t.Fatalf("expected ErrRecordPending, got %v", err)
	}
	transport.next(t).succeed(&types.ServerRecord{ID: "5", Kind: types.KindText, Content: "pending"})
	waitSettled(t, eng)

	if err := eng.Remove(id); err != nil {
		t.Fatalf("remove by temp alias: %v", err)
	}
	if _, ok := eng.Get("5"); ok {
		t.Fatalf("expected record removed")
	}
	if err := eng.Remove("5"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestLoadAppendsServerRecordsOnce(t *testing.T) {
	transport := newFakeTransport()
	transport.fetch = []*types.ServerRecord{
		{ID: "1", Kind: types.KindText, Content: "first"},
		{ID: "2", Kind: types.KindImage, FileName: "a.png", ImageURL: "/view/a.png"},
		nil,
	}
	eng := newTestEngine(t, transport)

	added, err := eng.Load(context.Background())
	if err != nil || added != 2 {
		t.Fatalf("unexpected load result %d %v", added, err)
	}
	added, err = eng.Load(context.Background())
	if err != nil || added != 0 {
		t.Fatalf("expected reload to add nothing, got %d %v", added, err)
	}
	if got := types.CopyTextContent(mustGet(t, eng, "2")); got != "/view/a.png" {
		t.Fatalf("unexpected image copy content %q", got)
	}

	transport.fetchErr = errors.New("offline")
	if _, err := eng.Load(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	if _, err := newTestEngine(t, nil).Load(context.Background()); !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}

func TestSuccessReplacesLoadedDuplicate(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	id, _ := eng.SubmitText("race")
	call := transport.next(t)
	transport.fetch = []*types.ServerRecord{{ID: "77", Kind: types.KindText, Content: "race"}}
	if _, err := eng.Load(context.Background()); err != nil {
		t.Fatalf("load: %v", err)
	}
	if eng.Len() != 2 {
		t.Fatalf("expected loaded duplicate, got %d", eng.Len())
	}
	call.succeed(&types.ServerRecord{ID: "77", Kind: types.KindText, Content: "race"})
	waitSettled(t, eng)

	snapshot := eng.Snapshot()
	if len(snapshot) != 1 || snapshot[0].ID != "77" {
		t.Fatalf("expected single reconciled record, got %#v", snapshot)
	}
	if mustGet(t, eng, id).Ref != snapshot[0].Ref {
		t.Fatalf("expected provisional entry to survive")
	}
}

func TestResubmitCreatesNewRecord(t *testing.T) {
	transport := newFakeTransport()
	eng := newTestEngine(t, transport)

	id, _ := eng.SubmitText("again")
	if _, err := eng.Resubmit(id); !errors.Is(err, ErrNotFailed) {
		t.Fatalf("expected ErrNotFailed, got %v", err)
	}
	transport.next(t).fail(errors.New("offline"))
	waitSettled(t, eng)

	out, err := eng.Resubmit(id)
	if err != nil || len(out) != 1 || out[0] == id {
		t.Fatalf("unexpected resubmit result %v %v", out, err)
	}
	call := transport.next(t)
	if call.content != "again" {
		t.Fatalf("unexpected resubmitted content %q", call.content)
	}
	call.succeed(&types.ServerRecord{ID: "9", Kind: types.KindText, Content: "again"})
	waitSettled(t, eng)

	if eng.Len() != 2 || mustGet(t, eng, id).Status != types.StatusError {
		t.Fatalf("expected failed record to remain")
	}
	if _, err := eng.Resubmit("nope"); !errors.Is(err, ErrRecordNotFound) {
		t.Fatalf("expected ErrRecordNotFound, got %v", err)
	}
}

func TestWithoutTransport(t *testing.T) {
	eng := newTestEngine(t, nil)

	id, ok := eng.SubmitText("echo")
	if !ok || mustGet(t, eng, id).Status != types.StatusSuccess {
		t.Fatalf("expected local echo to succeed")
	}
	out := eng.SubmitFiles([]upload.File{upload.NewMemoryFile("a.txt", "text/plain", []byte("a"))})
	rec := mustGet(t, eng, out[0])
	if rec.Status != types.StatusError || rec.ErrorDetail != "no transport configured" {
		t.Fatalf("unexpected record %#v", rec)
	}
}

func TestSubscribeStreamsChanges(t *testing.T) {
	eng := newTestEngine(t, nil)
	events, cancel := eng.Subscribe()
	defer cancel()

	eng.SubmitText("hello")
	first := <-events
	second := <-events
	if first.Type != EventInserted || first.Record.Status != types.StatusPending {
		t.Fatalf("unexpected first event %#v", first)
	}
	if second.Type != EventUpdated || second.Record.Status != types.StatusSuccess || second.Ref != first.Ref {
		t.Fatalf("unexpected second event %#v", second)
	}

	cancel()
	cancel()
	if _, ok := <-events; ok {
		t.Fatalf("expected channel closed after cancel")
	}
}

func TestCloseReleasesPendingPreviews(t *testing.T) {
	transport := newFakeTransport()
	previews := blob.NewRegistry(0)
	eng := New(WithTransport(transport), WithPreviews(previews), WithAllocator(ids.NewSequence()))
	events, _ := eng.Subscribe()

	eng.SubmitFiles([]upload.File{pngFile(t, "a.png"), pngFile(t, "b.png")})
	transport.nextUploads(t, 2)
	if previews.Live() != 2 {
		t.Fatalf("expected two live previews, got %d", previews.Live())
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if previews.Live() != 0 {
		t.Fatalf("expected previews released, live=%d", previews.Live())
	}
	for range events {
	}
	if _, ok := eng.SubmitText("after close"); ok {
		t.Fatalf("expected submit after close to be rejected")
	}
	if err := eng.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
