package engine

import (
	"context"
	"errors"
	"strings"

	"sendme/internal/logging"
	"sendme/internal/types"
	"sendme/internal/upload"
)

const (
	sendFailedReason   = "Failed to send"
	uploadFailedReason = "Upload failed"
	noTransportReason  = "no transport configured"
	emptyReplyReason   = "empty response from server"
)

// SubmitText appends a text record before any network call begins. Content
// that is empty after trimming is rejected without touching the collection.
func (e *Engine) SubmitText(content string) (string, bool) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return "", false
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", false
	}
	rec := types.Record{
		ID:        e.ids.New(types.KindText),
		Kind:      types.KindText,
		Status:    types.StatusPending,
		Payload:   types.TextPayload{Content: content},
		CreatedAt: e.now(),
		Device:    e.device,
	}
	ent := e.insertLocked(rec)
	id := ent.rec.ID
	if e.transport == nil {
		e.settleSuccessLocked(ent, nil)
		e.mu.Unlock()
		e.logger.Debug("text echoed locally", logging.F("id", id))
		return id, true
	}
	ctx, cancel := context.WithCancel(e.ctx)
	ent.cancel = cancel
	e.tasks.Add(1)
	e.mu.Unlock()

	go e.runText(ctx, cancel, id, trimmed)
	return id, true
}

func (e *Engine) runText(ctx context.Context, cancel context.CancelFunc, id, content string) {
	defer e.tasks.Done()
	defer cancel()

	server, err := e.transport.SendText(ctx, content, e.device)
	switch {
	case err != nil:
		e.logger.Warn("send text failed", logging.F("id", id), logging.Err(err))
		e.ApplyFailure(id, failureReason(err, sendFailedReason, false))
	case server == nil:
		e.ApplyFailure(id, emptyReplyReason)
	default:
		e.ApplySuccess(id, server)
	}
}

type queuedUpload struct {
	id   string
	file upload.File
	ctx  context.Context
	stop context.CancelFunc
}

// SubmitFiles appends one pending record per file, in input order, before
// any upload starts. Each upload then settles independently.
func (e *Engine) SubmitFiles(files []upload.File) []string {
	prepared := make([]types.Record, 0, len(files))
	sources := make([]upload.File, 0, len(files))
	for _, file := range files {
		if file == nil {
			continue
		}
		kind := types.KindForMIME(file.ContentType())
		rec := types.Record{
			ID:     e.ids.New(kind),
			Kind:   kind,
			Status: types.StatusPending,
			Device: e.device,
		}
		job := e.tracker.Begin(rec, file)
		rec.Payload = types.FilePayload{
			Handle:    job.Preview.URL,
			Name:      file.Name(),
			Size:      file.Size(),
			SizeLabel: types.DisplaySize(file.Size()),
			MIME:      file.ContentType(),
			Width:     job.Preview.Width,
			Height:    job.Preview.Height,
		}
		prepared = append(prepared, rec)
		sources = append(sources, file)
	}
	if len(prepared) == 0 {
		return nil
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		for _, rec := range prepared {
			e.tracker.Dispose(rec.ID)
		}
		return nil
	}
	idsOut := make([]string, 0, len(prepared))
	queued := make([]queuedUpload, 0, len(prepared))
	now := e.now()
	for i, rec := range prepared {
		rec.CreatedAt = now
		ent := e.insertLocked(rec)
		ent.file = sources[i]
		idsOut = append(idsOut, rec.ID)
		if e.transport == nil {
			continue
		}
		ctx, cancel := context.WithCancel(e.ctx)
		ent.cancel = cancel
		e.tasks.Add(1)
		queued = append(queued, queuedUpload{id: rec.ID, file: sources[i], ctx: ctx, stop: cancel})
	}
	e.mu.Unlock()

	if e.transport == nil {
		for _, id := range idsOut {
			e.ApplyFailure(id, noTransportReason)
		}
		return idsOut
	}
	for _, q := range queued {
		go e.runUpload(q)
	}
	return idsOut
}

func (e *Engine) runUpload(q queuedUpload) {
	defer e.tasks.Done()
	defer q.stop()

	if err := e.uploads.Acquire(q.ctx, 1); err != nil {
		e.ApplyFailure(q.id, failureReason(err, uploadFailedReason, true))
		return
	}
	defer e.uploads.Release(1)
	if rec, ok := e.Get(q.id); !ok || !rec.Pending() {
		return
	}

	server, err := e.transport.UploadFile(q.ctx, q.file, e.device, func(loaded, total int64) {
		e.tracker.ReportProgress(q.id, loaded, total)
	})
	switch {
	case err != nil:
		e.logger.Warn("upload failed", logging.F("id", q.id), logging.F("file", q.file.Name()), logging.Err(err))
		e.ApplyFailure(q.id, failureReason(err, uploadFailedReason, true))
	case server == nil:
		e.ApplyFailure(q.id, emptyReplyReason)
	default:
		e.ApplySuccess(q.id, server)
	}
}

// Resubmit sends a failed record's content again as a brand-new record. The
// failed record stays in place.
func (e *Engine) Resubmit(id string) ([]string, error) {
	e.mu.Lock()
	ent, ok := e.byID[id]
	if !ok {
		e.mu.Unlock()
		return nil, ErrRecordNotFound
	}
	if ent.rec.Status != types.StatusError {
		e.mu.Unlock()
		return nil, ErrNotFailed
	}
	rec, file := ent.rec, ent.file
	e.mu.Unlock()

	if rec.Kind == types.KindText {
		p, _ := rec.Text()
		newID, ok := e.SubmitText(p.Content)
		if !ok {
			return nil, ErrClosed
		}
		return []string{newID}, nil
	}
	if file == nil {
		return nil, errors.New("original file is no longer available")
	}
	out := e.SubmitFiles([]upload.File{file})
	if len(out) == 0 {
		return nil, ErrClosed
	}
	return out, nil
}

func failureReason(err error, fallback string, useMessage bool) string {
	var detailed DetailedError
	if errors.As(err, &detailed) {
		if detail := strings.TrimSpace(detailed.Detail()); detail != "" {
			return detail
		}
	}
	if useMessage && err != nil {
		if msg := strings.TrimSpace(err.Error()); msg != "" {
			return msg
		}
	}
	return fallback
}
