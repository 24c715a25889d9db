package engine

import (
	"slices"

	"sendme/internal/blob"
	"sendme/internal/logging"
	"sendme/internal/types"
)

// ApplyProgress records upload progress for a pending image or file record.
// Values lower than the current one are stale and dropped.
func (e *Engine) ApplyProgress(id string, percent int) bool {
	percent = min(max(percent, 0), 100)

	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok || ent.rec.Status != types.StatusPending || ent.rec.Kind == types.KindText {
		return false
	}
	if percent <= ent.rec.Progress {
		return false
	}
	ent.rec.Progress = percent
	e.publishLocked(EventUpdated, ent)
	return true
}

// ApplySuccess reconciles a pending record with the server's copy. Once a
// record is terminal this is a no-op, so a success that lands after a
// cancellation is ignored.
func (e *Engine) ApplySuccess(id string, server *types.ServerRecord) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok {
		return false
	}
	if ent.rec.Status != types.StatusPending {
		e.logger.Debug("late success ignored", logging.F("id", id), logging.F("status", string(ent.rec.Status)))
		return false
	}
	e.settleSuccessLocked(ent, server)
	return true
}

func (e *Engine) settleSuccessLocked(ent *entry, server *types.ServerRecord) {
	tempID := ent.rec.ID
	if server != nil {
		e.mergeServerLocked(ent, server)
	}
	ent.rec.Status = types.StatusSuccess
	ent.rec.ErrorDetail = ""
	if ent.rec.Kind != types.KindText {
		ent.rec.Progress = 100
	}
	ent.cancel = nil
	e.tracker.Dispose(tempID)
	if p, ok := ent.rec.File(); ok && blob.IsBlob(p.Handle) {
		p.Handle = ""
		ent.rec.Payload = p
	}
	e.logger.Debug("record settled", logging.F("temp_id", tempID), logging.F("id", ent.rec.ID))
	e.publishLocked(EventUpdated, ent)
}

func (e *Engine) mergeServerLocked(ent *entry, server *types.ServerRecord) {
	if server.Kind.Valid() && server.Kind != ent.rec.Kind {
		e.logger.Warn("server kind differs from local kind",
			logging.F("id", ent.rec.ID),
			logging.F("local", string(ent.rec.Kind)),
			logging.F("server", string(server.Kind)))
	}
	if !server.CreatedAt.IsZero() {
		ent.rec.CreatedAt = server.CreatedAt
	}
	switch p := ent.rec.Payload.(type) {
	case types.TextPayload:
		if server.Content != "" {
			p.Content = server.Content
		}
		ent.rec.Payload = p
	case types.FilePayload:
		if handle := server.DisplayHandle(); handle != "" {
			p.Handle = handle
		}
		if server.FileName != "" {
			p.Name = server.FileName
		}
		if server.FileSize != "" {
			p.SizeLabel = server.FileSize
		}
		if server.FileType != "" {
			p.MIME = server.FileType
		}
		p.Path = server.FilePath
		ent.rec.Payload = p
	}

	if server.ID == "" || server.ID == ent.rec.ID {
		return
	}
	if other, ok := e.byID[server.ID]; ok && other != ent {
		// Load already fetched this record; the provisional entry keeps its slot.
		e.removeLocked(other)
	}
	ent.rec.ID = server.ID
	e.byID[server.ID] = ent
}

// ApplyFailure moves a pending record to error. The record keeps its
// temporary id so it can still be removed or resubmitted.
func (e *Engine) ApplyFailure(id, reason string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok {
		return false
	}
	if ent.rec.Status != types.StatusPending {
		e.logger.Debug("late failure ignored", logging.F("id", id), logging.F("status", string(ent.rec.Status)))
		return false
	}
	if reason == "" {
		reason = sendFailedReason
		if ent.rec.Kind != types.KindText {
			reason = uploadFailedReason
		}
	}
	ent.rec.Status = types.StatusError
	ent.rec.ErrorDetail = reason
	ent.rec.Progress = 0
	ent.cancel = nil
	e.tracker.Dispose(ent.rec.ID)
	if p, ok := ent.rec.File(); ok && blob.IsBlob(p.Handle) {
		p.Handle = ""
		ent.rec.Payload = p
	}
	e.logger.Info("record failed", logging.F("id", ent.rec.ID), logging.F("reason", reason))
	e.publishLocked(EventUpdated, ent)
	return true
}

// Cancel stops tracking a pending upload and fails its record with the
// cancellation reason. The transfer is asked to stop but may still report;
// anything it reports afterwards is ignored.
func (e *Engine) Cancel(id string) bool {
	e.mu.Lock()
	ent, ok := e.byID[id]
	if !ok || ent.rec.Status != types.StatusPending || ent.rec.Kind == types.KindText {
		e.mu.Unlock()
		return false
	}
	recID := ent.rec.ID
	stop := ent.cancel
	e.mu.Unlock()

	if !e.tracker.Cancel(recID) {
		return false
	}
	if stop != nil {
		stop()
	}
	return true
}

// Remove deletes a settled record on explicit user request. Pending records
// must be cancelled first.
func (e *Engine) Remove(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byID[id]
	if !ok {
		return ErrRecordNotFound
	}
	if ent.rec.Status == types.StatusPending {
		return ErrRecordPending
	}
	e.removeLocked(ent)
	return nil
}

func (e *Engine) removeLocked(ent *entry) {
	if idx := slices.Index(e.entries, ent); idx >= 0 {
		e.entries = slices.Delete(e.entries, idx, idx+1)
	}
	for key, candidate := range e.byID {
		if candidate == ent {
			delete(e.byID, key)
		}
	}
	delete(e.byRef, ent.rec.Ref)
	if ent.copyTimer != nil {
		ent.copyTimer.Stop()
		ent.copyTimer = nil
	}
	e.tracker.Dispose(ent.rec.ID)
	e.publishLocked(EventRemoved, ent)
}
