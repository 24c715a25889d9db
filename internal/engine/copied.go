package engine

import (
	"time"

	"sendme/internal/logging"
)

// Scheduler arms the timers that reset copied flags. Tests substitute a
// manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type Timer interface {
	Stop() bool
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// ToggleCopied marks a record as recently copied and schedules the flag to
// clear after the copy window. Copying again restarts the window, so only
// the newest timer ever clears the flag.
func (e *Engine) ToggleCopied(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	ent, ok := e.byID[id]
	if !ok {
		return false
	}
	if ent.copyTimer != nil {
		ent.copyTimer.Stop()
	}
	ent.copyGen++
	gen := ent.copyGen
	ref := ent.rec.Ref
	if !ent.rec.Copied {
		ent.rec.Copied = true
		e.publishLocked(EventUpdated, ent)
	}
	ent.copyTimer = e.scheduler.AfterFunc(e.copyWindow, func() {
		e.clearCopied(ref, gen)
	})
	return true
}

func (e *Engine) clearCopied(ref, gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ent, ok := e.byRef[ref]
	if !ok || ent.copyGen != gen || !ent.rec.Copied {
		return
	}
	ent.rec.Copied = false
	ent.copyTimer = nil
	e.logger.Debug("copied flag reset", logging.F("id", ent.rec.ID))
	e.publishLocked(EventUpdated, ent)
}
