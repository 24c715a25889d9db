package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"sendme/internal/client"
	"sendme/internal/engine"
	"sendme/internal/ids"
	"sendme/internal/logging"
	"sendme/internal/types"
	"sendme/internal/upload"
)

const (
	uploadCommand = "/upload"
	helpText      = "enter send · ↑/↓ select · ctrl+y copy · ctrl+x cancel · ctrl+d remove · ctrl+r retry · ctrl+c quit"
)

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return m, tea.Quit
	case "enter":
		return m, m.submitInput()
	case "esc":
		if m.input.Value() != "" {
			m.input.Reset()
			return m, nil
		}
		m.selected = 0
		m.follow = true
		m.renderViewport()
		return m, nil
	case "up":
		m.moveSelection(-1)
		return m, nil
	case "down":
		m.moveSelection(1)
		return m, nil
	case "pgup":
		m.follow = false
		m.viewport.HalfPageUp()
		return m, nil
	case "pgdown":
		m.viewport.HalfPageDown()
		m.follow = m.viewport.AtBottom() && m.selected == 0
		return m, nil
	case "ctrl+y":
		return m, m.copySelected()
	case "ctrl+x":
		m.cancelSelected()
		return m, nil
	case "ctrl+d":
		return m, m.removeSelected()
	case "ctrl+r":
		m.resubmitSelected()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submitInput() tea.Cmd {
	value := m.input.Value()
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		m.setStatus("nothing to send")
		return nil
	}
	if trimmed == uploadCommand || strings.HasPrefix(trimmed, uploadCommand+" ") {
		if m.uploadPaths(strings.Fields(strings.TrimPrefix(trimmed, uploadCommand))) {
			m.input.Reset()
		}
		return nil
	}
	if _, ok := m.engine.SubmitText(value); !ok {
		m.setError("message not sent")
		return nil
	}
	m.input.Reset()
	m.selected = 0
	m.follow = true
	m.setStatus("sending...")
	m.refresh()
	return nil
}

// uploadPaths submits every path it can open. It reports false when nothing
// was submitted so the input is kept for correction.
func (m *Model) uploadPaths(paths []string) bool {
	if len(paths) == 0 {
		m.setError("usage: /upload <path> [path...]")
		return false
	}
	files := make([]upload.File, 0, len(paths))
	var errs []error
	for _, path := range paths {
		file, err := upload.OpenLocal(expandHome(path))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		files = append(files, file)
	}
	if len(files) == 0 {
		m.setError("upload: " + errors.Join(errs...).Error())
		return false
	}
	submitted := m.engine.SubmitFiles(files)
	m.logger.Info("files submitted", logging.F("count", len(submitted)))
	m.selected = 0
	m.follow = true
	if len(errs) > 0 {
		m.setError("uploading " + pluralize(len(submitted), "file") + "; skipped: " + errors.Join(errs...).Error())
	} else {
		m.setStatus("uploading " + pluralize(len(submitted), "file"))
	}
	m.refresh()
	return true
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func (m *Model) moveSelection(delta int) {
	if len(m.records) == 0 {
		return
	}
	index := -1
	for i, rec := range m.records {
		if rec.Ref == m.selected {
			index = i
			break
		}
	}
	switch {
	case index < 0 && delta < 0:
		index = len(m.records) - 1
	case index < 0:
		return
	default:
		index += delta
	}
	if index >= len(m.records) {
		m.selected = 0
		m.follow = true
		m.renderViewport()
		return
	}
	index = max(0, index)
	m.selected = m.records[index].Ref
	m.follow = false
	m.renderViewport()
}

func (m *Model) copySelected() tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok {
		m.setStatus("select a message to copy")
		return nil
	}
	text := types.CopyTextContent(rec)
	if text == "" {
		m.setStatus("nothing to copy")
		return nil
	}
	return copyCmd(rec.ID, text)
}

func (m *Model) applyCopyResult(msg copyResultMsg) tea.Cmd {
	if msg.err != nil {
		m.setError("copy failed: " + msg.err.Error())
		return nil
	}
	m.engine.ToggleCopied(msg.id)
	m.setStatus("copied to " + msg.method.String() + " clipboard")
	return nil
}

func (m *Model) cancelSelected() {
	rec, ok := m.selectedRecord()
	if !ok {
		m.setStatus("select an upload to cancel")
		return
	}
	if rec.Kind == types.KindText || !rec.Pending() {
		m.setStatus("only pending uploads can be cancelled")
		return
	}
	if m.engine.Cancel(rec.ID) {
		m.setStatus("upload cancelled")
	}
}

func (m *Model) removeSelected() tea.Cmd {
	rec, ok := m.selectedRecord()
	if !ok {
		m.setStatus("select a message to remove")
		return nil
	}
	if rec.Pending() {
		m.setError("still sending; cancel it first")
		return nil
	}
	// Failed and locally echoed records never reached the backend.
	if m.remote == nil || rec.Status == types.StatusError || ids.IsTemporary(rec.ID) {
		m.removeLocal(rec.ID)
		return nil
	}
	m.setStatus("deleting...")
	return removeRemoteCmd(m.remote, rec.ID)
}

func (m *Model) applyRemoteRemoved(msg remoteRemovedMsg) {
	if msg.err != nil && !client.IsNotFound(msg.err) {
		m.logger.Warn("delete failed", logging.F("id", msg.id), logging.Err(msg.err))
		m.setError("delete failed: " + msg.err.Error())
		return
	}
	m.removeLocal(msg.id)
}

func (m *Model) removeLocal(id string) {
	if err := m.engine.Remove(id); err != nil && !errors.Is(err, engine.ErrRecordNotFound) {
		m.setError("remove failed: " + err.Error())
		return
	}
	m.setStatus("removed")
	m.refresh()
}

func (m *Model) resubmitSelected() {
	rec, ok := m.selectedRecord()
	if !ok {
		m.setStatus("select a failed message to retry")
		return
	}
	if _, err := m.engine.Resubmit(rec.ID); err != nil {
		m.setError("retry failed: " + err.Error())
		return
	}
	m.selected = 0
	m.follow = true
	m.setStatus("retrying...")
	m.refresh()
}
