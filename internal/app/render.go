package app

import (
	"fmt"
	"strings"

	xansi "github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"sendme/internal/engine"
	"sendme/internal/types"
)

const (
	deviceColumnWidth = 8
	bodyIndent        = "  "
	timeLayout        = "Jan 2 15:04"
)

// renderRecords lays out every record and returns the line span of each one,
// keyed by ref, so the selection can be kept in view.
func (m *Model) renderRecords(width int) (string, map[uint64][2]int) {
	width = max(minViewportWidth, width)
	var lines []string
	offsets := make(map[uint64][2]int, len(m.records))
	for i, rec := range m.records {
		if i > 0 {
			lines = append(lines, "")
		}
		start := len(lines)
		lines = append(lines, m.renderRecordLines(rec, width)...)
		offsets[rec.Ref] = [2]int{start, len(lines)}
	}
	return strings.Join(lines, "\n"), offsets
}

func (m *Model) renderRecordLines(rec types.Record, width int) []string {
	selected := rec.Ref == m.selected && m.selected != 0
	lines := []string{m.renderHeader(rec, width, selected)}
	bodyWidth := max(1, width-len(bodyIndent))
	for _, line := range strings.Split(m.renderBody(rec, bodyWidth), "\n") {
		lines = append(lines, bodyIndent+line)
	}
	if rec.Status == types.StatusError && rec.ErrorDetail != "" {
		lines = append(lines, bodyIndent+errorStyle.Render(xansi.Truncate("✗ "+rec.ErrorDetail, bodyWidth, "…")))
	}
	return lines
}

func (m *Model) renderHeader(rec types.Record, width int, selected bool) string {
	marker := "  "
	if selected {
		marker = "> "
	}
	device := runewidth.FillRight(string(rec.Device), deviceColumnWidth)
	stamp := ""
	if !rec.CreatedAt.IsZero() {
		stamp = rec.CreatedAt.Local().Format(timeLayout)
	}
	header := marker + device + " " + stamp + "  " + statusLabel(rec)
	header = xansi.Truncate(header, width, "…")
	if selected {
		header = selectedStyle.Render(header)
	} else {
		header = metaStyle.Render(header)
	}
	if rec.Copied {
		header += " " + copiedStyle.Render("copied!")
	}
	return header
}

func statusLabel(rec types.Record) string {
	switch rec.Status {
	case types.StatusPending:
		if rec.Kind == types.KindText {
			return "sending"
		}
		return fmt.Sprintf("uploading %d%%", rec.Progress)
	case types.StatusError:
		return "failed"
	default:
		return "sent"
	}
}

func (m *Model) renderBody(rec types.Record, width int) string {
	switch p := rec.Payload.(type) {
	case types.TextPayload:
		body := plainText(p.Content, width)
		if m.markdown && rec.Status == types.StatusSuccess {
			body = renderMarkdown(p.Content, width)
		}
		if rec.Pending() {
			body = m.loader.View() + " " + body
		}
		return body
	case types.FilePayload:
		return m.renderFileBody(rec, p, width)
	default:
		return ""
	}
}

func (m *Model) renderFileBody(rec types.Record, p types.FilePayload, width int) string {
	icon := "📄"
	if rec.Kind == types.KindImage {
		icon = "🖼"
	}
	title := icon + " " + p.Name
	if p.SizeLabel != "" {
		title += " (" + p.SizeLabel + ")"
	}
	if p.Width > 0 && p.Height > 0 {
		title += fmt.Sprintf(" %dx%d", p.Width, p.Height)
	}
	lines := []string{fileStyle.Render(xansi.Truncate(title, width, "…"))}
	switch {
	case rec.Pending():
		lines = append(lines, m.bar.ViewAs(float64(rec.Progress)/100))
	case rec.Status == types.StatusSuccess && p.Handle != "":
		lines = append(lines, metaStyle.Render(xansi.Truncate(p.Handle, width, "…")))
	}
	return strings.Join(lines, "\n")
}

func statsLabel(stats engine.Stats) string {
	label := pluralize(stats.Success, "message")
	if stats.Pending > 0 {
		label += fmt.Sprintf(", %d pending", stats.Pending)
	}
	if stats.Error > 0 {
		label += fmt.Sprintf(", %d failed", stats.Error)
	}
	return label
}

func pluralize(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
