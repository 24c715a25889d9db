package app

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"sendme/internal/engine"
	"sendme/internal/logging"
	"sendme/internal/types"
)

const (
	minViewportWidth  = 20
	minContentHeight  = 4
	statusLinePadding = 1
	progressBarWidth  = 30
	requestTimeout    = 30 * time.Second
	inputPlaceholder  = "Type a message, or /upload <path>..."
)

// Remover deletes a reconciled record on the backend.
type Remover interface {
	DeleteMessage(ctx context.Context, id string) error
}

type Options struct {
	Remote         Remover
	RenderMarkdown bool
	Title          string
	// Load fetches the backend's records once when the program starts.
	Load   bool
	Logger logging.Logger
}

type Model struct {
	engine      *engine.Engine
	events      <-chan engine.Event
	unsubscribe func()
	remote      Remover
	logger      logging.Logger

	viewport viewport.Model
	input    textinput.Model
	loader   spinner.Model
	bar      progress.Model

	records     []types.Record
	lineOffsets map[uint64][2]int
	selected    uint64
	follow      bool
	markdown    bool
	title       string
	load        bool
	loading     bool
	status      string
	statusErr   bool
	width       int
	height      int
}

func NewModel(eng *engine.Engine, opts Options) Model {
	vp := viewport.New(minViewportWidth, minContentHeight)
	vp.SetContent("No messages yet.")

	input := textinput.New()
	input.Placeholder = inputPlaceholder
	input.Prompt = "> "
	input.Focus()

	loader := spinner.New()
	loader.Spinner = spinner.Line
	loader.Style = pendingStyle

	bar := progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressBarWidth))

	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "SendMe"
	}
	events, unsubscribe := eng.Subscribe()
	m := Model{
		engine:      eng,
		events:      events,
		unsubscribe: unsubscribe,
		remote:      opts.Remote,
		logger:      logger,
		viewport:    vp,
		input:       input,
		loader:      loader,
		bar:         bar,
		lineOffsets: map[uint64][2]int{},
		follow:      true,
		markdown:    opts.RenderMarkdown,
		title:       title,
		load:        opts.Load,
	}
	m.refresh()
	return m
}

// Run drives the TUI until the user quits. The engine stays open; the caller
// closes it.
func Run(eng *engine.Engine, opts Options) error {
	model := NewModel(eng, opts)
	defer model.Close()
	p := tea.NewProgram(&model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func (m *Model) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.loader.Tick, waitForEvent(m.events)}
	if m.load {
		m.loading = true
		m.setStatus("loading messages...")
		cmds = append(cmds, loadCmd(m.engine))
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	case engineEventMsg:
		m.refresh()
		return m, waitForEvent(m.events)
	case engineClosedMsg:
		m.events = nil
		m.setError("engine closed")
		return m, nil
	case loadedMsg:
		m.loading = false
		if msg.err != nil {
			m.logger.Warn("load failed", logging.Err(msg.err))
			m.setError("load failed: " + msg.err.Error())
			return m, nil
		}
		m.setStatus(pluralize(msg.added, "message") + " loaded")
		m.refresh()
		return m, nil
	case copyResultMsg:
		return m, m.applyCopyResult(msg)
	case remoteRemovedMsg:
		m.applyRemoteRemoved(msg)
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.loader, cmd = m.loader.Update(msg)
		if m.hasPending() {
			m.renderViewport()
		}
		return m, cmd
	case progress.FrameMsg:
		model, cmd := m.bar.Update(msg)
		if bar, ok := model.(progress.Model); ok {
			m.bar = bar
		}
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) View() string {
	stats := m.engine.Stats()
	header := headerStyle.Render(m.title) + metaStyle.Render(" · "+statsLabel(stats))
	divider := dividerStyle.Render(strings.Repeat("─", max(1, m.viewport.Width)))
	body := lipgloss.JoinVertical(lipgloss.Left, header, m.viewport.View(), divider, m.input.View())

	status := statusStyle.Render(m.status)
	if m.statusErr {
		status = errorStyle.Render(m.status)
	}
	statusLine := renderStatusLine(m.width, helpStyle.Render(helpText), status)
	if m.height <= 0 || m.width <= 0 {
		return body
	}
	return lipgloss.JoinVertical(lipgloss.Left, body, statusLine)
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height
	// header, divider, input and status line
	vpHeight := max(minContentHeight, height-4)
	m.viewport.Width = max(minViewportWidth, width)
	m.viewport.Height = vpHeight
	m.input.Width = max(1, width-lipgloss.Width(m.input.Prompt)-1)
	m.bar.Width = min(progressBarWidth, max(10, width/3))
	m.renderViewport()
}

// refresh replaces the local copy of the collection with a new snapshot.
func (m *Model) refresh() {
	m.records = m.engine.Snapshot()
	if m.selected != 0 {
		if _, ok := m.engine.GetByRef(m.selected); !ok {
			m.selected = 0
			m.follow = true
		}
	}
	m.renderViewport()
}

func (m *Model) renderViewport() {
	if len(m.records) == 0 {
		m.lineOffsets = map[uint64][2]int{}
		m.viewport.SetContent("No messages yet.")
		return
	}
	content, offsets := m.renderRecords(m.viewport.Width)
	m.lineOffsets = offsets
	m.viewport.SetContent(content)
	if m.follow {
		m.viewport.GotoBottom()
		return
	}
	m.scrollToSelected()
}

func (m *Model) scrollToSelected() {
	span, ok := m.lineOffsets[m.selected]
	if !ok {
		return
	}
	start, end := span[0], span[1]
	if start < m.viewport.YOffset {
		m.viewport.SetYOffset(start)
	} else if end > m.viewport.YOffset+m.viewport.Height {
		m.viewport.SetYOffset(end - m.viewport.Height)
	}
}

func (m *Model) hasPending() bool {
	for _, rec := range m.records {
		if rec.Pending() {
			return true
		}
	}
	return false
}

func (m *Model) selectedRecord() (types.Record, bool) {
	if m.selected == 0 {
		return types.Record{}, false
	}
	return m.engine.GetByRef(m.selected)
}

func (m *Model) setStatus(status string) {
	m.status = status
	m.statusErr = false
}

func (m *Model) setError(status string) {
	m.status = status
	m.statusErr = true
}

func renderStatusLine(width int, help, status string) string {
	if width <= 0 {
		return help + " " + status
	}
	padding := width - lipgloss.Width(help) - lipgloss.Width(status)
	if padding < statusLinePadding {
		padding = statusLinePadding
	}
	return help + strings.Repeat(" ", padding) + status
}
