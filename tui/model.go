// Package tui renders the robot dashboard in a terminal with Bubble Tea.
package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/SoberingRealityCheck/hexapod-server/robotstate"
)

// Source is what the dashboard reads from. *engine.Engine implements it.
type Source interface {
	RobotName() string
	Snapshot() robotstate.RobotState
	Status() robotstate.Status
	RestartSync() robotstate.Status
}

// Options configures the dashboard.
type Options struct {
	Source Source
	// Refresh is how often the snapshot is re-read. Defaults to 500ms.
	Refresh time.Duration
}

// Model is the root Bubble Tea model.
type Model struct {
	src     Source
	refresh time.Duration
	keys    keyMap
	styles  styles

	width  int
	height int
	ready  bool

	spinner  spinner.Model
	messages viewport.Model

	state      robotstate.RobotState
	status     robotstate.Status
	restarting bool
}

func New(opts Options) Model {
	refresh := opts.Refresh
	if refresh <= 0 {
		refresh = 500 * time.Millisecond
	}
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return Model{
		src:      opts.Source,
		refresh:  refresh,
		keys:     defaultKeyMap(),
		styles:   defaultStyles(),
		spinner:  sp,
		messages: viewport.New(60, 8),
		status:   robotstate.Status{Loading: true},
	}
}

type tickMsg time.Time

type snapshotMsg struct {
	state  robotstate.RobotState
	status robotstate.Status
}

type restartedMsg robotstate.Status

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg{state: src.Snapshot(), status: src.Status()}
	}
}

func restartCmd(src Source) tea.Cmd {
	return func() tea.Msg {
		return restartedMsg(src.RestartSync())
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		tickCmd(m.refresh),
		fetchSnapshotCmd(m.src),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.resizeMessages()
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchSnapshotCmd(m.src), tickCmd(m.refresh))

	case snapshotMsg:
		m.apply(msg.state, msg.status)
		return m, nil

	case restartedMsg:
		m.restarting = false
		m.status = robotstate.Status(msg)
		return m, fetchSnapshotCmd(m.src)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Restart):
		if m.restarting {
			return m, nil
		}
		m.restarting = true
		return m, restartCmd(m.src)
	case key.Matches(msg, m.keys.Up):
		m.messages.ScrollUp(1)
	case key.Matches(msg, m.keys.Down):
		m.messages.ScrollDown(1)
	case key.Matches(msg, m.keys.PageUp):
		m.messages.PageUp()
	case key.Matches(msg, m.keys.PageDown):
		m.messages.PageDown()
	}
	return m, nil
}

// apply stores a fresh snapshot, keeping the message view pinned to the
// bottom when it already was.
func (m *Model) apply(state robotstate.RobotState, status robotstate.Status) {
	m.state = state
	m.status = status
	follow := m.messages.AtBottom()
	m.messages.SetContent(m.renderMessages())
	if follow {
		m.messages.GotoBottom()
	}
}

func (m *Model) resizeMessages() {
	w := max(m.width-4, 20)
	// header, status panel, banner and footer take roughly 14 rows
	h := max(m.height-14, 3)
	m.messages.Width = w
	m.messages.Height = h
	m.messages.SetContent(m.renderMessages())
}

// Run starts the Bubble Tea program and blocks until it exits.
func Run(opts Options) error {
	p := tea.NewProgram(New(opts), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
