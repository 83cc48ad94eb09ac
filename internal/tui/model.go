// internal/tui/model.go
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const logLines = 1000

type tabType int

const (
	captureTab tabType = iota
	serverTab
	logsTab
)

type tab struct {
	title string
	id    tabType
}

// Controller drives the capture session.
type Controller interface {
	Start(ctx context.Context, identity domain.Identity) error
	Stop() error
	RetryPersist() error
	Snapshot() capture.Snapshot
}

// PreviewServer is the preview server as the TUI controls it.
type PreviewServer interface {
	Start() error
	Stop() error
	IsRunning() bool
	Addr() string
}

// LogSource supplies recent log lines for the logs tab.
type LogSource interface {
	Lines(n int) []string
}

type Options struct {
	Controller Controller
	// Updates carries snapshots from the controller's subscription.
	Updates <-chan capture.Snapshot
	Server  PreviewServer
	Logs    LogSource
}

// Msg types
type tickMsg time.Time

type snapshotMsg capture.Snapshot

type sessionClosedMsg struct{}

type actionResultMsg struct {
	action string
	err    error
}

const (
	fieldFirst = iota
	fieldLast
)

// Model holds our application state
type Model struct {
	controller Controller
	updates    <-chan capture.Snapshot
	server     PreviewServer
	logs       LogSource
	keys       KeyMap

	width       int
	height      int
	status      string
	currentTime time.Time
	activeTab   tabType
	tabs        []tab

	inputs   [2]textinput.Model
	focus    int
	snapshot capture.Snapshot
	starting bool

	logViewport viewport.Model
}

// New returns a Model with initial state
func New(opts Options) Model {
	first := textinput.New()
	first.Placeholder = "First name"
	first.Prompt = "First name: "
	first.CharLimit = 64
	first.Focus()

	last := textinput.New()
	last.Placeholder = "Last name"
	last.Prompt = "Last name:  "
	last.CharLimit = 64

	m := Model{
		controller:  opts.Controller,
		updates:     opts.Updates,
		server:      opts.Server,
		logs:        opts.Logs,
		keys:        DefaultKeyMap,
		status:      "Enter a name and press C-s to start",
		currentTime: time.Now(),
		activeTab:   captureTab,
		tabs: []tab{
			{title: "Capture", id: captureTab},
			{title: "Server", id: serverTab},
			{title: "Logs", id: logsTab},
		},
		inputs: [2]textinput.Model{first, last},
		logViewport: func() viewport.Model {
			vp := viewport.New(0, 10)
			vp.MouseWheelEnabled = true
			return vp
		}(),
	}
	if opts.Controller != nil {
		m.snapshot = opts.Controller.Snapshot()
	}
	return m
}

// Init runs any initial IO
func (m Model) Init() tea.Cmd {
	return tea.Batch(timeTickCmd(), waitForSnapshot(m.updates), textinput.Blink)
}

// identity returns the names currently typed into the form.
func (m Model) identity() domain.Identity {
	return domain.Identity{
		FirstName: m.inputs[fieldFirst].Value(),
		LastName:  m.inputs[fieldLast].Value(),
	}
}

// editable reports whether the name fields accept input. They are locked
// while a session is running.
func (m Model) editable() bool {
	switch m.snapshot.State {
	case capture.StateCapturing, capture.StateTransitioning:
		return false
	}
	return !m.snapshot.Saving && !m.starting
}

func (m *Model) setFocus(field int) tea.Cmd {
	m.focus = field
	var cmd tea.Cmd
	for i := range m.inputs {
		if i == field {
			cmd = m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
	return cmd
}

func (m *Model) refreshLogs() {
	if m.logs == nil {
		return
	}
	atBottom := m.logViewport.AtBottom()
	m.logViewport.SetContent(strings.Join(m.logs.Lines(logLines), "\n"))
	if atBottom {
		m.logViewport.GotoBottom()
	}
}

// waitForSnapshot blocks on the subscription. It is reissued after every
// snapshot so the TUI keeps following the session.
func waitForSnapshot(updates <-chan capture.Snapshot) tea.Cmd {
	if updates == nil {
		return nil
	}
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return sessionClosedMsg{}
		}
		return snapshotMsg(snap)
	}
}

func startCmd(ctrl Controller, identity domain.Identity) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "start", err: ctrl.Start(context.Background(), identity)}
	}
}

func stopCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "stop", err: ctrl.Stop()}
	}
}

func retryCmd(ctrl Controller) tea.Cmd {
	return func() tea.Msg {
		return actionResultMsg{action: "retry", err: ctrl.RetryPersist()}
	}
}

// Helper command for time updates
func timeTickCmd() tea.Cmd {
	return tea.Every(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
