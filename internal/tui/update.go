// internal/tui/update.go
package tui

import (
	"errors"
	"fmt"
	"time"

	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/AlverezYari/poseframe/pkg/camera"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logViewport.Width = msg.Width
		m.logViewport.Height = max(msg.Height-6, 3)
		m.refreshLogs()

	case tickMsg:
		m.currentTime = time.Time(msg)
		m.refreshLogs()
		return m, timeTickCmd()

	case snapshotMsg:
		m.snapshot = capture.Snapshot(msg)
		return m, waitForSnapshot(m.updates)

	case sessionClosedMsg:
		m.status = "Session closed"
		m.updates = nil

	case actionResultMsg:
		return m.handleActionResult(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	if m.activeTab == logsTab {
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.CaptureTab):
		m.activeTab = captureTab
		return m, nil
	case key.Matches(msg, m.keys.ServerTab):
		m.activeTab = serverTab
		return m, nil
	case key.Matches(msg, m.keys.LogsTab):
		m.activeTab = logsTab
		m.refreshLogs()
		return m, nil

	case key.Matches(msg, m.keys.Start):
		return m.start()

	case key.Matches(msg, m.keys.Stop):
		if m.controller == nil {
			return m, nil
		}
		m.status = "Stopping..."
		return m, stopCmd(m.controller)

	case key.Matches(msg, m.keys.Retry):
		if m.controller == nil {
			return m, nil
		}
		m.status = "Retrying save..."
		return m, retryCmd(m.controller)

	case key.Matches(msg, m.keys.ToggleServer):
		m.toggleServer()
		return m, nil
	}

	if m.activeTab == logsTab {
		var cmd tea.Cmd
		m.logViewport, cmd = m.logViewport.Update(msg)
		return m, cmd
	}
	if m.activeTab != captureTab || !m.editable() {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.NextField):
		return m, m.setFocus((m.focus + 1) % len(m.inputs))
	case key.Matches(msg, m.keys.Submit):
		if m.focus == fieldFirst {
			return m, m.setFocus(fieldLast)
		}
		return m.start()
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m Model) start() (tea.Model, tea.Cmd) {
	if m.controller == nil || m.starting {
		return m, nil
	}
	// The controller validates the names and reports the error itself.
	identity := m.identity().Normalize()
	m.starting = true
	m.status = fmt.Sprintf("Starting capture for %s...", identity)
	return m, startCmd(m.controller, identity)
}

func (m Model) handleActionResult(msg actionResultMsg) Model {
	if msg.action == "start" {
		m.starting = false
	}
	if msg.err == nil {
		switch msg.action {
		case "start":
			m.status = "Capturing"
		case "stop":
			m.status = "Stopped"
		case "retry":
			m.status = "Save retried"
		}
		return m
	}

	switch {
	case errors.Is(msg.err, domain.ErrValidation):
		m.status = "First and last name are required"
	case errors.Is(msg.err, camera.ErrDeviceUnavailable):
		m.status = "Camera unavailable"
	case errors.Is(msg.err, capture.ErrNothingToRetry):
		m.status = "Nothing to retry"
	default:
		m.status = fmt.Sprintf("Error: %v", msg.err)
	}
	return m
}

func (m *Model) toggleServer() {
	if m.server == nil {
		return
	}
	if m.server.IsRunning() {
		if err := m.server.Stop(); err != nil {
			m.status = fmt.Sprintf("Error stopping server: %v", err)
		} else {
			m.status = "Server stopped"
		}
		return
	}
	if err := m.server.Start(); err != nil {
		m.status = fmt.Sprintf("Error starting server: %v", err)
	} else {
		m.status = fmt.Sprintf("Server started on %s", m.server.Addr())
	}
}
