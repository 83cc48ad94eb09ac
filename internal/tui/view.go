// internal/tui/view.go
package tui

import (
	"fmt"
	"strings"

	"github.com/AlverezYari/poseframe/internal/capture"
	"github.com/AlverezYari/poseframe/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

// Style definitions
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0")).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("237")).
			Foreground(lipgloss.Color("250")).
			Padding(0, 1)

	mainContentStyle = lipgloss.NewStyle().
				Padding(1, 0)

	tabStyle = lipgloss.NewStyle().
			Padding(0, 1)

	activeTabStyle = tabStyle.
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("0"))

	instructionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("229"))

	transitionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	recognizingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))
)

// View renders the UI
func (m Model) View() string {
	timeStr := m.currentTime.Format("Mon Jan 2 15:04:05 2006")

	headerContent := lipgloss.JoinHorizontal(
		lipgloss.Center,
		"poseframe",
		lipgloss.NewStyle().
			Width(max(m.width-13, 0)).
			Align(lipgloss.Right).
			Render(timeStr),
	)
	header := headerStyle.Width(m.width).Render(headerContent)

	tabs := m.renderTabs()
	mainContent := mainContentStyle.Render(m.renderActiveTabContent())

	statusBar := statusBarStyle.Width(m.width).Render(
		fmt.Sprintf("Status: %s | F1-F3: Switch Views | C-s start  C-x stop  C-r retry | esc to quit", m.status),
	)

	return fmt.Sprintf("%s\n%s\n%s\n%s", header, tabs, mainContent, statusBar)
}

func (m Model) renderTabs() string {
	var renderedTabs []string
	for _, t := range m.tabs {
		style := tabStyle
		if t.id == m.activeTab {
			style = activeTabStyle
		}
		renderedTabs = append(renderedTabs, style.Render(t.title))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, renderedTabs...)
}

func (m Model) renderActiveTabContent() string {
	switch m.activeTab {
	case captureTab:
		return m.renderCapture()
	case serverTab:
		return m.renderServer()
	case logsTab:
		return m.logViewport.View()
	}
	return ""
}

func (m Model) renderCapture() string {
	var b strings.Builder
	snap := m.snapshot

	for _, input := range m.inputs {
		b.WriteString(input.View())
		b.WriteString("\n")
	}
	b.WriteString("\n")

	b.WriteString(instructionStyle.Render(snap.Instruction))
	b.WriteString("\n")
	if snap.TransitionMessage != "" {
		b.WriteString(transitionStyle.Render(snap.TransitionMessage))
		b.WriteString("\n")
	}
	if snap.ErrorMessage != "" {
		b.WriteString(errorStyle.Render(snap.ErrorMessage))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if snap.Recognizing {
		b.WriteString(recognizingStyle.Render("● Recognizing"))
	} else {
		b.WriteString(dimStyle.Render("○ Idle"))
	}
	b.WriteString("  ")
	b.WriteString(renderSlots(snap))
	b.WriteString("\n")

	if snap.UserID != "" {
		b.WriteString(fmt.Sprintf("\nSaved user ID: %s\n", snap.UserID))
	}
	if snap.SessionID != "" {
		b.WriteString(dimStyle.Render("session " + snap.SessionID + " (" + snap.State.String() + ")"))
	}
	return b.String()
}

// renderSlots shows capture progress, e.g. "[x] front  [>] sideways  [ ] down".
func renderSlots(snap capture.Snapshot) string {
	parts := make([]string, 0, domain.SlotCount)
	for i, p := range domain.Positions {
		mark := " "
		switch {
		case snap.Captured[i]:
			mark = "x"
		case snap.State == capture.StateCapturing && snap.Position == p:
			mark = ">"
		}
		parts = append(parts, fmt.Sprintf("[%s] %s", mark, p))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderServer() string {
	if m.server == nil {
		return "Preview server disabled"
	}
	status := "Stopped"
	if m.server.IsRunning() {
		status = "Running on " + m.server.Addr()
	}
	return fmt.Sprintf("Preview Server Status:\n"+
		"• Status: %s\n"+
		"• Routes: /ws/preview /ws/session /status /metrics\n"+
		"• Press C-p to start/stop server\n", status)
}
