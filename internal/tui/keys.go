// internal/tui/keys.go
package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Start        key.Binding
	Stop         key.Binding
	Retry        key.Binding
	NextField    key.Binding
	Submit       key.Binding
	ToggleServer key.Binding
	CaptureTab   key.Binding
	ServerTab    key.Binding
	LogsTab      key.Binding
	Quit         key.Binding
}

var DefaultKeyMap = KeyMap{
	Start: key.NewBinding(
		key.WithKeys("ctrl+s"),
		key.WithHelp("C-s", "start"),
	),
	Stop: key.NewBinding(
		key.WithKeys("ctrl+x"),
		key.WithHelp("C-x", "stop"),
	),
	Retry: key.NewBinding(
		key.WithKeys("ctrl+r"),
		key.WithHelp("C-r", "retry save"),
	),
	NextField: key.NewBinding(
		key.WithKeys("tab", "shift+tab"),
		key.WithHelp("tab", "next field"),
	),
	Submit: key.NewBinding(
		key.WithKeys("enter"),
	),
	ToggleServer: key.NewBinding(
		key.WithKeys("ctrl+p"),
		key.WithHelp("C-p", "start/stop server"),
	),
	CaptureTab: key.NewBinding(
		key.WithKeys("f1"),
		key.WithHelp("F1", "capture"),
	),
	ServerTab: key.NewBinding(
		key.WithKeys("f2"),
		key.WithHelp("F2", "server"),
	),
	LogsTab: key.NewBinding(
		key.WithKeys("f3"),
		key.WithHelp("F3", "logs"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "esc"),
		key.WithHelp("esc", "quit"),
	),
}
