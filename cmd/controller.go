package cmd

import (
	tea "github.com/charmbracelet/bubbletea"
)

// State represents the minimal shared application state decoupled from the
// UI model. The connectivity flag is written by session outcomes, fallback
// outcomes, and the independent liveness probe alike.
type State struct {
	Connected bool
	Theme     string
}

// StateUpdateMsg is emitted by the controller to notify the UI of state changes.
type StateUpdateMsg struct {
	NewState State
	Notice   string
}

// Controller owns data/state updates and produces Tea messages for the UI.
type Controller struct {
	state State
}

func NewController(initial State) *Controller {
	return &Controller{state: initial}
}

// UpdateConnectivity records the latest connectivity observation and
// notifies the UI.
func (c *Controller) UpdateConnectivity(connected bool) tea.Cmd {
	changed := c.state.Connected != connected
	c.state.Connected = connected
	notice := ""
	if changed && !connected {
		notice = "Lost connection to the server."
	} else if changed && connected {
		notice = "Reconnected to the server."
	}
	return func() tea.Msg { return StateUpdateMsg{NewState: c.state, Notice: notice} }
}

// SwitchTheme updates the display theme and notifies the UI.
func (c *Controller) SwitchTheme(theme string) tea.Cmd {
	c.state.Theme = theme
	return func() tea.Msg { return StateUpdateMsg{NewState: c.state, Notice: "Switched theme to '" + theme + "'"} }
}
