// Package tui is the terminal front end: a Bubble Tea program fed by
// the run event bus, with a turn transcript pane, a graph progress pane
// and a settings overlay.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/config"
	"github.com/aristath/agentflow/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTurns PaneID = iota
	PaneGraph
)

// Model is the root Bubble Tea model.
type Model struct {
	turnPane     TurnPaneModel
	graphPane    GraphPaneModel
	settingsPane SettingsPaneModel
	focusedPane  PaneID
	eventSub     <-chan events.Event
	width        int
	height       int
	quitting     bool
	showSettings bool
}

// New creates the root model, subscribed to every topic on the bus.
func New(bus *events.Bus, cfg *config.Config, globalPath, projectPath string) Model {
	return Model{
		turnPane:     NewTurnPaneModel(),
		graphPane:    NewGraphPaneModel(),
		settingsPane: NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:  PaneTurns,
		eventSub:     bus.SubscribeAll(256),
	}
}

// Init starts waiting for bus events.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that blocks for the next bus event.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// The settings overlay is modal: it owns the keyboard while open.
		if m.showSettings {
			switch msg.String() {
			case KeySettings, "esc":
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)

				// The pane hides itself after a successful save.
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyShiftTab:
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTurns
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneGraph
			m.updateFocusStates()

		default:
			switch m.focusedPane {
			case PaneTurns:
				var cmd tea.Cmd
				m.turnPane, cmd = m.turnPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneGraph:
				var cmd tea.Cmd
				m.graphPane, cmd = m.graphPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case events.TurnStartedEvent, events.TurnActionEvent, events.TurnEndedEvent:
		var cmd tea.Cmd
		m.turnPane, cmd = m.turnPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))

	case events.RunProgressEvent, events.TaskTransitionEvent,
		events.TaskRegisteredEvent, events.RunFinishedEvent:
		var cmd tea.Cmd
		m.graphPane, cmd = m.graphPane.Update(msg)
		cmds = append(cmds, cmd, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	if m.showSettings {
		return m.settingsPane.View()
	}

	leftPane := m.turnPane.View()
	rightPane := m.graphPane.View()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)
	helpBar := HelpView()

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, helpBar)
}

// computeLayout calculates pane dimensions and updates the child models.
func (m *Model) computeLayout() {
	leftWidth := (m.width * 60) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1

	m.turnPane.SetSize(leftWidth, availableHeight)
	m.graphPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.turnPane.SetFocused(m.focusedPane == PaneTurns)
	m.graphPane.SetFocused(m.focusedPane == PaneGraph)
}
