package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/events"
)

// agentLog accumulates the visible activity of one agent across its
// turns.
type agentLog struct {
	Name     string
	Active   bool // Holds the current turn
	Turns    int
	Lines    []string
	LastSeen time.Time
}

// TurnPaneModel shows the agent roster on the left and the selected
// agent's turn transcript in a scrollable viewport on the right.
type TurnPaneModel struct {
	agents      map[string]*agentLog
	agentOrder  []string // first-turn order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
	updateTag   int // for debouncing viewport refreshes
}

func NewTurnPaneModel() TurnPaneModel {
	vp := viewport.New(0, 0)
	return TurnPaneModel{
		agents:   make(map[string]*agentLog),
		viewport: vp,
	}
}

// tickMsg is used for debouncing viewport updates.
type tickMsg struct {
	tag int
}

// Update handles messages for the turn pane.
func (m TurnPaneModel) Update(msg tea.Msg) (TurnPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.agentOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			// Other keys scroll the viewport.
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TurnStartedEvent:
		log := m.logFor(msg.Agent)
		log.Active = true
		log.Turns++
		log.LastSeen = msg.Timestamp
		tasks := ""
		if len(msg.TaskIDs) > 0 {
			tasks = " on " + strings.Join(msg.TaskIDs, ", ")
		}
		log.Lines = append(log.Lines, fmt.Sprintf("--- turn %d%s ---", msg.Turn, tasks))
		if len(m.agentOrder) == 1 {
			m.selectedIdx = 0
			m.updateViewportContent()
		}

	case events.TurnActionEvent:
		log := m.logFor(msg.Agent)
		line := msg.Kind
		if msg.ID != "" {
			line += " [" + msg.ID + "]"
		}
		if msg.Content != "" {
			line += ": " + msg.Content
		}
		log.Lines = append(log.Lines, line)
		if m.selectedAgent() == msg.Agent {
			m.updateTag++
			tag := m.updateTag
			return m, tea.Tick(50*time.Millisecond, func(time.Time) tea.Msg {
				return tickMsg{tag: tag}
			})
		}

	case events.TurnEndedEvent:
		log := m.logFor(msg.Agent)
		log.Active = false
		handoff := ""
		if msg.Next != "" {
			handoff = ", handed to " + msg.Next
		}
		log.Lines = append(log.Lines, fmt.Sprintf("--- turn over (%d actions, %d calls%s) ---", msg.Actions, msg.Calls, handoff))
		if m.selectedAgent() == msg.Agent {
			m.updateViewportContent()
		}

	case tickMsg:
		// Only refresh when this tick matches the newest tag.
		if msg.tag == m.updateTag {
			m.updateViewportContent()
		}
	}

	return m, cmd
}

// logFor returns the log for an agent, creating it on first sight.
func (m *TurnPaneModel) logFor(name string) *agentLog {
	if log, ok := m.agents[name]; ok {
		return log
	}
	log := &agentLog{Name: name}
	m.agents[name] = log
	m.agentOrder = append(m.agentOrder, name)
	return log
}

// View renders the turn pane.
func (m TurnPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	listWidth := 25
	viewportWidth := m.width - listWidth - 4 // borders and padding

	listContent := m.renderAgentList(listWidth)
	viewportContent := m.viewport.View()

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listContent,
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(viewportContent),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderAgentList renders the roster column.
func (m TurnPaneModel) renderAgentList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Agents")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.agentOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting for first turn..."))
	} else {
		for i, name := range m.agentOrder {
			log := m.agents[name]
			icon := StyleStatusPending.Render("○")
			if log.Active {
				icon = StyleStatusRunning.Render("●")
			}

			display := name
			if len(display) > width-10 {
				display = display[:width-13] + "..."
			}

			line := fmt.Sprintf("%s %s (%d)", icon, display, log.Turns)
			if i == m.selectedIdx {
				line = lipgloss.NewStyle().
					Background(lipgloss.Color("62")).
					Foreground(lipgloss.Color("0")).
					Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// selectedAgent returns the name of the currently selected agent.
func (m TurnPaneModel) selectedAgent() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.agentOrder) {
		return m.agentOrder[m.selectedIdx]
	}
	return ""
}

// updateViewportContent fills the viewport with the selected agent's
// transcript.
func (m *TurnPaneModel) updateViewportContent() {
	name := m.selectedAgent()
	if name == "" {
		m.viewport.SetContent("Waiting for turns...")
		return
	}

	log, ok := m.agents[name]
	if !ok {
		m.viewport.SetContent("Waiting for turns...")
		return
	}

	m.viewport.SetContent(strings.Join(log.Lines, "\n"))
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *TurnPaneModel) resizeViewport() {
	listWidth := 25
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TurnPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TurnPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
