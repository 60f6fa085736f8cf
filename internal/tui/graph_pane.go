package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/events"
)

// recentTransitions caps the transition feed shown under the counters.
const recentTransitions = 8

// GraphPaneModel shows graph-wide progress counters, a progress bar and
// the latest task transitions.
type GraphPaneModel struct {
	total      int
	pending    int
	running    int
	successful int
	failed     int
	skipped    int

	transitions []string
	outcome     string // Set when the run finishes

	width   int
	height  int
	focused bool
}

func NewGraphPaneModel() GraphPaneModel {
	return GraphPaneModel{}
}

// Update handles messages for the graph pane.
func (m GraphPaneModel) Update(msg tea.Msg) (GraphPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RunProgressEvent:
		m.total = msg.Total
		m.pending = msg.Pending
		m.running = msg.Running
		m.successful = msg.Successful
		m.failed = msg.Failed
		m.skipped = msg.Skipped

	case events.TaskRegisteredEvent:
		// Optimistic counts; the next progress snapshot overwrites them.
		m.total++
		m.pending++
		line := msg.ID + ": registered"
		if msg.Objective != "" {
			line += " (" + msg.Objective + ")"
		}
		m.transitions = append(m.transitions, line)
		if len(m.transitions) > recentTransitions {
			m.transitions = m.transitions[len(m.transitions)-recentTransitions:]
		}

	case events.TaskTransitionEvent:
		line := fmt.Sprintf("%s: %s -> %s", msg.ID, msg.From, msg.To)
		if msg.Detail != "" {
			line += " (" + msg.Detail + ")"
		}
		m.transitions = append(m.transitions, line)
		if len(m.transitions) > recentTransitions {
			m.transitions = m.transitions[len(m.transitions)-recentTransitions:]
		}

	case events.RunFinishedEvent:
		m.outcome = fmt.Sprintf("%s after %d turns", msg.Outcome, msg.Turns)
	}

	return m, nil
}

// View renders the graph pane.
func (m GraphPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	title := StyleTitle.Render("Task Graph")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Total:      %d\n", m.total))
	b.WriteString(fmt.Sprintf("Successful: %s\n", StyleStatusSuccessful.Render(fmt.Sprintf("%d", m.successful))))
	b.WriteString(fmt.Sprintf("Running:    %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.running))))
	b.WriteString(fmt.Sprintf("Failed:     %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Skipped:    %s\n", StyleStatusSkipped.Render(fmt.Sprintf("%d", m.skipped))))
	b.WriteString(fmt.Sprintf("Pending:    %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.pending))))
	b.WriteString("\n")

	if m.total > 0 {
		terminal := m.successful + m.failed + m.skipped
		barWidth := min(m.width-4, 40)
		successWidth := (m.successful * barWidth) / m.total
		failedWidth := ((m.failed + m.skipped) * barWidth) / m.total
		runningWidth := (m.running * barWidth) / m.total
		pendingWidth := barWidth - successWidth - failedWidth - runningWidth

		bar := StyleStatusSuccessful.Render(strings.Repeat("=", max(0, successWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusRunning.Render(strings.Repeat("-", max(0, runningWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, pendingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, terminal, m.total))
	}

	if len(m.transitions) > 0 {
		b.WriteString("\n")
		for _, line := range m.transitions {
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	if m.outcome != "" {
		b.WriteString("\n")
		b.WriteString(StyleTitle.Render("Run " + m.outcome))
		b.WriteString("\n")
	}

	content := b.String()

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// SetSize updates the pane dimensions.
func (m *GraphPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *GraphPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
