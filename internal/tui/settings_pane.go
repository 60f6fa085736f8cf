package tui

import (
	"fmt"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/aristath/agentflow/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.Config
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget      string
	strategy        string
	maxTurns        string
	workerProvider  string
	workerModel     string
	reviewProvider  string
	reviewModel     string
	claudeCommand   string
	codexCommand    string
	gooseCommand    string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.Config, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,

		saveTarget:     "global",
		strategy:       cfg.Run.Strategy,
		maxTurns:       strconv.Itoa(cfg.Run.MaxTurns),
		workerProvider: cfg.Agents["worker"].Provider,
		workerModel:    cfg.Agents["worker"].Model,
		reviewProvider: cfg.Agents["reviewer"].Provider,
		reviewModel:    cfg.Agents["reviewer"].Model,
		claudeCommand:  cfg.Providers["claude"].Command,
		codexCommand:   cfg.Providers["codex"].Command,
		gooseCommand:   cfg.Providers["goose"].Command,
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.agentflow/config.json)", "global"),
					huh.NewOption("Project (.agentflow/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewSelect[string]().
				Key("strategy").
				Title("Turn Strategy").
				Options(
					huh.NewOption("Round robin", "round_robin"),
					huh.NewOption("Most busy", "most_busy"),
					huh.NewOption("Random", "random"),
					huh.NewOption("Popcorn (agent nominates successor)", "popcorn"),
				).
				Value(&m.strategy),

			huh.NewInput().
				Key("maxTurns").
				Title("Max Turns Per Run").
				Value(&m.maxTurns).
				Validate(func(s string) error {
					n, err := strconv.Atoi(s)
					if err != nil || n < 0 {
						return fmt.Errorf("must be a non-negative integer")
					}
					return nil
				}),
		).Title("Run Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("workerProvider").
				Title("Worker Provider").
				Value(&m.workerProvider).
				Placeholder("claude"),

			huh.NewInput().
				Key("workerModel").
				Title("Worker Model").
				Value(&m.workerModel),

			huh.NewInput().
				Key("reviewProvider").
				Title("Reviewer Provider").
				Value(&m.reviewProvider).
				Placeholder("claude"),

			huh.NewInput().
				Key("reviewModel").
				Title("Reviewer Model").
				Value(&m.reviewModel),
		).Title("Agent Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("claudeCommand").
				Title("Claude Command").
				Value(&m.claudeCommand).
				Placeholder("claude"),

			huh.NewInput().
				Key("codexCommand").
				Title("Codex Command").
				Value(&m.codexCommand).
				Placeholder("codex"),

			huh.NewInput().
				Key("gooseCommand").
				Title("Goose Command").
				Value(&m.gooseCommand).
				Placeholder("goose"),
		).Title("Provider Settings"),
	)
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	if m.form.State == huh.StateCompleted {
		m.applyFormToConfig()

		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
		}

		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
func (m *SettingsPaneModel) applyFormToConfig() {
	m.config.Run.Strategy = m.strategy
	if n, err := strconv.Atoi(m.maxTurns); err == nil {
		m.config.Run.MaxTurns = n
	}

	if worker, ok := m.config.Agents["worker"]; ok {
		worker.Provider = m.workerProvider
		worker.Model = m.workerModel
		m.config.Agents["worker"] = worker
	}

	if reviewer, ok := m.config.Agents["reviewer"]; ok {
		reviewer.Provider = m.reviewProvider
		reviewer.Model = m.reviewModel
		m.config.Agents["reviewer"] = reviewer
	}

	if claude, ok := m.config.Providers["claude"]; ok {
		claude.Command = m.claudeCommand
		m.config.Providers["claude"] = claude
	}

	if codex, ok := m.config.Providers["codex"]; ok {
		codex.Command = m.codexCommand
		m.config.Providers["codex"] = codex
	}

	if goose, ok := m.config.Providers["goose"]; ok {
		goose.Command = m.gooseCommand
		m.config.Providers["goose"] = goose
	}
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved successfully!")
	} else if m.err != nil {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		content = m.form.View()
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Rebuild the form so stale completion state never lingers.
	if v && m.form != nil {
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
