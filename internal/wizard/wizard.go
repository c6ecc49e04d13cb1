// Package wizard implements the interactive stratum init flow: a Bubble Tea
// program that walks through database environments and writes the project
// configuration, credential files, and migrations directory.
package wizard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/stratumdb/stratum/internal/config"
)

// New returns a model positioned at the welcome screen.
func New() Model {
	return Model{
		step:   stepWelcome,
		errors: make(map[string]string),
	}
}

// Init kicks off the existing-config check.
func (m Model) Init() tea.Cmd {
	return checkExisting
}

// Update handles key presses and async results.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		if key == "ctrl+c" {
			return m, tea.Quit
		}

		// The details screen owns the keyboard: letters belong to the
		// focused text field, including q, j, and k.
		if m.step == stepDetails {
			switch key {
			case "enter":
				return m.handleEnter()
			case "up":
				if m.focusIndex > 0 {
					m.focusIndex--
					m.syncFocus()
				}
				return m, nil
			case "down":
				if m.focusIndex < len(m.inputs)-1 {
					m.focusIndex++
					m.syncFocus()
				}
				return m, nil
			case "tab":
				if len(m.inputs) > 0 {
					m.focusIndex = (m.focusIndex + 1) % len(m.inputs)
					m.syncFocus()
				}
				return m, nil
			case "shift+tab":
				if len(m.inputs) > 0 {
					m.focusIndex = (m.focusIndex - 1 + len(m.inputs)) % len(m.inputs)
					m.syncFocus()
				}
				return m, nil
			default:
				return m.handleTyping(msg)
			}
		}

		switch key {
		case "q":
			return m, tea.Quit
		case "enter":
			return m.handleEnter()
		case "up", "k":
			return m.handleUp(), nil
		case "down", "j":
			return m.handleDown(), nil
		}
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case existingConfigMsg:
		if msg.path != "" {
			m.existingConfigPath = msg.path
			m.existingEnvNames = msg.envNames
			m.step = stepExisting
		} else {
			m.step = stepWelcome
		}
		return m, nil

	case connectionCheckedMsg:
		m.testing = false
		m.testErr = msg.err
		m.testPassed = msg.err == nil
		return m, nil

	case filesWrittenMsg:
		if msg.err != nil {
			m.err = msg.err
			m.step = stepFailed
			return m, nil
		}
		m.result = msg.result
		m.step = stepDone
		return m, nil
	}

	return m, nil
}

// View renders the current screen.
func (m Model) View() string {
	switch m.step {
	case stepWelcome:
		return m.viewWelcome()
	case stepExisting:
		return m.viewExisting()
	case stepDriver:
		return m.viewDriver()
	case stepDetails:
		return m.viewDetails()
	case stepTesting:
		return m.viewTesting()
	case stepAddAnother:
		return m.viewAddAnother()
	case stepSummary:
		return m.viewSummary()
	case stepCreating:
		return m.viewCreating()
	case stepDone:
		return m.viewDone()
	case stepFailed:
		return m.viewFailed()
	default:
		return ""
	}
}

// Step transitions

func (m Model) handleEnter() (tea.Model, tea.Cmd) {
	switch m.step {
	case stepWelcome, stepExisting:
		m.step = stepDriver
		return m, nil

	case stepDriver:
		m.current = EnvironmentInput{Driver: Drivers[m.driverIndex].ID}
		m.step = stepDetails
		m.buildInputs()
		return m, nil

	case stepDetails:
		if err := m.collectDetails(); err != nil {
			return m, nil
		}
		m.step = stepTesting
		m.testing = true
		m.testPassed = false
		m.testErr = nil
		return m, m.checkConnection()

	case stepTesting:
		if m.testing {
			return m, nil
		}
		if m.testPassed {
			return m.acceptCurrent(), nil
		}
		switch m.failChoice {
		case 0: // retry
			m.testing = true
			m.testErr = nil
			return m, m.checkConnection()
		case 1: // edit the details, keeping what was typed
			m.step = stepDetails
			m.testErr = nil
			m.failChoice = 0
			return m, nil
		default: // keep the environment despite the failure
			return m.acceptCurrent(), nil
		}

	case stepAddAnother:
		if m.addChoice == 0 {
			m.step = stepDriver
			m.driverIndex = 0
			return m, nil
		}
		m.step = stepSummary
		return m, nil

	case stepSummary:
		m.step = stepCreating
		return m, m.writeFiles()

	case stepDone, stepFailed:
		return m, tea.Quit
	}

	return m, nil
}

// acceptCurrent records the environment being entered and moves on to the
// add-another screen, defaulting its choice to "continue".
func (m Model) acceptCurrent() Model {
	m.environments = append(m.environments, m.current)
	m.current = EnvironmentInput{}
	m.failChoice = 0
	m.addChoice = 1
	m.step = stepAddAnother
	return m
}

func (m Model) handleUp() Model {
	switch m.step {
	case stepDriver:
		if m.driverIndex > 0 {
			m.driverIndex--
		}
	case stepTesting:
		if m.testErr != nil && m.failChoice > 0 {
			m.failChoice--
		}
	case stepAddAnother:
		if m.addChoice > 0 {
			m.addChoice--
		}
	}
	return m
}

func (m Model) handleDown() Model {
	switch m.step {
	case stepDriver:
		if m.driverIndex < len(Drivers)-1 {
			m.driverIndex++
		}
	case stepTesting:
		if m.testErr != nil && m.failChoice < 2 {
			m.failChoice++
		}
	case stepAddAnother:
		if m.addChoice < 1 {
			m.addChoice++
		}
	}
	return m
}

func (m Model) handleTyping(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if len(m.inputs) == 0 {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.focusIndex], cmd = m.inputs[m.focusIndex].Update(msg)
	return m, cmd
}

// Input management

func (m *Model) buildInputs() {
	m.focusIndex = 0
	m.errors = make(map[string]string)

	switch m.current.Driver {
	case "postgres":
		m.inputs = []textinput.Model{
			newInput("Environment name", "local", false),
			newInput("Host", "localhost", false),
			newInput("Port", "5432", false),
			newInput("Database", "app", false),
			newInput("User", "postgres", false),
			newInput("Password", "", true),
		}
	case "sqlite":
		m.inputs = []textinput.Model{
			newInput("Environment name", "local", false),
			newInput("Database file", "stratum.db", false),
		}
	case "libsql":
		m.inputs = []textinput.Model{
			newInput("Environment name", "production", false),
			newInput("Database URL", "libsql://", false),
			newInput("Auth token", "", true),
		}
	}

	if len(m.inputs) > 0 {
		m.inputs[0].Focus()
	}
}

func newInput(label, value string, secret bool) textinput.Model {
	in := textinput.New()
	in.Placeholder = label
	in.SetValue(value)
	if secret {
		in.EchoMode = textinput.EchoPassword
		in.EchoCharacter = '*'
	}
	return in
}

func (m *Model) syncFocus() {
	for i := range m.inputs {
		if i == m.focusIndex {
			m.inputs[i].Focus()
		} else {
			m.inputs[i].Blur()
		}
	}
}

// collectDetails copies the typed values into the current environment and
// validates them. Errors land in m.errors keyed by field.
func (m *Model) collectDetails() error {
	m.errors = make(map[string]string)

	value := func(i int) string { return strings.TrimSpace(m.inputs[i].Value()) }

	switch m.current.Driver {
	case "postgres":
		m.current.Name = value(0)
		m.current.Host = value(1)
		m.current.Port = value(2)
		m.current.Database = value(3)
		m.current.User = value(4)
		// Passwords keep their whitespace.
		m.current.Password = m.inputs[5].Value()
	case "sqlite":
		m.current.Name = value(0)
		m.current.FilePath = value(1)
	case "libsql":
		m.current.Name = value(0)
		m.current.URL = value(1)
		m.current.AuthToken = value(2)
	}

	if err := ValidateEnvironmentName(m.current.Name); err != nil {
		m.errors["name"] = err.Error()
	}
	for _, env := range m.environments {
		if env.Name == m.current.Name {
			m.errors["name"] = fmt.Sprintf("environment %q is already configured", m.current.Name)
		}
	}
	if m.current.Driver == "postgres" {
		if err := ValidatePort(m.current.Port); err != nil {
			m.errors["port"] = err.Error()
		}
	}
	if m.current.Driver == "libsql" {
		if err := ValidateConnectionString(m.current.URL, "libsql"); err != nil {
			m.errors["url"] = err.Error()
		}
	}

	if len(m.errors) > 0 {
		return fmt.Errorf("invalid connection details")
	}
	return nil
}

// Async commands

type existingConfigMsg struct {
	path     string
	envNames []string
}

func checkExisting() tea.Msg {
	cfg, err := config.Load("")
	if err != nil || cfg.Path() == "" {
		return existingConfigMsg{}
	}
	names := make([]string, 0, len(cfg.Environments))
	for name := range cfg.Environments {
		names = append(names, name)
	}
	sort.Strings(names)
	return existingConfigMsg{path: cfg.Path(), envNames: names}
}

type connectionCheckedMsg struct {
	err error
}

func (m Model) checkConnection() tea.Cmd {
	env := m.current
	return func() tea.Msg {
		return connectionCheckedMsg{err: CheckConnection(env)}
	}
}

type filesWrittenMsg struct {
	result *InitResult
	err    error
}

func (m Model) writeFiles() tea.Cmd {
	envs := m.environments
	configPath := m.existingConfigPath
	return func() tea.Msg {
		result, err := GenerateFiles(envs, configPath)
		return filesWrittenMsg{result: result, err: err}
	}
}

// Screens

func (m Model) viewWelcome() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString("Welcome! Let's wire Stratum into this project.\n\n")
	b.WriteString(renderInfo("This setup will:\n" +
		"  • configure one or more database environments\n" +
		"  • store connection URLs in .env.<name> files\n" +
		"  • create the migrations directory"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Enter: continue  q: quit"))
	return borderStyle.Render(b.String())
}

func (m Model) viewExisting() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(renderSuccess("Found an existing configuration"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Config: %s\n", m.existingConfigPath))
	if len(m.existingEnvNames) > 0 {
		b.WriteString(fmt.Sprintf("Environments: %s\n", strings.Join(m.existingEnvNames, ", ")))
	}
	b.WriteString("\n")
	b.WriteString(renderInfo("New environments are merged into the existing file;\nnothing already configured is removed."))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Enter: continue  q: quit"))
	return borderStyle.Render(b.String())
}

func (m Model) viewDriver() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(renderSection("Database Driver"))
	b.WriteString("\n\n")
	b.WriteString(labelStyle.Render("Which database does this environment use?"))
	b.WriteString("\n\n")

	for i, d := range Drivers {
		line := fmt.Sprintf("%s %s (%s)", d.Icon, d.DisplayName, d.Description)
		b.WriteString(renderOption(i == m.driverIndex, line))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))
	return borderStyle.Render(b.String())
}

func (m Model) viewDetails() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(renderSection("Connection Details"))
	b.WriteString("\n\n")

	driver := Drivers[m.driverIndex]
	b.WriteString(fmt.Sprintf("Driver: %s %s\n\n", driver.Icon, driver.DisplayName))

	for i, input := range m.inputs {
		label := input.Placeholder
		if i == m.focusIndex {
			b.WriteString(selectedStyle.Render("► " + label + ":"))
		} else {
			b.WriteString(labelStyle.Render("  " + label + ":"))
		}
		b.WriteString("\n  ")
		b.WriteString(input.View())
		b.WriteString("\n\n")
	}

	if len(m.errors) > 0 {
		for _, msg := range m.errors {
			b.WriteString(renderError(msg))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	switch m.current.Driver {
	case "sqlite":
		b.WriteString(renderInfo("The database file is created next to stratum.toml\nif it does not exist yet."))
		b.WriteString("\n")
	case "libsql":
		b.WriteString(renderInfo("The auth token goes into the environment's .env file,\nnever into stratum.toml."))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(renderStatusBar("↑/↓ or Tab: switch field  Enter: check connection  Ctrl+C: quit"))
	return borderStyle.Render(b.String())
}

func (m Model) viewTesting() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(renderSection("Connection Check"))
	b.WriteString("\n\n")

	switch {
	case m.testing:
		b.WriteString(infoStyle.Render(iconSpinner + " Connecting..."))
		b.WriteString("\n\n")
		b.WriteString(renderStatusBar("Please wait"))

	case m.testPassed:
		b.WriteString(renderSuccess("Connection works"))
		b.WriteString("\n\n")
		b.WriteString("Environment: " + m.current.Name)
		b.WriteString("\n\n")
		b.WriteString(renderStatusBar("Enter: continue"))

	default:
		b.WriteString(renderError("Connection failed"))
		b.WriteString("\n\n")
		if m.testErr != nil {
			b.WriteString(errorStyle.Render(m.testErr.Error()))
			b.WriteString("\n\n")
		}
		b.WriteString(renderOption(m.failChoice == 0, "Retry"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.failChoice == 1, "Edit connection details"))
		b.WriteString("\n")
		b.WriteString(renderOption(m.failChoice == 2, "Keep it anyway"))
		b.WriteString("\n\n")
		b.WriteString(renderInfo("Keeping an unreachable environment is fine for\ndatabases only reachable from somewhere else."))
		b.WriteString("\n\n")
		b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))
	}

	return borderStyle.Render(b.String())
}

func (m Model) viewAddAnother() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	last := m.environments[len(m.environments)-1]
	b.WriteString(renderSuccess(fmt.Sprintf("Environment %q added", last.Name)))
	b.WriteString("\n\n")
	b.WriteString("Add another environment (staging, production, ...)?\n\n")
	b.WriteString(renderOption(m.addChoice == 0, "Add another"))
	b.WriteString("\n")
	b.WriteString(renderOption(m.addChoice == 1, "Continue to summary"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("↑/↓: navigate  Enter: select  q: quit"))
	return borderStyle.Render(b.String())
}

func (m Model) viewSummary() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(renderSection("Summary"))
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("About to write configuration for %d environment(s):\n\n", len(m.environments)))

	for _, env := range m.environments {
		b.WriteString(fmt.Sprintf("  • %s (%s)\n", env.Name, env.Driver))
	}

	configPath := m.existingConfigPath
	if configPath == "" {
		configPath = config.FileName
	}
	b.WriteString("\nThis will create or update:\n")
	b.WriteString(fmt.Sprintf("  • %s\n", configPath))
	for _, env := range m.environments {
		b.WriteString(fmt.Sprintf("  • .env.%s\n", env.Name))
	}
	b.WriteString("  • migrations/\n")
	b.WriteString("  • .gitignore\n")

	b.WriteString("\n")
	b.WriteString(renderStatusBar("Enter: write files  q: quit"))
	return borderStyle.Render(b.String())
}

func (m Model) viewCreating() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(infoStyle.Render(iconSpinner + " Writing project files..."))
	return borderStyle.Render(b.String())
}

func (m Model) viewDone() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(renderSuccess("Setup complete"))
	b.WriteString("\n\n")

	if m.result != nil {
		b.WriteString("Written:\n")
		b.WriteString(fmt.Sprintf("  %s %s\n", iconCheck, m.result.ConfigPath))
		for _, envFile := range m.result.EnvFiles {
			b.WriteString(fmt.Sprintf("  %s %s\n", iconCheck, envFile))
		}
		if m.result.MigrationsDirCreated {
			b.WriteString(fmt.Sprintf("  %s %s/\n", iconCheck, m.result.MigrationsDir))
		}
		if m.result.GitignoreUpdated {
			b.WriteString(fmt.Sprintf("  %s .gitignore\n", iconCheck))
		}
	}

	b.WriteString("\n")
	b.WriteString(renderInfo("Next steps:\n" +
		"  1. Write your first migration, e.g. migrations/0.1.0_init.up.sql\n" +
		"  2. Review the order: stratum plan\n" +
		"  3. Apply it: stratum apply"))
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Enter: exit"))
	return borderStyle.Render(b.String())
}

func (m Model) viewFailed() string {
	var b strings.Builder
	b.WriteString(renderHeader("Stratum Setup"))
	b.WriteString("\n\n")
	b.WriteString(renderError("Setup failed"))
	b.WriteString("\n\n")
	if m.err != nil {
		b.WriteString(errorStyle.Render(m.err.Error()))
	}
	b.WriteString("\n\n")
	b.WriteString(renderStatusBar("Enter: exit"))
	return borderStyle.Render(b.String())
}

// Run starts the interactive setup and blocks until it finishes.
func Run() error {
	p := tea.NewProgram(New())
	_, err := p.Run()
	return err
}
