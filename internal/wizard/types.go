package wizard

import (
	"github.com/charmbracelet/bubbles/textinput"
)

// step identifies one screen of the setup flow.
type step int

const (
	stepWelcome step = iota
	stepExisting
	stepDriver
	stepDetails
	stepTesting
	stepAddAnother
	stepSummary
	stepCreating
	stepDone
	stepFailed
)

// EnvironmentInput holds what the user entered for one environment. Only the
// fields for the chosen driver are populated.
type EnvironmentInput struct {
	Name        string
	Description string
	Driver      string

	// PostgreSQL.
	Host     string
	Port     string
	Database string
	User     string
	Password string
	SSLMode  string

	// SQLite.
	FilePath string

	// libSQL/Turso.
	URL       string
	AuthToken string
}

// InitResult reports what the setup wrote or changed on disk.
type InitResult struct {
	ConfigPath           string
	ConfigCreated        bool
	ConfigUpdated        bool
	EnvFiles             []string
	MigrationsDir        string
	MigrationsDirCreated bool
	ExampleCreated       bool
	ExampleUpdated       bool
	GitignoreUpdated     bool
}

// DriverOption is one selectable database driver.
type DriverOption struct {
	ID          string
	DisplayName string
	Description string
	Icon        string
}

// Drivers lists the supported drivers in selection order.
var Drivers = []DriverOption{
	{ID: "postgres", DisplayName: "PostgreSQL", Description: "recommended for shared environments", Icon: "🐘"},
	{ID: "sqlite", DisplayName: "SQLite", Description: "zero-setup local file", Icon: "📁"},
	{ID: "libsql", DisplayName: "libSQL/Turso", Description: "hosted edge database", Icon: "🌐"},
}

// Model is the Bubble Tea model behind stratum init.
type Model struct {
	step step

	// Existing configuration discovered at startup.
	existingConfigPath string
	existingEnvNames   []string

	// current is the environment being entered; finished ones accumulate
	// in environments until the summary step writes them out.
	current      EnvironmentInput
	environments []EnvironmentInput

	// Connection check state.
	testing    bool
	testPassed bool
	testErr    error
	failChoice int

	addChoice int

	inputs      []textinput.Model
	focusIndex  int
	driverIndex int
	errors      map[string]string

	result *InitResult
	err    error

	width  int
	height int
}
