package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"workbench/pkg/protocol"

	"github.com/pelletier/go-toml/v2"
)

// fileConfig mirrors config.toml. Zero values mean "use the default".
type fileConfig struct {
	Worker    workerConfig    `toml:"worker"`
	Budget    budgetConfig    `toml:"budget"`
	Agent     agentConfig     `toml:"agent"`
	Workspace workspaceConfig `toml:"workspace"`
}

type workerConfig struct {
	Count        int    `toml:"count"`
	PollInterval string `toml:"poll_interval"` // Go duration string, e.g. "5s"
}

type budgetConfig struct {
	WallClock    string `toml:"wall_clock"` // Go duration string, e.g. "20m"
	ToolCalls    int    `toml:"tool_calls"`
	Turns        int    `toml:"turns"`
	DiffLines    int    `toml:"diff_lines"`
	FilesTouched int    `toml:"files_touched"`
}

type agentConfig struct {
	Bin        string   `toml:"bin"` // WORKBENCH_AGENT_BIN overrides
	Args       []string `toml:"args"`
	CloneRepos bool     `toml:"clone_repos"`
}

type workspaceConfig struct {
	BaseDir string `toml:"base_dir"` // default: $WORKBENCH_HOME/workspaces
}

// defaultConfigTOML is written by "workbench init" when no config exists.
const defaultConfigTOML = `# workbench configuration

[worker]
count = 2
poll_interval = "5s"

[budget]
wall_clock = "20m"
tool_calls = 200
turns = 50
diff_lines = 800
files_touched = 40

[agent]
bin = "workbench-agent"
args = []
clone_repos = false

[workspace]
# base_dir defaults to $WORKBENCH_HOME/workspaces
`

// loadConfig reads config.toml at path. A missing file is not an error;
// defaults apply. WORKBENCH_AGENT_BIN overrides agent.bin.
func loadConfig(path string) (fileConfig, error) {
	var cfg fileConfig

	data, err := os.ReadFile(path) //nolint:gosec // path from ResolvePaths
	switch {
	case errors.Is(err, os.ErrNotExist):
		// fall through to defaults
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if v := os.Getenv("WORKBENCH_AGENT_BIN"); v != "" {
		cfg.Agent.Bin = v
	}
	if cfg.Agent.Bin == "" {
		cfg.Agent.Bin = "workbench-agent"
	}
	return cfg, nil
}

// pollInterval parses worker.poll_interval, defaulting to 5s.
func (c fileConfig) pollInterval() (time.Duration, error) {
	if c.Worker.PollInterval == "" {
		return 5 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Worker.PollInterval)
	if err != nil {
		return 0, fmt.Errorf("parse worker.poll_interval: %w", err)
	}
	return d, nil
}

// budget builds the attempt budget from config, defaulting each unset field.
func (c fileConfig) budget() (protocol.Budget, error) {
	b := protocol.DefaultBudget()
	if c.Budget.WallClock != "" {
		d, err := time.ParseDuration(c.Budget.WallClock)
		if err != nil {
			return protocol.Budget{}, fmt.Errorf("parse budget.wall_clock: %w", err)
		}
		b.WallClock = protocol.Duration(d)
	}
	if c.Budget.ToolCalls > 0 {
		b.ToolCalls = c.Budget.ToolCalls
	}
	if c.Budget.Turns > 0 {
		b.Turns = c.Budget.Turns
	}
	if c.Budget.DiffLines > 0 {
		b.DiffLines = c.Budget.DiffLines
	}
	if c.Budget.FilesTouched > 0 {
		b.FilesTouched = c.Budget.FilesTouched
	}
	return b, nil
}
