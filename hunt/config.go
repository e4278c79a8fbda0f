package hunt

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/prospect/brain"
	"github.com/hazyhaar/prospect/hunt/internal/github"
	"github.com/hazyhaar/prospect/vectorize"
)

// Config configures the discovery service. The zero value runs: every
// field has a default, and absent collaborator credentials degrade to
// the noop backends.
type Config struct {
	// DataDir holds the SQLite database. Default "data".
	DataDir string `yaml:"data_dir"`

	// MissionsFile is the YAML missions list, loaded at startup and
	// hot-reloaded on change. Default "missions.yml".
	MissionsFile string `yaml:"missions_file"`

	// ListenAddr is the ops API bind address. Default ":8130".
	ListenAddr string `yaml:"listen_addr"`

	GitHub    github.Config    `yaml:"github"`
	Embedding vectorize.Config `yaml:"embedding"`
	Brain     brain.Config     `yaml:"brain"`

	Pipeline PipelineConfig `yaml:"pipeline"`
}

// PipelineConfig tunes the workers and the control loop.
type PipelineConfig struct {
	// Processors is the analyze-stage concurrency. Default 2.
	Processors int `yaml:"processors"`

	// IdleSleep between empty claim attempts. Default 500ms.
	IdleSleep time.Duration `yaml:"idle_sleep"`

	// ResultCap is the search API's per-query result-window cap. Default 1000.
	ResultCap int `yaml:"result_cap"`

	// SafetyBuffer is the remaining-request floor below which the
	// monitor pauses. Default 5.
	SafetyBuffer int `yaml:"safety_buffer"`

	// PacerRPS / PacerBurst drive the client-side request pacer for the
	// search endpoint. Default 0.5 rps, burst 1.
	PacerRPS   float64 `yaml:"pacer_rps"`
	PacerBurst int     `yaml:"pacer_burst"`

	// CycleTimeout bounds how long the control loop waits for one
	// cycle's tasks to drain. Default 5m.
	CycleTimeout time.Duration `yaml:"cycle_timeout"`

	// CycleIdle is the pause between research cycles. Default 30s.
	CycleIdle time.Duration `yaml:"cycle_idle"`

	// StrategyInterval is how many cycles pass between scheduled
	// strategy-evolution attempts. Default 10.
	StrategyInterval int `yaml:"strategy_interval"`
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.MissionsFile == "" {
		c.MissionsFile = "missions.yml"
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":8130"
	}
	if c.Pipeline.Processors <= 0 {
		c.Pipeline.Processors = 2
	}
	if c.Pipeline.IdleSleep <= 0 {
		c.Pipeline.IdleSleep = 500 * time.Millisecond
	}
	if c.Pipeline.ResultCap <= 0 {
		c.Pipeline.ResultCap = 1000
	}
	if c.Pipeline.SafetyBuffer <= 0 {
		c.Pipeline.SafetyBuffer = 5
	}
	if c.Pipeline.PacerRPS <= 0 {
		c.Pipeline.PacerRPS = 0.5
	}
	if c.Pipeline.PacerBurst <= 0 {
		c.Pipeline.PacerBurst = 1
	}
	if c.Pipeline.CycleTimeout <= 0 {
		c.Pipeline.CycleTimeout = 5 * time.Minute
	}
	if c.Pipeline.CycleIdle <= 0 {
		c.Pipeline.CycleIdle = 30 * time.Second
	}
	if c.Pipeline.StrategyInterval <= 0 {
		c.Pipeline.StrategyInterval = 10
	}
}

// DBPath is the SQLite database location under DataDir.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "prospect.db")
}

// LoadConfig reads a YAML config file and applies environment overrides
// for secrets and paths. A missing file yields pure defaults; a
// malformed file is an error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Defaults only.
	case err != nil:
		return nil, fmt.Errorf("hunt: read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("hunt: parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.defaults()
	return cfg, nil
}

// applyEnv lets the environment override secrets and paths. Keys in the
// file lose to the environment, so deployments never write tokens to disk.
func applyEnv(cfg *Config) {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = v
		}
		if cfg.Brain.Provider == "" || cfg.Brain.Provider == "gemini" {
			cfg.Brain.APIKey = v
		}
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && cfg.Brain.Provider == "anthropic" {
		cfg.Brain.APIKey = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("MISSIONS_FILE"); v != "" {
		cfg.MissionsFile = v
	}
}
