package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServerConfEnvVar and ClientConfEnvVar name the environment variables
// spec.md §6 specifies for locating config files.
const (
	ServerConfEnvVar = "HERMES_CONF"
	ClientConfEnvVar = "HERMES_CLIENT_CONF"
)

// TargetConfig describes one storage device to carve into slabs at boot
// (spec.md §3, §6).
type TargetConfig struct {
	Kind      string  `yaml:"kind"` // "ram", "nvme", "ssd", "hdd", "pfs"
	Path      string  `yaml:"path"`
	Capacity  int64   `yaml:"capacity"`
	Bandwidth float64 `yaml:"bandwidth"`
	Latency   float64 `yaml:"latency"`
	SlabSizes []int64 `yaml:"slab_sizes"`
}

// QueueManagerConfig tunes the scheduler's lane runtime (spec.md §4.6).
type QueueManagerConfig struct {
	QueueDepth int `yaml:"queue_depth"`
	MaxLanes   int `yaml:"max_lanes"`
}

// DPEConfig selects the data placement policy (spec.md §4.3).
type DPEConfig struct {
	Policy string `yaml:"policy"` // "round_robin" or "minimize_io_time"
}

// BORGConfig tunes the background buffer organiser (spec.md §4.5).
type BORGConfig struct {
	PeriodMs  int `yaml:"period_ms"`
	BatchSize int `yaml:"batch_size"`
}

// RPCConfig configures the inter-node transport (spec.md §4.7).
type RPCConfig struct {
	Protocol   string   `yaml:"protocol"` // "grpc" today
	Port       int      `yaml:"port"`
	NumThreads int      `yaml:"num_threads"`
	Hosts      []string `yaml:"hosts"`
}

// ScoreWeights are the coefficients of the blob scoring formula (spec.md
// §4.2): score = w_f*normalised(access_freq) + w_r*recency(last_access) +
// w_s*size_pressure(blob_size, max_blob_size), recency = exp(-Δt/τ). The
// original source's weights aren't configurable (spec.md §9 Open
// Questions); this spec makes them so.
type ScoreWeights struct {
	Frequency float64       `yaml:"frequency"`
	Recency   float64       `yaml:"recency"`
	Size      float64       `yaml:"size"`
	Tau       time.Duration `yaml:"tau"`
}

// DefaultScoreWeights matches the values chosen in DESIGN.md for the open
// question on configurable scoring weights.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{Frequency: 0.4, Recency: 0.4, Size: 0.2, Tau: 60 * time.Second}
}

// Config is the top-level server configuration (spec.md §6).
type Config struct {
	Targets      []TargetConfig      `yaml:"targets"`
	QueueManager QueueManagerConfig  `yaml:"queue_manager"`
	DPE          DPEConfig           `yaml:"dpe"`
	BORG         BORGConfig          `yaml:"borg"`
	RPC          RPCConfig           `yaml:"rpc"`
	ScoreWeights ScoreWeights        `yaml:"score_weights"`
	NodeID       uint32              `yaml:"node_id"`
}

// Default returns a single-node, single-RAM-target configuration suitable
// for tests and the "basic round-trip" scenario in spec.md §8.
func Default() *Config {
	return &Config{
		Targets: []TargetConfig{
			{Kind: "ram", Path: "mem0", Capacity: 1 << 20, Bandwidth: 10000, Latency: 1,
				SlabSizes: []int64{4096, 64 * 1024, 1 << 20}},
		},
		QueueManager: QueueManagerConfig{QueueDepth: 256, MaxLanes: 8},
		DPE:          DPEConfig{Policy: "round_robin"},
		BORG:         BORGConfig{PeriodMs: 250, BatchSize: 256},
		RPC:          RPCConfig{Protocol: "grpc", Port: 0, NumThreads: 4},
		ScoreWeights: DefaultScoreWeights(),
		NodeID:       1,
	}
}

// Load reads and parses a server config file at path. If path is empty, it
// falls back to the HERMES_CONF environment variable, and if that is also
// unset, returns the built-in Default().
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ServerConfEnvVar)
	}
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	// The file's targets list replaces the default RAM target; a file that
	// names no targets is rejected by Validate below.
	cfg.Targets = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the structural invariants Load relies on downstream
// components to assume hold: at least one target, positive queue depth,
// and a recognized DPE policy name.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("config: at least one target is required")
	}
	for i, t := range c.Targets {
		if t.Capacity <= 0 {
			return fmt.Errorf("config: targets[%d]: capacity must be positive", i)
		}
		if len(t.SlabSizes) == 0 {
			return fmt.Errorf("config: targets[%d]: at least one slab size is required", i)
		}
	}
	if c.QueueManager.QueueDepth <= 0 {
		return fmt.Errorf("config: queue_manager.queue_depth must be positive")
	}
	switch c.DPE.Policy {
	case "round_robin", "minimize_io_time", "":
	default:
		return fmt.Errorf("config: dpe.policy %q is not recognized", c.DPE.Policy)
	}
	return nil
}
