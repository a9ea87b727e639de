package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default research loop budgets per benchmark variant. The DRB set was tuned
// for shorter runs than DeepConsult.
const (
	DefaultMaxLoopsDRB         = 5
	DefaultMaxLoopsDeepConsult = 10
)

// Execution holds the knobs passed to the engine for every task in a batch.
// It is constructed once per run invocation and handed to each task runner by
// value.
type Execution struct {
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`

	// MaxLoops bounds the number of research iterations per task.
	MaxLoops int `yaml:"max_loops"`

	ExtraEffort           bool `yaml:"extra_effort"`
	MinimumEffort         bool `yaml:"minimum_effort"`
	QAMode                bool `yaml:"qa_mode"`
	BenchmarkMode         bool `yaml:"benchmark_mode"`
	VisualizationDisabled bool `yaml:"visualization_disabled"`
}

// Run is the full configuration for one batch invocation. Fields map 1:1 to
// `sounder run` flags; a YAML run file provides defaults and flags override.
type Run struct {
	Benchmark string `yaml:"benchmark"`
	Input     string `yaml:"input"`
	OutputDir string `yaml:"output_dir"`

	Execution Execution `yaml:",inline"`

	MaxConcurrent     int `yaml:"max_concurrent"`
	RequestsPerMinute int `yaml:"requests_per_minute"`

	// TaskIDs restricts the batch to an allowlist of dataset task ids.
	TaskIDs []string `yaml:"task_ids"`
	// Limit truncates the loaded task list. 0 means no limit.
	Limit int `yaml:"limit"`

	CollectTrajectory    bool `yaml:"collect_trajectory"`
	CompressTrajectories bool `yaml:"compress_trajectories"`

	// TaskTimeout bounds a single task's engine stream. Zero preserves the
	// reference behavior of waiting indefinitely.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// NotifyURL, when set, receives the batch summary JSON on completion.
	NotifyURL string `yaml:"notify_url"`
}

// LoadRun reads a run configuration from a YAML file.
func LoadRun(path string) (*Run, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading run config: %w", err)
	}

	var run Run
	if err := yaml.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("parsing run config %s: %w", path, err)
	}
	return &run, nil
}

// Normalize fills unset fields with defaults and validates the combination.
func (r *Run) Normalize() error {
	switch r.Benchmark {
	case "drb", "deepconsult":
	case "":
		return fmt.Errorf("benchmark variant is required (drb or deepconsult)")
	default:
		return fmt.Errorf("unknown benchmark variant %q (supported: drb, deepconsult)", r.Benchmark)
	}

	if r.Input == "" {
		return fmt.Errorf("input dataset path is required")
	}
	if r.OutputDir == "" {
		return fmt.Errorf("output directory is required")
	}

	if r.Execution.Provider == "" {
		r.Execution.Provider = "openai"
	}
	if r.Execution.Model == "" {
		r.Execution.Model = "o3-mini"
	}
	if r.Execution.MaxLoops <= 0 {
		if r.Benchmark == "drb" {
			r.Execution.MaxLoops = DefaultMaxLoopsDRB
		} else {
			r.Execution.MaxLoops = DefaultMaxLoopsDeepConsult
		}
	}
	if r.Benchmark == "deepconsult" {
		// DeepConsult reports are text-only.
		r.Execution.VisualizationDisabled = true
	}

	if r.MaxConcurrent <= 0 {
		r.MaxConcurrent = 5
	}
	if r.RequestsPerMinute <= 0 {
		r.RequestsPerMinute = 60
	}
	if r.Limit < 0 {
		return fmt.Errorf("limit must be >= 0, got %d", r.Limit)
	}
	if r.TaskTimeout < 0 {
		return fmt.Errorf("task timeout must be >= 0, got %v", r.TaskTimeout)
	}

	return nil
}
