package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/probeworks/sounder/internal/config"
	"github.com/probeworks/sounder/internal/dataset"
	"github.com/probeworks/sounder/internal/engine"
	"github.com/probeworks/sounder/internal/notify"
	"github.com/probeworks/sounder/internal/orchestration"
	"github.com/probeworks/sounder/internal/reporting"
	"github.com/probeworks/sounder/internal/storage"
	"github.com/spf13/cobra"
)

// errNoTasks aborts a run whose dataset yields nothing to do, before any
// output directory or engine state is touched.
var errNoTasks = errors.New("no tasks to process")

type runFlags struct {
	benchmark     string
	input         string
	outputDir     string
	provider      string
	model         string
	maxLoops      int
	extraEffort   bool
	minimumEffort bool
	qaMode        bool
	maxConcurrent int
	rpm           int
	taskIDs       []string
	limit         int
	collectTraj   bool
	compressTraj  bool
	taskTimeout   time.Duration
	notifyURL     string
	engineName    string
}

func newRunCommand() *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run [run.yaml]",
		Short: "Run a benchmark batch",
		Long: `Run executes every task in a benchmark dataset concurrently and writes
per-task result, trajectory and error files to the output directory.

Configuration can come from a YAML run file, from flags, or both; flags
override the file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := buildRunConfig(cmd, args, flags)
			if err != nil {
				return err
			}
			return runBatch(cmd, cfg, flags.engineName)
		},
	}

	cmd.Flags().StringVar(&flags.benchmark, "benchmark", "", "Benchmark variant: drb or deepconsult")
	cmd.Flags().StringVar(&flags.input, "input", "", "Path to the benchmark dataset file")
	cmd.Flags().StringVar(&flags.outputDir, "output-dir", "", "Directory for result and trajectory files")
	cmd.Flags().StringVar(&flags.provider, "provider", "", "Model provider passed to the engine")
	cmd.Flags().StringVar(&flags.model, "model", "", "Model identifier passed to the engine")
	cmd.Flags().IntVar(&flags.maxLoops, "max-loops", 0, "Maximum research iterations per task (0 = variant default)")
	cmd.Flags().BoolVar(&flags.extraEffort, "extra-effort", false, "Ask the engine for deeper research per loop")
	cmd.Flags().BoolVar(&flags.minimumEffort, "minimum-effort", false, "Ask the engine for the cheapest viable research")
	cmd.Flags().BoolVar(&flags.qaMode, "qa-mode", false, "Short-answer mode: skip report synthesis")
	cmd.Flags().IntVar(&flags.maxConcurrent, "max-concurrent", 0, "Maximum tasks in flight at once")
	cmd.Flags().IntVar(&flags.rpm, "rpm", 0, "Task start rate limit, in starts per minute")
	cmd.Flags().StringSliceVar(&flags.taskIDs, "task-ids", nil, "Restrict the batch to these dataset task ids")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "Process at most this many tasks (0 = all)")
	cmd.Flags().BoolVar(&flags.collectTraj, "collect-traj", false, "Record per-iteration trajectories")
	cmd.Flags().BoolVar(&flags.compressTraj, "compress-traj", false, "Gzip trajectory files")
	cmd.Flags().DurationVar(&flags.taskTimeout, "task-timeout", 0, "Per-task engine deadline (0 = no deadline)")
	cmd.Flags().StringVar(&flags.notifyURL, "notify-url", "", "POST the batch summary JSON to this URL on completion")
	cmd.Flags().StringVar(&flags.engineName, "engine", "mock", "Research engine to use (mock)")

	return cmd
}

// buildRunConfig layers flag values over the optional run file. Only flags
// the user actually set override the file.
func buildRunConfig(cmd *cobra.Command, args []string, flags *runFlags) (*config.Run, error) {
	cfg := &config.Run{}
	if len(args) == 1 {
		loaded, err := config.LoadRun(args[0])
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	set := cmd.Flags().Changed
	if set("benchmark") {
		cfg.Benchmark = flags.benchmark
	}
	if set("input") {
		cfg.Input = flags.input
	}
	if set("output-dir") {
		cfg.OutputDir = flags.outputDir
	}
	if set("provider") {
		cfg.Execution.Provider = flags.provider
	}
	if set("model") {
		cfg.Execution.Model = flags.model
	}
	if set("max-loops") {
		cfg.Execution.MaxLoops = flags.maxLoops
	}
	if set("extra-effort") {
		cfg.Execution.ExtraEffort = flags.extraEffort
	}
	if set("minimum-effort") {
		cfg.Execution.MinimumEffort = flags.minimumEffort
	}
	if set("qa-mode") {
		cfg.Execution.QAMode = flags.qaMode
	}
	if set("max-concurrent") {
		cfg.MaxConcurrent = flags.maxConcurrent
	}
	if set("rpm") {
		cfg.RequestsPerMinute = flags.rpm
	}
	if set("task-ids") {
		cfg.TaskIDs = flags.taskIDs
	}
	if set("limit") {
		cfg.Limit = flags.limit
	}
	if set("collect-traj") {
		cfg.CollectTrajectory = flags.collectTraj
	}
	if set("compress-traj") {
		cfg.CompressTrajectories = flags.compressTraj
	}
	if set("task-timeout") {
		cfg.TaskTimeout = flags.taskTimeout
	}
	if set("notify-url") {
		cfg.NotifyURL = flags.notifyURL
	}

	cfg.Execution.BenchmarkMode = true
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runBatch(cmd *cobra.Command, cfg *config.Run, engineName string) error {
	ctx := cmd.Context()

	manager, err := dataset.ForVariant(cfg.Benchmark)
	if err != nil {
		return err
	}

	tasks, err := manager.LoadTasks(cfg.Input, cfg.TaskIDs, cfg.Limit)
	if err != nil {
		return err
	}
	if len(tasks) == 0 {
		return fmt.Errorf("%w in %s", errNoTasks, cfg.Input)
	}

	eng, err := newEngine(engineName, cfg.Execution.Model)
	if err != nil {
		return err
	}

	writer, err := storage.NewWriter(cfg.OutputDir)
	if err != nil {
		return err
	}
	writer.CompressTrajectories = cfg.CompressTrajectories

	stats := &orchestration.BatchStats{}
	runner := &orchestration.TaskRunner{
		Engine:            eng,
		Manager:           manager,
		Config:            cfg.Execution,
		Limiter:           orchestration.NewRateLimiter(cfg.RequestsPerMinute),
		Gate:              orchestration.NewGate(cfg.MaxConcurrent),
		Stats:             stats,
		Writer:            writer,
		CollectTrajectory: cfg.CollectTrajectory,
		TaskTimeout:       cfg.TaskTimeout,
	}
	orch := &orchestration.Orchestrator{
		Runner: runner,
		Stats:  stats,
	}

	slog.Info("loaded tasks",
		"benchmark", cfg.Benchmark,
		"count", len(tasks),
		"max_concurrent", cfg.MaxConcurrent,
		"rpm", cfg.RequestsPerMinute)

	result := orch.Run(ctx, tasks)

	summary := reporting.Build(result)
	fmt.Fprint(cmd.OutOrStdout(), summary.Render(reporting.TerminalWidth()))

	if cfg.NotifyURL != "" {
		if err := notify.PostSummary(ctx, cfg.NotifyURL, summary); err != nil {
			slog.Warn("posting batch summary", "url", cfg.NotifyURL, "error", err)
		}
	}

	// Individual task failures are recorded in error files, not the exit
	// code. Only setup problems abort the batch.
	return nil
}

func newEngine(name, model string) (engine.Engine, error) {
	switch name {
	case "mock":
		return engine.NewMockEngine(model), nil
	default:
		return nil, fmt.Errorf("unknown engine %q (supported: mock)", name)
	}
}
