package orchestration

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/probeworks/sounder/internal/config"
	"github.com/probeworks/sounder/internal/dataset"
	"github.com/probeworks/sounder/internal/engine"
	"github.com/probeworks/sounder/internal/storage"
	"github.com/probeworks/sounder/internal/trajectory"
)

// ErrNoSnapshots is raised when the engine stream completes without a single
// state emission.
var ErrNoSnapshots = errors.New("engine stream produced no final result")

// execSummaryMarker starts the report section kept when trimming the table
// of contents from a markdown report.
const execSummaryMarker = "## Executive Summary\n"

// TaskRunner drives one task end-to-end: rate limit, concurrency slot,
// engine stream, trajectory recording, artifact derivation, persistence.
// Every task terminates in exactly one result artifact or one error
// artifact; no failure propagates past Run.
type TaskRunner struct {
	Engine  engine.Engine
	Manager dataset.Manager
	Config  config.Execution

	Limiter *RateLimiter
	Gate    *Gate
	Stats   *BatchStats
	Writer  *storage.Writer

	CollectTrajectory bool
	// TaskTimeout bounds the engine stream when positive. Zero keeps the
	// reference behavior of waiting indefinitely.
	TaskTimeout time.Duration

	Logger *slog.Logger
}

// Outcome is the per-task terminal value returned to the orchestrator.
type Outcome struct {
	TaskID   string
	Success  bool
	Result   any
	Err      string
	Warnings []string
	Duration time.Duration
}

// Run executes one task and never returns an unhandled fault: panics and
// errors are converted into a failure outcome with a persisted error record.
func (r *TaskRunner) Run(ctx context.Context, task dataset.Task) (out Outcome) {
	start := time.Now()
	var dispatched bool
	defer func() {
		if rec := recover(); rec != nil {
			out = r.fail(task, start, fmt.Errorf("panic: %v", rec), dispatched)
		}
	}()
	return r.run(ctx, task, start, &dispatched)
}

func (r *TaskRunner) run(ctx context.Context, task dataset.Task, start time.Time, dispatched *bool) Outcome {
	log := r.logger().With("task", task.ID)

	if err := r.Limiter.Acquire(ctx); err != nil {
		return r.fail(task, start, fmt.Errorf("rate limit wait: %w", err), *dispatched)
	}

	if err := r.Gate.Enter(ctx); err != nil {
		return r.fail(task, start, fmt.Errorf("waiting for execution slot: %w", err), *dispatched)
	}
	defer r.Gate.Exit()

	r.Stats.TaskStarted()
	*dispatched = true
	log.Info("starting task", "trajectory", r.CollectTrajectory)

	runRef := fmt.Sprintf("EVAL_%s_%s", strings.ToUpper(r.Manager.Variant()), task.ID)

	var recorder *trajectory.Recorder
	if r.CollectTrajectory {
		recorder = trajectory.NewRecorder(task.Query)
	}

	streamCtx := ctx
	if r.TaskTimeout > 0 {
		var cancel context.CancelFunc
		streamCtx, cancel = context.WithTimeout(ctx, r.TaskTimeout)
		defer cancel()
	}

	engineStart := time.Now()
	final, err := r.consumeStream(streamCtx, task, runRef, recorder)
	engineDuration := time.Since(engineStart)
	if err != nil {
		return r.fail(task, start, err, true)
	}
	log.Info("engine stream completed", "duration", engineDuration.Round(time.Millisecond))

	summary, article := deriveArtifact(final, r.Config)
	end := time.Now()
	totalSources := len(sourceStrings(final["sources_gathered"]))

	result := &storage.TaskResult{
		ID:      task.ID,
		Query:   task.Query,
		Article: article,
		Summary: summary,
		Timing: storage.Timing{
			StartTime:            start,
			EndTime:              end,
			TotalDurationSeconds: end.Sub(start).Seconds(),
			EngineSeconds:        engineDuration.Seconds(),
		},
		DebugInfo: storage.DebugInfo{
			ResearchLoops:      intField(final, "research_loop_count"),
			SourcesGathered:    totalSources,
			KnowledgeGap:       stringField(final, "knowledge_gap"),
			SelectedSearchTool: stringFieldDefault(final, "selected_search_tool", "unknown"),
			ResearchComplete:   boolField(final, "research_complete"),
		},
		ContentStats: storage.ContentStats{
			FinalContentLength: len(strings.Fields(article)),
			FinalSummaryLength: len(strings.Fields(summary)),
		},
	}

	outcome := Outcome{TaskID: task.ID, Success: true, Duration: end.Sub(start)}
	outcome.Result = r.Manager.FormatResult(task, result)

	// Write failures past this point are persistence warnings: the result
	// was computed, so the task still counts as completed.
	if path, err := r.Writer.WriteResult(r.Manager.OutputFilename(task.ID), outcome.Result); err != nil {
		log.Warn("result write failed", "error", err)
		outcome.Warnings = append(outcome.Warnings, err.Error())
	} else {
		log.Info("result saved", "path", path)
	}

	if recorder != nil {
		file := &storage.TrajectoryFile{
			RunRef:              runRef,
			Query:               task.Query,
			FinalReportMarkdown: article,
			StartTime:           start,
			EndTime:             end,
			DurationSeconds:     end.Sub(start).Seconds(),
			Configuration: storage.TrajectoryConfig{
				Provider:    r.Config.Provider,
				Model:       r.Config.Model,
				MaxLoops:    r.Config.MaxLoops,
				ExtraEffort: r.Config.ExtraEffort,
				QAMode:      r.Config.QAMode,
				Benchmark:   strings.ToUpper(r.Manager.Variant()),
			},
			Trajectory: recorder.Trajectory(totalSources),
		}
		if path, err := r.Writer.WriteTrajectory(task.ID, file); err != nil {
			log.Warn("trajectory write failed", "error", err)
			outcome.Warnings = append(outcome.Warnings, err.Error())
		} else {
			log.Info("trajectory saved", "path", path)
		}
	}

	r.Stats.TaskCompleted()
	log.Info("task completed", "duration", outcome.Duration.Round(time.Millisecond))
	return outcome
}

// consumeStream pulls every snapshot in order, feeding the recorder when
// enabled and tracking the latest mapping payload as the final-result
// candidate.
func (r *TaskRunner) consumeStream(ctx context.Context, task dataset.Task, runRef string, recorder *trajectory.Recorder) (map[string]any, error) {
	stream, err := r.Engine.Stream(ctx, engine.NewInitialState(runRef, task.Query, r.Config))
	if err != nil {
		return nil, fmt.Errorf("opening engine stream: %w", err)
	}

	var final map[string]any
	for {
		snap, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("engine stream: %w", err)
		}

		if recorder != nil {
			recorder.Observe(snap)
		}
		if state, ok := snap.State(); ok {
			final = state
		}
	}

	if recorder != nil {
		recorder.Finish()
	}
	if final == nil {
		return nil, ErrNoSnapshots
	}
	return final, nil
}

// fail converts any error into the terminal failure shape: an error artifact
// on disk, a failure counter bump, and a non-propagating outcome. A task that
// never entered execution is counted as dispatched and failed in one step, so
// the finished counters cannot outrun dispatch.
func (r *TaskRunner) fail(task dataset.Task, start time.Time, cause error, dispatched bool) Outcome {
	log := r.logger().With("task", task.ID)
	log.Error("task failed", "error", cause)

	if dispatched {
		r.Stats.TaskFailed()
	} else {
		r.Stats.TaskAborted()
	}

	if _, err := r.Writer.WriteError(task.ID, task.Query, cause.Error()); err != nil {
		log.Warn("error record write failed", "error", err)
	}

	return Outcome{
		TaskID:   task.ID,
		Err:      cause.Error(),
		Duration: time.Since(start),
	}
}

func (r *TaskRunner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// deriveArtifact picks the final article text. QA and benchmark modes prefer
// the engine's structured answer; report mode prefers the markdown report
// trimmed from the Executive Summary marker onward. Both fall back to the
// running summary.
func deriveArtifact(final map[string]any, cfg config.Execution) (summary, article string) {
	summary = "No summary generated"
	if v, ok := final["running_summary"]; ok {
		summary = trajectory.FlattenText(v)
	}

	if cfg.QAMode || cfg.BenchmarkMode {
		article = summary
		if bench, ok := final["benchmark_result"].(map[string]any); ok && len(bench) > 0 {
			if resp := trajectory.FlattenText(bench["full_response"]); resp != "" {
				article = resp
			}
		}
		return summary, article
	}

	report := trajectory.FlattenText(final["markdown_report"])
	if strings.TrimSpace(report) == "" {
		return summary, summary
	}
	if idx := strings.Index(report, execSummaryMarker); idx >= 0 {
		return summary, report[idx:]
	}
	return summary, report
}

func sourceStrings(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, fmt.Sprintf("%v", item))
		}
		return out
	default:
		return nil
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func stringFieldDefault(m map[string]any, key, fallback string) string {
	if s, ok := m[key].(string); ok && s != "" {
		return s
	}
	return fallback
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
