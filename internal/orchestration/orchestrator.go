package orchestration

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/probeworks/sounder/internal/dataset"
)

// DefaultMonitorInterval is how often the progress monitor reports.
const DefaultMonitorInterval = 10 * time.Second

// BatchResult aggregates a whole batch: outcomes partitioned by success,
// overall duration, and throughput in tasks per minute.
type BatchResult struct {
	RunID      string
	Total      int
	Succeeded  []Outcome
	Failed     []Outcome
	Duration   time.Duration
	Throughput float64
}

// Orchestrator fans a task list out to concurrent runners under the shared
// gate and rate limiter, monitors progress, and collects outcomes without
// letting any single task's fault cancel its siblings.
type Orchestrator struct {
	Runner *TaskRunner
	Stats  *BatchStats

	// MonitorInterval overrides the progress reporting period; zero means
	// DefaultMonitorInterval.
	MonitorInterval time.Duration

	Logger *slog.Logger
}

// Run executes the whole batch and returns the partitioned outcomes.
func (o *Orchestrator) Run(ctx context.Context, tasks []dataset.Task) *BatchResult {
	log := o.logger()
	start := time.Now()
	runID := uuid.NewString()

	o.Stats.Reset()
	log.Info("starting batch", "run_id", runID, "tasks", len(tasks))

	monitorDone := make(chan struct{})
	monitorCtx, cancelMonitor := context.WithCancel(ctx)
	go func() {
		defer close(monitorDone)
		o.monitor(monitorCtx, len(tasks))
	}()

	outcomes := make([]Outcome, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(idx int, t dataset.Task) {
			defer wg.Done()
			defer func() {
				// TaskRunner.Run recovers its own panics; this is the
				// positional net for faults before the runner takes over.
				if rec := recover(); rec != nil {
					outcomes[idx] = Outcome{TaskID: t.ID, Err: fmt.Sprintf("panic: %v", rec)}
				}
			}()
			outcomes[idx] = o.Runner.Run(ctx, t)
		}(i, task)
	}
	wg.Wait()

	cancelMonitor()
	<-monitorDone

	result := &BatchResult{
		RunID:    runID,
		Total:    len(tasks),
		Duration: time.Since(start),
	}
	for _, out := range outcomes {
		if out.Success {
			result.Succeeded = append(result.Succeeded, out)
		} else {
			result.Failed = append(result.Failed, out)
		}
	}
	if result.Duration > 0 {
		result.Throughput = float64(len(result.Succeeded)) / result.Duration.Minutes()
	}

	log.Info("batch complete",
		"run_id", runID,
		"succeeded", len(result.Succeeded),
		"failed", len(result.Failed),
		"duration", result.Duration.Round(time.Second),
		"tasks_per_minute", fmt.Sprintf("%.2f", result.Throughput),
	)

	return result
}

// monitor periodically reports progress and self-terminates once every task
// is accounted for, or when cooperatively cancelled at batch end.
func (o *Orchestrator) monitor(ctx context.Context, total int) {
	interval := o.MonitorInterval
	if interval <= 0 {
		interval = DefaultMonitorInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view := o.Stats.View()
		rate := 0.0
		if view.Elapsed > 0 {
			rate = float64(view.Completed) / view.Elapsed.Seconds()
		}
		eta := time.Duration(0)
		if rate > 0 {
			remaining := total - view.Completed - view.Failed
			eta = time.Duration(float64(remaining)/rate) * time.Second
		}

		o.logger().Info("progress",
			"completed", view.Completed,
			"failed", view.Failed,
			"in_progress", view.InProgress,
			"total", total,
			"eta", eta.Round(time.Second),
		)

		if view.Completed+view.Failed >= total {
			return
		}
	}
}

func (o *Orchestrator) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
