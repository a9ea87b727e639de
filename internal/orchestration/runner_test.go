package orchestration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeworks/sounder/internal/config"
	"github.com/probeworks/sounder/internal/dataset"
	"github.com/probeworks/sounder/internal/engine"
	"github.com/probeworks/sounder/internal/storage"
)

func newTestRunner(t *testing.T, eng engine.Engine, cfg config.Execution) *TaskRunner {
	t.Helper()
	writer, err := storage.NewWriter(t.TempDir())
	require.NoError(t, err)

	return &TaskRunner{
		Engine:  eng,
		Manager: &dataset.DeepConsultManager{},
		Config:  cfg,
		Limiter: NewRateLimiter(0),
		Gate:    NewGate(5),
		Stats:   &BatchStats{},
		Writer:  writer,
	}
}

func reportScript(report string) engine.Script {
	return engine.Script{
		Snapshots: []engine.Snapshot{
			{Node: "plan_research", Payload: map[string]any{
				"research_loop_count": 0,
				"research_plan":       "plan",
			}},
			{Node: "reflect_on_report", Payload: map[string]any{
				"research_loop_count": 0,
				"running_summary":     "the summary",
				"markdown_report":     report,
				"sources_gathered":    []any{"https://a", "https://b"},
				"research_complete":   true,
			}},
		},
	}
}

func TestTaskRunnerSuccess(t *testing.T) {
	eng := engine.NewScriptedEngine()
	eng.Default = reportScript("# Title\n\n- toc entry\n\n## Executive Summary\nFindings here.\n")

	r := newTestRunner(t, eng, config.Execution{Provider: "openai", Model: "o3-mini", MaxLoops: 5})
	out := r.Run(context.Background(), dataset.Task{ID: "0", Query: "the query"})

	require.True(t, out.Success)
	assert.Empty(t, out.Err)
	assert.Empty(t, out.Warnings)

	result, ok := out.Result.(*storage.TaskResult)
	require.True(t, ok)
	assert.Equal(t, "## Executive Summary\nFindings here.\n", result.Article,
		"report is trimmed from the executive summary marker")
	assert.Equal(t, "the summary", result.Summary)
	assert.Equal(t, 2, result.DebugInfo.SourcesGathered)
	assert.True(t, result.DebugInfo.ResearchComplete)
	assert.Equal(t, "unknown", result.DebugInfo.SelectedSearchTool)

	// Result file lands on disk under the variant naming scheme.
	_, err := os.Stat(filepath.Join(r.Writer.Dir(), "deepconsult_0.json"))
	assert.NoError(t, err)

	view := r.Stats.View()
	assert.Equal(t, 1, view.Completed)
	assert.Equal(t, 0, view.Failed)
}

func TestTaskRunnerBenchmarkModePrefersFullResponse(t *testing.T) {
	eng := engine.NewScriptedEngine()
	eng.Default = engine.Script{
		Snapshots: []engine.Snapshot{
			{Node: "finalize", Payload: map[string]any{
				"research_loop_count": 1,
				"running_summary":     "short summary",
				"benchmark_result": map[string]any{
					"full_response": "the full structured answer",
				},
			}},
		},
	}

	r := newTestRunner(t, eng, config.Execution{BenchmarkMode: true})
	out := r.Run(context.Background(), dataset.Task{ID: "1", Query: "q"})

	require.True(t, out.Success)
	result := out.Result.(*storage.TaskResult)
	assert.Equal(t, "the full structured answer", result.Article)
	assert.Equal(t, "short summary", result.Summary)
}

func TestTaskRunnerStreamError(t *testing.T) {
	eng := engine.NewScriptedEngine()
	eng.Default = engine.Script{
		Snapshots: []engine.Snapshot{
			{Node: "plan", Payload: map[string]any{"research_loop_count": 0}},
		},
		Err: errors.New("engine exploded"),
	}

	r := newTestRunner(t, eng, config.Execution{})
	out := r.Run(context.Background(), dataset.Task{ID: "2", Query: "q"})

	require.False(t, out.Success)
	assert.Contains(t, out.Err, "engine exploded")

	// A terminal error artifact is written instead of a result.
	_, err := os.Stat(filepath.Join(r.Writer.Dir(), "error_2.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(r.Writer.Dir(), "deepconsult_2.json"))
	assert.True(t, os.IsNotExist(err))

	view := r.Stats.View()
	assert.Equal(t, 0, view.Completed)
	assert.Equal(t, 1, view.Failed)
}

func TestTaskRunnerEmptyStream(t *testing.T) {
	eng := engine.NewScriptedEngine()

	r := newTestRunner(t, eng, config.Execution{})
	out := r.Run(context.Background(), dataset.Task{ID: "3", Query: "q"})

	require.False(t, out.Success)
	assert.Contains(t, out.Err, ErrNoSnapshots.Error())
}

func TestTaskRunnerNonMappingPayloadsOnly(t *testing.T) {
	eng := engine.NewScriptedEngine()
	eng.Default = engine.Script{
		Snapshots: []engine.Snapshot{
			{Node: "stream_chunk", Payload: "raw text"},
			{Node: "stream_chunk", Payload: []any{"still", "raw"}},
		},
	}

	r := newTestRunner(t, eng, config.Execution{})
	out := r.Run(context.Background(), dataset.Task{ID: "4", Query: "q"})

	require.False(t, out.Success, "bare-value emissions never become a final result")
	assert.Contains(t, out.Err, ErrNoSnapshots.Error())
}

func TestTaskRunnerCollectsTrajectory(t *testing.T) {
	eng := engine.NewScriptedEngine()
	eng.Default = reportScript("## Executive Summary\nReport body.\n")

	r := newTestRunner(t, eng, config.Execution{Provider: "openai", Model: "o3-mini", MaxLoops: 5})
	r.CollectTrajectory = true

	out := r.Run(context.Background(), dataset.Task{ID: "5", Query: "q"})
	require.True(t, out.Success)

	data, err := os.ReadFile(filepath.Join(r.Writer.Dir(), "trajectory_5.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_ref": "EVAL_DEEPCONSULT_5"`)
	assert.Contains(t, string(data), `"reflect_on_report"`)
}

func TestTaskRunnerCancelledBeforeDispatch(t *testing.T) {
	r := newTestRunner(t, engine.NewScriptedEngine(), config.Execution{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	out := r.Run(ctx, dataset.Task{ID: "8", Query: "q"})
	require.False(t, out.Success)
	assert.Contains(t, out.Err, context.Canceled.Error())

	// A task aborted while waiting for its slot still counts as dispatched,
	// so the finished counters never outrun dispatch.
	view := r.Stats.View()
	assert.Equal(t, 1, view.Dispatched)
	assert.Equal(t, 1, view.Failed)
	assert.Equal(t, 0, view.Completed)
	assert.Equal(t, 0, view.InProgress)
	assert.LessOrEqual(t, view.Completed+view.Failed, view.Dispatched)
}

func TestTaskRunnerCancelledAtGate(t *testing.T) {
	r := newTestRunner(t, engine.NewScriptedEngine(), config.Execution{})
	r.Gate = NewGate(1)
	require.NoError(t, r.Gate.Enter(context.Background()))
	defer r.Gate.Exit()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	out := r.Run(ctx, dataset.Task{ID: "9", Query: "q"})
	require.False(t, out.Success)

	view := r.Stats.View()
	assert.Equal(t, 1, view.Dispatched)
	assert.Equal(t, 1, view.Failed)
	assert.LessOrEqual(t, view.Completed+view.Failed, view.Dispatched)
}

func TestTaskRunnerTimeout(t *testing.T) {
	eng := engine.NewScriptedEngine()
	eng.Default = engine.Script{
		Snapshots: []engine.Snapshot{
			{Node: "plan", Payload: map[string]any{"research_loop_count": 0}},
		},
		Delay: 200 * time.Millisecond,
	}

	r := newTestRunner(t, eng, config.Execution{})
	r.TaskTimeout = 20 * time.Millisecond

	out := r.Run(context.Background(), dataset.Task{ID: "6", Query: "q"})
	require.False(t, out.Success)
	assert.Contains(t, out.Err, context.DeadlineExceeded.Error())
}

func TestDeriveArtifact(t *testing.T) {
	tests := []struct {
		name            string
		final           map[string]any
		cfg             config.Execution
		expectedSummary string
		expectedArticle string
	}{
		{
			name:            "missing summary key",
			final:           map[string]any{},
			expectedSummary: "No summary generated",
			expectedArticle: "No summary generated",
		},
		{
			name:            "report without marker kept whole",
			final:           map[string]any{"running_summary": "s", "markdown_report": "full report"},
			expectedSummary: "s",
			expectedArticle: "full report",
		},
		{
			name:            "report trimmed at marker",
			final:           map[string]any{"running_summary": "s", "markdown_report": "preamble\n## Executive Summary\nbody"},
			expectedSummary: "s",
			expectedArticle: "## Executive Summary\nbody",
		},
		{
			name:            "blank report falls back to summary",
			final:           map[string]any{"running_summary": "s", "markdown_report": "  \n "},
			expectedSummary: "s",
			expectedArticle: "s",
		},
		{
			name:            "qa mode uses summary",
			final:           map[string]any{"running_summary": "answer", "markdown_report": "ignored"},
			cfg:             config.Execution{QAMode: true},
			expectedSummary: "answer",
			expectedArticle: "answer",
		},
		{
			name: "benchmark mode prefers full response",
			final: map[string]any{
				"running_summary":  "answer",
				"benchmark_result": map[string]any{"full_response": "full"},
			},
			cfg:             config.Execution{BenchmarkMode: true},
			expectedSummary: "answer",
			expectedArticle: "full",
		},
		{
			name: "benchmark mode with empty response falls back",
			final: map[string]any{
				"running_summary":  "answer",
				"benchmark_result": map[string]any{"full_response": ""},
			},
			cfg:             config.Execution{BenchmarkMode: true},
			expectedSummary: "answer",
			expectedArticle: "answer",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary, article := deriveArtifact(tt.final, tt.cfg)
			assert.Equal(t, tt.expectedSummary, summary)
			assert.Equal(t, tt.expectedArticle, article)
		})
	}
}
