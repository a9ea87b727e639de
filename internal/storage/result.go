package storage

import (
	"time"

	"github.com/probeworks/sounder/internal/trajectory"
)

// Timing is the per-task duration breakdown.
type Timing struct {
	StartTime            time.Time `json:"start_time"`
	EndTime              time.Time `json:"end_time"`
	TotalDurationSeconds float64   `json:"total_duration_seconds"`
	EngineSeconds        float64   `json:"engine_execution_seconds"`
}

// DebugInfo carries the engine-level counters captured from the final
// snapshot.
type DebugInfo struct {
	ResearchLoops      int    `json:"research_loops"`
	SourcesGathered    int    `json:"sources_gathered"`
	KnowledgeGap       string `json:"knowledge_gap"`
	SelectedSearchTool string `json:"selected_search_tool"`
	ResearchComplete   bool   `json:"research_complete"`
}

// ContentStats holds word counts of the produced texts.
type ContentStats struct {
	FinalContentLength int `json:"final_content_length"`
	FinalSummaryLength int `json:"final_summary_length"`
}

// TaskResult is the terminal success artifact for one task. Exactly one
// TaskResult or one ErrorRecord exists per task.
type TaskResult struct {
	ID           string       `json:"id"`
	Query        string       `json:"query"`
	Article      string       `json:"article"`
	Summary      string       `json:"summary"`
	Timing       Timing       `json:"timing"`
	DebugInfo    DebugInfo    `json:"debug_info"`
	ContentStats ContentStats `json:"content_stats"`
}

// ErrorRecord is the terminal failure artifact for one task.
type ErrorRecord struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// TrajectoryConfig records the execution configuration alongside a saved
// trajectory.
type TrajectoryConfig struct {
	Provider    string `json:"provider"`
	Model       string `json:"model"`
	MaxLoops    int    `json:"max_loops"`
	ExtraEffort bool   `json:"extra_effort"`
	QAMode      bool   `json:"qa_mode"`
	Benchmark   string `json:"benchmark"`
}

// TrajectoryFile is the on-disk shape of a task trajectory.
type TrajectoryFile struct {
	RunRef              string                 `json:"run_ref"`
	Query               string                 `json:"query"`
	FinalReportMarkdown string                 `json:"final_report_markdown"`
	StartTime           time.Time              `json:"start_time"`
	EndTime             time.Time              `json:"end_time"`
	DurationSeconds     float64                `json:"duration_seconds"`
	Configuration       TrajectoryConfig       `json:"configuration"`
	Trajectory          *trajectory.Trajectory `json:"trajectory"`
}
