package trajectory

import "time"

// FunctionCall names a reconstructed engine action and its arguments.
type FunctionCall struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolCall is one reconstructed log entry describing an engine-internal
// action inferred from snapshot deltas. Ids are synthetic and sequential
// within a task.
type ToolCall struct {
	ID        string       `json:"id"`
	Type      string       `json:"type"`
	Function  FunctionCall `json:"function"`
	Result    any          `json:"result"`
	Timestamp time.Time    `json:"timestamp"`
}

// Iteration is one research cycle, bounded by a reflection emission.
type Iteration struct {
	Number         int        `json:"iteration"`
	StartedAt      time.Time  `json:"timestamp_start"`
	EndedAt        time.Time  `json:"timestamp_end"`
	ToolCalls      []ToolCall `json:"tool_calls"`
	RunningSummary string     `json:"running_summary"`
	NumSources     int        `json:"num_sources"`
}

// IterationDigest summarizes one iteration for the trajectory header.
type IterationDigest struct {
	Number       int `json:"iteration"`
	NumToolCalls int `json:"num_tool_calls"`
	NumSources   int `json:"num_sources"`
}

// Digest is the trajectory-level summary block.
type Digest struct {
	Query           string            `json:"query"`
	NumIterations   int               `json:"num_iterations"`
	TotalNumSources int               `json:"total_num_sources"`
	Iterations      []IterationDigest `json:"iterations_summary"`
}

// Trajectory is the full ordered set of iteration records for one task.
type Trajectory struct {
	Query      string       `json:"query"`
	Summary    Digest       `json:"summary"`
	Iterations []*Iteration `json:"iterations"`
}
