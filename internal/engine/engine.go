package engine

import (
	"context"
	"fmt"

	"github.com/probeworks/sounder/internal/config"
)

// Snapshot is one partial-state emission from the research engine. Node names
// the engine stage that produced it; Payload is usually a field mapping but
// some stages emit bare values, which consumers are expected to skip.
type Snapshot struct {
	Node    string
	Payload any
}

// State returns the snapshot's field mapping, or false when the payload is not
// a mapping.
func (s Snapshot) State() (map[string]any, bool) {
	state, ok := s.Payload.(map[string]any)
	return state, ok
}

// Stream is an ordered, finite sequence of snapshots. Next returns io.EOF
// after the last emission; any other error terminates the stream.
type Stream interface {
	Next(ctx context.Context) (Snapshot, error)
}

// InitialState seeds one engine execution. It mirrors the engine's own state
// shape: topic and query start equal, counters at zero, mode flags from the
// batch configuration.
type InitialState struct {
	ResearchTopic string
	SearchQuery   string

	Config config.Execution

	// RunRef tags the execution for downstream correlation, e.g.
	// "EVAL_DRB_17".
	RunRef   string
	Tags     []string
	Metadata map[string]any
}

// Engine produces snapshot streams for research executions. The engine itself
// is an external collaborator; this package only defines the boundary.
type Engine interface {
	Stream(ctx context.Context, initial InitialState) (Stream, error)
}

// NewInitialState builds the seed state for one task.
func NewInitialState(runRef, query string, cfg config.Execution) InitialState {
	return InitialState{
		ResearchTopic: query,
		SearchQuery:   query,
		Config:        cfg,
		RunRef:        runRef,
		Tags: []string{
			"provider:" + cfg.Provider,
			"model:" + cfg.Model,
			fmt.Sprintf("loops:%d", cfg.MaxLoops),
			"eval_trajectory",
		},
		Metadata: map[string]any{
			"run_ref":   runRef,
			"query":     query,
			"provider":  cfg.Provider,
			"model":     cfg.Model,
			"max_loops": cfg.MaxLoops,
		},
	}
}
