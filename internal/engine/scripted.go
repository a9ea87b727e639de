package engine

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// Script describes a canned engine execution: the snapshots to emit in order,
// an optional error raised after the last emission, and an optional delay
// before each emission.
type Script struct {
	Snapshots []Snapshot
	Err       error
	Delay     time.Duration
}

// ScriptedEngine replays canned snapshot scripts, keyed by research topic.
// It stands in for the real engine in tests and mock runs, the same way a
// mock agent engine does in a benchmark harness.
type ScriptedEngine struct {
	mu      sync.Mutex
	scripts map[string]Script
	// Default is played for topics without a registered script.
	Default Script

	// StartTimes records when each stream was opened, in open order.
	StartTimes []time.Time
}

// NewScriptedEngine creates an engine with no registered scripts.
func NewScriptedEngine() *ScriptedEngine {
	return &ScriptedEngine{scripts: map[string]Script{}}
}

// SetScript registers the script replayed for the given research topic.
func (e *ScriptedEngine) SetScript(topic string, script Script) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scripts[topic] = script
}

func (e *ScriptedEngine) Stream(ctx context.Context, initial InitialState) (Stream, error) {
	e.mu.Lock()
	script, ok := e.scripts[initial.ResearchTopic]
	if !ok {
		script = e.Default
	}
	e.StartTimes = append(e.StartTimes, time.Now())
	e.mu.Unlock()

	return &scriptedStream{script: script}, nil
}

type scriptedStream struct {
	script Script
	pos    int
}

func (s *scriptedStream) Next(ctx context.Context) (Snapshot, error) {
	if s.script.Delay > 0 {
		select {
		case <-time.After(s.script.Delay):
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}

	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}

	if s.pos >= len(s.script.Snapshots) {
		if s.script.Err != nil {
			return Snapshot{}, s.script.Err
		}
		return Snapshot{}, io.EOF
	}

	snap := s.script.Snapshots[s.pos]
	s.pos++
	return snap, nil
}

// NewMockEngine returns a scripted engine whose default script is a plausible
// single-iteration research run, usable from the CLI without a live engine.
func NewMockEngine(model string) *ScriptedEngine {
	e := NewScriptedEngine()
	summary := fmt.Sprintf("Mock research summary produced by %s.", model)
	e.Default = Script{
		Snapshots: []Snapshot{
			{Node: "plan_research", Payload: map[string]any{
				"research_loop_count": 0,
			}},
			{Node: "web_research", Payload: map[string]any{
				"research_loop_count": 0,
				"web_research_results": []any{
					map[string]any{
						"query":   "mock query",
						"tool":    "general_search",
						"sources": []any{"https://example.com/a"},
					},
				},
				"sources_gathered": []any{"https://example.com/a"},
			}},
			{Node: "summarize", Payload: map[string]any{
				"research_loop_count": 0,
				"running_summary":     summary,
			}},
			{Node: "reflect_on_report", Payload: map[string]any{
				"research_loop_count": 0,
				"running_summary":     summary,
				"research_complete":   true,
				"markdown_report":     "## Executive Summary\n\n" + summary + "\n",
			}},
		},
	}
	return e
}
