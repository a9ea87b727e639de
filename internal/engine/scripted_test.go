package engine

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/probeworks/sounder/internal/config"
)

func drain(t *testing.T, s Stream) []Snapshot {
	t.Helper()
	var snaps []Snapshot
	for {
		snap, err := s.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return snaps
		}
		require.NoError(t, err)
		snaps = append(snaps, snap)
	}
}

func TestScriptedEngineReplaysInOrder(t *testing.T) {
	e := NewScriptedEngine()
	e.SetScript("topic", Script{
		Snapshots: []Snapshot{
			{Node: "plan", Payload: map[string]any{"research_loop_count": 0}},
			{Node: "reflect", Payload: map[string]any{"research_loop_count": 0}},
		},
	})

	stream, err := e.Stream(context.Background(), InitialState{ResearchTopic: "topic"})
	require.NoError(t, err)

	snaps := drain(t, stream)
	require.Len(t, snaps, 2)
	assert.Equal(t, "plan", snaps[0].Node)
	assert.Equal(t, "reflect", snaps[1].Node)
}

func TestScriptedEngineFallsBackToDefault(t *testing.T) {
	e := NewScriptedEngine()
	e.Default = Script{Snapshots: []Snapshot{{Node: "only"}}}

	stream, err := e.Stream(context.Background(), InitialState{ResearchTopic: "unregistered"})
	require.NoError(t, err)
	assert.Len(t, drain(t, stream), 1)
}

func TestScriptedEngineTerminalError(t *testing.T) {
	boom := errors.New("boom")
	e := NewScriptedEngine()
	e.SetScript("t", Script{
		Snapshots: []Snapshot{{Node: "plan"}},
		Err:       boom,
	})

	stream, err := e.Stream(context.Background(), InitialState{ResearchTopic: "t"})
	require.NoError(t, err)

	_, err = stream.Next(context.Background())
	require.NoError(t, err)
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSnapshotState(t *testing.T) {
	state, ok := Snapshot{Payload: map[string]any{"k": "v"}}.State()
	require.True(t, ok)
	assert.Equal(t, "v", state["k"])

	_, ok = Snapshot{Payload: "raw text"}.State()
	assert.False(t, ok)
}

func TestNewInitialState(t *testing.T) {
	cfg := config.Execution{Provider: "openai", Model: "o3-mini", MaxLoops: 5}
	initial := NewInitialState("EVAL_DRB_3", "the query", cfg)

	assert.Equal(t, "the query", initial.ResearchTopic)
	assert.Equal(t, "the query", initial.SearchQuery)
	assert.Equal(t, "EVAL_DRB_3", initial.RunRef)
	assert.Contains(t, initial.Tags, "model:o3-mini")
	assert.Contains(t, initial.Tags, "loops:5")
	assert.Equal(t, "EVAL_DRB_3", initial.Metadata["run_ref"])
}

func TestMockEngineScript(t *testing.T) {
	e := NewMockEngine("o3-mini")
	stream, err := e.Stream(context.Background(), InitialState{ResearchTopic: "anything"})
	require.NoError(t, err)

	snaps := drain(t, stream)
	require.NotEmpty(t, snaps)
	last, ok := snaps[len(snaps)-1].State()
	require.True(t, ok)
	assert.Equal(t, true, last["research_complete"])
}
