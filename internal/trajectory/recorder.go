package trajectory

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"github.com/probeworks/sounder/internal/engine"
)

// fields is the typed view of the snapshot keys the recorder diffs on.
// Snapshots are weakly typed (JSON numbers arrive as float64, lists as
// []any), so decoding goes through mapstructure with weak conversion.
type fields struct {
	ResearchLoopCount int              `mapstructure:"research_loop_count"`
	ResearchPlan      any              `mapstructure:"research_plan"`
	SearchQuery       string           `mapstructure:"search_query"`
	ResearchTopic     string           `mapstructure:"research_topic"`
	KnowledgeGap      string           `mapstructure:"knowledge_gap"`
	WebResults        []map[string]any `mapstructure:"web_research_results"`
	RunningSummary    any              `mapstructure:"running_summary"`
	FinalSummary      any              `mapstructure:"final_summary"`
	SourcesGathered   []string         `mapstructure:"sources_gathered"`
	SourceCitations   map[string]any   `mapstructure:"source_citations"`
	Visualizations    []any            `mapstructure:"visualizations"`
	ResearchComplete  bool             `mapstructure:"research_complete"`
	SectionGaps       map[string]any   `mapstructure:"section_gaps"`
	PrioritySection   string           `mapstructure:"priority_section"`
	EvaluationNotes   string           `mapstructure:"evaluation_notes"`
}

func decodeFields(state map[string]any) (*fields, error) {
	var f fields
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &f,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(state); err != nil {
		return nil, fmt.Errorf("decoding snapshot fields: %w", err)
	}
	return &f, nil
}

// Recorder reconstructs a structured trajectory from the engine's snapshot
// stream. It holds at most one open iteration at a time; an iteration is
// closed by a reflection-stage emission, or unconditionally at stream end.
//
// Recorder is not safe for concurrent use: snapshots for one task are
// processed strictly sequentially.
type Recorder struct {
	Query string

	iterations  []*Iteration
	current     *Iteration
	toolCallSeq int

	lastOpened int
	prev       *fields
	prevSrcSet map[string]struct{}

	now func() time.Time
}

// NewRecorder creates a recorder for one task's stream.
func NewRecorder(query string) *Recorder {
	return &Recorder{
		Query:      query,
		lastOpened: -1,
		prev:       &fields{},
		prevSrcSet: map[string]struct{}{},
		now:        time.Now,
	}
}

// Observe processes the next snapshot in emission order. Snapshots whose
// payload is not a field mapping are ignored entirely: no diffing and no
// previous-snapshot replacement.
func (r *Recorder) Observe(snap engine.Snapshot) {
	state, ok := snap.State()
	if !ok {
		return
	}

	cur, err := decodeFields(state)
	if err != nil {
		return
	}

	if r.current == nil && cur.ResearchLoopCount != r.lastOpened {
		r.openIteration(cur.ResearchLoopCount)
	}

	r.observePlan(cur)
	r.observeSearches(cur)
	r.observeSummary(cur)
	r.observeFinalReport(cur)
	r.observeSources(cur)

	if isReflectionStage(snap.Node) {
		r.observeReflection(state, cur)
	}

	r.prev = cur
}

// Finish closes any still-open iteration. Call once at stream end.
func (r *Recorder) Finish() {
	r.closeIteration()
}

// Iterations returns the closed iteration records in order.
func (r *Recorder) Iterations() []*Iteration {
	return r.iterations
}

// OpenIteration reports whether an iteration is currently being tracked.
func (r *Recorder) OpenIteration() bool {
	return r.current != nil
}

// Trajectory assembles the final trajectory with its summary header.
func (r *Recorder) Trajectory(totalUniqueSources int) *Trajectory {
	digests := make([]IterationDigest, 0, len(r.iterations))
	for _, it := range r.iterations {
		digests = append(digests, IterationDigest{
			Number:       it.Number,
			NumToolCalls: len(it.ToolCalls),
			NumSources:   it.NumSources,
		})
	}
	return &Trajectory{
		Query: r.Query,
		Summary: Digest{
			Query:           r.Query,
			NumIterations:   len(r.iterations),
			TotalNumSources: totalUniqueSources,
			Iterations:      digests,
		},
		Iterations: r.iterations,
	}
}

func (r *Recorder) openIteration(number int) {
	r.current = &Iteration{
		Number:    number,
		StartedAt: r.now(),
		ToolCalls: []ToolCall{},
	}
	r.lastOpened = number
}

func (r *Recorder) closeIteration() {
	if r.current == nil {
		return
	}
	r.current.EndedAt = r.now()
	r.iterations = append(r.iterations, r.current)
	r.current = nil
}

func (r *Recorder) addToolCall(name string, args map[string]any, result any) {
	if r.current == nil {
		return
	}
	r.toolCallSeq++
	r.current.ToolCalls = append(r.current.ToolCalls, ToolCall{
		ID:        fmt.Sprintf("call_%d", r.toolCallSeq),
		Type:      "function",
		Function:  FunctionCall{Name: name, Arguments: args},
		Result:    result,
		Timestamp: r.now(),
	})
}

// observePlan records a decompose_query call when the engine publishes a new
// research plan.
func (r *Recorder) observePlan(cur *fields) {
	if !truthy(cur.ResearchPlan) || reflect.DeepEqual(cur.ResearchPlan, r.prev.ResearchPlan) {
		return
	}
	query := cur.SearchQuery
	if query == "" {
		query = cur.ResearchTopic
	}
	r.addToolCall("decompose_query", map[string]any{
		"query":         query,
		"knowledge_gap": cur.KnowledgeGap,
	}, cur.ResearchPlan)
}

// observeSearches emits one tool call per search result appended since the
// previous snapshot.
func (r *Recorder) observeSearches(cur *fields) {
	if len(cur.WebResults) == 0 || len(cur.WebResults) <= len(r.prev.WebResults) {
		return
	}
	for _, entry := range cur.WebResults[len(r.prev.WebResults):] {
		tool := "general_search"
		if name, ok := entry["tool"].(string); ok && name != "" {
			tool = name
		}
		query, _ := entry["query"].(string)
		sources := sourceList(entry["sources"])

		r.addToolCall(tool, map[string]any{"query": query}, map[string]any{
			"num_sources": len(sources),
			"sources":     sources,
		})
	}
}

func (r *Recorder) observeSummary(cur *fields) {
	summary := FlattenText(cur.RunningSummary)
	prevSummary := FlattenText(r.prev.RunningSummary)
	if summary == "" || summary == prevSummary {
		return
	}

	r.addToolCall("generate_report", map[string]any{
		"existing_summary_length": len(prevSummary),
		"new_research_results":    len(cur.WebResults),
		"knowledge_gap":           cur.KnowledgeGap,
	}, map[string]any{
		"updated_summary_length": len(summary),
		"num_sources_cited":      len(cur.SourceCitations),
	})

	if r.current != nil {
		r.current.RunningSummary = PlainText(summary)
	}
}

func (r *Recorder) observeFinalReport(cur *fields) {
	final := FlattenText(cur.FinalSummary)
	prevFinal := FlattenText(r.prev.FinalSummary)
	if final == "" || prevFinal != "" {
		return
	}

	r.addToolCall("finalize_report", map[string]any{
		"running_summary_length": len(FlattenText(cur.RunningSummary)),
		"total_sources":          len(cur.SourcesGathered),
		"has_visualizations":     len(cur.Visualizations) > 0,
	}, map[string]any{
		"final_report_length": len(final),
		"formatted_sources":   len(cur.SourceCitations),
	})
}

// observeSources compares the source list as a set against the previous
// snapshot's set, so repeated identical snapshots record zero new sources.
func (r *Recorder) observeSources(cur *fields) {
	if r.current == nil || len(cur.SourcesGathered) == 0 {
		return
	}

	curSet := make(map[string]struct{}, len(cur.SourcesGathered))
	for _, s := range cur.SourcesGathered {
		curSet[s] = struct{}{}
	}
	if setsEqual(curSet, r.prevSrcSet) {
		return
	}

	added := 0
	for s := range curSet {
		if _, seen := r.prevSrcSet[s]; !seen {
			added++
		}
	}
	r.current.NumSources = added
	r.prevSrcSet = curSet
}

// observeReflection captures the reflection payload and closes the iteration.
// Closing does not open the next one; that happens when a differing loop
// counter arrives.
func (r *Recorder) observeReflection(state map[string]any, cur *fields) {
	if r.current == nil {
		return
	}

	result := map[string]any{
		"research_complete": cur.ResearchComplete,
		"knowledge_gap":     cur.KnowledgeGap,
		"follow_up_query":   cur.SearchQuery,
		"section_gaps":      cur.SectionGaps,
		"priority_section":  cur.PrioritySection,
		"evaluation_notes":  cur.EvaluationNotes,
		"research_topic":    cur.ResearchTopic,
	}
	if updates, ok := state["todo_updates"]; ok {
		result["todo_updates"] = updates
	}

	r.addToolCall("reflect_on_report", map[string]any{}, result)
	r.closeIteration()
}

func isReflectionStage(node string) bool {
	return strings.Contains(strings.ToLower(node), "reflect")
}

func truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}

func sourceList(v any) []string {
	switch val := v.(type) {
	case []string:
		return val
	case []any:
		out := make([]string, 0, len(val))
		for _, item := range val {
			out = append(out, stringify(item))
		}
		return out
	default:
		return nil
	}
}

func setsEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
