package dataset

import (
	"fmt"
	"strings"

	"github.com/probeworks/sounder/internal/storage"
)

// Task is one research query loaded from a benchmark dataset. Immutable once
// loaded.
type Task struct {
	ID    string
	Query string
	// Meta carries benchmark-specific fields from the source record.
	Meta map[string]any
}

// Manager is the capability interface one benchmark variant implements.
type Manager interface {
	// Variant names the benchmark ("drb", "deepconsult").
	Variant() string

	// LoadTasks reads the dataset, optionally filtered to an id allowlist
	// and truncated to limit (0 = no limit). Failures are fatal for the
	// batch.
	LoadTasks(path string, ids []string, limit int) ([]Task, error)

	// QueryField names the source field holding the query text.
	QueryField() string

	// OutputFilename returns the result filename for a task.
	OutputFilename(taskID string) string

	// FormatResult shapes a task result for persistence.
	FormatResult(task Task, result *storage.TaskResult) any
}

// FatalError marks a dataset failure that must abort the batch before any
// dispatch.
type FatalError struct {
	Path string
	Err  error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("dataset %s: %v", e.Path, e.Err)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// ForVariant returns the manager for a benchmark variant.
func ForVariant(variant string) (Manager, error) {
	switch variant {
	case "drb":
		return &DRBManager{}, nil
	case "deepconsult":
		return &DeepConsultManager{}, nil
	default:
		return nil, fmt.Errorf("unknown benchmark variant: %s", variant)
	}
}

// NormalizeQuery converts any accepted query shape to canonical text: lists
// are joined with spaces, other non-strings stringified, whitespace trimmed.
// Every component downstream sees only the normalized form.
func NormalizeQuery(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, strings.TrimSpace(fmt.Sprintf("%v", item)))
		}
		return strings.TrimSpace(strings.Join(parts, " "))
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}

// normalizeID renders a record id as text; JSON numbers lose their float
// suffix.
func normalizeID(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		if val == float64(int64(val)) {
			return fmt.Sprintf("%d", int64(val))
		}
		return fmt.Sprintf("%v", val)
	case int:
		return fmt.Sprintf("%d", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func filterTasks(tasks []Task, ids []string, limit int) []Task {
	if len(ids) > 0 {
		allow := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			allow[strings.TrimSpace(id)] = struct{}{}
		}
		kept := tasks[:0]
		for _, t := range tasks {
			if _, ok := allow[t.ID]; ok {
				kept = append(kept, t)
			}
		}
		tasks = kept
	}
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks
}
