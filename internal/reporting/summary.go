package reporting

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/probeworks/sounder/internal/orchestration"
)

const defaultWidth = 80

// FailedTask pairs a failed task id with its truncated error text.
type FailedTask struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BatchSummary is the user-facing roll-up of one batch run. It is both
// printed at batch end and posted to the notification webhook.
type BatchSummary struct {
	RunID           string       `json:"run_id"`
	Total           int          `json:"total"`
	Completed       int          `json:"completed"`
	Failed          int          `json:"failed"`
	DurationSeconds float64      `json:"duration_seconds"`
	TasksPerMinute  float64      `json:"tasks_per_minute"`
	FailedTasks     []FailedTask `json:"failed_tasks,omitempty"`
}

// Build derives the summary from a batch result.
func Build(result *orchestration.BatchResult) BatchSummary {
	summary := BatchSummary{
		RunID:           result.RunID,
		Total:           result.Total,
		Completed:       len(result.Succeeded),
		Failed:          len(result.Failed),
		DurationSeconds: result.Duration.Seconds(),
		TasksPerMinute:  result.Throughput,
	}
	for _, out := range result.Failed {
		summary.FailedTasks = append(summary.FailedTasks, FailedTask{
			ID:    out.TaskID,
			Error: out.Err,
		})
	}
	return summary
}

// Render formats the summary for terminal output. Error text is truncated to
// the given display width; pass 0 to use the detected terminal width.
func (s BatchSummary) Render(width int) string {
	if width <= 0 {
		width = TerminalWidth()
	}

	var b strings.Builder
	rule := strings.Repeat("=", minInt(width, 60))

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, " BATCH RESULTS")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Total Tasks:    %d\n", s.Total)
	fmt.Fprintf(&b, "Completed:      %d\n", s.Completed)
	fmt.Fprintf(&b, "Failed:         %d\n", s.Failed)
	fmt.Fprintf(&b, "Duration:       %v\n", (time.Duration(s.DurationSeconds*float64(time.Second))).Round(time.Second))
	fmt.Fprintf(&b, "Throughput:     %.2f tasks/minute\n", s.TasksPerMinute)

	if len(s.FailedTasks) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Failed Tasks:")
		for _, ft := range s.FailedTasks {
			line := fmt.Sprintf("  - %s: %s", ft.ID, ft.Error)
			fmt.Fprintln(&b, runewidth.Truncate(line, width, "..."))
		}
	}

	return b.String()
}

// TerminalWidth returns the stdout terminal width, or a default when stdout
// is not a terminal.
func TerminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return defaultWidth
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
