package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/probeworks/sounder/internal/storage"
)

// DeepConsultManager loads the DeepConsult CSV dataset. Task ids are the row
// index, matching the upstream dataset which ships no id column.
type DeepConsultManager struct{}

func (m *DeepConsultManager) Variant() string {
	return "deepconsult"
}

func (m *DeepConsultManager) QueryField() string {
	return "query"
}

func (m *DeepConsultManager) OutputFilename(taskID string) string {
	return "deepconsult_" + taskID + ".json"
}

// LoadTasks streams the CSV row by row. The first row names the columns and
// must include the query column; any malformed row aborts the batch, since a
// silently renumbered dataset would misattribute every result after it.
func (m *DeepConsultManager) LoadTasks(path string, ids []string, limit int) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FatalError{Path: path, Err: err}
	}
	defer f.Close() //nolint:errcheck

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err == io.EOF {
		return nil, &FatalError{Path: path, Err: fmt.Errorf("no header row")}
	}
	if err != nil {
		return nil, &FatalError{Path: path, Err: err}
	}

	queryCol := slices.Index(header, m.QueryField())
	if queryCol < 0 {
		return nil, &FatalError{Path: path, Err: fmt.Errorf("missing %q column", m.QueryField())}
	}

	var tasks []Task
	for i := 0; ; i++ {
		// csv.Reader rejects rows whose width differs from the header's.
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &FatalError{Path: path, Err: err}
		}

		tasks = append(tasks, Task{
			ID:    fmt.Sprintf("%d", i),
			Query: NormalizeQuery(record[queryCol]),
			Meta:  map[string]any{"index": i, "row": rowMeta(header, record)},
		})
	}

	slog.Info("loaded queries", "path", path, "count", len(tasks))
	return filterTasks(tasks, ids, limit), nil
}

// FormatResult keeps the internal result structure unchanged.
func (m *DeepConsultManager) FormatResult(_ Task, result *storage.TaskResult) any {
	return result
}

func rowMeta(header, record []string) map[string]string {
	row := make(map[string]string, len(header))
	for i, h := range header {
		row[h] = record[i]
	}
	return row
}
