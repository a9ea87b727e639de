package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/probeworks/sounder/internal/storage"
)

// drbRecordSchema validates one Deep Research Benchmark JSONL record.
const drbRecordSchema = `{
  "type": "object",
  "required": ["id", "prompt"],
  "properties": {
    "id": {"type": ["string", "integer"]},
    "prompt": {"type": ["string", "array"]}
  }
}`

var drbSchema = mustCompileSchema(drbRecordSchema, "drb.record.schema.json")

func mustCompileSchema(raw, name string) *jsonschema.Schema {
	var doc any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		panic(fmt.Sprintf("parsing embedded %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, doc); err != nil {
		panic(fmt.Sprintf("adding %s resource: %v", name, err))
	}
	sch, err := compiler.Compile(name)
	if err != nil {
		panic(fmt.Sprintf("compiling %s: %v", name, err))
	}
	return sch
}

// DRBManager loads the Deep Research Benchmark JSONL dataset.
type DRBManager struct{}

func (m *DRBManager) Variant() string {
	return "drb"
}

func (m *DRBManager) QueryField() string {
	return "prompt"
}

func (m *DRBManager) OutputFilename(taskID string) string {
	return taskID + ".json"
}

// LoadTasks reads a JSONL file, one record per non-empty line. Records that
// fail to parse or validate are logged and skipped; an unreadable file is
// fatal.
func (m *DRBManager) LoadTasks(path string, ids []string, limit int) ([]Task, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &FatalError{Path: path, Err: err}
	}
	defer f.Close() //nolint:errcheck

	var tasks []Task
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)

	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var record map[string]any
		if err := json.Unmarshal(line, &record); err != nil {
			slog.Error("invalid JSON record", "path", path, "line", lineNum, "error", err)
			continue
		}
		if err := drbSchema.Validate(record); err != nil {
			slog.Error("record failed schema validation", "path", path, "line", lineNum, "error", err)
			continue
		}

		tasks = append(tasks, Task{
			ID:    normalizeID(record["id"]),
			Query: NormalizeQuery(record[m.QueryField()]),
			Meta:  record,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &FatalError{Path: path, Err: err}
	}

	slog.Info("loaded queries", "path", path, "count", len(tasks))
	return filterTasks(tasks, ids, limit), nil
}

// FormatResult wraps the result in DRB's shape: the query goes under
// "prompt" and everything but the article is nested as metadata.
func (m *DRBManager) FormatResult(_ Task, result *storage.TaskResult) any {
	return map[string]any{
		"id":      result.ID,
		"prompt":  result.Query,
		"article": result.Article,
		"metadata": map[string]any{
			"timing":        result.Timing,
			"debug_info":    result.DebugInfo,
			"content_stats": result.ContentStats,
		},
	}
}
