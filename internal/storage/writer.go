package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Writer persists one artifact set per task under a single output directory:
// a result file, an optional trajectory file, or an error file.
type Writer struct {
	dir string

	// CompressTrajectories switches trajectory output to gzip-compressed
	// JSON. Trajectories dominate output size on long runs.
	CompressTrajectories bool
}

// NewWriter creates the output directory if needed and returns a writer for
// it.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteResult writes the formatted result payload under the given filename.
func (w *Writer) WriteResult(filename string, payload any) (string, error) {
	path := filepath.Join(w.dir, filename)
	if err := writeJSON(path, payload); err != nil {
		return "", fmt.Errorf("writing result: %w", err)
	}
	return path, nil
}

// WriteTrajectory writes the trajectory artifact for a task, gzip-compressed
// when configured.
func (w *Writer) WriteTrajectory(taskID string, file *TrajectoryFile) (string, error) {
	name := fmt.Sprintf("trajectory_%s.json", taskID)

	if !w.CompressTrajectories {
		path := filepath.Join(w.dir, name)
		if err := writeJSON(path, file); err != nil {
			return "", fmt.Errorf("writing trajectory: %w", err)
		}
		return path, nil
	}

	path := filepath.Join(w.dir, name+".gz")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("writing trajectory: %w", err)
	}
	defer f.Close() //nolint:errcheck

	zw := gzip.NewWriter(f)
	enc := json.NewEncoder(zw)
	enc.SetIndent("", "  ")
	if err := enc.Encode(file); err != nil {
		zw.Close() //nolint:errcheck
		return "", fmt.Errorf("writing trajectory: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("writing trajectory: %w", err)
	}
	return path, nil
}

// WriteError writes the terminal error artifact for a failed task.
func (w *Writer) WriteError(taskID, query, message string) (string, error) {
	record := ErrorRecord{
		ID:        taskID,
		Query:     query,
		Error:     message,
		Timestamp: time.Now(),
	}
	path := filepath.Join(w.dir, fmt.Sprintf("error_%s.json", taskID))
	if err := writeJSON(path, record); err != nil {
		return "", fmt.Errorf("writing error record: %w", err)
	}
	return path, nil
}

func writeJSON(path string, payload any) error {
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
