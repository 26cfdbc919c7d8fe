package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ppiankov/scrapenet/internal/model"
)

// JSONDir writes one file per round, including every raw peer response
type JSONDir struct {
	dir string
}

// NewJSONDir creates a sink rooted at dir
func NewJSONDir(dir string) *JSONDir {
	return &JSONDir{dir: dir}
}

// Store implements Sink
func (s *JSONDir) Store(ctx context.Context, report *model.RoundReport, responses []json.RawMessage) error {
	data, err := marshalRecord(report, responses, true)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	path := filepath.Join(s.dir, filepath.FromSlash(ObjectKey(report)))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit record: %w", err)
	}
	return nil
}

// Close implements Sink
func (s *JSONDir) Close() error { return nil }
