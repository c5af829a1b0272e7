package insight

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const latestName = "latest.json"

// HistorySink writes each insight under .aether/history in the project,
// one timestamped file per run plus a latest.json snapshot.
type HistorySink struct {
	root string
}

func NewHistorySink(projectRoot string) *HistorySink {
	return &HistorySink{root: projectRoot}
}

func (s *HistorySink) dir() string {
	return filepath.Join(s.root, ".aether", "history")
}

// Write persists the insight and returns the per-run file path.
func (s *HistorySink) Write(in Insight) (string, error) {
	if in.RunID == "" {
		return "", errors.New("insight run id is required")
	}
	if err := os.MkdirAll(s.dir(), 0o755); err != nil {
		return "", err
	}

	b, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", err
	}
	b = append(b, '\n')

	path := filepath.Join(s.dir(), fmt.Sprintf("run_%d_%s.json", in.GeneratedAt.Unix(), shortRunID(in.RunID)))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir(), latestName), b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// ReadLatest loads the most recent insight, or nil when none was written.
func (s *HistorySink) ReadLatest() (*Insight, error) {
	b, err := os.ReadFile(filepath.Join(s.dir(), latestName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var in Insight
	if err := json.Unmarshal(b, &in); err != nil {
		return nil, err
	}
	return &in, nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
