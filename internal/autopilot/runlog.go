package autopilot

import (
	"bufio"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RunRecord is the persisted trace of one run, appended to a JSONL log so
// the dashboard can show run history without re-deriving it.
type RunRecord struct {
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
	DryRun     bool         `json:"dry_run"`
	Published  int          `json:"published"`
	Generated  int          `json:"generated"`
	Skipped    int          `json:"skipped"`
	Failed     int          `json:"failed"`
	RunError   string       `json:"run_error,omitempty"`
	Items      []ItemResult `json:"items,omitempty"`
}

func NewRunRecord(report Report, runErr error) RunRecord {
	rec := RunRecord{
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		DryRun:     report.DryRun,
		Published:  report.Published(),
		Generated:  report.Generated(),
		Skipped:    report.Skipped(),
		Failed:     report.Failed(),
		Items:      report.Items,
	}
	if runErr != nil {
		rec.RunError = strings.TrimSpace(runErr.Error())
	}
	return rec
}

func AppendRunRecord(path string, rec RunRecord) error {
	p := strings.TrimSpace(path)
	if p == "" {
		return errors.New("path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(append(line, '\n'))
	return err
}

// ReadRecentRuns returns up to limit records, newest first. Unparseable
// lines are skipped rather than failing the whole read.
func ReadRecentRuns(path string, limit int) ([]RunRecord, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("path is empty")
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func DefaultRunLogPath(runsDir string) string {
	return filepath.Join(strings.TrimSpace(runsDir), "runs.jsonl")
}
