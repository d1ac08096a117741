package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/json-iterator/go"
)

// Settings captures the run parameters recorded in a report.
type Settings struct {
	Keyword         string   `json:"keyword"`
	Location        string   `json:"location"`
	MaxApplications int      `json:"max_applications"`
	DryRun          bool     `json:"dry_run"`
	Exclude         []string `json:"exclude"`
}

// Answer is one question/answer pair applied during a session.
type Answer struct {
	Step     int    `json:"step"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Source   string `json:"source"`
	Filled   bool   `json:"filled"`
}

// JobReport describes one attempted application.
type JobReport struct {
	Record
	Outcome     string   `json:"outcome"`
	AbortReason string   `json:"abort_reason,omitempty"`
	Steps       int      `json:"steps"`
	Answers     []Answer `json:"answers,omitempty"`
}

// Report is the per-run detailed log, written once when the run ends.
type Report struct {
	mu         sync.Mutex
	RunID      string      `json:"run_id"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Settings   Settings    `json:"settings"`
	Jobs       []JobReport `json:"jobs"`
}

// NewReport starts a report for runID.
func NewReport(runID string, settings Settings, startedAt time.Time) *Report {
	return &Report{RunID: runID, Settings: settings, StartedAt: startedAt.UTC(), Jobs: []JobReport{}}
}

// Add appends a job entry.
func (r *Report) Add(job JobReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Jobs = append(r.Jobs, job)
}

// Completed counts jobs that were submitted or dry-run completed.
func (r *Report) Completed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.Jobs {
		if j.Outcome == "Submitted" || j.Outcome == "DryRunCompleted" {
			n++
		}
	}
	return n
}

// Write stamps FinishedAt and writes the report to dir/run-<id>.json.
func (r *Report) Write(dir string, finishedAt time.Time) (string, error) {
	r.mu.Lock()
	r.FinishedAt = finishedAt.UTC()
	data, err := json.MarshalIndent(r, "", "  ")
	r.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("failed to encode run report: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create report directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("run-%s.json", r.RunID))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write run report: %w", err)
	}
	return path, nil
}
