// Package history records which applications were completed so later runs can skip them,
// and writes the per-run report.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Record is one completed or simulated submission.
type Record struct {
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Location  string    `json:"location"`
	Salary    string    `json:"salary"`
	DryRun    bool      `json:"dry_run"`
	AppliedAt time.Time `json:"applied_at"`
}

// Backend persists history records.
type Backend interface {
	Load(ctx context.Context) ([]Record, error)
	Append(ctx context.Context, rec Record) error
}

// CleanURL drops the query string and fragment so tracking parameters do not defeat the
// already-applied check.
func CleanURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimSpace(raw)
}

// Log is the in-memory view of the history, read once at startup.
type Log struct {
	mu      sync.RWMutex
	backend Backend
	seen    map[string]bool
	logger  *zap.Logger
	now     func() time.Time
}

// OpenLog loads every record from backend.
func OpenLog(ctx context.Context, backend Backend, logger *zap.Logger) (*Log, error) {
	records, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load application history: %w", err)
	}
	l := &Log{
		backend: backend,
		seen:    make(map[string]bool, len(records)),
		logger:  logger.Named("history"),
		now:     time.Now,
	}
	for _, r := range records {
		l.seen[CleanURL(r.URL)] = true
	}
	return l, nil
}

// Seen reports whether url (query ignored) was already applied to.
func (l *Log) Seen(url string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.seen[CleanURL(url)]
}

// Len is the number of distinct URLs in the history.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

// Append stores rec with a cleaned URL and marks it as seen.
func (l *Log) Append(ctx context.Context, rec Record) error {
	rec.URL = CleanURL(rec.URL)
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = l.now().UTC()
	}
	if err := l.backend.Append(ctx, rec); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", rec.URL, err)
	}

	l.mu.Lock()
	l.seen[rec.URL] = true
	l.mu.Unlock()

	l.logger.Info("Application logged.",
		zap.String("title", rec.Title),
		zap.String("url", rec.URL),
		zap.Bool("dry_run", rec.DryRun),
	)
	return nil
}
