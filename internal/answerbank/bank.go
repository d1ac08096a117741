// Package answerbank is the persistent question to answer knowledge store.
//
// A Bank is loaded in full when a run starts and every new or corrected answer is written
// through to its Backend before Put returns, so an interrupted run never loses what it learned.
package answerbank

import (
	"context"
	"fmt"
	"sync"

	"github.com/xkilldash9x/applypilot/internal/form"
	"go.uber.org/zap"
)

// Entry is one stored answer. Options are a snapshot of what the control offered when the
// answer was captured; Answer holds " | "-joined labels for MultiChoice questions.
type Entry struct {
	Question string           `yaml:"question" json:"question"`
	Type     form.ControlType `yaml:"type" json:"type"`
	Options  []string         `yaml:"options,omitempty" json:"options,omitempty"`
	Answer   string           `yaml:"answer" json:"answer"`
}

// Key returns the normalized lookup key of the entry.
func (e Entry) Key() string {
	return form.Key(e.Question)
}

// Backend persists bank entries.
type Backend interface {
	// Load returns every stored entry in insertion order.
	Load(ctx context.Context) ([]Entry, error)
	// Persist durably stores changed. all is the full bank after the change, for backends
	// that rewrite everything.
	Persist(ctx context.Context, changed Entry, all []Entry) error
}

// Bank indexes entries by normalized question text. It is single-writer by contract; the mutex
// only serializes the elicitation goroutine against readers.
type Bank struct {
	mu      sync.RWMutex
	backend Backend
	entries []Entry
	index   map[string]int
	logger  *zap.Logger
}

// Open loads every entry from backend.
func Open(ctx context.Context, backend Backend, logger *zap.Logger) (*Bank, error) {
	loaded, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load answer bank: %w", err)
	}

	b := &Bank{
		backend: backend,
		index:   make(map[string]int, len(loaded)),
		logger:  logger.Named("answerbank"),
	}
	for _, e := range loaded {
		e.Question = form.Normalize(e.Question)
		if e.Question == "" {
			continue
		}
		// Later duplicates win, matching how the file was appended to historically.
		if i, ok := b.index[e.Key()]; ok {
			b.entries[i] = e
			continue
		}
		b.index[e.Key()] = len(b.entries)
		b.entries = append(b.entries, e)
	}
	b.logger.Debug("Answer bank loaded.", zap.Int("entries", len(b.entries)))
	return b, nil
}

// Lookup returns the answered entry for question, if any. Entries without an answer are
// treated as absent.
func (b *Bank) Lookup(question string) (Entry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i, ok := b.index[form.Key(question)]
	if !ok || b.entries[i].Answer == "" {
		return Entry{}, false
	}
	return cloneEntry(b.entries[i]), true
}

// Entries returns a copy of all entries in insertion order.
func (b *Bank) Entries() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneEntries(b.entries)
}

// Len returns the number of entries, answered or not.
func (b *Bank) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

// Put inserts or overwrites the entry for e.Question and persists it before returning.
// On a persistence failure the in-memory bank is left unchanged.
func (b *Bank) Put(ctx context.Context, e Entry) error {
	e.Question = form.Normalize(e.Question)
	if len(e.Question) < form.MinQuestionLength {
		return fmt.Errorf("question %q is too short to store", e.Question)
	}
	e = cloneEntry(e)

	b.mu.Lock()
	defer b.mu.Unlock()

	key := e.Key()
	prev, existed := Entry{}, false
	i, ok := b.index[key]
	if ok {
		prev, existed = b.entries[i], true
		b.entries[i] = e
	} else {
		i = len(b.entries)
		b.index[key] = i
		b.entries = append(b.entries, e)
	}

	if err := b.backend.Persist(ctx, e, cloneEntries(b.entries)); err != nil {
		if existed {
			b.entries[i] = prev
		} else {
			b.entries = b.entries[:i]
			delete(b.index, key)
		}
		return fmt.Errorf("failed to persist answer for %q: %w", e.Question, err)
	}

	b.logger.Info("Answer saved to bank.",
		zap.String("question", e.Question),
		zap.Stringer("type", e.Type),
		zap.Bool("overwrite", existed),
	)
	return nil
}

// Migrate copies every entry from src into dst, preserving order.
func Migrate(ctx context.Context, src, dst Backend) (int, error) {
	entries, err := src.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load source bank: %w", err)
	}
	for i, e := range entries {
		if err := dst.Persist(ctx, e, entries[:i+1]); err != nil {
			return i, fmt.Errorf("failed to migrate entry %q: %w", e.Question, err)
		}
	}
	return len(entries), nil
}

func cloneEntry(e Entry) Entry {
	if e.Options != nil {
		e.Options = append([]string(nil), e.Options...)
	}
	return e
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		out[i] = cloneEntry(e)
	}
	return out
}
