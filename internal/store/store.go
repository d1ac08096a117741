package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xkilldash9x/applypilot/internal/answerbank"
	"github.com/xkilldash9x/applypilot/internal/form"
	"github.com/xkilldash9x/applypilot/internal/history"
	"go.uber.org/zap"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS answer_bank (
        question_key TEXT PRIMARY KEY,
        question TEXT NOT NULL,
        control_type TEXT NOT NULL,
        options TEXT[] NOT NULL DEFAULT '{}',
        answer TEXT NOT NULL DEFAULT '',
        position BIGSERIAL,
        updated_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE TABLE IF NOT EXISTS application_history (
        url TEXT NOT NULL,
        title TEXT NOT NULL,
        location TEXT NOT NULL DEFAULT '',
        salary TEXT NOT NULL DEFAULT '',
        dry_run BOOLEAN NOT NULL DEFAULT FALSE,
        applied_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS application_history_url_idx ON application_history (url);`,
}

const (
	sqlUpsertAnswer = `
        INSERT INTO answer_bank (question_key, question, control_type, options, answer, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        ON CONFLICT (question_key) DO UPDATE SET
            question = EXCLUDED.question,
            control_type = EXCLUDED.control_type,
            options = EXCLUDED.options,
            answer = EXCLUDED.answer,
            updated_at = EXCLUDED.updated_at;
    `
	sqlSelectAnswers = `
        SELECT question, control_type, options, answer
        FROM answer_bank
        ORDER BY position ASC;
    `
	sqlInsertHistory = `
        INSERT INTO application_history (url, title, location, salary, dry_run, applied_at)
        VALUES ($1, $2, $3, $4, $5, $6);
    `
	sqlSelectHistory = `
        SELECT url, title, location, salary, dry_run, applied_at
        FROM application_history
        ORDER BY applied_at ASC;
    `
)

var historyColumns = []string{"url", "title", "location", "salary", "dry_run", "applied_at"}

// Store provides PostgreSQL persistence for the answer bank and the application history.
type Store struct {
	pool DBPool
	log  *zap.Logger
	now  func() time.Time
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
		now:  time.Now,
	}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	for _, stmt := range schemaStatements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) rollback(ctx context.Context, tx pgx.Tx) {
	if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
		s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
	}
}

// Answers returns the answer-bank view of the store.
func (s *Store) Answers() answerbank.Backend { return answerBackend{s} }

// History returns the application-history view of the store.
func (s *Store) History() history.Backend { return historyBackend{s} }

// LoadAnswers returns every entry in insertion order.
func (s *Store) LoadAnswers(ctx context.Context) ([]answerbank.Entry, error) {
	rows, err := s.pool.Query(ctx, sqlSelectAnswers)
	if err != nil {
		return nil, fmt.Errorf("failed to query answers: %w", err)
	}
	defer rows.Close()

	var entries []answerbank.Entry
	for rows.Next() {
		var e answerbank.Entry
		var controlType string
		if err := rows.Scan(&e.Question, &controlType, &e.Options, &e.Answer); err != nil {
			return nil, fmt.Errorf("failed to scan answer row: %w", err)
		}
		if e.Type, err = form.ParseControlType(controlType); err != nil {
			s.log.Warn("Unknown control type in answer bank, treating as text.",
				zap.String("question", e.Question), zap.String("type", controlType))
			e.Type = form.Text
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return entries, nil
}

// UpsertAnswer inserts or overwrites the entry keyed by its normalized question.
func (s *Store) UpsertAnswer(ctx context.Context, e answerbank.Entry) error {
	options := e.Options
	if options == nil {
		options = []string{}
	}
	_, err := s.pool.Exec(ctx, sqlUpsertAnswer,
		e.Key(), e.Question, e.Type.String(), options, e.Answer, s.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert answer: %w", err)
	}
	return nil
}

// LoadHistory returns every history record, oldest first.
func (s *Store) LoadHistory(ctx context.Context) ([]history.Record, error) {
	rows, err := s.pool.Query(ctx, sqlSelectHistory)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	var records []history.Record
	for rows.Next() {
		var r history.Record
		if err := rows.Scan(&r.URL, &r.Title, &r.Location, &r.Salary, &r.DryRun, &r.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return records, nil
}

// AppendHistory inserts one record.
func (s *Store) AppendHistory(ctx context.Context, r history.Record) error {
	_, err := s.pool.Exec(ctx, sqlInsertHistory,
		history.CleanURL(r.URL), r.Title, r.Location, r.Salary, r.DryRun, s.appliedAt(r))
	if err != nil {
		return fmt.Errorf("failed to insert history: %w", err)
	}
	return nil
}

// ImportHistory bulk-copies records in a single transaction.
func (s *Store) ImportHistory(ctx context.Context, records []history.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer s.rollback(ctx, tx)

	rows := make([][]interface{}, len(records))
	for i, r := range records {
		rows[i] = []interface{}{
			history.CleanURL(r.URL), r.Title, r.Location, r.Salary, r.DryRun, s.appliedAt(r),
		}
	}

	copyCount, err := tx.CopyFrom(ctx, pgx.Identifier{"application_history"}, historyColumns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("failed to copy history: %w", err)
	}
	if int(copyCount) != len(records) {
		return 0, fmt.Errorf("mismatch in copied history count: expected %d, got %d", len(records), copyCount)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	s.log.Info("History imported.", zap.Int("records", len(records)))
	return len(records), nil
}

func (s *Store) appliedAt(r history.Record) time.Time {
	if r.AppliedAt.IsZero() {
		return s.now().UTC()
	}
	return r.AppliedAt.UTC()
}

type answerBackend struct{ s *Store }

func (a answerBackend) Load(ctx context.Context) ([]answerbank.Entry, error) {
	return a.s.LoadAnswers(ctx)
}

func (a answerBackend) Persist(ctx context.Context, changed answerbank.Entry, _ []answerbank.Entry) error {
	return a.s.UpsertAnswer(ctx, changed)
}

type historyBackend struct{ s *Store }

func (h historyBackend) Load(ctx context.Context) ([]history.Record, error) {
	return h.s.LoadHistory(ctx)
}

func (h historyBackend) Append(ctx context.Context, r history.Record) error {
	return h.s.AppendHistory(ctx, r)
}
