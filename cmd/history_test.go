package cmd

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/history"
)

func seedHistory(t *testing.T, path string) {
	t.Helper()
	be := history.NewMarkdownBackend(path)
	require.NoError(t, be.Append(context.Background(), history.Record{
		Title: "Guru SD", URL: "https://id.jobstreet.com/id/job/1", Location: "Jakarta", Salary: "Hidden",
		DryRun: true, AppliedAt: fixedNow,
	}))
	require.NoError(t, be.Append(context.Background(), history.Record{
		Title: "Guru TK", URL: "https://id.jobstreet.com/id/job/2", Location: "Depok", Salary: "Rp 4 jt",
		AppliedAt: fixedNow.Add(time.Hour),
	}))
}

func TestRunHistoryList(t *testing.T) {
	cfg := newTestConfig(t)
	seedHistory(t, cfg.History.Path)

	var out bytes.Buffer
	require.NoError(t, runHistoryList(context.Background(), cfg, zaptest.NewLogger(t), newTestDeps(nil, nil), &out))
	assert.Contains(t, out.String(), "dry run    Guru SD (Jakarta, Hidden)")
	assert.Contains(t, out.String(), "submitted  Guru TK (Depok, Rp 4 jt)")
	assert.Contains(t, out.String(), "https://id.jobstreet.com/id/job/2")
	assert.Contains(t, out.String(), "2 applications")
}

func TestRunHistoryMigrate(t *testing.T) {
	ctx := context.Background()
	columns := []string{"url", "title", "location", "salary", "dry_run", "applied_at"}

	t.Run("imports every row in one copy", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.Database.URL = "postgres://applypilot@localhost/applypilot"
		seedHistory(t, cfg.History.Path)

		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectPing()
		mockPool.ExpectBegin()
		mockPool.ExpectCopyFrom(pgx.Identifier{"application_history"}, columns).WillReturnResult(2)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		var out bytes.Buffer
		require.NoError(t, runHistoryMigrate(ctx, cfg, cfg.History.Path, zaptest.NewLogger(t), newTestDeps(nil, mockPool), &out))
		assert.Contains(t, out.String(), "Imported 2 applications")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("propagates connection failures", func(t *testing.T) {
		cfg := newTestConfig(t)
		seedHistory(t, cfg.History.Path)

		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()
		pingErr := errors.New("connection refused")
		mockPool.ExpectPing().WillReturnError(pingErr)

		err = runHistoryMigrate(ctx, cfg, cfg.History.Path, zaptest.NewLogger(t), newTestDeps(nil, mockPool), &bytes.Buffer{})
		assert.ErrorIs(t, err, pingErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("lists from postgres", func(t *testing.T) {
		cfg := newTestConfig(t)
		cfg.History.Backend = config.BackendPostgres

		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()
		mockPool.ExpectPing()
		mockPool.ExpectQuery("SELECT url, title").WillReturnRows(pgxmock.NewRows(columns).
			AddRow("https://id.jobstreet.com/id/job/9", "Guru Musik", "Bogor", "Hidden", false, fixedNow))

		var out bytes.Buffer
		require.NoError(t, runHistoryList(ctx, cfg, zaptest.NewLogger(t), newTestDeps(nil, mockPool), &out))
		assert.Contains(t, out.String(), "Guru Musik (Bogor, Hidden)")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
