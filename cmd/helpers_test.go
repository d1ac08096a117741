package cmd

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/answerbank"
	"github.com/xkilldash9x/applypilot/internal/browser"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/elicit"
	"github.com/xkilldash9x/applypilot/internal/resolver"
	"github.com/xkilldash9x/applypilot/internal/store"
)

var fixedNow = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

// newTestConfig returns the default configuration with every file under a temp dir and all
// waits shortened.
func newTestConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.NewDefaultConfig()
	cfg.Logger.LogFile = ""
	cfg.AnswerBank.Path = filepath.Join(dir, "answers.md")
	cfg.History.Path = filepath.Join(dir, "applied_jobs.md")
	cfg.History.ReportDir = filepath.Join(dir, "reports")
	cfg.Navigator.DiagnosticsDir = filepath.Join(dir, "diagnostics")
	cfg.Navigator.SettleDelay = 0
	cfg.Navigator.AuthPollInterval = 5 * time.Millisecond
	cfg.Filler.RetryPause = 0
	cfg.Campaign.RatePerMinute = 60000
	cfg.Campaign.Unattended = true
	require.NoError(t, cfg.Validate())
	return cfg
}

// newTestDeps never launches a browser or dials a database.
func newTestDeps(page browser.Page, pool store.DBPool) deps {
	return deps{
		openStore: func(ctx context.Context, _ *config.Config, logger *zap.Logger) (*store.Store, func(), error) {
			s, err := store.New(ctx, pool, logger)
			if err != nil {
				return nil, nil, err
			}
			return s, func() {}, nil
		},
		openPage: func(context.Context, *config.Config, *zap.Logger) (browser.Page, func(), error) {
			return page, func() {}, nil
		},
		newElicitor: func(bool, *zap.Logger) resolver.Elicitor { return elicit.Unattended{} },
		now:         func() time.Time { return fixedNow },
	}
}

// seedBank writes entries to a markdown bank at path.
func seedBank(t *testing.T, path string, entries ...answerbank.Entry) {
	t.Helper()
	ctx := context.Background()
	bank, err := answerbank.Open(ctx, answerbank.NewFileBackend(path, answerbank.MarkdownCodec{}), zap.NewNop())
	require.NoError(t, err)
	for _, e := range entries {
		require.NoError(t, bank.Put(ctx, e))
	}
}
