package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/history"
	"github.com/xkilldash9x/applypilot/internal/observability"
)

func newHistoryCmd(d deps) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or move the application history",
	}
	historyCmd.AddCommand(newHistoryListCmd(d), newHistoryMigrateCmd(d))
	return historyCmd
}

func newHistoryListCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every recorded application",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runHistoryList(ctx, cfg, observability.GetLogger(), d, cmd.OutOrStdout())
		},
	}
}

func runHistoryList(ctx context.Context, cfg *config.Config, logger *zap.Logger, d deps, out io.Writer) error {
	be := newBackends(cfg, d, logger)
	defer be.Close()

	backend, err := be.history(ctx, cfg.History)
	if err != nil {
		return err
	}
	records, err := backend.Load(ctx)
	if err != nil {
		return err
	}
	for _, r := range records {
		mode := "submitted"
		if r.DryRun {
			mode = "dry run"
		}
		fmt.Fprintf(out, "%s  %-9s  %s (%s, %s)\n  %s\n",
			r.AppliedAt.Local().Format("2006-01-02 15:04"), mode, r.Title, r.Location, r.Salary, r.URL)
	}
	fmt.Fprintf(out, "%d applications\n", len(records))
	return nil
}

func newHistoryMigrateCmd(d deps) *cobra.Command {
	var from string

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bulk-import a markdown history file into PostgreSQL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if from == "" {
				from = cfg.History.Path
			}
			return runHistoryMigrate(ctx, cfg, from, observability.GetLogger(), d, cmd.OutOrStdout())
		},
	}
	migrateCmd.Flags().StringVar(&from, "from", "", "Markdown history file to import (default history.path)")
	return migrateCmd
}

func runHistoryMigrate(ctx context.Context, cfg *config.Config, from string, logger *zap.Logger, d deps, out io.Writer) error {
	records, err := history.NewMarkdownBackend(from).Load(ctx)
	if err != nil {
		return err
	}

	be := newBackends(cfg, d, logger)
	defer be.Close()

	s, err := be.postgres(ctx)
	if err != nil {
		return err
	}
	n, err := s.ImportHistory(ctx, records)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Imported %d applications from %s.\n", n, from)
	return nil
}
