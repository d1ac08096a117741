package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/applypilot/internal/answerbank"
	"github.com/xkilldash9x/applypilot/internal/campaign"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/discovery"
	"github.com/xkilldash9x/applypilot/internal/filler"
	"github.com/xkilldash9x/applypilot/internal/filter"
	"github.com/xkilldash9x/applypilot/internal/history"
	"github.com/xkilldash9x/applypilot/internal/navigator"
	"github.com/xkilldash9x/applypilot/internal/observability"
	"github.com/xkilldash9x/applypilot/internal/resolver"
)

func newApplyCmd(d deps) *cobra.Command {
	var live bool

	applyCmd := &cobra.Command{
		Use:   "apply",
		Short: "Search the job board and work through the matching applications",
		Long: `Searches the job board for --keyword in --location and completes each application
wizard with answers from the answer bank. New questions are asked on the terminal and
remembered. Runs are dry by default: every wizard is filled up to the final submit, which
is never pressed unless --live is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if live {
				cfg.Campaign.DryRun = false
			}
			return runApply(ctx, cfg, observability.GetLogger(), d, cmd.OutOrStdout())
		},
	}

	applyCmd.Flags().StringP("keyword", "k", "", "Search keyword. (Overrides config/env)")
	applyCmd.Flags().StringP("location", "l", "", "Search location. (Overrides config/env)")
	applyCmd.Flags().StringSlice("exclude", nil, "Extra exclusion keywords, added to the configured list.")
	applyCmd.Flags().IntP("max", "m", 0, "Stop after this many completed applications.")
	applyCmd.Flags().Bool("dry-run", true, "Fill every step but never press the final submit.")
	applyCmd.Flags().BoolVar(&live, "live", false, "Really submit applications. Implies --dry-run=false.")
	applyCmd.Flags().Bool("unattended", false, "Never prompt; questions without a stored answer go unanswered.")
	applyCmd.Flags().Bool("headless", false, "Run Chrome without a window.")
	applyCmd.Flags().Bool("metrics", false, "Expose prometheus metrics on metrics.listen_addr.")
	return applyCmd
}

// runApply wires the engine for one campaign and writes the run report, even when the
// campaign ends early.
func runApply(ctx context.Context, cfg *config.Config, logger *zap.Logger, d deps, out io.Writer) error {
	runID := uuid.NewString()
	startedAt := d.now()
	logger = logger.With(zap.String("run_id", runID))
	logger.Info("Starting campaign.",
		zap.String("keyword", cfg.Campaign.Keyword),
		zap.String("location", cfg.Campaign.Location),
		zap.Int("max_applications", cfg.Campaign.MaxApplications),
		zap.Bool("dry_run", cfg.Campaign.DryRun),
	)
	if cfg.Campaign.DryRun {
		logger.Info("Dry run: the final submit is never pressed.")
	}

	be := newBackends(cfg, d, logger)
	defer be.Close()

	answers, err := be.answerBank(ctx, cfg.AnswerBank)
	if err != nil {
		return fmt.Errorf("failed to open answer bank: %w", err)
	}
	bank, err := answerbank.Open(ctx, answers, logger)
	if err != nil {
		return err
	}
	historyBackend, err := be.history(ctx, cfg.History)
	if err != nil {
		return fmt.Errorf("failed to open application history: %w", err)
	}
	hist, err := history.OpenLog(ctx, historyBackend, logger)
	if err != nil {
		return err
	}
	exclusion, err := filter.New(cfg.Campaign.Exclusions())
	if err != nil {
		return err
	}
	logger.Info("State loaded.",
		zap.Int("answers", bank.Len()),
		zap.Int("history", hist.Len()),
		zap.Int("exclusions", exclusion.Len()),
	)

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	page, closePage, err := d.openPage(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	defer closePage()

	navOpts, err := navigator.OptionsFromConfig(cfg.Navigator, cfg.Campaign.DryRun)
	if err != nil {
		return err
	}
	navOpts.Diagnostics = navigator.DirDiagnostics{Dir: cfg.Navigator.DiagnosticsDir, Logger: logger}
	navOpts.Metrics = metrics

	res := resolver.New(bank, d.newElicitor(cfg.Campaign.Unattended, logger), resolver.Options{
		FuzzyThreshold:       cfg.Resolver.FuzzyThreshold,
		HeuristicEnabled:     cfg.Resolver.HeuristicEnabled,
		HeuristicProbability: cfg.Resolver.HeuristicProbability,
	}, logger)
	nav := navigator.New(
		page,
		discovery.New(logger, discovery.DefaultStrategies(cfg.Navigator.PlaceholderMarkers)...),
		res,
		filler.New(page, cfg.Filler, cfg.Navigator.PlaceholderMarkers, metrics, logger),
		navOpts,
		logger,
	)

	report := history.NewReport(runID, history.Settings{
		Keyword:         cfg.Campaign.Keyword,
		Location:        cfg.Campaign.Location,
		MaxApplications: cfg.Campaign.MaxApplications,
		DryRun:          cfg.Campaign.DryRun,
		Exclude:         cfg.Campaign.Exclusions(),
	}, startedAt)
	runner, err := campaign.NewRunner(page, nav, hist, report, exclusion, cfg.Campaign, navOpts, logger)
	if err != nil {
		return err
	}

	var summary campaign.Summary
	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()
	if metrics != nil {
		g.Go(func() error {
			return metrics.Serve(serveCtx, cfg.Metrics.ListenAddr, logger)
		})
	}
	g.Go(func() error {
		defer stopServing()
		var runErr error
		summary, runErr = runner.Run(gctx)
		return runErr
	})
	runErr := g.Wait()

	path, writeErr := report.Write(cfg.History.ReportDir, d.now())
	if writeErr != nil {
		logger.Error("Failed to write run report.", zap.Error(writeErr))
	} else {
		logger.Info("Run report written.", zap.String("path", path))
	}

	fmt.Fprintf(out, "\nRun %s finished: %d completed, %d attempted, %d skipped.\n",
		runID, summary.Completed, summary.Attempted, summary.Skipped)
	if path != "" {
		fmt.Fprintf(out, "Report: %s\n", path)
	}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			logger.Warn("Campaign interrupted.")
		}
		return runErr
	}
	return writeErr
}
