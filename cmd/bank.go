package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/applypilot/internal/answerbank"
	"github.com/xkilldash9x/applypilot/internal/config"
	"github.com/xkilldash9x/applypilot/internal/observability"
)

func newBankCmd(d deps) *cobra.Command {
	bankCmd := &cobra.Command{
		Use:   "bank",
		Short: "Inspect or move the answer bank",
	}
	bankCmd.AddCommand(newBankListCmd(d), newBankMigrateCmd(d))
	return bankCmd
}

func newBankListCmd(d deps) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print every stored question and answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			return runBankList(ctx, cfg, observability.GetLogger(), d, cmd.OutOrStdout())
		},
	}
}

func runBankList(ctx context.Context, cfg *config.Config, logger *zap.Logger, d deps, out io.Writer) error {
	be := newBackends(cfg, d, logger)
	defer be.Close()

	backend, err := be.answerBank(ctx, cfg.AnswerBank)
	if err != nil {
		return err
	}
	bank, err := answerbank.Open(ctx, backend, logger)
	if err != nil {
		return err
	}
	for i, e := range bank.Entries() {
		fmt.Fprintf(out, "%d. %s [%s]\n", i+1, e.Question, e.Type)
		if len(e.Options) > 0 {
			fmt.Fprintf(out, "   options: %s\n", strings.Join(e.Options, " | "))
		}
		fmt.Fprintf(out, "   answer: %s\n", e.Answer)
	}
	fmt.Fprintf(out, "%d entries\n", bank.Len())
	return nil
}

func newBankMigrateCmd(d deps) *cobra.Command {
	var dst config.AnswerBankConfig

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy the configured answer bank into another backend",
		Example: `  applypilot bank migrate --to yaml-file --to-path answers.yaml
  applypilot bank migrate --to redis
  applypilot bank migrate --to postgres`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if dst.Backend == "yaml-file" {
				dst.Backend, dst.Format = config.BackendFile, "yaml"
			}
			return runBankMigrate(ctx, cfg, dst, observability.GetLogger(), d, cmd.OutOrStdout())
		},
	}
	migrateCmd.Flags().StringVar(&dst.Backend, "to", "", "Destination backend: file, yaml-file, redis or postgres (required)")
	migrateCmd.Flags().StringVar(&dst.Path, "to-path", "", "Destination file for the file backends")
	migrateCmd.Flags().StringVar(&dst.Format, "to-format", "", "Destination file format: markdown or yaml")
	_ = migrateCmd.MarkFlagRequired("to")
	return migrateCmd
}

func runBankMigrate(ctx context.Context, cfg *config.Config, dst config.AnswerBankConfig, logger *zap.Logger, d deps, out io.Writer) error {
	if dst.Backend == config.BackendFile && dst.Path == "" {
		return fmt.Errorf("--to-path is required for a file destination")
	}
	if dst == cfg.AnswerBank {
		return fmt.Errorf("source and destination are the same answer bank")
	}

	be := newBackends(cfg, d, logger)
	defer be.Close()

	src, err := be.answerBank(ctx, cfg.AnswerBank)
	if err != nil {
		return fmt.Errorf("failed to open source bank: %w", err)
	}
	target, err := be.answerBank(ctx, dst)
	if err != nil {
		return fmt.Errorf("failed to open destination bank: %w", err)
	}

	n, err := answerbank.Migrate(ctx, src, target)
	if err != nil {
		return err
	}
	logger.Info("Answer bank migrated.",
		zap.String("from", cfg.AnswerBank.Backend),
		zap.String("to", dst.Backend),
		zap.Int("entries", n),
	)
	fmt.Fprintf(out, "Migrated %d entries from %s to %s.\n", n, cfg.AnswerBank.Backend, dst.Backend)
	return nil
}
