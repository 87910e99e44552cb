// Package main provides the reconcile CLI: folder scans and reconciliation runs
// from the terminal, with results as JSON on stdout and progress on stderr.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bosocmputer/product_ocr_reconcile/configs"
	"github.com/bosocmputer/product_ocr_reconcile/internal/common"
	"github.com/bosocmputer/product_ocr_reconcile/internal/service"
	"github.com/bosocmputer/product_ocr_reconcile/internal/storage"
)

type cliFlags struct {
	configFile string
	verbose    bool
	noHistory  bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	flags := &cliFlags{}

	root := &cobra.Command{
		Use:          "reconcile",
		Short:        "Reconcile product listing images across sales portals",
		SilenceUsage: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (env vars and .env are always read)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&flags.noHistory, "no-history", false, "do not write the execution log")

	root.AddCommand(newRunCmd(flags), newScanCmd(flags), newHistoryCmd(flags))
	return root
}

// setup loads configuration and builds the service with SQLite history
func setup(ctx context.Context, cmd *cobra.Command, flags *cliFlags) (*service.Service, func(context.Context) error, zerolog.Logger, error) {
	cfg, err := configs.Load(flags.configFile)
	if err != nil {
		return nil, nil, zerolog.Nop(), err
	}

	level := cfg.Log.Level
	if flags.verbose {
		level = "debug"
	}
	logger := common.NewLogger(level, "console", cmd.ErrOrStderr())

	var history storage.HistoryStore
	if !flags.noHistory && cfg.History.SQLitePath != "" {
		h, err := storage.NewSQLiteHistory(ctx, cfg.History.SQLitePath)
		if err != nil {
			return nil, nil, logger, err
		}
		history = h
	}

	svc, closeFn, err := service.Build(ctx, cfg, history, logger)
	if err != nil {
		if history != nil {
			_ = history.Close(ctx)
		}
		return nil, nil, logger, err
	}
	return svc, closeFn, logger, nil
}

func newRunCmd(flags *cliFlags) *cobra.Command {
	var req service.ReconcileRequest

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass and print the report",
		Example: `  reconcile run --folder https://drive.google.com/drive/folders/XXXX --business AEDG
  reconcile run --folder XXXX --business AEDG --product AEDG001 --municipality 札幌市`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeFn, logger, err := setup(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeFn(context.WithoutCancel(ctx)); err != nil {
					logger.Warn().Err(err).Msg("failed to release resources")
				}
			}()

			if req.User == "" {
				req.User = os.Getenv("USER")
			}

			res, err := svc.Reconcile(ctx, req, func(completed, total int) {
				fmt.Fprintf(cmd.ErrOrStderr(), "\r%d/%d", completed, total)
				if completed == total {
					fmt.Fprintln(cmd.ErrOrStderr())
				}
			})
			if err != nil {
				return err
			}
			if res.Report.Incomplete {
				logger.Warn().Msg("run cancelled, report is incomplete")
			}

			return writeJSON(cmd.OutOrStdout(), map[string]any{
				"run_id":     res.RunID,
				"incomplete": res.Report.Incomplete,
				"summary":    res.Report.Summary(),
				"columns":    res.Report.Plain.Columns,
				"rows":       res.Report.Plain.Rows,
				"results":    res.Report.Results,
				"usage":      res.Usage,
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.Folder, "folder", "", "Drive folder URL or id (required)")
	f.StringVar(&req.BusinessCode, "business", "", "business code (required)")
	f.StringVar(&req.ProductCode, "product", common.AllProducts, "product code or 'all'")
	f.StringVar(&req.Municipality, "municipality", "", "municipality name resolved through the directory")
	f.StringVar(&req.ContextCode, "context-code", "", "registry context code (overrides --municipality)")
	f.StringVar(&req.User, "user", "", "user recorded in the execution log (default $USER)")
	_ = cmd.MarkFlagRequired("folder")
	_ = cmd.MarkFlagRequired("business")
	return cmd
}

func newScanCmd(flags *cliFlags) *cobra.Command {
	var req service.ScanRequest

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "List business codes, product codes and image counts of a folder",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, closeFn, _, err := setup(ctx, cmd, flags)
			if err != nil {
				return err
			}
			defer closeFn(context.WithoutCancel(ctx))

			res, err := svc.ScanFolder(ctx, req)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}

	cmd.Flags().StringVar(&req.Folder, "folder", "", "Drive folder URL or id (required)")
	cmd.Flags().StringVar(&req.BusinessCode, "business", "", "business code to list products and counts for")
	cmd.Flags().StringVar(&req.ProductCode, "product", "", "product code to count")
	_ = cmd.MarkFlagRequired("folder")
	return cmd
}

func newHistoryCmd(flags *cliFlags) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent execution logs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := configs.Load(flags.configFile)
			if err != nil {
				return err
			}
			h, err := storage.NewSQLiteHistory(ctx, cfg.History.SQLitePath)
			if err != nil {
				return err
			}
			defer h.Close(ctx)

			logs, err := h.RecentExecutions(ctx, limit)
			if err != nil {
				return err
			}
			if logs == nil {
				logs = []storage.ExecutionLog{}
			}
			return writeJSON(cmd.OutOrStdout(), logs)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
