package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/creditreport-extractor/internal/app"
	"github.com/joseph-ayodele/creditreport-extractor/internal/common"
)

var (
	inmem      bool
	thresholds string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "reportctl",
	Short: "Extract, inspect and export credit report documents",
	Long: `reportctl runs the extraction pipeline from the command line against the
database named by DB_URL, or an in-memory SQLite database with --inmem.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&inmem, "inmem", false, "use an in-memory SQLite database")
	rootCmd.PersistentFlags().StringVar(&thresholds, "thresholds", "", "YAML thresholds file (overrides THRESHOLDS_FILE)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// openApp builds the pipeline for one command; callers must Close it.
func openApp(ctx context.Context, opts ...app.Option) (*app.App, *slog.Logger, error) {
	logger := newLogger()
	cfg := common.LoadConfig()
	if inmem {
		cfg.Database.Driver = "sqlite"
		cfg.Database.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	}
	if thresholds != "" {
		cfg.ThresholdsFile = thresholds
	}
	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return nil, logger, fmt.Errorf("start: %w", err)
	}
	return a, logger, nil
}

func parseID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("document id %q is not a UUID", raw)
	}
	return id, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
