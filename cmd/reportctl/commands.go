package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/creditreport-extractor/internal/ingest"
)

var (
	exportOut     string
	watch         bool
	includeHidden bool
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>",
	Short: "Register a credit report and run extraction on it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, _, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		res, err := a.Service.SubmitPath(ctx, args[0], false)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <dir>",
	Short: "Extract every report under a directory, optionally watching for new files",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		a, logger, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		root := args[0]
		results, stats, err := a.Ingestor.IngestDirectory(ctx, root, !includeHidden)
		if err != nil {
			return err
		}
		for _, r := range results {
			if r.Err != "" {
				continue
			}
			if _, err := a.Service.SubmitDocument(ctx, r.DocumentID, false); err != nil {
				logger.Error("extract failed", "path", r.SourcePath, "error", err)
			}
		}
		if err := printJSON(cmd, stats); err != nil {
			return err
		}
		if !watch {
			return nil
		}

		paths, errs, err := ingest.Watch(ctx, ingest.WatchConfig{Roots: []string{root}, Debounce: 500 * time.Millisecond, Logger: logger})
		if err != nil {
			return err
		}
		logger.Info("watching", "root", root)
		for {
			select {
			case p, ok := <-paths:
				if !ok {
					return nil
				}
				if !includeHidden && ingest.IsHidden(p) {
					continue
				}
				res, err := a.Service.SubmitPath(ctx, p, false)
				if err != nil {
					logger.Error("extract failed", "path", p, "error", err)
					continue
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
			case err, ok := <-errs:
				if !ok {
					return nil
				}
				logger.Warn("watch error", "error", err)
			case <-ctx.Done():
				return nil
			}
		}
	},
}

var reextractCmd = &cobra.Command{
	Use:   "reextract <document-id>",
	Short: "Run extraction again; earlier runs stay in the ledger",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, _, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		res, err := a.Service.Reextract(ctx, id, false)
		if err != nil {
			return err
		}
		return printJSON(cmd, res)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <document-id>",
	Short: "Write a document's entities and decision to an XLSX workbook",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseID(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, logger, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		out := exportOut
		if strings.TrimSpace(out) == "" {
			out = filepath.Join(".", id.String()+".xlsx")
		}
		data, err := a.Service.ExportXLSX(ctx, id)
		if err != nil {
			return err
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", out, err)
		}
		logger.Info("export written", "path", out, "bytes", len(data))
		return nil
	},
}

var dbhealthCmd = &cobra.Command{
	Use:   "dbhealth",
	Short: "Check database (and Redis, when configured) connectivity",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		a, _, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		if err := a.Health(ctx); err != nil {
			return fmt.Errorf("health: FAIL (%w)", err)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), "health: OK")
		return err
	},
}

func init() {
	ingestCmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep running and extract files as they appear")
	ingestCmd.Flags().BoolVar(&includeHidden, "include-hidden", false, "also ingest hidden files and directories")
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "output XLSX path (default <document-id>.xlsx)")
	rootCmd.AddCommand(extractCmd, ingestCmd, reextractCmd, exportCmd, dbhealthCmd)
}
