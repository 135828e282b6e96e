package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TruckRewards/internal/config"
	"github.com/JonMunkholm/TruckRewards/internal/core"
	"github.com/JonMunkholm/TruckRewards/internal/database"
	"github.com/JonMunkholm/TruckRewards/internal/logging"
)

type runOptions struct {
	file    string
	mode    string
	actor   string
	envFile string
	json    bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one bulk load session against the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBulkLoad(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.file, "file", "", "Bulk load document (.txt, required)")
	cmd.Flags().StringVar(&opts.mode, "mode", "admin", "Mode: admin or sponsor")
	cmd.Flags().StringVar(&opts.actor, "actor", "", "Username of the acting account (required for sponsor mode)")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "Optional .env file to load before reading config")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the summary as JSON")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runBulkLoad(ctx context.Context, out io.Writer, opts runOptions) error {
	mode, err := core.ParseMode(opts.mode)
	if err != nil {
		return err
	}
	if mode == core.ModeSponsor && opts.actor == "" {
		return errors.New("--actor is required in sponsor mode")
	}

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	f, err := os.Open(opts.file)
	if err != nil {
		return fmt.Errorf("open bulk load document: %w", err)
	}
	defer f.Close()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}
	}

	store := database.NewStore(pool)
	actor := core.Actor{Mode: mode, Username: opts.actor}
	if opts.actor != "" {
		acct, err := store.AccountByUsername(ctx, opts.actor)
		if err != nil {
			return fmt.Errorf("resolve actor %q: %w", opts.actor, err)
		}
		actor.AccountID = acct.ID
	}

	ingestor := core.NewIngestor(store, core.NewAuditService(pool),
		core.WithCredentialIssuer(core.NewBcryptIssuer(cfg.Ingest.BcryptCost)),
	)

	ctx, cancel := context.WithTimeout(ctx, cfg.Ingest.Timeout)
	defer cancel()

	summary, err := ingestor.Run(ctx, actor, f)
	if err != nil {
		return err
	}
	slog.Debug("bulk load finished", "session_id", summary.SessionID)

	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(summary)
	}
	return printSummary(out, summary)
}

// printSummary writes one row per record followed by the totals.
func printSummary(out io.Writer, s *core.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tTYPE\tSTATUS\tDETAILS\tMESSAGE")
	for _, e := range s.LogEntries {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", e.LineNum, e.RecordType, e.Status, e.Details, e.Message)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "\nSession %s: %s\n", s.SessionID, s)
	return err
}
