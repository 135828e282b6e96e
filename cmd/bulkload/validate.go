package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/TruckRewards/internal/core"
)

func newValidateCmd() *cobra.Command {
	var file, mode string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check record types and field counts without touching the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := core.ParseMode(mode)
			if err != nil {
				return err
			}
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open bulk load document: %w", err)
			}
			defer f.Close()
			return validateDocument(cmd.OutOrStdout(), m, f)
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "Bulk load document (.txt, required)")
	cmd.Flags().StringVar(&mode, "mode", "admin", "Mode: admin or sponsor")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

// validateDocument reports every record that would fail before any store
// lookup. It returns an error when at least one record is invalid.
func validateDocument(out io.Writer, mode core.Mode, r io.Reader) error {
	sc := core.NewLineScanner(r)
	total, invalid := 0, 0
	for sc.Next() {
		rec := sc.Record()
		total++
		if err := core.CheckRecord(mode, rec); err != nil {
			invalid++
			reason := err.Error()
			var re *core.RecordError
			if errors.As(err, &re) {
				reason = re.Reason
			}
			fmt.Fprintf(out, "line %d: %s %s\n", rec.Line, reason, rec.RawFields())
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}

	fmt.Fprintf(out, "%d records, %d invalid\n", total, invalid)
	if invalid > 0 {
		return fmt.Errorf("%d of %d records are invalid", invalid, total)
	}
	return nil
}
