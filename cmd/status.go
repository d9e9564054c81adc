package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/acled-ingest/internal/ingest"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show recent ingest runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		format, _ := cmd.Flags().GetString("format")
		if err := validFormat(format); err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		if err := cfg.ValidateStore(); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		runs, err := ingest.NewRunLog(st).ListRecent(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "status")
		}
		return writeRuns(os.Stdout, format, runs)
	},
}

func init() {
	statusCmd.Flags().Int("limit", 20, "number of runs to show")
	statusCmd.Flags().String("format", formatText, "output format: text, json, or yaml")
	rootCmd.AddCommand(statusCmd)
}
