package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the event store schema",
	Long:  "Creates the events and ingest_log tables and their indexes. Safe to run repeatedly.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.ValidateStore(); err != nil {
			return err
		}

		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		zap.L().Info("schema ready", zap.String("driver", cfg.Store.Driver))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
