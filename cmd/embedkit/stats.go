package main

import (
	"context"
	"fmt"

	"github.com/embedkit/embedkit/config"
	"github.com/embedkit/embedkit/lifecycle"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print table/record/size/index counts for the configured database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		m, err := lifecycle.Connect(cmd.Context(), cfg.Manager.DatabasePath, nil)
		if err != nil {
			return err
		}
		defer m.Disconnect()

		stats, err := m.GetDatabaseStats(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d tables, %d records, %s, %d indexes\n",
			cfg.Manager.DatabasePath, stats.Tables, stats.TotalRecords, stats.DatabaseSize, stats.Indexes)
		for _, t := range stats.TableStats {
			fmt.Printf("  %-24s %8d rows  %s\n", t.Name, t.Records, t.Size)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
