// Package main is the thin external CLI wrapper around embedkit, kept
// deliberately small per spec.md §1's Non-goals (no CLI/GUI in the core
// library) while still giving the pack's cobra/bubbletea dependencies a
// concrete, if minimal, home. Grounded on the teacher's cmd/root.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "embedkit",
	Short: "embedkit is a thin CLI wrapper around an embedded SQLite data layer.",
	Long:  `embedkit opens a database configured by embedkit.toml and exposes read-only inspection commands.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
