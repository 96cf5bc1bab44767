// Package cmd implements the scribe admin CLI: operator commands for
// migrating the schema and for ingesting, searching, reindexing and auditing
// module knowledge bases.
package cmd

import (
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Scribe knowledge-grounding core",
	Long: `Scribe indexes reference documents per writing module and retrieves
grounding context for knowledge-backed chat.

Commands operate directly on the knowledge stores; the chat surface itself
lives in the application server, not here.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}
