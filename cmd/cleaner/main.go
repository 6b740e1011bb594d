// Package main implements the cleaner CLI, which removes stale comments and
// documentation passages across an organization's repositories.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cleaner",
	Short: "Clean stale TODOs and documentation with oracle-validated pull requests",
	Long: `cleaner sweeps recently active repositories for documentation files and
TODO/FIXME comments, asks a text-reasoning oracle which passages are stale,
and opens one pull request per repository with the validated edits.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cleaner version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "cleaner %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}
