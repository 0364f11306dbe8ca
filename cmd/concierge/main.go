package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "concierge",
		Short: "GitLab concierge bot",
		Long: `Concierge polls GitLab projects for @-mentions on issues and merge
requests, answers them with repository-grounded summaries and reviews,
keeps stale issues labeled, and suggests labels for new issues.`,
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newVersionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("concierge %s\n", version)
		},
	}
}
