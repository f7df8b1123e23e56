package main

import (
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "availctl",
		Short:        "Offline tools for service availability calendars",
		SilenceUsage: true,
	}
	root.AddCommand(encodeCmd())
	root.AddCommand(decodeCmd())
	root.AddCommand(normalizeCmd())
	root.AddCommand(previewCmd())
	root.AddCommand(presetsCmd())
	return root
}
