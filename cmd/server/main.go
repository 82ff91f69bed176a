package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "snapp",
	Short: "Snapp product resolution and recommendation backend",
	Long: `Snapp resolves product URLs across retail stores, compares prices,
ranks visually similar catalog products and evaluates wishlist alerts.

Configuration is read from config.yaml and SNAPP_* environment variables.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version
	rootCmd.AddCommand(serveCmd, sweepCmd, pricesCmd, productCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
