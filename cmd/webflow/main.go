package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var verbose bool

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "webflow",
		Short: "Record browser interactions as workflows and replay them",
		Long: `webflow captures clicks, typing, form submissions and navigation in a
browser window as a portable workflow, and replays workflows against a fresh
browser with retries and per-step results.

Example:
  webflow record https://shop.example.com -o login.json
  webflow replay login.json`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at debug level")

	rootCmd.AddCommand(
		newServeCmd(),
		newRecordCmd(),
		newReplayCmd(),
		newTokenCmd(),
		newHashKeyCmd(),
		newDevicesCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
