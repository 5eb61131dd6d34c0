package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/paulheiniger/storm-event-leads/internal/commands"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:   "stormleads",
		Short: "Turn storm detections into clustered address leads",
		Long: `stormleads acquires hail detections from the NOAA Severe Weather Data
Inventory, clusters them into storm boundaries per region and time window,
groups nearby addresses inside each boundary, and exports the result.
Completed steps are skipped on rerun unless --force is given.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		commands.NewRunCmd(),
		commands.NewHistoryCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
