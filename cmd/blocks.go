package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/planwise/studyplan/internal/blocks"
)

var blocksCmd = &cobra.Command{
	Use:   "blocks",
	Short: "Show the calendar blocks the current schedule aggregates into",
	Args:  cobra.NoArgs,
	RunE:  runBlocks,
}

func runBlocks(cmd *cobra.Command, args []string) error {
	svc := openServices()

	aggregated := blocks.BuildBlocks(svc.store.Scheduled(), svc.cfg.Scheduler.BlockGapMinutes)
	if len(aggregated) == 0 {
		fmt.Println("No blocks (no scheduled sessions).")
		return nil
	}

	var currentDay string
	for _, b := range aggregated {
		if b.DayKey != currentDay {
			fmt.Println(b.DayKey)
			currentDay = b.DayKey
		}
		fmt.Printf("%s–%s  %s  [%s]\n",
			b.Start.Format("15:04"), b.End.Format("15:04"),
			b.Title, b.ID[:12])
	}
	return nil
}
