package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planwise/studyplan/internal/timecalc"
)

var overflowRemove string

var overflowCmd = &cobra.Command{
	Use:   "overflow",
	Short: "List sessions that need manual scheduling",
	Args:  cobra.NoArgs,
	RunE:  runOverflow,
}

func init() {
	overflowCmd.Flags().StringVar(&overflowRemove, "remove", "", "Remove an overflow session by ID (after scheduling it yourself)")
}

func runOverflow(cmd *cobra.Command, args []string) error {
	svc := openServices()

	if overflowRemove != "" {
		if !svc.store.RemoveOverflow(overflowRemove) {
			fmt.Fprintf(os.Stderr, "No overflow session with ID %s\n", overflowRemove)
			os.Exit(1)
		}
		fmt.Println("Removed.")
		return nil
	}

	overflow := svc.store.Overflow()
	if len(overflow) == 0 {
		fmt.Println("No overflow sessions.")
		return nil
	}

	fmt.Printf("%d session(s) need manual scheduling:\n\n", len(overflow))
	for _, ov := range overflow {
		fmt.Printf("%s  %s (%s, due %s)\n",
			ov.ID, ov.Title,
			timecalc.FormatMinutes(ov.EstimatedMinutes),
			ov.DueDate.Format("2006-01-02"))
	}
	return nil
}
