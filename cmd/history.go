package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var historyClear bool

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show past reschedule operations",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().BoolVar(&historyClear, "clear", false, "Delete the reschedule history")
}

func runHistory(cmd *cobra.Command, args []string) error {
	svc := openServices()

	if historyClear {
		if err := svc.engine.ClearHistory(); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Println("History cleared.")
		return nil
	}

	history := svc.engine.History()
	if len(history) == 0 {
		fmt.Println("No reschedule operations recorded.")
		return nil
	}

	for _, op := range history {
		fmt.Printf("%s  %s\n", op.Timestamp.Format("2006-01-02 15:04"), op.Strategy.DisplayName())
		fmt.Printf("    session %s: %s–%s → %s–%s\n",
			op.SessionID,
			op.OriginalStart.Format("Jan 2 15:04"), op.OriginalEnd.Format("15:04"),
			op.NewStart.Format("Jan 2 15:04"), op.NewEnd.Format("15:04"))
		if len(op.PushedSessionIDs) > 0 {
			fmt.Printf("    pushed: %d session(s)\n", len(op.PushedSessionIDs))
		}
	}
	if last := svc.engine.LastRescheduleAt(); last != nil {
		fmt.Printf("\nLast reschedule: %s\n", last.Format("2006-01-02 15:04"))
	}
	return nil
}
