package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	editStart string
	editEnd   string
)

var editCmd = &cobra.Command{
	Use:   "edit <session-id>",
	Short: "Move a session by hand; edited sessions are left alone by automation",
	Args:  cobra.ExactArgs(1),
	RunE:  runEdit,
}

func init() {
	editCmd.Flags().StringVar(&editStart, "start", "", "New start time (YYYY-MM-DD HH:MM)")
	editCmd.Flags().StringVar(&editEnd, "end", "", "New end time (YYYY-MM-DD HH:MM)")
	_ = editCmd.MarkFlagRequired("start")
	_ = editCmd.MarkFlagRequired("end")
}

func runEdit(cmd *cobra.Command, args []string) error {
	svc := openServices()

	const layout = "2006-01-02 15:04"
	start, err := time.ParseInLocation(layout, editStart, time.Local)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --start value %q: %v\n", editStart, err)
		os.Exit(1)
	}
	end, err := time.ParseInLocation(layout, editEnd, time.Local)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --end value %q: %v\n", editEnd, err)
		os.Exit(1)
	}

	if err := svc.store.MarkUserEdited(args[0], start, end, time.Now()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Printf("Moved session to %s–%s.\n", start.Format(layout), end.Format("15:04"))
	return nil
}
