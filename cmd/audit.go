package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	auditLimit         int
	auditResetCounters bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the automation audit log and activity counters",
	Args:  cobra.NoArgs,
	RunE:  runAudit,
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Number of recent entries to show (0 = all)")
	auditCmd.Flags().BoolVar(&auditResetCounters, "reset-counters", false, "Zero the activity counters")
}

func runAudit(cmd *cobra.Command, args []string) error {
	svc := openServices()

	if auditResetCounters {
		svc.gate.ResetCounters()
		fmt.Println("Counters reset.")
		return nil
	}

	entries := svc.gate.Entries()
	if auditLimit > 0 && len(entries) > auditLimit {
		entries = entries[len(entries)-auditLimit:]
	}

	if len(entries) == 0 {
		fmt.Println("No audit entries.")
	}
	for _, e := range entries {
		fmt.Printf("%s  %-10s %-16s %-13s %s\n",
			e.Timestamp.Format("2006-01-02 15:04:05"),
			e.Status, e.Reason, e.Provenance, e.Detail)
	}

	c := svc.gate.Snapshot()
	fmt.Println("\nCounters:")
	fmt.Printf("  checks executed:     %d\n", c.ChecksExecuted)
	fmt.Printf("  sessions analyzed:   %d\n", c.SessionsAnalyzed)
	fmt.Printf("  sessions moved:      %d\n", c.SessionsMoved)
	fmt.Printf("  history writes:      %d\n", c.HistoryEntriesWritten)
	fmt.Printf("  notifications sent:  %d\n", c.NotificationsSent)
	fmt.Printf("  suppressed:          %d\n", c.SuppressedExecutions)
	if c.LastSuppressionReason != "" {
		fmt.Printf("  last suppression:    %s\n", c.LastSuppressionReason)
	}
	return nil
}
