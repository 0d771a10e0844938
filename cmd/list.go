package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/timecalc"
)

var listAll bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled study sessions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().BoolVar(&listAll, "all", false, "Include sessions in the past")
}

func runList(cmd *cobra.Command, args []string) error {
	svc := openServices()
	now := time.Now()

	var sessions []model.ScheduledSession
	for _, s := range svc.store.Scheduled() {
		if !listAll && s.End.Before(timecalc.StartOfDay(now)) {
			continue
		}
		sessions = append(sessions, s)
	}

	printSessions(sessions)
	return nil
}

// printSessions groups sessions by date and prints them.
func printSessions(sessions []model.ScheduledSession) {
	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		return
	}

	var currentDay string
	for _, s := range sessions {
		day := timecalc.DayKey(s.Start)
		if day != currentDay {
			fmt.Println(day)
			currentDay = day
		}

		marks := ""
		if s.IsLocked {
			marks += " [locked]"
		}
		if s.IsUserEdited {
			marks += " [edited]"
		}
		category := ""
		if s.Category != "" {
			category = fmt.Sprintf(" (%s)", s.Category)
		}

		fmt.Printf("%s–%s  %s%s (%s)%s\n",
			s.Start.Format("15:04"), s.End.Format("15:04"),
			s.Title, category,
			timecalc.FormatMinutes(s.DurationMinutes()), marks)
	}
}
