package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/planwise/studyplan/internal/autoschedule"
	"github.com/planwise/studyplan/internal/calendar"
	"github.com/planwise/studyplan/internal/model"
	"github.com/planwise/studyplan/internal/timecalc"
)

var (
	scheduleTasksFile  string
	scheduleFrom       string
	scheduleDays       int
	scheduleNoCalendar bool
	scheduleDryRun     bool
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Place study sessions for tasks into free calendar time",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleTasksFile, "tasks", "", "JSON file with tasks to place (required)")
	scheduleCmd.Flags().StringVar(&scheduleFrom, "from", "", "First day to plan (YYYY-MM-DD); defaults to today")
	scheduleCmd.Flags().IntVar(&scheduleDays, "days", 7, "Number of days to plan")
	scheduleCmd.Flags().BoolVar(&scheduleNoCalendar, "no-calendar", false, "Skip external calendar busy time")
	scheduleCmd.Flags().BoolVar(&scheduleDryRun, "dry-run", false, "Print planned sessions without saving")
	_ = scheduleCmd.MarkFlagRequired("tasks")
}

func runSchedule(cmd *cobra.Command, args []string) error {
	svc := openServices()

	tasks, err := loadTasks(scheduleTasksFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks to schedule.")
		return nil
	}

	startDate := timecalc.StartOfDay(time.Now())
	if scheduleFrom != "" {
		d, err := time.Parse("2006-01-02", scheduleFrom)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid --from value %q: %v\n", scheduleFrom, err)
			os.Exit(1)
		}
		startDate = timecalc.StartOfDay(d)
	}
	horizonEnd := startDate.AddDate(0, 0, scheduleDays)

	ctx := context.Background()
	busy := collectBusy(ctx, svc, startDate, horizonEnd)

	// Already-placed sessions block time too.
	for _, s := range svc.store.Scheduled() {
		busy = append(busy, model.TimeSlot{Start: s.Start, End: s.End})
	}

	sessions := autoschedule.Plan(tasks, busy, autoschedule.Options{
		StartDate:             startDate,
		Days:                  scheduleDays,
		WorkDayStartHour:      svc.cfg.Scheduler.WorkDayStartHour,
		WorkDayEndHour:        svc.cfg.Scheduler.WorkDayEndHour,
		MaxStudyMinutesPerDay: svc.cfg.Scheduler.MaxStudyMinutesPerDay,
		MinBlockMinutes:       60,
	})

	if len(sessions) == 0 {
		fmt.Println("No free time found for any task.")
		return nil
	}

	printSessions(sessions)
	reportUnplaced(tasks, sessions)

	if scheduleDryRun {
		fmt.Println("\nDry run: nothing saved.")
		return nil
	}
	if err := svc.store.Add("autoSchedule", sessions...); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Printf("\nSaved %d session(s).\n", len(sessions))
	return nil
}

// collectBusy gathers busy intervals from the Graph calendar and configured
// ICS feeds. Calendar failures degrade to scheduling without that source.
func collectBusy(ctx context.Context, svc *services, from, to time.Time) []model.TimeSlot {
	var busy []model.TimeSlot
	if !scheduleNoCalendar {
		tok, oauthCfg, err := calendar.Authenticate(ctx, svc.cfg.Calendar.TenantID, svc.cfg.Calendar.ClientID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: calendar unavailable, scheduling without it: %v\n", err)
		} else {
			client := calendar.NewGraphClient(ctx, tok, oauthCfg, svc.cfg.Calendar.Timezone)
			events, err := client.ListEvents(ctx, from, to)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: could not fetch calendar events: %v\n", err)
			} else {
				busy = append(busy, calendar.BusyIntervals(events)...)
			}
		}
	}
	busy = append(busy, calendar.FetchBusy(ctx, svc.cfg.Calendar.ICS, from, to)...)
	return busy
}

func loadTasks(path string) ([]model.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading tasks file: %w", err)
	}
	var tasks []model.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("parsing tasks file %s: %w", path, err)
	}
	for i, t := range tasks {
		if t.ID == "" {
			return nil, fmt.Errorf("task %d: missing id", i)
		}
		if t.EstimatedMinutes <= 0 {
			return nil, fmt.Errorf("task %s: estimated_minutes must be positive", t.ID)
		}
	}
	return tasks, nil
}

func reportUnplaced(tasks []model.Task, sessions []model.ScheduledSession) {
	placed := make(map[string]int)
	for _, s := range sessions {
		if s.AssignmentID != nil {
			placed[*s.AssignmentID] += s.EstimatedMinutes
		}
	}
	for _, t := range tasks {
		if missing := t.EstimatedMinutes - placed[t.ID]; missing > 0 {
			fmt.Printf("  ! %s: %s could not be placed\n", t.Title, timecalc.FormatMinutes(missing))
		}
	}
}
