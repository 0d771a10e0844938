package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/planwise/studyplan/internal/blocks"
	"github.com/planwise/studyplan/internal/calendar"
	"github.com/planwise/studyplan/internal/optimistic"
	"github.com/planwise/studyplan/internal/timecalc"
)

var (
	syncDays   int
	syncDryRun bool
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Push aggregated study blocks to the external calendar",
	Args:  cobra.NoArgs,
	RunE:  runSync,
}

func init() {
	syncCmd.Flags().IntVar(&syncDays, "days", 7, "Number of days to sync")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "Print planned calendar changes without applying them")
}

func runSync(cmd *cobra.Command, args []string) error {
	svc := openServices()
	ctx := context.Background()

	from := timecalc.StartOfDay(time.Now())
	to := from.AddDate(0, 0, syncDays)

	desired := blocks.BuildBlocks(svc.store.Scheduled(), svc.cfg.Scheduler.BlockGapMinutes)

	tok, oauthCfg, err := calendar.Authenticate(ctx, svc.cfg.Calendar.TenantID, svc.cfg.Calendar.ClientID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Authentication failed: %v\n", err)
		os.Exit(1)
	}
	client := calendar.NewGraphClient(ctx, tok, oauthCfg, svc.cfg.Calendar.Timezone)

	events, err := client.ListEvents(ctx, from, to)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fetch calendar events: %v\n", err)
		os.Exit(1)
	}

	existing := make([]blocks.ExistingEvent, 0, len(events))
	for _, e := range events {
		existing = append(existing, blocks.ExistingEvent{
			Identifier: e.ID,
			Title:      e.Title,
			Start:      e.Start,
			End:        e.End,
			Notes:      e.Notes,
		})
	}

	plan := blocks.SyncPlan(desired, existing, from, to)
	if len(plan.Upserts) == 0 && len(plan.Deletions) == 0 {
		fmt.Println("Calendar already up to date.")
		return nil
	}

	if syncDryRun {
		for _, up := range plan.Upserts {
			verb := "create"
			if up.ExistingIdentifier != "" {
				verb = "update"
			}
			fmt.Printf("  %s: %s %s–%s\n", verb, up.Block.Title,
				up.Block.Start.Format("Jan 2 15:04"), up.Block.End.Format("15:04"))
		}
		for _, id := range plan.Deletions {
			fmt.Printf("  delete: %s\n", id)
		}
		return nil
	}

	reconciler := optimistic.New(client, func(ctx context.Context, from, to time.Time, reason string) {
		// The next list covers the refresh; nothing cached locally.
	})

	var created, updated, deleted, failed int
	for _, up := range plan.Upserts {
		event := calendar.Event{
			ID:    up.ExistingIdentifier,
			Title: up.Block.Title,
			Start: up.Block.Start,
			End:   up.Block.End,
			Notes: up.Block.Notes,
		}
		if up.ExistingIdentifier == "" {
			if _, err := client.Save(ctx, event); err != nil {
				fmt.Fprintf(os.Stderr, "  ! Error creating %q: %v\n", up.Block.Title, err)
				failed++
				continue
			}
			created++
			continue
		}
		err := reconciler.Apply(ctx, up.ExistingIdentifier, func(ctx context.Context) error {
			_, err := client.Save(ctx, event)
			return err
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "  ! Error updating %q: %v\n", up.Block.Title, err)
			failed++
			continue
		}
		updated++
	}
	for _, id := range plan.Deletions {
		if err := client.Remove(ctx, id); err != nil {
			if errors.Is(err, calendar.ErrEventNotFound) {
				// Already gone externally; the goal state holds.
				deleted++
				continue
			}
			fmt.Fprintf(os.Stderr, "  ! Error deleting %s: %v\n", id, err)
			failed++
			continue
		}
		deleted++
	}

	for _, up := range plan.Upserts {
		if up.ExistingIdentifier == "" {
			continue
		}
		if c, ok := reconciler.ConflictFor(up.ExistingIdentifier); ok {
			fmt.Printf("  ~ Conflict on %q: %s\n", up.Block.Title, c.UserFacingMessage())
		}
	}

	fmt.Println("Summary:")
	fmt.Printf("  %d created\n", created)
	fmt.Printf("  %d updated\n", updated)
	fmt.Printf("  %d deleted\n", deleted)
	if failed > 0 {
		fmt.Printf("  %d failed\n", failed)
		os.Exit(2)
	}
	return nil
}
