package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/planwise/studyplan/internal/gate"
)

var checkWatch bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check for missed sessions and reschedule them",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkWatch, "watch", false, "Keep checking every configured interval until interrupted")
}

func runCheck(cmd *cobra.Command, args []string) error {
	svc := openServices()

	if checkWatch {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching for missed sessions every %d minute(s). Ctrl-C to stop.\n",
			svc.cfg.Scheduler.CheckIntervalMinutes)
		if err := svc.detector.Watch(ctx); err != nil && ctx.Err() == nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println("\nStopped.")
		return nil
	}

	before := len(svc.engine.History())
	if err := svc.detector.CheckOnce(gate.ReasonManualTrigger, gate.ProvenanceUserTriggered); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	moved := len(svc.engine.History()) - before
	if moved == 0 {
		fmt.Println("No missed sessions.")
		return nil
	}
	fmt.Printf("Rescheduled %d session(s). Run 'studyplan history' for details.\n", moved)
	return nil
}
