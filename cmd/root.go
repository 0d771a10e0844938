package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/planwise/studyplan/internal/config"
	"github.com/planwise/studyplan/internal/detect"
	"github.com/planwise/studyplan/internal/gate"
	"github.com/planwise/studyplan/internal/notify"
	"github.com/planwise/studyplan/internal/planner"
	"github.com/planwise/studyplan/internal/reschedule"
	"github.com/planwise/studyplan/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "studyplan",
	Short: "studyplan – a study-session scheduler with automatic rescheduling",
	Long: `studyplan places study sessions for your assignments into free calendar
time, detects sessions you missed, and reschedules them automatically.
All data is stored as human-readable JSON files in ~/.studyplan/.`,
}

// Execute is the entry point called from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(editCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(overflowCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(blocksCmd)
	rootCmd.AddCommand(syncCmd)
}

// services bundles the shared components most commands need.
type services struct {
	base     string
	cfg      config.Config
	store    *planner.Store
	gate     *gate.Gate
	engine   *reschedule.Engine
	detector *detect.Detector
}

// openServices loads config and opens the store, gate, engine, and
// detector. Failures are fatal: without the data directory nothing works.
func openServices() *services {
	base, err := storage.BaseDir()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	store, err := planner.Open(base)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	g, err := gate.Open(base, func() bool { return cfg.Scheduler.Enabled })
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	engine, err := reschedule.New(base, store, g, notify.WriterSink{W: os.Stderr}, reschedule.Settings{
		PushEnabled:  cfg.Scheduler.PushEnabled,
		MaxPushCount: cfg.Scheduler.MaxPushCount,
		DayEndHour:   cfg.Scheduler.DayEndHour,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	detector := detect.New(store, engine, g, cfg.Scheduler.CheckIntervalMinutes)

	return &services{
		base:     base,
		cfg:      cfg,
		store:    store,
		gate:     g,
		engine:   engine,
		detector: detector,
	}
}
