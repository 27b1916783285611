package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/config"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/schedule"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print the trial schedule the configuration would produce",
	RunE:  runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	seed := cfg.Schedule.Seed
	plan, err := schedule.BuildPlan(cfg.Gestures, cfg.Schedule.NumRepetition,
		cfg.GestureDuration(), cfg.RestDuration(), cfg.Schedule.Randomize, seed)
	if err != nil {
		return err
	}

	fmt.Printf("%d trials, %s nominal span\n", len(plan.Trials), plan.Total())
	if cfg.Schedule.Randomize && seed == 0 {
		fmt.Println("(randomized with a wall-clock seed at record time; order below uses seed 0)")
	}
	for _, t := range plan.Trials {
		fmt.Printf("  %3d  %8s  %s\n", t.ID, t.Offset, t.Gesture)
	}
	return nil
}
