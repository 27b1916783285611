package main

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/config"
	"github.com/NeuroEngLabTAU/Fingures-Gestures-Recognition/internal/store"
)

var sessionsSubject string

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded Positions from the dataset catalog",
	RunE:  runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsSubject, "subject", "", "filter by subject id")
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	catalog, err := store.OpenCatalog(filepath.Join(cfg.DatasetDir, "catalog.sqlite"))
	if err != nil {
		return err
	}
	defer catalog.Close()

	positions, err := catalog.Positions(sessionsSubject)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		fmt.Println("no recordings found")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SUBJECT\tSITTING\tPOSITION\tSTARTED\tSTATUS\tDIR")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\tS%d\tP%d\t%s\t%s\t%s\n",
			p.Subject, p.Sitting, p.Position,
			p.StartedAt.Format("2006-01-02 15:04:05"),
			p.Status, p.Dir)
	}
	return w.Flush()
}
