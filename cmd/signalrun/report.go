package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/moonwatch/signalrun/internal/config"
	"github.com/moonwatch/signalrun/internal/outcome"
	"github.com/moonwatch/signalrun/internal/reputation"
)

func newReportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print channel reputations and tracking state from the data directory",
		RunE:  runReport,
	}
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	repDir := filepath.Join(cfg.Data.Dir, "reputation")
	store, err := outcome.NewStore(repDir)
	if err != nil {
		return fmt.Errorf("open outcome store: %w", err)
	}
	rep, err := reputation.NewEngine(filepath.Join(repDir, "channels.json"), cfg.Reputation.TDUpdate)
	if err != nil {
		return fmt.Errorf("open reputation store: %w", err)
	}

	active, completed := store.Counts()
	fmt.Printf("signals: %d active, %d completed\n\n", active, completed)

	channels := rep.All()
	if len(channels) == 0 {
		fmt.Println("no channel reputations yet")
		return nil
	}
	sort.Slice(channels, func(i, j int) bool {
		return channels[i].ReputationScore > channels[j].ReputationScore
	})

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tTIER\tSCORE\tSIGNALS\tWIN RATE\tAVG ROI\tSHARPE\tEXPECTED ROI")
	for _, c := range channels {
		fmt.Fprintf(w, "%s\t%s\t%.1f\t%d\t%.1f%%\t%.2fx\t%.2f\t%.2fx\n",
			c.ChannelName, c.ReputationTier, c.ReputationScore,
			c.TotalSignals, c.WinRate, c.AverageROI, c.SharpeRatio, c.ExpectedROI)
	}
	return w.Flush()
}
