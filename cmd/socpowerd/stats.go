package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"codeberg.org/mutker/socpowerd/internal/config"
	"codeberg.org/mutker/socpowerd/internal/logger"
	"codeberg.org/mutker/socpowerd/internal/sampler"
	"codeberg.org/mutker/socpowerd/internal/stats"
	"github.com/spf13/cobra"
)

var statsFlags struct {
	json bool
}

var statsCmd = &cobra.Command{
	Use:       "stats [platform|wlan]",
	Short:     "Extract and print the power statistics once",
	ValidArgs: []string{"platform", "wlan"},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	RunE:      runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsFlags.json, "json", false, "print samples as JSON")
}

func statTables(cfg *config.Config) []stats.Table {
	return []stats.Table{
		stats.PlatformTable(cfg.PlatformStatsPath),
		stats.WLANTable(cfg.WLANStatsPath),
	}
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	smp := sampler.New(statTables(cfg), sampler.WithLogger(logger.Nop()))

	names := smp.Tables()
	if len(args) == 1 {
		names = args
	}

	var all []stats.Sample
	for _, name := range names {
		samples, err := smp.Sample(cmd.Context(), name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		all = append(all, samples...)
	}

	out := cmd.OutOrStdout()
	if statsFlags.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tGROUP\tPARAM\tVALUE")
	for _, s := range all {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.Table, s.Group, s.Param, s.Value)
	}

	return tw.Flush()
}
