package main

import (
	"codeberg.org/mutker/socpowerd/internal/config"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "socpowerd",
	Short: "SoC power policy daemon",
	Long: `socpowerd arbitrates performance-mode hints (sustained performance, VR,
interaction boosts, display interactivity) into resource locks and exports
the RPM and WLAN power statistics.`,
	SilenceUsage: true,
}

func init() {
	config.RegisterFlags(rootCmd.PersistentFlags())
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	return config.Load(config.WithFlags(cmd.Flags()))
}
