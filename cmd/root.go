package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/glados/internal/config"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "glados",
	Short: "Webhook dispatch framework for Slack bot plugins",
	Long: `GLaDOS receives Slack webhooks (events, slash commands, interactive
components, external menus) and outbound send requests, verifies them,
correlates them with earlier messages, and routes them to plugin handlers
bound to one of your bots.`,
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.DefaultPath, "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
