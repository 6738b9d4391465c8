package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/glados/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize glados configuration with an interactive wizard",
	Long:  `Runs an interactive wizard that writes the glados config file and, optionally, a first bot definition.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
