package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/glados/internal/bots"
	"github.com/ziadkadry99/glados/internal/config"
)

var botsCmd = &cobra.Command{
	Use:   "bots",
	Short: "Manage bot definitions",
}

var botsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a bot with an interactive wizard",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return config.RunBotWizard(cfg.BotsConfigFolder, cfg.SecretKeyEnv)
	},
}

var botsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the bots whose credentials resolve",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		reg, err := bots.NewImporter(cfg.BotsConfigFolder, bots.KeyFromEnv(cfg.SecretKeyEnv)).Import()
		if err != nil {
			return err
		}
		for _, name := range reg.Names() {
			fmt.Println(name)
		}
		return nil
	},
}

var botsKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a key for enc_env_var credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := bots.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Println(key)
		return nil
	},
}

func init() {
	botsCmd.AddCommand(botsAddCmd, botsListCmd, botsKeygenCmd)
	rootCmd.AddCommand(botsCmd)
}
