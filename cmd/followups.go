package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var followupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Run due follow-ups and purge expired interactions once",
	Long: `Runs a single scheduler cycle and exits. Use this from cron when the
server runs without the in-process scheduler.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(context.Background(), cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.db == nil {
			return fmt.Errorf("followups need a datastore, driver is %s", cfg.Datastore.Driver)
		}

		ctx := cmd.Context()
		now := time.Now()
		ran, err := a.glados.RunFollowups(ctx, now)
		if err != nil {
			return err
		}
		purged, err := a.glados.PurgeExpired(ctx, now)
		if err != nil {
			return err
		}
		fmt.Printf("followups run: %d, interactions purged: %d\n", ran, purged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(followupsCmd)
}
