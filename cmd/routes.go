package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var routesCmd = &cobra.Command{
	Use:   "routes",
	Short: "Print the route table after importing bots and plugins",
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

		for _, r := range a.glados.Router().Routes() {
			fmt.Println(r)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(routesCmd)
}
