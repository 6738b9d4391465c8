package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/glados/internal/plugins"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Inspect and toggle plugins",
}

var pluginsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Import plugins and show where each one ended up",
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

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tMODULE\tBOT\tSTATE\tREASON")
		for _, e := range a.entries {
			reason := ""
			if e.Err != nil {
				reason = e.Err.Error()
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.Config.Name, e.Config.Module, e.Config.Bot.Name, e.State, reason)
		}
		return w.Flush()
	},
}

var pluginsEnableCmd = &cobra.Command{
	Use:   "enable <name>",
	Short: "Enable a plugin in its user config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPluginEnabled(args[0], true)
	},
}

var pluginsDisableCmd = &cobra.Command{
	Use:   "disable <name>",
	Short: "Disable a plugin in its user config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setPluginEnabled(args[0], false)
	},
}

func setPluginEnabled(name string, enabled bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := plugins.SetEnabled(cfg.PluginsConfigFolder, name, enabled); err != nil {
		return err
	}
	fmt.Printf("plugin %s enabled=%t (%s)\n", name, enabled, plugins.UserConfigPath(cfg.PluginsConfigFolder, name))
	return nil
}

func init() {
	pluginsCmd.AddCommand(pluginsListCmd, pluginsEnableCmd, pluginsDisableCmd)
	rootCmd.AddCommand(pluginsCmd)
}
