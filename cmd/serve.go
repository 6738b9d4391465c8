package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/glados/internal/server"
)

var (
	servePort           int
	serveRequestTimeout time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the webhook server",
	Long: `Imports bots and plugins, then serves the Slack webhook endpoints.
When followups are enabled the follow-up scheduler runs alongside.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp(ctx, cfg, true)
		if err != nil {
			return err
		}
		defer a.Close()

		if cfg.Followups.Enabled {
			go a.glados.RunScheduler(ctx, cfg.Followups.Interval)
		}

		srv := server.New(server.Config{
			Host:           cfg.Server.Host,
			Port:           cfg.Server.Port,
			AllowAll:       cfg.Server.AllowAllOrigins,
			RequestTimeout: serveRequestTimeout,
		}, a.glados)

		go func() {
			<-ctx.Done()
			log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown")
			}
		}()

		log.Info().
			Str("version", Version).
			Str("addr", srv.Addr()).
			Strs("bots", a.glados.Bots().Names()).
			Int("routes", a.glados.Router().Len()).
			Str("datastore", string(cfg.Datastore.Driver)).
			Msg("glados starting")

		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "port to listen on (overrides server.port)")
	serveCmd.Flags().DurationVar(&serveRequestTimeout, "request-timeout", 30*time.Second, "per-request handler timeout")
	rootCmd.AddCommand(serveCmd)
}
