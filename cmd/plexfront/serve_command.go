package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"plexfront/api"
	"plexfront/handlers"
	"plexfront/internal/logging"
	"plexfront/utils"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and maintenance scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}

			closer, err := logging.Setup(cfg.Logging)
			if err != nil {
				return fmt.Errorf("setup logging: %w", err)
			}
			defer closer.Close()

			a, err := newApp(cfg)
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if cfg.Scheduler.Enabled {
				if err := a.scheduler.Start(runCtx); err != nil {
					return err
				}
			}

			limiter := api.NewClientRateLimiter(rate.Limit(cfg.Server.ImageRateLimit), cfg.Server.ImageRateBurst)
			defer limiter.Close()

			router := utils.NewRouter(cfg.Server.CORSOrigins)
			handlers.Routes{
				Images:      handlers.NewImageHandler(a.images, handlers.PlexOrigins(a.plex)),
				Logos:       handlers.NewLogoHandler(a.logos),
				Watchlist:   handlers.NewWatchlistHandler(a.watchlist),
				Plex:        handlers.NewPlexHandler(a.plexData),
				Settings:    handlers.NewSettingsHandler(a.settings),
				Logs:        handlers.NewLogsHandler(cfg.Logging.File),
				Admin:       handlers.NewAdminHandler(a.scheduler, a.images),
				ImageLimits: limiter,
				AdminTokens: cfg.Server.AdminTokens,
			}.Register(router)

			srv := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      router,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("[plexfront] listening on %s (data %s, image memory %s)",
					cfg.Server.Addr, cfg.DataDir, humanize.IBytes(uint64(cfg.Images.MaxMemoryBytes)))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			case <-runCtx.Done():
				log.Printf("[plexfront] shutting down")
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(cmd.Context()), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Printf("[plexfront] http shutdown: %v", err)
			}
			a.shutdown(shutdownCtx)
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
