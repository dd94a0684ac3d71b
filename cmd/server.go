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

	"github.com/IdrisKulubi/HIH-sub002/internal/api"
	"github.com/IdrisKulubi/HIH-sub002/internal/config"
	"github.com/IdrisKulubi/HIH-sub002/internal/container"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the review workflow API server.
The server exposes the REST API under /api/v1, runs the due diligence
approval deadline sweep in the background and reloads workflow
thresholds when the config file changes.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, configPath, log, err := bootstrap(cmd)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("host") {
			cfg.Server.Host, _ = cmd.Flags().GetString("host")
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port, _ = cmd.Flags().GetInt("port")
		}
		noSweep, _ := cmd.Flags().GetBool("no-sweep")

		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
			if cfg.Keycloak.Issuer == "" {
				return errors.New("keycloak.issuer is required in production")
			}
		}

		if cfg.Tracing.Enabled {
			if err := api.InitTracing(cfg.Tracing, cfg.Env); err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
		}

		ctr, err := container.NewContainer(cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		if ctr.KeycloakValidator() == nil {
			log.Warn("keycloak is not configured, identities are read from X-User-ID and X-User-Role headers")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		ctr.Dispatcher().Start()
		ctr.Collector().Start()
		defer ctr.Collector().Stop()
		if !noSweep {
			if err := ctr.Scheduler().Start(ctx); err != nil {
				return fmt.Errorf("failed to start deadline scheduler: %w", err)
			}
			defer ctr.Scheduler().Stop()
		}

		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath, log)
			watcher.OnConfigChange(ctr.ApplyConfig)
			if err := watcher.Start(); err != nil {
				log.WithError(err).Warn("config hot reload disabled")
			}
			defer watcher.Stop()
		}

		router := api.SetupRoutes(api.RouterConfig{
			CORS:      cfg.CORS,
			RateLimit: cfg.RateLimit,
			Tracing:   cfg.Tracing,
			Validator: ctr.KeycloakValidator(),
			DB:        ctr.DB(),
			Redis:     ctr.Redis(),
		}, ctr.Services())

		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:              addr,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		serveErr := make(chan error, 1)
		go func() {
			log.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
		case err := <-serveErr:
			return fmt.Errorf("server failed: %w", err)
		}

		log.Info("shutting down server")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Error("server forced to shutdown")
		}
		if err := api.ShutdownTracing(shutdownCtx); err != nil {
			log.WithError(err).Warn("failed to flush traces")
		}

		log.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
	serverCmd.Flags().Bool("no-sweep", false, "Do not run the approval deadline sweep in this instance")
}
