package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/aqasim81/data-migration-runner/internal/config"
	"github.com/aqasim81/data-migration-runner/internal/httpapi"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{ //nolint:gochecknoglobals // standard Cobra pattern
	Use:   "serve",
	Short: "Serve the migration HTTP API",
	Long: `Serve the HTTP control surface for running, verifying and rolling
back migrations. Every request must carry the configured api_secret in the
X-Migration-Secret header. Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() { //nolint:gochecknoinits // standard Cobra pattern for flag registration
	serveCmd.Flags().String("addr", "", "listen address (overrides http_addr)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := AppConfig

	addr := cfg.HTTPAddr
	if cmd.Flags().Changed("addr") {
		addr, _ = cmd.Flags().GetString("addr")
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.APISecret == "" {
		log.Warn().Msg("api_secret is not set; every request will be rejected with 503")
	}

	gin.SetMode(gin.ReleaseMode)

	api := httpapi.New(a.runner, cfg.APISecret,
		httpapi.WithLogger(log.Logger),
		httpapi.WithDefaults(migrationContext(cmd, cfg)),
		httpapi.WithMetricsHandler(a.metrics.Handler()),
	)

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)

	go func() {
		log.Info().
			Str("addr", addr).
			Str("environment", cfg.Environment).
			Str("api_secret", config.RedactSecret(cfg.APISecret)).
			Msg("serving migration API")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serving HTTP: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down migration API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}

	return nil
}
