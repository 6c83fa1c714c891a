package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/partforge/partforge/internal/config"
	"github.com/partforge/partforge/internal/server"
	"github.com/partforge/partforge/pkg/pipeline"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var (
		configPath string
		listen     string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Run the PartForge HTTP API.

The server exposes upload, conversion, validation, and download
endpoints. Configuration comes from a TOML file; flags override it.`,
		Example: `  partforge serve
  partforge serve --config partforge.toml
  partforge serve --listen :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			c, err := cfg.OpenCache(ctx)
			if err != nil {
				return err
			}
			runner := pipeline.NewRunner(c, cfg.Keyer(), logger)
			defer runner.Close()
			pool := pipeline.NewPool(runner, cfg.Jobs.Workers, cfg.JobTimeout())

			srv, err := server.New(cfg, pool, logger)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:              cfg.Server.Listen,
				Handler:           srv.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("server listening", "addr", cfg.Server.Listen)
				errCh <- httpServer.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to TOML config file")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (overrides config)")

	return cmd
}
