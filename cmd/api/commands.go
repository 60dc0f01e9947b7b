package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/user/photo-resolver/internal/delivery/http/handler"
	"github.com/user/photo-resolver/internal/delivery/http/response"
	"github.com/user/photo-resolver/internal/delivery/http/router"
	"github.com/user/photo-resolver/pkg/config"
	"github.com/user/photo-resolver/pkg/logger"
	"github.com/user/photo-resolver/pkg/utils"
)

func newRootCmd(stdout io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "photo-resolver",
		Short:         "Resolve product references into names and image links",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)

	serveCmd := newServeCmd()
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(newResolveCmd())
	// Bare invocation runs the server, as container entrypoints expect.
	rootCmd.RunE = serveCmd.RunE

	return rootCmd
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()
			return serve(cmd.Context(), cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	c, err := buildComponents(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.storage.Close()

	apiHandler := handler.NewHandler(c.photoManager, c.storage.cache, c.pool, log)
	server := newHTTPServer(ctx, cfg, router.New(apiHandler, cfg.RequestTimeout, log))

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()
	log.Info("server started",
		zap.String("port", cfg.ServerPort),
		zap.String("cache_backend", cfg.CacheBackend),
		zap.Int("proxies", c.pool.Size()),
	)

	select {
	case err := <-serverErr:
		c.renderer.Shutdown()
		return fmt.Errorf("listen on :%s: %w", cfg.ServerPort, err)
	case <-ctx.Done():
	}

	log.Info("shutting down server...")

	// Request contexts are already cancelled; closing the browsers ends
	// attempts that are still inside chromedp.
	c.renderer.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server exiting")
	return nil
}

// newHTTPServer ties every request context to ctx, so a shutdown signal
// cancels in-flight resolutions and their backoff.
func newHTTPServer(ctx context.Context, cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func newResolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve --store STORE REFERENCE...",
		Short: "Resolve references once and print the results as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _ := cmd.Flags().GetString("store")
			if !utils.ValidStore(store) {
				return fmt.Errorf("invalid store %q", store)
			}

			cfg, log, err := bootstrap()
			if err != nil {
				return err
			}
			defer log.Sync()

			c, err := buildComponents(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer c.Close()

			results := c.photoManager.ResolveBatch(cmd.Context(), store, args)

			out := response.ResolveResponse{Store: store, Results: make([]response.ResolutionResult, len(results))}
			for i, res := range results {
				out.Results[i] = response.FromResult(res)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringP("store", "s", "", "Store subdomain the references belong to")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
