// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/server"
	"github.com/jeranaias/rigchat/internal/title"
)

// shutdownTimeout bounds how long in-flight streams may run after a signal.
const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	var (
		addr    string
		noWatch bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API gateway",
		Long: `Serve the chat API:

  POST /api/chat             chat completion, streamed as server-sent events
  POST /api/generate-title   short title for a conversation
  GET  /api/models           chat models from the upstream catalog
  GET  /health               liveness and token status
  GET  /metrics              Prometheus metrics

The config file is watched; a changed API token or default model takes
effect without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			logger := logging.New(cfg.Server.Env, cfg.Log.Level, os.Stderr)

			client := newCloudClient(cfg, logger)
			srv := server.New(client, title.NewGenerator(client, cfg.Chat.TitleModel), server.Options{
				Addr:           cfg.Server.Addr,
				Version:        Version,
				RateLimitRPS:   cfg.Server.RateLimitRPS,
				RateLimitBurst: cfg.Server.RateLimitBurst,
				AllowedOrigins: cfg.Server.AllowedOrigins,
			}, logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if !noWatch {
				path, err := opts.resolvedConfigPath()
				if err == nil {
					go func() {
						err := config.Watch(ctx, path, logger, func(next *config.Config) {
							client.SetToken(next.Upstream.APIToken)
							client.SetDefaultModel(next.Chat.DefaultModel)
							logger.Info().
								Str("path", path).
								Bool("upstream_configured", client.IsConfigured()).
								Str("default_model", client.DefaultModel()).
								Msg("config reloaded")
						})
						if err != nil {
							logger.Warn().Err(err).Str("path", path).Msg("config watch disabled")
						}
					}()
				}
			}

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case err := <-errCh:
				srv.Close()
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, 127.0.0.1:3000)")
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}
