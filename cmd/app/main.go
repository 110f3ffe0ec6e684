package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/atvirokodosprendimai/swmanager/internal/app"
	"github.com/atvirokodosprendimai/swmanager/internal/core/usecase"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cmd := &cli.Command{
		Name:  "swmanager",
		Usage: "Software inventory API with API key access control",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("SWMANAGER_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./swmanager.sqlite",
				Sources: cli.EnvVars("SWMANAGER_DB_PATH"),
				Usage:   "SQLite file path",
			},
			&cli.DurationFlag{
				Name:    "update-time",
				Value:   app.DefaultUpdateTime,
				Sources: cli.EnvVars("SWMANAGER_UPDATE_TIME"),
				Usage:   "Delay before a requested activation or download takes effect",
			},
			&cli.IntFlag{
				Name:    "api-key-length",
				Value:   usecase.DefaultAPIKeyLength,
				Sources: cli.EnvVars("SWMANAGER_API_KEY_LENGTH"),
				Usage:   "Length of issued API keys",
			},
			&cli.IntFlag{
				Name:    "transition-workers",
				Value:   2,
				Sources: cli.EnvVars("SWMANAGER_TRANSITION_WORKERS"),
				Usage:   "Workers applying deferred status transitions",
			},
			&cli.StringFlag{
				Name:    "admin-api-key",
				Sources: cli.EnvVars("SWMANAGER_ADMIN_API_KEY"),
				Usage:   "Optional key required in X-Admin-Key for API key administration",
			},
			&cli.FloatFlag{
				Name:    "issue-rate",
				Sources: cli.EnvVars("SWMANAGER_ISSUE_RATE"),
				Usage:   "API key issuances allowed per second (0 disables the limit)",
			},
			&cli.IntFlag{
				Name:    "issue-burst",
				Value:   5,
				Sources: cli.EnvVars("SWMANAGER_ISSUE_BURST"),
				Usage:   "Burst size for API key issuance",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("SWMANAGER_WEBHOOK_URL"),
				Usage:   "Software event webhook target URL",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("SWMANAGER_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for outbound webhook requests",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("SWMANAGER_LOG_LEVEL"),
				Usage:   "Log level: debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:    "log-format",
				Value:   "text",
				Sources: cli.EnvVars("SWMANAGER_LOG_FORMAT"),
				Usage:   "Log format: text or json",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg := app.Config{
				Addr:              c.String("addr"),
				DBPath:            c.String("db-path"),
				UpdateTime:        c.Duration("update-time"),
				APIKeyLength:      c.Int("api-key-length"),
				TransitionWorkers: c.Int("transition-workers"),
				AdminAPIKey:       c.String("admin-api-key"),
				IssueRate:         c.Float("issue-rate"),
				IssueBurst:        c.Int("issue-burst"),
				WebhookURL:        c.String("webhook-url"),
				WebhookSecret:     c.String("webhook-secret"),
				LogLevel:          c.String("log-level"),
				LogFormat:         c.String("log-format"),
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger := app.NewLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
			slog.SetDefault(logger)

			server, closer, err := app.NewServer(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					logger.Error("close resources", "error", closeErr)
				}
			}()

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("listening", "addr", cfg.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			return g.Wait()
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("swmanager exited", "error", err)
		os.Exit(1)
	}
}
