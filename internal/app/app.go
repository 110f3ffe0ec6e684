package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/atvirokodosprendimai/swmanager/internal/adapters/events"
	"github.com/atvirokodosprendimai/swmanager/internal/adapters/httpapi"
	sqliteadapter "github.com/atvirokodosprendimai/swmanager/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/swmanager/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/swmanager/internal/core/domain"
	"github.com/atvirokodosprendimai/swmanager/internal/core/ports"
	"github.com/atvirokodosprendimai/swmanager/internal/core/usecase"
	"github.com/atvirokodosprendimai/swmanager/migrations"
)

const (
	DefaultUpdateTime       = 10 * time.Second
	defaultWebhookTimeout   = 10 * time.Second
	defaultWebhookRetries   = 3
	defaultEventQueueBuffer = 256
)

type Config struct {
	Addr              string        `validate:"required"`
	DBPath            string        `validate:"required"`
	UpdateTime        time.Duration `validate:"gte=0"`
	APIKeyLength      int           `validate:"gte=1,lte=256"`
	TransitionWorkers int           `validate:"gte=1,lte=64"`
	AdminAPIKey       string
	// IssueRate is key issuances per second. Zero disables the limit.
	IssueRate     float64 `validate:"gte=0"`
	IssueBurst    int     `validate:"gte=0"`
	WebhookURL    string  `validate:"omitempty,url"`
	WebhookSecret string  `validate:"required_with=WebhookURL"`
	LogLevel      string  `validate:"omitempty,oneof=debug info warn error"`
	LogFormat     string  `validate:"omitempty,oneof=text json"`
}

// Validate reports the first invalid field of cfg.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	for _, c := range r.closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// NewServer opens the database, runs migrations and wires the services. The
// returned closer stops the scheduler, flushes the event queue and closes the
// database, in that order.
func NewServer(ctx context.Context, cfg Config, logger *slog.Logger) (*http.Server, io.Closer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := gormsqlite.Open(cfg.DBPath, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open sqlite: %w", err)
	}

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("resolve writer sql db: %w", err)
	}

	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	publisher, publisherCloser := newPublisher(cfg, logger)

	scheduler := usecase.NewTransitionScheduler(cfg.UpdateTime, cfg.TransitionWorkers, logger)
	softwareService := usecase.NewSoftwareService(sqliteadapter.NewSoftwareRepository(db), scheduler, publisher, logger)
	authService := usecase.NewAuthService(sqliteadapter.NewAPIKeyRepository(db), cfg.APIKeyLength)
	scheduler.Start(context.Background(), softwareService)

	var limiter *rate.Limiter
	if cfg.IssueRate > 0 {
		burst := cfg.IssueBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.IssueRate), burst)
	}

	handler := httpapi.NewHandler(softwareService, authService, httpapi.Options{
		AdminKey:     cfg.AdminAPIKey,
		IssueLimiter: limiter,
		Logger:       logger,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("server configured",
		"addr", cfg.Addr,
		"db_path", cfg.DBPath,
		"update_time", cfg.UpdateTime,
		"transition_workers", cfg.TransitionWorkers,
		"webhook", cfg.WebhookURL != "",
		"admin_key", cfg.AdminAPIKey != "",
	)

	return server, resourceCloser{closers: []io.Closer{scheduler, publisherCloser, db}}, nil
}

// newPublisher logs events, and additionally queues them for webhook delivery
// when a webhook URL is configured.
func newPublisher(cfg Config, logger *slog.Logger) (ports.EventPublisher, io.Closer) {
	logPublisher := events.NewLogPublisher(logger)
	if cfg.WebhookURL == "" {
		return logPublisher, nil
	}

	webhook := events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, defaultWebhookTimeout, defaultWebhookRetries, logger)
	queued := events.NewQueuedPublisher(webhook, defaultEventQueueBuffer, logger)
	return fanout{logPublisher, queued}, queued
}

type fanout []ports.EventPublisher

func (f fanout) Publish(ctx context.Context, topic string, event domain.EventEnvelope) error {
	var firstErr error
	for _, p := range f {
		if err := p.Publish(ctx, topic, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
