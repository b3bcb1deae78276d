package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harun/hwdesk/internal/config"
	"github.com/harun/hwdesk/internal/logger"
	"github.com/harun/hwdesk/internal/observability"
	"github.com/harun/hwdesk/internal/tracing"
	"github.com/harun/hwdesk/pkg/api"
	"github.com/harun/hwdesk/pkg/gateway"
	"github.com/harun/hwdesk/pkg/routing"
	"github.com/harun/hwdesk/pkg/session"
	"github.com/harun/hwdesk/pkg/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// app is everything a command needs, built once per invocation
type app struct {
	cfg      *config.Config
	logger   *logger.Logger
	store    store.Store
	sessions *session.Manager
	gateway  *gateway.Client
	api      *api.Client
	nav      *routing.Navigator
	restored session.RestoreOutcome
	unbind   []func()
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if verbose {
		cfg.Logging.Console = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    true,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
		Output:    cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &app{cfg: cfg, logger: lg}

	if err := observability.InitAuditLogger(cfg.Logging.AuditFile); err != nil {
		log.Warn().Err(err).Str("path", cfg.Logging.AuditFile).Msg("Failed to open audit log")
	}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(cfg.Tracing.ServiceName, cfg.Tracing.SampleRatio); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		}
	}

	a.store, err = store.New(ctx, store.Options{
		Backend:    store.Backend(cfg.Store.Backend),
		Path:       cfg.Store.Path,
		SQLitePath: cfg.Store.SQLitePath,
		Redis: store.RedisOptions{
			Addr:     cfg.Store.Redis.Addr,
			Username: cfg.Store.Redis.Username,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
			Prefix:   cfg.Store.Redis.Prefix,
		},
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	a.sessions = session.NewManager(a.store, session.Options{
		TTL:           cfg.Session.TTL,
		MissingExpiry: session.MissingExpiryPolicy(cfg.Session.MissingExpiry),
	})
	a.restored = a.sessions.Restore(ctx)

	a.gateway, err = gateway.New(gateway.Config{
		BaseURL:   cfg.API.BaseURL,
		Timeout:   cfg.API.Timeout,
		UserAgent: "hwdesk/" + version,
	}, a.sessions)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.api, err = api.New(a.gateway, a.sessions, api.Options{AuthField: cfg.API.AuthField})
	if err != nil {
		a.Close()
		return nil, err
	}

	table, err := routing.NewTable(routing.DefaultRoutes())
	if err != nil {
		a.Close()
		return nil, err
	}
	a.nav = routing.NewNavigator(routing.NewGuard(table, a.sessions))
	a.unbind = append(a.unbind, a.nav.BindGateway(a.gateway), a.nav.BindSessions(a.sessions))

	return a, nil
}

// Close releases the store, flushes traces and closes the log file
func (a *app) Close() {
	for _, fn := range a.unbind {
		fn()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close session store")
		}
	}
	if a.cfg != nil && a.cfg.Tracing.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = tracing.ShutdownOpenTelemetry(ctx)
	}
	_ = observability.GetAuditLogger().Close()
	if a.logger != nil {
		_ = a.logger.Close()
	}
}

// LoginRequiredError is returned when a command needs a session the user
// does not have.
type LoginRequiredError struct {
	Target string
	Notice string
	// Message is the server's own explanation, when it sent one.
	Message string
}

func (e *LoginRequiredError) Error() string {
	switch {
	case e.Notice != "" && e.Message != "":
		return fmt.Sprintf("%s: %s (run `hwdesk login`)", e.Notice, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s (run `hwdesk login`)", e.Message)
	case e.Notice != "":
		return fmt.Sprintf("%s (run `hwdesk login`)", e.Notice)
	}
	return fmt.Sprintf("%s requires login (run `hwdesk login`)", e.Target)
}

// enter navigates to path through the route guard
func (a *app) enter(ctx context.Context, path string) (routing.Location, error) {
	d, loc := a.nav.Navigate(ctx, path)
	switch d.Action {
	case routing.ActionNotFound:
		return loc, fmt.Errorf("no such page: %s", path)
	case routing.ActionRedirectLogin:
		return loc, &LoginRequiredError{Target: path, Notice: d.Notice}
	}
	return loc, nil
}

// explain turns a request failure into the message a student should see.
// A rejection by the server has already cleared the session.
func (a *app) explain(err error) error {
	var rejected *gateway.AuthRejectedError
	var expired *session.AuthExpiredError
	switch {
	case errors.As(err, &rejected):
		return &LoginRequiredError{Notice: session.Notice(session.ReasonRejected), Message: rejected.Message}
	case errors.As(err, &expired):
		return &LoginRequiredError{Notice: session.Notice(session.ReasonExpired)}
	}
	return err
}

// withApp builds the app, runs fn and tears the app down again
func withApp(fn func(ctx context.Context, a *app, cmd *cobra.Command, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := tracing.NewCommandContext(cmd.Context())
		a, err := newApp(ctx, cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.restored == session.RestoreDiscarded {
			fmt.Fprintln(cmd.ErrOrStderr(), session.Notice(session.ReasonDiscarded))
		}
		return a.explain(fn(ctx, a, cmd, args))
	}
}
