package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"

	"github.com/aussiebroadwan/rhsession/pkg/rhsdk"
	"github.com/aussiebroadwan/rhsession/pkg/sessioncache"
	redisstore "github.com/aussiebroadwan/rhsession/pkg/sessioncache/drivers/redis"
	"github.com/aussiebroadwan/rhsession/pkg/sessioncache/drivers/sqlite"
	"github.com/aussiebroadwan/rhsession/pkg/sessionevents"
	"github.com/aussiebroadwan/rhsession/pkg/slogx"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// ErrUsage is returned for an unknown command or missing argument.
var ErrUsage = errors.New("usage: rhsession login | status | get <path> | logout")

// Application wires a session manager to a cache store and an optional event
// stream, and runs one command against them.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store  sessioncache.Store
	events *sessionevents.WatermillPublisher

	in     io.Reader
	out    io.Writer
	prompt io.Writer

	httpClient *http.Client
	closers    []func() error
}

// Option adjusts an Application.
type Option func(*Application)

// WithIO replaces stdin, stdout and the prompt output (stderr by default).
func WithIO(in io.Reader, out, prompt io.Writer) Option {
	return func(app *Application) {
		app.in = in
		app.out = out
		app.prompt = prompt
	}
}

// WithLogger replaces the logger built from Config.
func WithLogger(logger *slog.Logger) Option {
	return func(app *Application) { app.logger = logger }
}

// WithHTTPClient replaces the client built by the session manager.
func WithHTTPClient(client *http.Client) Option {
	return func(app *Application) { app.httpClient = client }
}

// New creates an Application with its cache store and event publisher connected.
func New(cfg Config, opts ...Option) (*Application, error) {
	app := &Application{
		cfg:    cfg,
		in:     os.Stdin,
		out:    os.Stdout,
		prompt: os.Stderr,
	}
	for _, opt := range opts {
		opt(app)
	}

	if app.logger == nil {
		app.logger = slogx.New(slogx.Config{
			Service: "rhsession",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		})
	}

	if err := app.initStore(context.Background()); err != nil {
		_ = app.Close()
		return nil, err
	}
	if err := app.initEvents(); err != nil {
		_ = app.Close()
		return nil, err
	}

	return app, nil
}

// initStore opens the configured cache backend, sealed when a passphrase is set.
func (app *Application) initStore(ctx context.Context) error {
	switch strings.ToLower(app.cfg.CacheDriver) {
	case "", "file":
		fs, err := sessioncache.NewFileStore(app.cfg.CacheDir)
		if err != nil {
			return fmt.Errorf("failed to initialize file cache: %w", err)
		}
		app.store = fs

	case "sqlite":
		path := app.cfg.SQLiteFile
		if path == "" {
			dir, err := sessioncache.DefaultDir()
			if err != nil {
				return err
			}
			path = filepath.Join(dir, "sessions.db")
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return fmt.Errorf("failed to create cache directory: %w", err)
		}

		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
		db, err := sqlite.Open(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize sqlite cache: %w", err)
		}
		app.store = db
		app.closers = append(app.closers, db.Close)

	case "redis":
		rs, err := redisstore.Dial(ctx, app.cfg.RedisAddr, app.cfg.RedisTTL)
		if err != nil {
			return fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		app.store = rs
		app.closers = append(app.closers, rs.Close)

	case "none":
		app.logger.Debug("session cache disabled")
		return nil

	default:
		return fmt.Errorf("unknown cache driver %q", app.cfg.CacheDriver)
	}

	if app.cfg.CachePassphrase != "" {
		app.store = sessioncache.Sealed(app.store, app.cfg.CachePassphrase)
	}

	app.logger.Debug("session cache ready", "driver", app.cfg.CacheDriver, "sealed", app.cfg.CachePassphrase != "")
	return nil
}

// initEvents connects the Redis stream publisher when an address is configured.
func (app *Application) initEvents() error {
	if app.cfg.EventsRedisAddr == "" {
		return nil
	}

	// the publisher closes client on Close
	client := redis.NewClient(&redis.Options{Addr: app.cfg.EventsRedisAddr})

	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NewStdLogger(false, false),
	)
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to create event publisher: %w", err)
	}

	app.events = sessionevents.NewWatermillPublisher(publisher, app.cfg.EventsTopic)
	app.closers = append(app.closers, app.events.Close)
	return nil
}

// Close releases the store and publisher in reverse order of creation.
func (app *Application) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

// Run executes one command.
func (app *Application) Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return ErrUsage
	}

	switch args[0] {
	case "login":
		return app.login(ctx)
	case "status":
		return app.status(ctx)
	case "get":
		if len(args) != 2 {
			return ErrUsage
		}
		return app.get(ctx, args[1])
	case "logout":
		return app.logout(ctx)
	default:
		return ErrUsage
	}
}

func (app *Application) sdkConfig() rhsdk.Config {
	cfg := rhsdk.Config{
		Username:      app.cfg.Username,
		Password:      app.cfg.Password,
		MFASecret:     app.cfg.MFASecret,
		ChallengeType: rhsdk.ChallengeType(strings.ToLower(app.cfg.ChallengeType)),
		BaseURL:       app.cfg.BaseURL,
		Timeout:       app.cfg.RequestTimeout,
		HTTPClient:    app.httpClient,
		Prompter:      rhsdk.NewPrompter(app.in, app.prompt),
		Logger:        app.logger,
	}
	if app.events != nil {
		cfg.Events = app.events
	}
	return cfg
}

// session restores the cached session, or starts a new one when there is no
// usable record or the record belongs to another account.
func (app *Application) session(ctx context.Context) (*rhsdk.SessionManager, error) {
	cfg := app.sdkConfig()

	if app.store != nil {
		m, err := rhsdk.LoadSession(ctx, app.store, app.cfg.CacheKey, cfg)
		switch {
		case err == nil && (app.cfg.Username == "" || m.Username() == app.cfg.Username):
			app.logger.Debug("session restored", "username", m.Username(), "authenticated", m.Authenticated())
			return m, nil
		case err == nil:
			app.logger.Info("cached session belongs to another account, starting fresh", "cached", m.Username())
		case errors.Is(err, rhsdk.ErrInvalidCache):
			app.logger.Debug("no usable cached session", "error", err)
		default:
			return nil, err
		}
	}

	return rhsdk.NewSessionManager(cfg)
}

func (app *Application) save(ctx context.Context, m *rhsdk.SessionManager) error {
	if app.store == nil {
		return nil
	}
	return rhsdk.SaveSession(ctx, app.store, app.cfg.CacheKey, m)
}

func (app *Application) login(ctx context.Context) error {
	m, err := app.session(ctx)
	if err != nil {
		return err
	}

	if err := app.ensureLogin(ctx, m); err != nil {
		return err
	}
	if err := app.save(ctx, m); err != nil {
		return err
	}

	fmt.Fprintf(app.out, "logged in as %s until %s\n", m.Username(), m.ExpiresAt().Format(time.RFC3339))
	return nil
}

// ensureLogin logs in, falling back to a full login when the provider has
// rejected the cached refresh token.
func (app *Application) ensureLogin(ctx context.Context, m *rhsdk.SessionManager) error {
	err := m.Login(ctx)
	if !errors.Is(err, rhsdk.ErrRefreshRejected) {
		return err
	}

	app.logger.Info("refresh token rejected, logging in again", "error", err)
	return m.Login(ctx, rhsdk.ForceLogin())
}

func (app *Application) status(ctx context.Context) error {
	m, err := app.session(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(app.out, "username: %s\n", m.Username())
	fmt.Fprintf(app.out, "state: %s\n", m.State())
	fmt.Fprintf(app.out, "authenticated: %t\n", m.Authenticated())
	if m.Credential().Valid() {
		fmt.Fprintf(app.out, "expires_at: %s\n", m.ExpiresAt().Format(time.RFC3339))
	}
	if ts, ok := app.store.(sessioncache.Timestamper); ok {
		at, err := ts.UpdatedAt(ctx, app.cfg.CacheKey)
		switch {
		case err == nil:
			fmt.Fprintf(app.out, "cached_at: %s\n", at.Format(time.RFC3339))
		case errors.Is(err, sessioncache.ErrNotFound), errors.Is(err, errors.ErrUnsupported):
		default:
			app.logger.Warn("failed to read cache timestamp", "error", err)
		}
	}
	return nil
}

func (app *Application) get(ctx context.Context, path string) error {
	m, err := app.session(ctx)
	if err != nil {
		return err
	}

	before := m.Credential()
	resp, err := m.Get(ctx, path, nil)
	if errors.Is(err, rhsdk.ErrRefreshRejected) {
		app.logger.Info("refresh token rejected, logging in again", "error", err)
		if err = m.Login(ctx, rhsdk.ForceLogin()); err == nil {
			resp, err = m.Get(ctx, path, nil)
		}
	}

	// A login or refresh may have happened even if the request itself failed.
	if cred := m.Credential(); cred.Valid() && cred != before {
		if saveErr := app.save(ctx, m); saveErr != nil {
			app.logger.Warn("failed to save session", "error", saveErr)
		}
	}
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, resp.Body, "", "  "); err != nil {
		_, err = app.out.Write(resp.Body)
		return err
	}
	pretty.WriteByte('\n')
	_, err = pretty.WriteTo(app.out)
	return err
}

func (app *Application) logout(ctx context.Context) error {
	m, err := app.session(ctx)
	if err != nil {
		return err
	}

	// the record is deleted even when the revoke fails
	logoutErr := m.Logout(ctx)
	if app.store != nil {
		if err := app.store.Delete(ctx, app.cfg.CacheKey); err != nil {
			return errors.Join(logoutErr, fmt.Errorf("failed to delete cached session: %w", err))
		}
	}
	if logoutErr != nil {
		return fmt.Errorf("cached session removed, but %w", logoutErr)
	}

	fmt.Fprintf(app.out, "logged out %s\n", m.Username())
	return nil
}
