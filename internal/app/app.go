package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"eventhub/internal/archive"
	"eventhub/internal/config"
	"eventhub/internal/db"
	"eventhub/internal/engine"
	"eventhub/internal/lock"
	"eventhub/internal/metrics"
	"eventhub/internal/migrate"
	"eventhub/internal/notify"
	"eventhub/internal/repo"
	"eventhub/internal/sources"
)

// App is the wired runtime shared by the CLI and the HTTP server.
type App struct {
	Config  *config.Config
	DB      *sql.DB
	Dialect db.Dialect
	Repo    repo.Repo
	Engine  engine.Engine
	Metrics *metrics.Recorder

	closers []func()
}

type Options struct {
	Workspace string
	Config    *config.Config
	Log       zerolog.Logger
	// Offline skips notifier and archive connections. Read-only commands use it.
	Offline bool
	Now     func() time.Time
}

// Build opens and migrates the store, then assembles the engine from config.
func Build(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	conn, dialect, err := db.Open(db.Config{Driver: cfg.Database.Driver, Workspace: opts.Workspace, DSN: cfg.Database.DSN})
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: conn, Dialect: dialect, closers: []func(){func() { conn.Close() }}}
	if err := migrate.Migrate(conn, dialect); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a.Repo = repo.New(conn, dialect)

	loc := sources.LoadLocation(cfg.City.Timezone)
	registry, err := sources.Build(sources.Options{
		City:     cfg.City.Name,
		Location: loc,
		Fetcher: sources.Fetcher{
			UserAgent:      cfg.Scrape.UserAgent,
			RequestTimeout: cfg.RequestTimeout(),
			Limiter:        sources.NewLimiter(cfg.Scrape.RatePerSecond, cfg.Scrape.Burst),
			Transport:      otelhttp.NewTransport(http.DefaultTransport),
		},
		URLs: cfg.SourceURLs(),
		Now:  opts.Now,
	}, cfg.EnabledSources())
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Metrics = metrics.New()
	e := engine.New(a.Repo, registry)
	e.Locker = lock.For(conn, dialect)
	e.Metrics = a.Metrics
	e.Log = opts.Log
	e.RunTimeout = cfg.RunTimeout()
	if opts.Now != nil {
		e.Now = opts.Now
	}
	if !opts.Offline {
		n, err := a.notifiers(cfg, opts.Log)
		if err != nil {
			a.Close()
			return nil, err
		}
		if len(n) > 0 {
			e.Notifier = n
		}
		if cfg.Scrape.Archive {
			store, err := archive.New(ctx, archive.Config{
				Endpoint:  cfg.Archive.Endpoint,
				AccessKey: cfg.Archive.AccessKey,
				SecretKey: cfg.Archive.SecretKey,
				Bucket:    cfg.Archive.Bucket,
				UseSSL:    cfg.Archive.UseSSL,
			}, opts.Log)
			if err != nil {
				a.Close()
				return nil, err
			}
			e.Archive = store
		}
	}
	a.Engine = e
	return a, nil
}

func (a *App) notifiers(cfg *config.Config, log zerolog.Logger) (notify.Multi, error) {
	var out notify.Multi
	for _, hook := range cfg.Notify.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		out = append(out, notify.Webhook{
			URL:     hook.URL,
			Secret:  hook.Secret,
			Events:  hook.Events,
			Timeout: time.Duration(hook.TimeoutSeconds) * time.Second,
		})
	}
	if url := cfg.Notify.NATS.URL; url != "" {
		n, err := notify.DialNATS(url, cfg.Notify.NATS.Prefix)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, n.Close)
		out = append(out, n)
		log.Info().Str("url", url).Msg("publishing run events to nats")
	}
	if url := cfg.Notify.AMQP.URL; url != "" {
		q, err := notify.DialAMQP(url, cfg.Notify.AMQP.Exchange)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, q.Close)
		out = append(out, q)
		log.Info().Str("exchange", cfg.Notify.AMQP.Exchange).Msg("publishing run events to amqp")
	}
	return out, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
