package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"eventhub/internal/app"
	"eventhub/internal/config"
	"eventhub/internal/db"
	"eventhub/internal/domain"
	"eventhub/internal/repo"
	"eventhub/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "ehub",
	Short: "Eventhub CLI",
	Long: `Eventhub collects city events from several listing sites into one catalog.
- Sources: the seed list plus Eventbrite, Timeout, City of Sydney and Broadsheet adapters.
- Runs: each source run fetches a batch, merges it into the catalog and retires events the source no longer lists.
- Status: events move new -> updated -> inactive, or become imported when a curator picks them.
- Run logs: every run leaves a log with found/new/updated/inactive counts, see 'ehub logs'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(viper.GetString("env-file"))
		zlog.Logger = newLogger()
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("EVENTHUB")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	pf := rootCmd.PersistentFlags()
	pf.StringP("workspace", "w", ".", "workspace directory")
	pf.String("config", "", "config file (default <workspace>/eventhub.yml)")
	pf.String("env-file", ".env", "dotenv file loaded before reading the environment")
	pf.Bool("json", false, "output JSON")
	pf.Bool("log-json", false, "log JSON lines instead of console output")
	pf.String("log-level", "info", "log level")
	pf.String("db-driver", "", "database driver override (sqlite or postgres)")
	pf.String("db-dsn", "", "database DSN override")
	pf.String("actor", "local-user", "curator identity recorded on imports")
	for _, name := range []string{"workspace", "config", "env-file", "json", "log-json", "log-level", "db-driver", "db-dsn", "actor"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(scrapeCmd())
	rootCmd.AddCommand(sourcesCmd())
	rootCmd.AddCommand(logsCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(keysCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(remoteCmd())
}

func newLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(viper.GetString("log-level"))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	var out io.Writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	if viper.GetBool("log-json") {
		out = os.Stderr
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

func scrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape [source]",
		Short: "Run every source, or one source by slug or name",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				var sums []domain.RunSummary
				if len(args) == 1 {
					sum, err := a.Engine.RunSingle(ctx, args[0])
					if err != nil {
						return err
					}
					sums = []domain.RunSummary{sum}
				} else {
					all, err := a.Engine.RunAll(ctx)
					if err != nil {
						return err
					}
					sums = all
				}
				return printSummaries(sums)
			})
		},
	}
}

func sourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List enabled sources in run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				type row struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				}
				var rows []row
				for _, s := range a.Engine.Sources.All() {
					rows = append(rows, row{ID: string(s.ID()), Name: s.Name()})
				}
				if viper.GetBool("json") {
					return printJSON(rows)
				}
				tw := newTable("ID", "Name")
				for _, r := range rows {
					tw.AppendRow(table.Row{r.ID, r.Name})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func logsCmd() *cobra.Command {
	var source string
	var n int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent run logs, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if src, ok := a.Engine.Sources.Lookup(source); ok {
					source = src.Name()
				}
				logs, err := a.Repo.ListRunLogs(ctx, source, n)
				if err != nil {
					return err
				}
				return printRunLogs(logs)
			})
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "source slug or name")
	cmd.Flags().IntVarP(&n, "limit", "n", 20, "number of logs")
	return cmd
}

func eventsCmd() *cobra.Command {
	evt := &cobra.Command{Use: "events", Short: "Browse and curate the event catalog"}
	evt.AddCommand(eventsListCmd())
	evt.AddCommand(eventsShowCmd())
	evt.AddCommand(eventsImportCmd())
	evt.AddCommand(eventsHistoryCmd())
	return evt
}

func eventsListCmd() *cobra.Command {
	var f repo.EventFilters
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog events ordered by start time",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if f.DateFrom, err = parseDateFlag("from", from); err != nil {
				return err
			}
			if f.DateTo, err = parseDateFlag("to", to); err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if f.City == "" {
					f.City = a.Config.City.Name
				}
				items, total, err := a.Repo.ListEvents(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"events": items, "total": total})
				}
				tw := newTable("ID", "Title", "Starts", "Venue", "Status", "Source")
				for _, ev := range items {
					tw.AppendRow(table.Row{ev.ID, ev.Title, formatTime(ev.StartTime), ev.VenueName, ev.Status, ev.SourceName})
				}
				tw.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d", len(items), total)})
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.City, "city", "", "city (default from config)")
	cmd.Flags().StringVar(&f.Search, "search", "", "free text over title, description and venue")
	cmd.Flags().StringVar(&f.Status, "status", "", "status filter")
	cmd.Flags().StringVar(&f.Category, "category", "", "category filter")
	cmd.Flags().StringVar(&from, "from", "", "earliest start (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "latest start (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().BoolVar(&f.IncludeInactive, "include-inactive", false, "include retired events")
	cmd.Flags().IntVar(&f.Limit, "limit", 50, "page size")
	cmd.Flags().IntVar(&f.Offset, "offset", 0, "rows to skip")
	return cmd
}

func eventsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				ev, err := a.Repo.GetEvent(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(ev)
			})
		},
	}
}

func eventsImportCmd() *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:   "import <id>",
		Short: "Mark an event as imported",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				ev, err := a.Engine.ImportEvent(ctx, args[0], viper.GetString("actor"), notes)
				if err != nil {
					return err
				}
				return printJSON(ev)
			})
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "import notes")
	return cmd
}

func eventsHistoryCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "history <id>",
		Short: "Show lifecycle history of an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if _, err := a.Repo.GetEvent(ctx, args[0]); err != nil {
					return err
				}
				items, err := a.Repo.ListHistory(ctx, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("When", "Type", "Actor", "Payload")
				for _, h := range items {
					tw.AppendRow(table.Row{h.TS.Format(time.RFC3339), h.Type, h.ActorID, h.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&n, "limit", "n", 50, "number of entries")
	return cmd
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Seed an empty catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				sum, ran, err := a.Engine.Init(ctx)
				if err != nil {
					return err
				}
				if !ran {
					n, err := a.Repo.CountEvents(ctx)
					if err != nil {
						return err
					}
					fmt.Printf("Already initialized (%d events)\n", n)
					return nil
				}
				return printSummaries([]domain.RunSummary{sum})
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var interval time.Duration
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), false, func(ctx context.Context, a *app.App) error {
				log := zlog.Logger
				if !cmd.Flags().Changed("addr") {
					addr = a.Config.Server.Addr
				}
				if !cmd.Flags().Changed("base-path") && a.Config.Server.BasePath != "" {
					basePath = a.Config.Server.BasePath
				}
				if !cmd.Flags().Changed("interval") {
					interval = a.Config.Interval()
				}
				authCfg := server.AuthConfig{JWTSecret: a.Config.Auth.JWTSecret, CronSecret: a.Config.Auth.CronSecret}
				if authCfg.JWTSecret == "" {
					log.Warn().Msg("no jwt secret configured; curators must use API keys")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					Repo:     a.Repo,
					Metrics:  a.Metrics,
					BasePath: basePath,
					City:     a.Config.City.Name,
					Auth:     authCfg,
					Log:      log,
				})
				if err != nil {
					return err
				}
				if interval > 0 {
					go a.Engine.RunEvery(ctx, interval, func(sums []domain.RunSummary, err error) {
						if err != nil {
							log.Error().Err(err).Msg("scheduled run")
							return
						}
						log.Info().Int("sources", len(sums)).Msg("scheduled run complete")
					})
					log.Info().Dur("interval", interval).Msg("scheduler started")
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info().Str("addr", addr).Str("base_path", basePath).Msg("serving eventhub API (OpenAPI at /openapi.json, Swagger UI at /docs)")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().DurationVar(&interval, "interval", 0, "run every source on this interval (0 disables)")
	return cmd
}

func keysCmd() *cobra.Command {
	keys := &cobra.Command{Use: "keys", Short: "Manage curator API keys"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for --actor; the key is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := newAPIKey()
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				key := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   viper.GetString("actor"),
					Name:      name,
					KeyHash:   repo.HashAPIKey(secret),
					CreatedAt: time.Now().UTC(),
				}
				if err := a.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": secret})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")

	var all bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				actor := viper.GetString("actor")
				if all {
					actor = ""
				}
				items, err := a.Repo.ListAPIKeys(ctx, actor)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Actor", "Name", "Created")
				for _, k := range items {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt.Format(time.RFC3339)})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&all, "all", false, "list keys of every actor")

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), true, func(ctx context.Context, a *app.App) error {
				if err := a.Repo.DeleteAPIKey(ctx, args[0]); err != nil {
					return err
				}
				fmt.Println("revoked", args[0])
				return nil
			})
		},
	}

	keys.AddCommand(create, list, revoke)
	return keys
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for --actor using the configured jwt secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := server.SignToken(cfg.Auth.JWTSecret, viper.GetString("actor"), ttl, time.Now())
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 never expires)")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write the default eventhub.yml into the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate the workspace config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fmt.Printf("config ok: %d sources enabled\n", len(cfg.EnabledSources()))
			return nil
		},
	})
	return cfgCmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if path := viper.GetString("config"); path != "" {
		cfg, err = config.FromFile(path)
	} else {
		cfg, err = config.Load(viper.GetString("workspace"))
	}
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("db-driver"); v != "" {
		cfg.Database.Driver = v
	}
	if v := viper.GetString("db-dsn"); v != "" {
		cfg.Database.DSN = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("cron-secret"); v != "" {
		cfg.Auth.CronSecret = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withApp(ctx context.Context, offline bool, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, app.Options{
		Workspace: viper.GetString("workspace"),
		Config:    cfg,
		Log:       zlog.Logger,
		Offline:   offline,
	})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newAPIKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "ehk_" + hex.EncodeToString(buf), nil
}

func parseDateFlag(name, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, v); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("invalid --%s %q", name, v)
}

func newTable(headers ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(headers))
	return tw
}

func printSummaries(sums []domain.RunSummary) error {
	if viper.GetBool("json") {
		return printJSON(sums)
	}
	tw := newTable("Source", "Found", "New", "Updated", "Inactive", "Error")
	for _, s := range sums {
		tw.AppendRow(table.Row{s.Source, s.Found, s.New, s.Updated, s.Inactive, s.Error})
	}
	tw.Render()
	return nil
}

func printRunLogs(logs []domain.RunLog) error {
	if viper.GetBool("json") {
		return printJSON(logs)
	}
	tw := newTable("Started", "Source", "Status", "Found", "New", "Updated", "Inactive", "Error")
	for _, l := range logs {
		tw.AppendRow(table.Row{
			l.StartedAt.Format(time.RFC3339), l.SourceName, l.Status,
			l.Counts.Found, l.Counts.New, l.Counts.Updated, l.Counts.Inactive, l.ErrorMessage,
		})
	}
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("Mon 2 Jan 15:04")
}
