package root

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/drewfead/afisha-watcher/internal/browser"
	"github.com/drewfead/afisha-watcher/internal/config"
	"github.com/drewfead/afisha-watcher/internal/retry"
	"github.com/drewfead/afisha-watcher/internal/scraper"
	"github.com/drewfead/afisha-watcher/internal/services"
	"github.com/drewfead/afisha-watcher/internal/sessioncache"
	"github.com/drewfead/afisha-watcher/internal/store"
	"github.com/drewfead/afisha-watcher/internal/warmup"
	"github.com/lmittmann/tint"
	"github.com/urfave/cli/v3"
)

const envPrefix = "AFISHA_WATCHER_"

// RootOption configures the root command (e.g. for tests).
type RootOption func(*rootConfig)

type rootConfig struct {
	crawlers internal.CrawlerFactory
	store    store.Store
	now      func() time.Time
	stdout   io.Writer
	stderr   io.Writer
}

// WithCrawlerFactory replaces the crawler construction. Use in tests to point crawlers at
// golden HTTP servers instead of the live site.
func WithCrawlerFactory(factory internal.CrawlerFactory) RootOption {
	return func(c *rootConfig) {
		c.crawlers = factory
	}
}

// WithStore injects the cache backend. The command does not close an injected store.
func WithStore(s store.Store) RootOption {
	return func(c *rootConfig) {
		c.store = s
	}
}

func WithClock(now func() time.Time) RootOption {
	return func(c *rootConfig) {
		if now != nil {
			c.now = now
		}
	}
}

func WithOutput(stdout, stderr io.Writer) RootOption {
	return func(c *rootConfig) {
		if stdout != nil {
			c.stdout = stdout
		}
		if stderr != nil {
			c.stderr = stderr
		}
	}
}

// app is everything a subcommand needs, built once in the root Before hook.
type app struct {
	settings  config.Settings
	cache     *sessioncache.Cache
	showtimes services.Showtimes
	closers   []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

func envVars(name string) cli.ValueSourceChain {
	return cli.EnvVars(envPrefix + name)
}

func Root(ctx context.Context, opts ...RootOption) (*cli.Command, error) {
	cfg := &rootConfig{
		now:    time.Now,
		stdout: os.Stdout,
		stderr: os.Stderr,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	a := &app{}
	rootCmd := &cli.Command{
		Name:      "afisha-watcher",
		Usage:     "crawl and cache afisha.ru movie showtimes",
		Writer:    cfg.stdout,
		ErrWriter: cfg.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Usage: "json5 config file; <name>.local.json5 is merged on top", Value: config.DefaultPath, Sources: envVars("CONFIG")},
			&cli.StringFlag{Name: "cache-dir", Usage: "badger directory for the session cache; empty keeps it in memory", Sources: envVars("CACHE_DIR")},
			&cli.StringFlag{Name: "origin", Usage: "site origin", Sources: envVars("ORIGIN")},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Sources: envVars("LOG_LEVEL")},
			&cli.BoolFlag{Name: "headless", Usage: "bootstrap cookies with a headless browser", Sources: envVars("HEADLESS")},
			&cli.BoolFlag{Name: "offline", Usage: "never touch the network; only cached days are returned"},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			return ctx, a.setup(cmd, cfg)
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			return a.Close()
		},
		Commands: []*cli.Command{
			listSessionsCommand(a, cfg),
			warmCommand(a, cfg),
			cacheCommand(a),
		},
	}
	return rootCmd, nil
}

// setup layers the config file, env and flags, and wires the store, cache and crawlers.
func (a *app) setup(cmd *cli.Command, cfg *rootConfig) error {
	file, err := config.Read(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if cmd.IsSet("cache-dir") {
		file.CacheDir = cmd.String("cache-dir")
	}
	if cmd.IsSet("origin") {
		file.Origin = cmd.String("origin")
	}
	if cmd.IsSet("log-level") {
		file.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("headless") {
		headless := cmd.Bool("headless")
		file.Headless = &headless
	}
	settings, err := file.Resolve()
	if err != nil {
		return err
	}
	a.settings = settings

	slog.SetDefault(slog.New(tint.NewHandler(cfg.stderr, &tint.Options{
		Level:      settings.LogLevel,
		TimeFormat: time.Kitchen,
	})))

	s := cfg.store
	if s == nil {
		if settings.CacheDir == "" {
			s, err = store.Memory(settings.CacheMaxEntries)
		} else {
			s, err = store.Badger(settings.CacheDir)
		}
		if err != nil {
			return fmt.Errorf("failed to open session cache: %w", err)
		}
		a.closers = append(a.closers, s)
	}
	a.cache = sessioncache.New(s,
		sessioncache.WithMinTTL(settings.CacheMinTTL),
		sessioncache.WithClock(cfg.now),
	)

	crawlers := cfg.crawlers
	switch {
	case cmd.Bool("offline"):
		crawlers = scraper.NoneFactory
	case crawlers == nil:
		crawlers = a.afishaCrawlers()
	}
	a.showtimes = services.ShowtimesService(crawlers, a.cache)
	return nil
}

func (a *app) afishaCrawlers() internal.CrawlerFactory {
	s := a.settings
	opts := []scraper.AfishaOption{
		scraper.AfishaWithBaseURL(s.Origin),
		scraper.AfishaWithTimeout(s.RequestTimeout),
		scraper.AfishaWithPageDelay(s.PageDelayMin, s.PageDelayMax),
		scraper.AfishaWithRetrier(retry.New(
			retry.WithInitialDelay(s.RetryInitialDelay),
			retry.WithBudget(s.RetryBudget),
		)),
	}
	if s.Headless {
		b := browser.Headless()
		a.closers = append(a.closers, b)
		opts = append(opts, scraper.AfishaWithBrowser(b))
	}
	registry := scraper.NewRegistry(
		scraper.WithDefault(scraper.AfishaFactory(opts...), scraper.Cached(64, 5*time.Minute)),
	)
	return registry.Crawler
}

func parseCityFlag(cmd *cli.Command) (internal.City, error) {
	return internal.ParseCity(cmd.String("city"))
}

func listSessionsCommand(a *app, cfg *rootConfig) *cli.Command {
	return &cli.Command{
		Name:  "list-sessions",
		Usage: "list every session of a city between two days",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "city", Usage: "city name or url code", Required: true},
			&cli.StringFlag{Name: "from", Usage: "first day, yyyy-MM-dd (default: today in the city)"},
			&cli.StringFlag{Name: "to", Usage: "last day, yyyy-MM-dd (default: --from)"},
			&cli.StringFlag{Name: "format", Usage: "dense, json, yaml or table", Value: "dense"},
			&cli.StringFlag{Name: "output", Usage: "write to this file instead of stdout"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			city, err := parseCityFlag(cmd)
			if err != nil {
				return err
			}
			interval, err := intervalFromFlags(cmd, city, cfg.now())
			if err != nil {
				return err
			}
			format, err := outputFormatNamed(cmd.String("format"))
			if err != nil {
				return err
			}

			sessions, err := a.showtimes.ListSessions(ctx, internal.ListSessionsRequest{City: city, Interval: interval})
			if err != nil {
				return err
			}
			slog.Debug("list-sessions: done", "city", city, "interval", interval, "sessions", len(sessions))

			w := cmd.Root().Writer
			if path := cmd.String("output"); path != "" {
				f, err := os.Create(path)
				if err != nil {
					return fmt.Errorf("failed to create output file: %w", err)
				}
				defer f.Close()
				w = f
			}
			return format.Format(w, sessions, city.Location())
		},
	}
}

func intervalFromFlags(cmd *cli.Command, city internal.City, now time.Time) (internal.DateInterval, error) {
	from := internal.Today(now, city.Location())
	if s := cmd.String("from"); s != "" {
		day, err := internal.ParseDate(s)
		if err != nil {
			return internal.DateInterval{}, fmt.Errorf("invalid --from: %w", err)
		}
		from = day
	}
	to := from
	if s := cmd.String("to"); s != "" {
		day, err := internal.ParseDate(s)
		if err != nil {
			return internal.DateInterval{}, fmt.Errorf("invalid --to: %w", err)
		}
		to = day
	}
	return internal.NewDateInterval(from, to)
}

func warmCommand(a *app, cfg *rootConfig) *cli.Command {
	return &cli.Command{
		Name:  "warm",
		Usage: "fill the cache for the upcoming days of each city",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{Name: "city", Usage: "city to warm, repeatable (default: cities from config)"},
			&cli.IntFlag{Name: "days", Usage: "number of days starting today (default: warmDays from config)"},
			&cli.StringFlag{Name: "schedule", Usage: "cron spec; keep running and warm on this schedule"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cities := a.settings.Cities
			if names := cmd.StringSlice("city"); len(names) > 0 {
				cities = cities[:0:0]
				for _, name := range names {
					city, err := internal.ParseCity(name)
					if err != nil {
						return err
					}
					cities = append(cities, city)
				}
			}
			days := a.settings.WarmDays
			if cmd.IsSet("days") {
				days = int(cmd.Int("days"))
			}
			runner := warmup.New(a.showtimes, warmup.WithDays(days), warmup.WithClock(cfg.now))

			schedule := a.settings.WarmSchedule
			if cmd.IsSet("schedule") {
				schedule = cmd.String("schedule")
			}
			if schedule != "" {
				return runner.Schedule(ctx, schedule, cities)
			}

			results, err := runner.Run(ctx, cities)
			for _, res := range results {
				status := fmt.Sprintf("%d sessions", res.Sessions)
				if res.Err != nil {
					status = "failed: " + res.Err.Error()
				}
				fmt.Fprintf(cmd.Root().Writer, "%-14s %s  %s\n", res.City, res.Interval, status)
			}
			return err
		},
	}
}

func cacheCommand(a *app) *cli.Command {
	cityFlag := func() cli.Flag {
		return &cli.StringFlag{Name: "city", Usage: "city name or url code", Required: true}
	}
	return &cli.Command{
		Name:  "cache",
		Usage: "inspect or drop cached days",
		Commands: []*cli.Command{
			{
				Name:  "size",
				Usage: "number of cached days for a city",
				Flags: []cli.Flag{cityFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					city, err := parseCityFlag(cmd)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.Root().Writer, "%d\n", a.cache.Size(ctx, city))
					return nil
				},
			},
			{
				Name:  "dates",
				Usage: "cached days for a city, ascending",
				Flags: []cli.Flag{cityFlag()},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					city, err := parseCityFlag(cmd)
					if err != nil {
						return err
					}
					for _, day := range a.cache.CachedDates(ctx, city) {
						fmt.Fprintln(cmd.Root().Writer, day.Format(time.DateOnly))
					}
					return nil
				},
			},
			{
				Name:  "invalidate",
				Usage: "drop one cached day, or every day of the city when --date is omitted",
				Flags: []cli.Flag{cityFlag(), &cli.StringFlag{Name: "date", Usage: "yyyy-MM-dd"}},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					city, err := parseCityFlag(cmd)
					if err != nil {
						return err
					}
					if s := cmd.String("date"); s != "" {
						day, err := internal.ParseDate(s)
						if err != nil {
							return fmt.Errorf("invalid --date: %w", err)
						}
						a.cache.Invalidate(ctx, city, day)
						return nil
					}
					a.cache.InvalidateCity(ctx, city)
					return nil
				},
			},
		},
	}
}
