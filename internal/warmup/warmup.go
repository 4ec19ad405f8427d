package warmup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/drewfead/afisha-watcher/internal/services"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const DefaultDays = 7

var ErrInvalidSchedule = errors.New("invalid warm-up schedule")

// Result is the outcome of warming one city.
type Result struct {
	City     internal.City
	Interval internal.DateInterval
	Sessions int
	Err      error
}

type Runner struct {
	showtimes services.Showtimes
	days      int
	now       func() time.Time
}

type Option func(*Runner)

func WithDays(days int) Option {
	return func(r *Runner) {
		if days > 0 {
			r.days = days
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func New(showtimes services.Showtimes, opts ...Option) *Runner {
	r := &Runner{
		showtimes: showtimes,
		days:      DefaultDays,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run fills the cache for the upcoming days of each city, one city after another.
// A failing city does not stop the rest; all failures are joined into the returned error.
func (r *Runner) Run(ctx context.Context, cities []internal.City) ([]Result, error) {
	runID := uuid.New()
	results := make([]Result, 0, len(cities))
	var errs []error
	for _, city := range cities {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		res := Result{City: city, Interval: services.UpcomingDays(city, r.now(), r.days)}
		sessions, err := r.showtimes.ListSessions(ctx, internal.ListSessionsRequest{City: city, Interval: res.Interval})
		if err != nil {
			res.Err = err
			errs = append(errs, fmt.Errorf("%s: %w", city, err))
			slog.Warn("warmup: city failed", "run", runID, "city", city, "error", err)
		} else {
			res.Sessions = len(sessions)
			slog.Info("warmup: city done", "run", runID, "city", city, "interval", res.Interval, "sessions", len(sessions))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// Schedule runs the warm-up on a standard five-field cron spec until ctx is done.
// A tick that fires while the previous run is still going is skipped.
func (r *Runner) Schedule(ctx context.Context, spec string, cities []internal.City) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	logger := cronLogger{}
	c := cron.New(cron.WithLogger(logger), cron.WithChain(cron.SkipIfStillRunning(logger)))
	if _, err := c.AddFunc(spec, func() {
		if _, err := r.Run(ctx, cities); err != nil {
			slog.Warn("warmup: scheduled run finished with errors", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidSchedule, spec, err)
	}
	c.Start()
	slog.Info("warmup: scheduled", "spec", spec, "cities", len(cities))

	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	slog.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	slog.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
}
