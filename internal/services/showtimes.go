package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/drewfead/afisha-watcher/internal/scraper"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("services/showtimes")

// Showtimes answers session queries from the cache and crawls only the days it is missing.
type Showtimes interface {
	ListSessions(ctx context.Context, req internal.ListSessionsRequest) ([]internal.Session, error)
}

type showtimesService struct {
	crawlers internal.CrawlerFactory
	cache    internal.SessionCache
}

func ShowtimesService(crawlers internal.CrawlerFactory, cache internal.SessionCache) Showtimes {
	return &showtimesService{
		crawlers: crawlers,
		cache:    cache,
	}
}

// UpcomingDays is the interval of days starting today in the city's zone.
func UpcomingDays(city internal.City, now time.Time, days int) internal.DateInterval {
	start := internal.Today(now, city.Location())
	if days < 1 {
		days = 1
	}
	return internal.DateInterval{Start: start, End: start.AddDate(0, 0, days-1)}
}

// ListSessions returns every session of the city on the requested days, sorted by start time.
// Days already cached cost no network calls; when every day is cached no crawler is built.
// Missing days are crawled one contiguous range at a time and written to the cache per session day.
func (s *showtimesService) ListSessions(ctx context.Context, req internal.ListSessionsRequest) ([]internal.Session, error) {
	ctx, span := tracer.Start(ctx, "showtimes:ListSessions")
	defer span.End()
	if req.City == internal.CityUnknown {
		return nil, internal.ErrUnknownCity
	}
	interval, err := internal.NewDateInterval(req.Interval.Start, req.Interval.End)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("city", req.City.String()),
		attribute.String("interval", interval.String()),
	)

	known := make(map[time.Time]bool)
	for _, day := range s.cache.CachedDates(ctx, req.City) {
		known[day] = true
	}
	var cachedDays, missing []time.Time
	for _, day := range interval.DatesInRange() {
		if known[day] {
			cachedDays = append(cachedDays, day)
		} else {
			missing = append(missing, day)
		}
	}
	out := s.cache.GetMany(ctx, req.City, cachedDays)
	span.SetAttributes(attribute.Int("cached_days", len(cachedDays)), attribute.Int("missing_days", len(missing)))

	if len(missing) > 0 {
		fresh, err := s.fill(ctx, req.City, missing)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to fill missing days")
			return nil, err
		}
		for _, session := range fresh {
			if interval.Contains(session.Date()) {
				out = append(out, session)
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].DateTime.Before(out[j].DateTime) })
	slog.Info("list-sessions",
		"city", req.City,
		"interval", interval,
		"cached_days", len(cachedDays),
		"crawled_days", len(missing),
		"sessions", len(out),
	)
	return out, nil
}

// fill crawls the missing days and caches them. A range is written only once all of its movies
// were visited, so an interrupted run never caches a half-crawled day.
func (s *showtimesService) fill(ctx context.Context, city internal.City, missing []time.Time) ([]internal.Session, error) {
	crawler, err := s.crawlers(ctx, city)
	if err != nil {
		return nil, fmt.Errorf("failed to start crawler for %s: %w", city, err)
	}

	wanted := make(map[time.Time]bool, len(missing))
	for _, day := range missing {
		wanted[day] = true
	}

	var out []internal.Session
	for _, span := range internal.MergeIntoContiguousRanges(missing) {
		movies, err := crawler.ListMovies(ctx, span)
		if err != nil {
			return nil, fmt.Errorf("failed to list movies for %s %s: %w", city, span, err)
		}

		byDay := make(map[time.Time][]internal.Session)
		for _, movie := range movies {
			base := scraper.StripDateSegment(movie.ScheduleLink)
			for _, day := range span.DatesInRange() {
				if !wanted[day] {
					continue
				}
				sessions, err := crawler.ListSessions(ctx, base, day)
				if err != nil {
					return nil, fmt.Errorf("failed to list sessions for %s on %s: %w",
						movie.Name, day.Format(time.DateOnly), err)
				}
				for _, session := range sessions {
					session.ImageURL = movie.ImageLink
					byDay[session.Date()] = append(byDay[session.Date()], session)
				}
			}
		}

		days := make([]time.Time, 0, len(byDay))
		for day := range byDay {
			days = append(days, day)
		}
		sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
		for _, day := range days {
			s.cache.Put(ctx, city, day, byDay[day])
			out = append(out, byDay[day]...)
		}
		slog.Debug("list-sessions: crawled range", "city", city, "range", span, "movies", len(movies), "days_with_sessions", len(days))
	}
	return out, nil
}
