package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
)

// noneCrawler never touches the network; used for --offline runs that only read the cache.
type noneCrawler struct {
	city internal.City
}

func (s *noneCrawler) City() internal.City {
	return s.city
}

func (s *noneCrawler) ListMovies(_ context.Context, interval internal.DateInterval) ([]internal.MovieThumbnail, error) {
	slog.Debug("list-movies", "crawler", "none", "city", s.city, "interval", interval)
	return nil, nil
}

func (s *noneCrawler) ListSessions(_ context.Context, movieBaseURL string, date time.Time) ([]internal.Session, error) {
	slog.Debug("list-sessions", "crawler", "none", "movie", movieBaseURL, "date", date.Format(time.DateOnly))
	return nil, nil
}

func None(city internal.City) internal.Crawler {
	return &noneCrawler{city: city}
}

// NoneFactory builds offline crawlers for any city.
func NoneFactory(_ context.Context, city internal.City) (internal.Crawler, error) {
	return None(city), nil
}
