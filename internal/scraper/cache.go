package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cached returns middleware that memoizes ListMovies results (LRU+TTL). Every crawler wrapped by
// the same middleware value shares one cache, so a listing walked by one crawler is reused by the
// next crawler built for the same city. Apply it through the registry:
//
//	scraper.NewRegistry(scraper.WithDefault(factory, scraper.Cached(64, 10*time.Minute)))
//
// maxEntries is the LRU size; ttl is how long entries stay valid (zero = no expiration).
// ListSessions is never cached here; the session cache owns that.
func Cached(maxEntries int, ttl time.Duration) CrawlerMiddleware {
	if maxEntries <= 0 {
		maxEntries = 64
	}
	cache := expirable.NewLRU[string, []internal.MovieThumbnail](maxEntries, nil, ttl)
	return func(inner internal.Crawler) internal.Crawler {
		if inner == nil {
			return nil
		}
		return &cachingCrawler{Crawler: inner, cache: cache}
	}
}

// cachingCrawler wraps a Crawler and caches listing walks by city and interval.
type cachingCrawler struct {
	internal.Crawler
	cache *expirable.LRU[string, []internal.MovieThumbnail]
}

func listingCacheKey(city internal.City, interval internal.DateInterval) string {
	return fmt.Sprintf("%s|%s", city, interval)
}

func (c *cachingCrawler) ListMovies(ctx context.Context, interval internal.DateInterval) ([]internal.MovieThumbnail, error) {
	key := listingCacheKey(c.City(), interval)
	if list, ok := c.cache.Get(key); ok {
		slog.Debug("scraper: listing cache hit", "key", key, "movies", len(list))
		out := make([]internal.MovieThumbnail, len(list))
		copy(out, list)
		return out, nil
	}
	list, err := c.Crawler.ListMovies(ctx, interval)
	if err != nil {
		return list, err
	}
	// Partial walks still come back without error; an empty one is not worth remembering.
	if len(list) > 0 {
		stored := make([]internal.MovieThumbnail, len(list))
		copy(stored, list)
		c.cache.Add(key, stored)
	}
	return list, nil
}
