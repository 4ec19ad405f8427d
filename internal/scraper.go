package internal

import (
	"context"
	"net/http"
	"time"
)

// Crawler is one browsing session against the listing site for a single city.
// Implementations hold their cookies and identity for their whole lifetime and
// are not safe for concurrent use.
type Crawler interface {
	City() City
	// ListMovies returns the movies listed for the interval. Pagination failures end
	// the walk early and return what was collected so far.
	ListMovies(ctx context.Context, interval DateInterval) ([]MovieThumbnail, error)
	// ListSessions returns the sessions of one movie on one day.
	ListSessions(ctx context.Context, movieBaseURL string, date time.Time) ([]Session, error)
}

// CrawlerFactory builds a ready-to-use Crawler for a city. Construction may hit the network.
type CrawlerFactory func(ctx context.Context, city City) (Crawler, error)

// GoldenCrawler extends Crawler with the ability to pull and serve golden test data.
type GoldenCrawler interface {
	Crawler
	PullGolden(ctx context.Context, goldenDir string) error
	MountGolden(ctx context.Context, goldenDir string) (http.Handler, error)
}
