package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/drewfead/afisha-watcher/internal"
)

// Registry hands out crawlers per city. Pinned crawlers win; other cities go to the default factory.
type Registry interface {
	Crawler(ctx context.Context, city internal.City) (internal.Crawler, error)
}

type CrawlerMiddleware func(internal.Crawler) internal.Crawler

type RegistryOption func(r *registry)

func NewRegistry(opts ...RegistryOption) Registry {
	r := &registry{
		pinned: make(map[internal.City]internal.Crawler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// WithCrawler pins one crawler instance to its city.
func WithCrawler(crawler internal.Crawler, middleware ...CrawlerMiddleware) RegistryOption {
	return func(r *registry) {
		city := crawler.City()
		for _, m := range middleware {
			crawler = m(crawler)
		}
		r.pinned[city] = crawler
	}
}

// WithDefault sets the factory used for cities without a pinned crawler. Middleware is applied
// to every crawler it builds.
func WithDefault(factory internal.CrawlerFactory, middleware ...CrawlerMiddleware) RegistryOption {
	return func(r *registry) {
		r.fallback = factory
		r.middleware = middleware
	}
}

// AfishaFactory builds bootstrapped afisha crawlers with opts.
func AfishaFactory(opts ...AfishaOption) internal.CrawlerFactory {
	return func(ctx context.Context, city internal.City) (internal.Crawler, error) {
		return Afisha(ctx, city, opts...)
	}
}

type registry struct {
	pinned     map[internal.City]internal.Crawler
	fallback   internal.CrawlerFactory
	middleware []CrawlerMiddleware
}

var ErrCrawlerNotFound = errors.New("crawler not found")

func (r *registry) Crawler(ctx context.Context, city internal.City) (internal.Crawler, error) {
	if crawler, ok := r.pinned[city]; ok {
		return crawler, nil
	}
	if r.fallback == nil {
		return nil, fmt.Errorf("%w: %s", ErrCrawlerNotFound, city)
	}
	crawler, err := r.fallback(ctx, city)
	if err != nil {
		return nil, err
	}
	for _, m := range r.middleware {
		crawler = m(crawler)
	}
	return crawler, nil
}
