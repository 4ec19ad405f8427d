package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math/rand/v2"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/drewfead/afisha-watcher/internal"
	"github.com/drewfead/afisha-watcher/internal/browser"
	"github.com/drewfead/afisha-watcher/internal/httputil"
	"github.com/drewfead/afisha-watcher/internal/identity"
	"github.com/drewfead/afisha-watcher/internal/retry"
	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("scraper/afisha")

const (
	DefaultOrigin         = "https://www.afisha.ru"
	DefaultRequestTimeout = 30 * time.Second
	DefaultMinPageDelay   = 3 * time.Second
	DefaultMaxPageDelay   = 7 * time.Second
)

var ErrBootstrap = errors.New("crawler bootstrap failed")

// StatusError is an HTTP response the crawler could not use.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Retryable reports whether the origin may answer differently later (429 and 5xx).
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

type afishaCrawler struct {
	city      internal.City
	origin    string
	crawlID   uuid.UUID
	profile   identity.Profile
	transport http.RoundTripper
	timeout   time.Duration
	retrier   *retry.Retrier
	minDelay  time.Duration
	maxDelay  time.Duration
	sleep     retry.SleepFunc
	browser   browser.Interface

	jar  http.CookieJar
	html *resty.Client
	xhr  *resty.Client
}

// AfishaOption applies configuration to an afisha crawler.
type AfishaOption func(*afishaCrawler)

// AfishaWithBaseURL sets the site origin (e.g. httptest.Server.URL in tests).
func AfishaWithBaseURL(origin string) AfishaOption {
	return func(c *afishaCrawler) {
		if origin != "" {
			c.origin = strings.TrimSuffix(origin, "/")
		}
	}
}

// AfishaWithClient routes requests through client's transport (e.g. httptest.Server.Client() in tests).
// The crawler still owns its cookie jar and redirect policy.
func AfishaWithClient(client *http.Client) AfishaOption {
	return func(c *afishaCrawler) {
		if client == nil {
			return
		}
		c.transport = client.Transport
		if client.Timeout > 0 {
			c.timeout = client.Timeout
		}
	}
}

func AfishaWithRetrier(r *retry.Retrier) AfishaOption {
	return func(c *afishaCrawler) {
		if r != nil {
			c.retrier = r
		}
	}
}

// AfishaWithPageDelay sets the bounds of the random pause between page fetches.
func AfishaWithPageDelay(minDelay, maxDelay time.Duration) AfishaOption {
	return func(c *afishaCrawler) {
		c.minDelay, c.maxDelay = minDelay, maxDelay
	}
}

func AfishaWithSleep(sleep retry.SleepFunc) AfishaOption {
	return func(c *afishaCrawler) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

func AfishaWithTimeout(d time.Duration) AfishaOption {
	return func(c *afishaCrawler) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// AfishaWithProfile pins the identity instead of drawing one from the pool.
func AfishaWithProfile(p identity.Profile) AfishaOption {
	return func(c *afishaCrawler) {
		c.profile = p
	}
}

// AfishaWithBrowser bootstraps cookies through a real browser instead of a plain GET.
func AfishaWithBrowser(b browser.Interface) AfishaOption {
	return func(c *afishaCrawler) {
		c.browser = b
	}
}

// Afisha builds a crawler for city and performs the cookie bootstrap against the site root.
// A bootstrap failure is returned; the crawler is unusable without its cookies.
func Afisha(ctx context.Context, city internal.City, opts ...AfishaOption) (internal.Crawler, error) {
	c, err := newAfisha(city, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.bootstrap(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func newAfisha(city internal.City, opts ...AfishaOption) (*afishaCrawler, error) {
	if city == internal.CityUnknown {
		return nil, internal.ErrUnknownCity
	}
	c := &afishaCrawler{
		city:     city,
		origin:   DefaultOrigin,
		crawlID:  uuid.New(),
		profile:  identity.Random(),
		timeout:  DefaultRequestTimeout,
		minDelay: DefaultMinPageDelay,
		maxDelay: DefaultMaxPageDelay,
		sleep:    retry.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retrier == nil {
		c.retrier = retry.New()
	}

	originURL, err := url.Parse(c.origin)
	if err != nil {
		return nil, fmt.Errorf("invalid origin %q: %w", c.origin, err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c.jar = jar
	transport := httputil.WithIdentity(c.transport, c.profile)

	c.html = resty.New().
		SetCookieJar(jar).
		SetTransport(transport).
		SetTimeout(c.timeout).
		SetRedirectPolicy(resty.DomainCheckRedirectPolicy(originURL.Hostname())).
		SetHeaders(map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
		})

	// Schedule pages answer with a redirect when a day has no more data; that redirect is the signal.
	c.xhr = resty.New().
		SetCookieJar(jar).
		SetTransport(transport).
		SetTimeout(c.timeout).
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		})).
		SetHeaders(map[string]string{
			"Accept":           "application/json, text/plain, */*",
			"Accept-Language":  "ru-RU,ru;q=0.9,en-US;q=0.8,en;q=0.7",
			"X-Requested-With": "XMLHttpRequest",
			"Sec-Fetch-Dest":   "empty",
			"Sec-Fetch-Mode":   "cors",
			"Sec-Fetch-Site":   "same-origin",
		})

	for _, client := range []*resty.Client{c.html, c.xhr} {
		client.OnAfterResponse(func(_ *resty.Client, res *resty.Response) error {
			slog.Debug("afisha: response",
				"crawl", c.crawlID,
				"url", res.Request.URL,
				"status", res.StatusCode(),
				"took", res.Time(),
			)
			return nil
		})
	}

	slog.Debug("afisha: crawler created",
		"crawl", c.crawlID,
		"city", c.city,
		"origin", c.origin,
		"user_agent", c.profile.UserAgent,
	)
	return c, nil
}

func (c *afishaCrawler) City() internal.City {
	return c.city
}

func (c *afishaCrawler) bootstrap(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "afisha:bootstrap")
	defer span.End()

	rootURL := c.origin + "/"
	if c.browser != nil {
		cookies, err := c.browser.Cookies(ctx, rootURL, c.profile.UserAgent)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "browser bootstrap failed")
			return fmt.Errorf("%w: %w", ErrBootstrap, err)
		}
		u, _ := url.Parse(rootURL)
		c.jar.SetCookies(u, cookies)
		slog.Info("afisha: bootstrapped via browser", "crawl", c.crawlID, "cookies", len(cookies))
		return nil
	}

	if _, err := c.fetch(ctx, c.html, "bootstrap", rootURL, ""); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "bootstrap request failed")
		return fmt.Errorf("%w: %w", ErrBootstrap, err)
	}
	u, _ := url.Parse(rootURL)
	slog.Debug("afisha: bootstrapped", "crawl", c.crawlID, "cookies", len(c.jar.Cookies(u)))
	return nil
}

// fetch GETs rawURL through the retrier. A redirect that was not followed comes back as a nil body.
func (c *afishaCrawler) fetch(ctx context.Context, client *resty.Client, kind, rawURL, referer string) ([]byte, error) {
	return retry.Do(ctx, c.retrier, "afisha "+kind, func(ctx context.Context) retry.Outcome[[]byte] {
		req := client.R().SetContext(ctx)
		if referer != "" {
			req.SetHeader("Referer", referer)
		}
		res, err := req.Get(rawURL)
		if err != nil {
			if ctx.Err() != nil {
				return retry.NonRetryable[[]byte](fmt.Errorf("GET %s: %w", rawURL, ctx.Err()))
			}
			return retry.Retryable[[]byte](fmt.Errorf("GET %s: %w", rawURL, err))
		}
		status := res.StatusCode()
		switch {
		case status >= 200 && status < 300:
			return retry.Ok(res.Body())
		case status >= 300 && status < 400:
			return retry.Ok[[]byte](nil)
		}
		statusErr := &StatusError{StatusCode: status, URL: rawURL}
		if statusErr.Retryable() {
			return retry.Retryable[[]byte](statusErr)
		}
		return retry.NonRetryable[[]byte](statusErr)
	})
}

// pause blocks for a random duration in [minDelay, maxDelay].
func (c *afishaCrawler) pause(ctx context.Context) error {
	d := c.minDelay
	if spread := c.maxDelay - c.minDelay; spread > 0 {
		d += rand.N(spread + 1)
	}
	if d <= 0 {
		return ctx.Err()
	}
	return c.sleep(ctx, d)
}

func (c *afishaCrawler) listingURL(interval internal.DateInterval, page int) string {
	return fmt.Sprintf("%s/%s/schedule_cinema/%s/page%d/", c.origin, c.city.Code(), interval.Label(), page)
}

func scheduleURL(movieBaseURL string, date time.Time, page int) string {
	return fmt.Sprintf("%s/%s/page%d/", strings.TrimSuffix(movieBaseURL, "/"), date.Format(scheduleDateLayout), page)
}

const scheduleDateLayout = "02-01-2006"

// ListMovies walks the listing pages for interval. It stops at an empty page or at a page that
// repeats the previous one, since the site serves its last page again instead of an empty one.
// A failing page ends the walk; what was collected before it is returned without error.
func (c *afishaCrawler) ListMovies(ctx context.Context, interval internal.DateInterval) ([]internal.MovieThumbnail, error) {
	ctx, span := tracer.Start(ctx, "afisha:ListMovies")
	defer span.End()
	span.SetAttributes(
		attribute.String("city", c.city.String()),
		attribute.String("interval", interval.String()),
	)

	var out []internal.MovieThumbnail
	seen := make(map[string]struct{})
	var previous map[string]struct{}
	for page := 1; ; page++ {
		pageURL := c.listingURL(interval, page)
		body, err := c.fetch(ctx, c.html, "listing", pageURL, "")
		if err != nil {
			if ctx.Err() != nil {
				return out, err
			}
			span.RecordError(err)
			slog.Warn("afisha: listing page failed, keeping partial results",
				"crawl", c.crawlID, "url", pageURL, "collected", len(out), "error", err)
			break
		}
		items, names, err := parseListing(body, c.origin)
		if err != nil {
			span.RecordError(err)
			slog.Warn("afisha: listing page unreadable, keeping partial results",
				"crawl", c.crawlID, "url", pageURL, "collected", len(out), "error", err)
			break
		}
		if len(names) == 0 {
			slog.Debug("afisha: listing exhausted", "crawl", c.crawlID, "page", page)
			break
		}
		if previous != nil && maps.Equal(names, previous) {
			slog.Debug("afisha: listing page repeats previous, stopping", "crawl", c.crawlID, "page", page)
			break
		}
		for _, item := range items {
			if _, dup := seen[item.ScheduleLink]; dup {
				continue
			}
			seen[item.ScheduleLink] = struct{}{}
			out = append(out, item)
		}
		previous = names
		if err := c.pause(ctx); err != nil {
			return out, err
		}
	}

	span.SetAttributes(attribute.Int("movies", len(out)))
	slog.Info("afisha: listed movies", "crawl", c.crawlID, "city", c.city, "interval", interval, "movies", len(out))
	return out, nil
}

// ListSessions walks the schedule pages of one movie for one day.
// Failures end the walk for this movie and day; earlier pages are kept.
func (c *afishaCrawler) ListSessions(ctx context.Context, movieBaseURL string, date time.Time) ([]internal.Session, error) {
	ctx, span := tracer.Start(ctx, "afisha:ListSessions")
	defer span.End()
	date = internal.DateOf(date)
	base := strings.TrimSuffix(movieBaseURL, "/") + "/"
	span.SetAttributes(
		attribute.String("movie", base),
		attribute.String("date", date.Format(time.DateOnly)),
	)

	var out []internal.Session
	var previous map[string]struct{}
	for page := 1; ; page++ {
		pageURL := scheduleURL(base, date, page)
		body, err := c.fetch(ctx, c.xhr, "schedule", pageURL, base)
		if err != nil {
			if ctx.Err() != nil {
				return out, err
			}
			span.RecordError(err)
			slog.Warn("afisha: schedule page failed, keeping partial results",
				"crawl", c.crawlID, "url", pageURL, "collected", len(out), "error", err)
			break
		}
		doc, err := decodeSchedule(body)
		if err != nil {
			span.RecordError(err)
			slog.Warn("afisha: schedule page unreadable, keeping partial results",
				"crawl", c.crawlID, "url", pageURL, "collected", len(out), "error", err)
			break
		}
		names := doc.cinemaNames()
		if len(names) == 0 {
			break
		}
		if previous != nil && maps.Equal(names, previous) {
			slog.Debug("afisha: schedule page repeats previous, stopping", "crawl", c.crawlID, "url", pageURL)
			break
		}
		sessions, err := doc.sessions(date, c.city.Location())
		if err != nil {
			span.RecordError(err)
			slog.Warn("afisha: schedule page unreadable, keeping partial results",
				"crawl", c.crawlID, "url", pageURL, "collected", len(out), "error", err)
			break
		}
		for i := range sessions {
			sessions[i].Link = base
		}
		out = append(out, sessions...)
		previous = names
		if err := c.pause(ctx); err != nil {
			return out, err
		}
	}

	span.SetAttributes(attribute.Int("sessions", len(out)))
	slog.Debug("afisha: listed sessions", "crawl", c.crawlID, "movie", base, "date", date.Format(time.DateOnly), "sessions", len(out))
	return out, nil
}

var (
	// The site renders hrefs with varying attribute order and quoting, so read them from the markup.
	anchorHrefRE = regexp.MustCompile(`href\s*=\s*["']([^"']+)["']`)
	movieLinkRE  = regexp.MustCompile(`^/movie/[^/?#]+/`)
	dateSegment  = regexp.MustCompile(`/\d{2}-\d{2}-\d{4}/?$`)
)

// StripDateSegment drops a trailing dd-MM-yyyy path segment so a link addresses the movie
// rather than one of its days.
func StripDateSegment(link string) string {
	return dateSegment.ReplaceAllString(link, "/")
}

// parseListing returns the movie items on one listing page and the names of every item
// container on it. The names identify the page for duplicate detection.
func parseListing(body []byte, origin string) ([]internal.MovieThumbnail, map[string]struct{}, error) {
	names := make(map[string]struct{})
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, names, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}

	var items []internal.MovieThumbnail
	doc.Find(`[data-test~="ITEM"]`).Each(func(_ int, sel *goquery.Selection) {
		name := strings.TrimSpace(sel.Find(`[data-test~="ITEM-NAME"]`).First().Text())
		names[name] = struct{}{}

		anchor := sel.Find("a").First()
		if anchor.Length() == 0 {
			slog.Debug("afisha: listing item without link", "name", name)
			return
		}
		markup, err := goquery.OuterHtml(anchor)
		if err != nil {
			return
		}
		match := anchorHrefRE.FindStringSubmatch(markup)
		if match == nil {
			slog.Debug("afisha: listing item without href", "name", name)
			return
		}
		path := match[1]
		if u, err := url.Parse(path); err == nil && u.IsAbs() {
			path = u.Path
		}
		if !movieLinkRE.MatchString(path) {
			slog.Debug("afisha: skipping non-movie item", "name", name, "href", match[1])
			return
		}
		items = append(items, internal.MovieThumbnail{
			Name:         name,
			ScheduleLink: origin + path,
			ImageLink:    sel.Find("img").First().AttrOr("src", ""),
		})
	})
	return items, names, nil
}

// movieSlug extracts <slug> from a /movie/<slug>/ link.
func movieSlug(link string) string {
	if u, err := url.Parse(link); err == nil {
		link = u.Path
	}
	parts := strings.Split(strings.Trim(link, "/"), "/")
	if len(parts) < 2 || parts[0] != "movie" {
		return ""
	}
	return parts[1]
}

// parsePageSegment reads N from a "pageN" path segment.
func parsePageSegment(segment string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimPrefix(segment, "page"))
	if err != nil || !strings.HasPrefix(segment, "page") || n < 1 {
		return 0, false
	}
	return n, true
}
