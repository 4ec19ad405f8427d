package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
)

// GoldenCookie is the cookie the golden server issues on "/" and requires on schedule pages.
const GoldenCookie = "afisha_session"

const (
	goldenRootFile      = "root.html"
	goldenListingPages  = 3
	goldenMovies        = 4
	goldenScheduleDepth = 3
)

func goldenListingFile(page int) string {
	return fmt.Sprintf("listing-page%d.html", page)
}

func goldenScheduleFile(slug string, page int) string {
	return fmt.Sprintf("schedule-%s-page%d.json", slug, page)
}

func indentJSON(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// writeGoldenFiles creates goldenDir and writes each map entry under its file name.
// JSON bodies are pretty-printed so diffs stay readable.
func writeGoldenFiles(goldenDir string, files map[string][]byte) error {
	if err := os.MkdirAll(goldenDir, 0o750); err != nil {
		return fmt.Errorf("failed to create golden dir: %w", err)
	}
	for name, body := range files {
		if strings.HasSuffix(name, ".json") {
			pretty, err := indentJSON(body)
			if err != nil {
				return fmt.Errorf("failed to format %s golden file: %w", name, err)
			}
			body = pretty
		}
		if err := os.WriteFile(filepath.Join(goldenDir, name), body, 0o600); err != nil {
			return fmt.Errorf("failed to write %s golden file: %w", name, err)
		}
	}
	return nil
}

// PullGolden records today's root, listing and schedule pages for the crawler's city.
func (c *afishaCrawler) PullGolden(ctx context.Context, goldenDir string) error {
	files := make(map[string][]byte)

	root, err := c.fetch(ctx, c.html, "bootstrap", c.origin+"/", "")
	if err != nil {
		return fmt.Errorf("failed to fetch root: %w", err)
	}
	files[goldenRootFile] = root

	today := internal.Today(time.Now(), c.city.Location())
	interval := internal.SingleDay(today)
	var movies []internal.MovieThumbnail
	for page := 1; page <= goldenListingPages; page++ {
		body, err := c.fetch(ctx, c.html, "listing", c.listingURL(interval, page), "")
		if err != nil {
			return fmt.Errorf("failed to fetch listing page %d: %w", page, err)
		}
		items, names, err := parseListing(body, c.origin)
		if err != nil {
			return err
		}
		if len(names) == 0 {
			break
		}
		files[goldenListingFile(page)] = body
		movies = append(movies, items...)
	}

	for i, movie := range movies {
		if i >= goldenMovies {
			break
		}
		base := StripDateSegment(movie.ScheduleLink)
		slug := movieSlug(base)
		for page := 1; page <= goldenScheduleDepth; page++ {
			body, err := c.fetch(ctx, c.xhr, "schedule", scheduleURL(base, today, page), base)
			if err != nil {
				return fmt.Errorf("failed to fetch schedule %s page %d: %w", slug, page, err)
			}
			if len(body) == 0 {
				break
			}
			files[goldenScheduleFile(slug, page)] = body
		}
	}

	return writeGoldenFiles(goldenDir, files)
}

func (c *afishaCrawler) MountGolden(_ context.Context, goldenDir string) (http.Handler, error) {
	return MountAfishaGolden(goldenDir)
}

// MountAfishaGolden serves recorded pages the way the live site does: "/" issues the session
// cookie, listing pages past the last recorded one repeat it, and a missing schedule page
// redirects back to the movie. Schedule pages require the XHR headers and the cookie.
func MountAfishaGolden(goldenDir string) (http.Handler, error) {
	root, err := os.ReadFile(filepath.Join(goldenDir, goldenRootFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read golden root: %w", err)
	}
	listingFiles, err := filepath.Glob(filepath.Join(goldenDir, "listing-page*.html"))
	if err != nil {
		return nil, err
	}
	sort.Strings(listingFiles)
	listings := make([][]byte, 0, len(listingFiles))
	for page := 1; page <= len(listingFiles); page++ {
		body, err := os.ReadFile(filepath.Join(goldenDir, goldenListingFile(page)))
		if err != nil {
			return nil, fmt.Errorf("golden listing pages must be numbered from 1: %w", err)
		}
		listings = append(listings, body)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		segments := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
		switch {
		case r.URL.Path == "/":
			http.SetCookie(w, &http.Cookie{Name: GoldenCookie, Value: "golden", Path: "/"})
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write(root)

		case len(segments) == 4 && segments[1] == "schedule_cinema":
			page, ok := parsePageSegment(segments[3])
			if !ok {
				http.NotFound(w, r)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			if len(listings) == 0 {
				return
			}
			_, _ = w.Write(listings[min(page, len(listings))-1])

		case len(segments) == 4 && segments[0] == "movie":
			if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
				http.Error(w, "not an XHR request", http.StatusBadRequest)
				return
			}
			if _, err := r.Cookie(GoldenCookie); err != nil {
				http.Error(w, "missing session cookie", http.StatusForbidden)
				return
			}
			page, ok := parsePageSegment(segments[3])
			if !ok {
				http.NotFound(w, r)
				return
			}
			body, err := os.ReadFile(filepath.Join(goldenDir, goldenScheduleFile(segments[1], page)))
			if err != nil {
				http.Redirect(w, r, "/movie/"+segments[1]+"/", http.StatusFound)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(body)

		default:
			http.NotFound(w, r)
		}
	}), nil
}
