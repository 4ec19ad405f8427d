package browser

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// PageStableTimeout is the timeout used when waiting for page stability.
var PageStableTimeout = 30 * time.Second

// Interface loads a page in a real browser and hands back the cookies the site set,
// including ones issued by client-side challenges a plain HTTP client cannot pass.
// Implementations may reuse a single browser process (e.g. headlessBrowser).
type Interface interface {
	Cookies(ctx context.Context, url, userAgent string) ([]*http.Cookie, error)

	io.Closer
}

// headlessBrowser manages a single rod browser instance. A channel of capacity 1 serializes
// access: callers receive the browser, use it, then send it back so only one page is open at a time.
type headlessBrowser struct {
	initOnce sync.Once
	initErr  error
	ch       chan *rod.Browser
}

// Headless returns a Browser that lazily launches one headless chrome browser and reuses it.
func Headless() Interface {
	return &headlessBrowser{
		ch: make(chan *rod.Browser, 1),
	}
}

func (h *headlessBrowser) launch() {
	h.initOnce.Do(func() {
		u, err := launcher.New().Logger(newRodLauncherLogger()).Leakless(false).Launch()
		if err != nil {
			h.initErr = fmt.Errorf("launch browser: %w", err)
			close(h.ch)
			return
		}
		browser := rod.New().ControlURL(u)
		if err := browser.Connect(); err != nil {
			h.initErr = fmt.Errorf("connect to browser: %w", err)
			close(h.ch)
			return
		}
		h.ch <- browser
	})
}

func (h *headlessBrowser) Close() error {
	h.launch()
	browser, ok := <-h.ch
	if !ok {
		return h.initErr
	}
	return browser.Close()
}

// withPage receives the shared browser from the channel, opens url with userAgent, runs fn,
// then sends the browser back. The page is closed when fn returns.
func (h *headlessBrowser) withPage(ctx context.Context, url, userAgent string, fn func(page *rod.Page) error) error {
	h.launch()
	if h.initErr != nil {
		return h.initErr
	}
	browser, ok := <-h.ch
	if !ok {
		return h.initErr
	}
	defer func() { h.ch <- browser }()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("create page: %w", err)
	}
	defer page.MustClose()

	page = page.Context(ctx)

	if userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			return fmt.Errorf("set user agent: %w", err)
		}
	}
	if err := page.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	if err := rod.Try(func() {
		page.Timeout(PageStableTimeout).MustWaitStable()
	}); err != nil {
		return fmt.Errorf("wait for page stable: %w", err)
	}

	return fn(page)
}

// Cookies opens url and returns every cookie the browser holds for it once the page settles.
func (h *headlessBrowser) Cookies(ctx context.Context, url, userAgent string) ([]*http.Cookie, error) {
	var out []*http.Cookie
	err := h.withPage(ctx, url, userAgent, func(page *rod.Page) error {
		cookies, err := page.Cookies([]string{url})
		if err != nil {
			return fmt.Errorf("read cookies: %w", err)
		}
		out = convertCookies(cookies)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("browser: collected cookies", "url", url, "count", len(out))
	return out, nil
}

func convertCookies(cookies []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			cookie.Expires = c.Expires.Time()
		}
		out = append(out, cookie)
	}
	return out
}

// rodLauncherLogger is an io.Writer that forwards launcher output (e.g. download progress) to slog at debug level.
type rodLauncherLogger struct {
	buf []byte
}

func (w *rodLauncherLogger) Write(p []byte) (n int, err error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
		if line != "" {
			slog.Debug("rod launcher", "message", line)
		}
	}
	return len(p), nil
}

func newRodLauncherLogger() io.Writer {
	return &rodLauncherLogger{}
}
