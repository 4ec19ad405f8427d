// Package sessioncache keeps parsed sessions per city and day on top of a store.Store.
//
// Entries live until the end of their day in the city's zone, never less than a floor, so a day
// written shortly before midnight does not vanish immediately. The cache never fails its caller:
// a broken backend reads as empty and swallows writes.
package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/drewfead/afisha-watcher/internal/store"
)

const DefaultMinTTL = 300 * time.Second

type Cache struct {
	store  store.Store
	minTTL time.Duration
	now    func() time.Time
}

var _ internal.SessionCache = (*Cache)(nil)

type Option func(*Cache)

func WithMinTTL(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.minTTL = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

func New(s store.Store, opts ...Option) *Cache {
	c := &Cache{
		store:  s,
		minTTL: DefaultMinTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Key is "{CITY}:{yyyy-MM-dd}".
func Key(city internal.City, date time.Time) string {
	return city.CachePrefix() + internal.DateOf(date).Format(time.DateOnly)
}

// TTL is the time from now until the end of date in the city's zone, floored at the minimum.
func (c *Cache) TTL(city internal.City, date time.Time) time.Duration {
	day := internal.DateOf(date)
	endOfDay := time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, city.Location())
	ttl := endOfDay.Sub(c.now())
	if ttl < c.minTTL {
		return c.minTTL
	}
	return ttl
}

// Put replaces the entry for (city, date) with sessions.
func (c *Cache) Put(ctx context.Context, city internal.City, date time.Time, sessions []internal.Session) {
	key := Key(city, date)
	if sessions == nil {
		sessions = []internal.Session{}
	}
	payload, err := json.Marshal(sessions)
	if err != nil {
		slog.Warn("sessioncache: failed to encode sessions, dropping write", "key", key, "error", err)
		return
	}
	ttl := c.TTL(city, date)
	if err := c.store.Set(ctx, key, payload, ttl); err != nil {
		slog.Warn("sessioncache: cache unavailable, dropping write", "key", key, "error", err)
		return
	}
	slog.Debug("sessioncache: stored", "key", key, "sessions", len(sessions), "ttl", ttl)
}

func (c *Cache) Get(ctx context.Context, city internal.City, date time.Time) ([]internal.Session, bool) {
	key := Key(city, date)
	payload, err := c.store.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	if err != nil {
		slog.Warn("sessioncache: cache unavailable, treating as miss", "key", key, "error", err)
		return nil, false
	}
	var sessions []internal.Session
	if err := json.Unmarshal(payload, &sessions); err != nil {
		slog.Warn("sessioncache: unreadable entry, treating as miss", "key", key, "error", err)
		return nil, false
	}
	loc := city.Location()
	for i := range sessions {
		sessions[i].DateTime = sessions[i].DateTime.In(loc)
	}
	return sessions, true
}

// GetMany returns the union of the entries for dates, in date order.
func (c *Cache) GetMany(ctx context.Context, city internal.City, dates []time.Time) []internal.Session {
	var out []internal.Session
	for _, date := range dates {
		if sessions, ok := c.Get(ctx, city, date); ok {
			out = append(out, sessions...)
		}
	}
	return out
}

func (c *Cache) keys(ctx context.Context, city internal.City) []string {
	keys, err := c.store.Keys(ctx, city.CachePrefix())
	if err != nil {
		slog.Warn("sessioncache: cache unavailable, listing nothing", "city", city, "error", err)
		return nil
	}
	return keys
}

// CachedDates lists the days with a live entry for city, ascending.
func (c *Cache) CachedDates(ctx context.Context, city internal.City) []time.Time {
	prefix := city.CachePrefix()
	var dates []time.Time
	for _, key := range c.keys(ctx, city) {
		day, err := internal.ParseDate(strings.TrimPrefix(key, prefix))
		if err != nil {
			slog.Debug("sessioncache: ignoring foreign key", "key", key)
			continue
		}
		dates = append(dates, day)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

func (c *Cache) Invalidate(ctx context.Context, city internal.City, date time.Time) {
	key := Key(city, date)
	if err := c.store.Delete(ctx, key); err != nil {
		slog.Warn("sessioncache: cache unavailable, invalidate dropped", "key", key, "error", err)
	}
}

func (c *Cache) InvalidateCity(ctx context.Context, city internal.City) {
	keys := c.keys(ctx, city)
	if len(keys) == 0 {
		return
	}
	if err := c.store.Delete(ctx, keys...); err != nil {
		slog.Warn("sessioncache: cache unavailable, invalidate dropped", "city", city, "error", err)
		return
	}
	slog.Info("sessioncache: invalidated city", "city", city, "days", len(keys))
}

// Size counts the cached days for city.
func (c *Cache) Size(ctx context.Context, city internal.City) int {
	return len(c.keys(ctx, city))
}
