package sessioncache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/drewfead/afisha-watcher/internal/store"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	moscow = internal.Moscow.Location()
	today  = time.Date(2025, 6, 25, 0, 0, 0, 0, time.UTC)
)

func newCache(t *testing.T, now time.Time) *Cache {
	t.Helper()
	s, err := store.Memory(0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s, WithClock(func() time.Time { return now }))
}

func TestUnit_Key(t *testing.T) {
	assert.Equal(t, "MOSCOW:2025-06-25", Key(internal.Moscow, today))
	assert.Equal(t, "SPB:2025-06-25", Key(internal.SPB, time.Date(2025, 6, 25, 23, 59, 0, 0, time.UTC)))
}

func TestUnit_TTL(t *testing.T) {
	noon := time.Date(2025, 6, 25, 12, 0, 0, 0, moscow)
	c := newCache(t, noon)

	todayTTL := c.TTL(internal.Moscow, today)
	tomorrowTTL := c.TTL(internal.Moscow, today.AddDate(0, 0, 1))
	pastTTL := c.TTL(internal.Moscow, today.AddDate(0, 0, -1))

	assert.Equal(t, 12*time.Hour, todayTTL)
	assert.Equal(t, 36*time.Hour, tomorrowTTL)
	assert.Less(t, todayTTL, tomorrowTTL)
	assert.Equal(t, DefaultMinTTL, pastTTL, "past days get exactly the floor")
}

func TestUnit_TTL_FloorNearMidnight(t *testing.T) {
	c := newCache(t, time.Date(2025, 6, 25, 23, 58, 0, 0, moscow))
	assert.Equal(t, DefaultMinTTL, c.TTL(internal.Moscow, today))

	custom := New(c.store, WithMinTTL(time.Hour), WithClock(c.now))
	for _, day := range []time.Time{today.AddDate(0, 0, -3), today, today.AddDate(0, 0, 5)} {
		assert.GreaterOrEqual(t, custom.TTL(internal.Moscow, day), time.Hour)
	}
}

func TestUnit_TTL_UsesCityZone(t *testing.T) {
	// 20:00 UTC is already the next day in Novosibirsk (UTC+7), so today there is over.
	c := newCache(t, time.Date(2025, 6, 25, 20, 0, 0, 0, time.UTC))
	assert.Equal(t, DefaultMinTTL, c.TTL(internal.Novosibirsk, today))
	assert.Equal(t, time.Hour, c.TTL(internal.Moscow, today), "Moscow (UTC+3) has an hour left")
}

func TestUnit_Cache_RoundTrip(t *testing.T) {
	c := newCache(t, time.Date(2025, 6, 25, 12, 0, 0, 0, moscow))
	ctx := t.Context()
	sessions := []internal.Session{
		{
			DateTime:            time.Date(2025, 6, 25, 22, 45, 0, 0, moscow),
			Name:                "Дюна: Часть вторая",
			Description:         "Пол Атрейдес объединяется с фременами.",
			Verdict:             "Вильнёв завершает историю",
			Genres:              []string{"фантастика", "боевик"},
			Cinema:              "Каро 11 Октябрь",
			Address:             "Новый Арбат, 24",
			Price:               1200,
			Link:                "https://www.afisha.ru/movie/dune-part-two/",
			HasRussianSubtitles: true,
			ImageURL:            "https://s1.afisha.ru/mediastorage/dune-part-two.jpg",
		},
		{
			DateTime: time.Date(2025, 6, 25, 12, 0, 0, 0, moscow),
			Name:     "Дюна: Часть вторая",
			Genres:   []string{},
			Price:    internal.PriceUnavailable,
		},
	}

	_, ok := c.Get(ctx, internal.Moscow, today)
	assert.False(t, ok)

	c.Put(ctx, internal.Moscow, today, sessions)
	got, ok := c.Get(ctx, internal.Moscow, today)
	require.True(t, ok)
	if diff := cmp.Diff(sessions, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, moscow, got[0].DateTime.Location())

	c.Put(ctx, internal.Moscow, today, sessions[1:])
	got, ok = c.Get(ctx, internal.Moscow, today)
	require.True(t, ok)
	assert.Len(t, got, 1, "entries are replaced, never merged")
}

func TestUnit_Cache_EmptyDayIsAHit(t *testing.T) {
	c := newCache(t, time.Date(2025, 6, 25, 12, 0, 0, 0, moscow))
	c.Put(t.Context(), internal.Moscow, today, nil)
	got, ok := c.Get(t.Context(), internal.Moscow, today)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestUnit_Cache_DatesSizeAndInvalidate(t *testing.T) {
	c := newCache(t, time.Date(2025, 6, 25, 12, 0, 0, 0, moscow))
	ctx := t.Context()
	day2 := today.AddDate(0, 0, 1)
	day3 := today.AddDate(0, 0, 2)
	for _, day := range []time.Time{day3, today, day2} {
		c.Put(ctx, internal.Moscow, day, []internal.Session{{Name: day.Format(time.DateOnly), DateTime: day}})
	}
	c.Put(ctx, internal.SPB, today, []internal.Session{{Name: "spb"}})

	assert.Equal(t, []time.Time{today, day2, day3}, c.CachedDates(ctx, internal.Moscow))
	assert.Equal(t, 3, c.Size(ctx, internal.Moscow))

	got := c.GetMany(ctx, internal.Moscow, []time.Time{today, day3, today.AddDate(0, 0, 10)})
	require.Len(t, got, 2)
	assert.Equal(t, "2025-06-25", got[0].Name)
	assert.Equal(t, "2025-06-27", got[1].Name)

	c.Invalidate(ctx, internal.Moscow, day2)
	assert.Equal(t, []time.Time{today, day3}, c.CachedDates(ctx, internal.Moscow))

	c.InvalidateCity(ctx, internal.Moscow)
	assert.Zero(t, c.Size(ctx, internal.Moscow))
	assert.Equal(t, 1, c.Size(ctx, internal.SPB), "other cities untouched")
}

func TestUnit_Cache_ExpiresAtEndOfDay(t *testing.T) {
	now := time.Date(2025, 6, 25, 23, 0, 0, 0, moscow)
	s, err := store.Memory(0, store.MemoryWithClock(func() time.Time { return now }))
	require.NoError(t, err)
	c := New(s, WithClock(func() time.Time { return now }))

	c.Put(t.Context(), internal.Moscow, today, []internal.Session{{Name: "late"}})
	now = now.Add(59 * time.Minute)
	_, ok := c.Get(t.Context(), internal.Moscow, today)
	assert.True(t, ok)

	now = now.Add(time.Minute)
	_, ok = c.Get(t.Context(), internal.Moscow, today)
	assert.False(t, ok)
}

// brokenStore fails every call the way an unreachable backend would.
type brokenStore struct{ calls int }

var errUnavailable = errors.New("connection refused")

func (s *brokenStore) Get(context.Context, string) ([]byte, error) {
	s.calls++
	return nil, errUnavailable
}

func (s *brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	s.calls++
	return errUnavailable
}

func (s *brokenStore) Delete(context.Context, ...string) error {
	s.calls++
	return errUnavailable
}

func (s *brokenStore) Keys(context.Context, string) ([]string, error) {
	s.calls++
	return nil, errUnavailable
}

func (s *brokenStore) Close() error { return nil }

func TestUnit_Cache_DegradesGracefully(t *testing.T) {
	backend := &brokenStore{}
	c := New(backend)
	ctx := t.Context()

	c.Put(ctx, internal.Kazan, today, []internal.Session{{Name: "lost"}})
	got, ok := c.Get(ctx, internal.Kazan, today)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.Empty(t, c.GetMany(ctx, internal.Kazan, []time.Time{today}))
	assert.Empty(t, c.CachedDates(ctx, internal.Kazan))
	assert.Zero(t, c.Size(ctx, internal.Kazan))
	c.Invalidate(ctx, internal.Kazan, today)
	c.InvalidateCity(ctx, internal.Kazan)
	assert.Positive(t, backend.calls)
}

func TestUnit_Cache_CorruptEntryIsAMiss(t *testing.T) {
	s, err := store.Memory(0)
	require.NoError(t, err)
	require.NoError(t, s.Set(t.Context(), Key(internal.Moscow, today), []byte("{not json"), 0))
	_, ok := New(s).Get(t.Context(), internal.Moscow, today)
	assert.False(t, ok)
}
