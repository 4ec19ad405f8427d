package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"badger-memory": func(t *testing.T) Store {
			s, err := Badger("")
			require.NoError(t, err)
			return s
		},
		"badger-disk": func(t *testing.T) Store {
			s, err := Badger(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"lru": func(t *testing.T) Store {
			s, err := Memory(16)
			require.NoError(t, err)
			return s
		},
	}
}

func TestUnit_Store_Contract(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := open(t)
			t.Cleanup(func() { _ = s.Close() })
			ctx := t.Context()

			_, err := s.Get(ctx, "MOSCOW:2025-06-25")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, s.Set(ctx, "MOSCOW:2025-06-26", []byte(`[]`), time.Hour))
			require.NoError(t, s.Set(ctx, "MOSCOW:2025-06-25", []byte(`[1]`), time.Hour))
			require.NoError(t, s.Set(ctx, "SPB:2025-06-25", []byte(`[2]`), 0))

			got, err := s.Get(ctx, "MOSCOW:2025-06-25")
			require.NoError(t, err)
			assert.Equal(t, []byte(`[1]`), got)

			require.NoError(t, s.Set(ctx, "MOSCOW:2025-06-25", []byte(`[3]`), time.Hour))
			got, err = s.Get(ctx, "MOSCOW:2025-06-25")
			require.NoError(t, err)
			assert.Equal(t, []byte(`[3]`), got, "writes overwrite")

			keys, err := s.Keys(ctx, "MOSCOW:")
			require.NoError(t, err)
			assert.Equal(t, []string{"MOSCOW:2025-06-25", "MOSCOW:2025-06-26"}, keys)

			require.NoError(t, s.Delete(ctx, "MOSCOW:2025-06-25", "MOSCOW:missing"))
			keys, err = s.Keys(ctx, "MOSCOW:")
			require.NoError(t, err)
			assert.Equal(t, []string{"MOSCOW:2025-06-26"}, keys)

			keys, err = s.Keys(ctx, "KAZAN:")
			require.NoError(t, err)
			assert.Empty(t, keys)
		})
	}
}

func TestUnit_Badger_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Badger(dir)
	require.NoError(t, err)
	require.NoError(t, s.Set(t.Context(), "KAZAN:2025-06-25", []byte(`[]`), time.Hour))
	require.NoError(t, s.Close())

	s, err = Badger(dir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	got, err := s.Get(t.Context(), "KAZAN:2025-06-25")
	require.NoError(t, err)
	assert.Equal(t, []byte(`[]`), got)
}

func TestUnit_Memory_Expiry(t *testing.T) {
	now := time.Date(2025, 6, 25, 12, 0, 0, 0, time.UTC)
	s, err := Memory(0, MemoryWithClock(func() time.Time { return now }))
	require.NoError(t, err)
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "MOSCOW:2025-06-25", []byte(`[]`), time.Hour))
	require.NoError(t, s.Set(ctx, "MOSCOW:2025-06-26", []byte(`[]`), 0))

	now = now.Add(time.Hour)
	_, err = s.Get(ctx, "MOSCOW:2025-06-25")
	require.ErrorIs(t, err, ErrNotFound, "expired at its deadline")

	keys, err := s.Keys(ctx, "MOSCOW:")
	require.NoError(t, err)
	assert.Equal(t, []string{"MOSCOW:2025-06-26"}, keys, "no ttl never expires")
}

func TestUnit_Memory_EvictsLeastRecentlyUsed(t *testing.T) {
	s, err := Memory(2)
	require.NoError(t, err)
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, s.Set(ctx, "b", []byte("2"), 0))
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "c", []byte("3"), 0))

	_, err = s.Get(ctx, "b")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "a")
	require.NoError(t, err)
}

func TestUnit_Memory_CopiesValues(t *testing.T) {
	s, err := Memory(0)
	require.NoError(t, err)
	ctx := t.Context()

	value := []byte("abc")
	require.NoError(t, s.Set(ctx, "k", value, 0))
	value[0] = 'x'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
	got[1] = 'y'

	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}
