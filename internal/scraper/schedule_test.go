package scraper

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	goldenDate = time.Date(2025, 6, 25, 0, 0, 0, 0, time.UTC)
	moscow     = internal.Moscow.Location()
)

func readGolden(t *testing.T, name string) []byte {
	t.Helper()
	body, err := os.ReadFile(filepath.Join(goldenDir, "afisha", name))
	require.NoError(t, err, "read golden %s", name)
	return body
}

func TestUnit_ParseSchedule_Golden(t *testing.T) {
	sessions, err := ParseSchedule(readGolden(t, "schedule-dune-part-two-page1.json"), goldenDate, moscow)
	require.NoError(t, err)

	genres := []string{"фантастика", "боевик", "драма"}
	description := "Пол Атрейдес объединяется с фременами, чтобы отомстить заговорщикам."
	verdict := "Вильнёв завершает историю Пола Атрейдеса"
	want := []internal.Session{
		{
			DateTime:    time.Date(2025, 6, 25, 19, 30, 0, 0, moscow),
			Name:        "Дюна: Часть вторая",
			Description: description,
			Verdict:     verdict,
			Genres:      genres,
			Cinema:      "Каро 11 Октябрь",
			Address:     "Новый Арбат, 24",
			Price:       350,
		},
		{
			DateTime:            time.Date(2025, 6, 25, 22, 45, 0, 0, moscow),
			Name:                "Дюна: Часть вторая",
			Description:         description,
			Verdict:             verdict,
			Genres:              genres,
			Cinema:              "Каро 11 Октябрь",
			Address:             "Новый Арбат, 24",
			Price:               1200,
			HasRussianSubtitles: true,
		},
		{
			DateTime:    time.Date(2025, 6, 25, 12, 0, 0, 0, moscow),
			Name:        "Дюна: Часть вторая",
			Description: description,
			Verdict:     verdict,
			Genres:      genres,
			Cinema:      "Синема Парк Мега Белая Дача",
			Address:     "Котельники, 1-й Покровский пр-д, 5",
			Price:       internal.PriceUnavailable,
		},
	}
	if diff := cmp.Diff(want, sessions); diff != "" {
		t.Errorf("ParseSchedule mismatch (-want +got):\n%s", diff)
	}
}

func TestUnit_ParseSchedule_DropsOtherDays(t *testing.T) {
	nextDay := goldenDate.AddDate(0, 0, 1)
	sessions, err := ParseSchedule(readGolden(t, "schedule-dune-part-two-page1.json"), nextDay, moscow)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 290, sessions[0].Price)
	assert.Equal(t, nextDay, sessions[0].Date())
}

func TestUnit_ParseSchedule_Price(t *testing.T) {
	tests := []struct {
		name  string
		price string
		want  int
	}{
		{"null string", `"null"`, internal.PriceUnavailable},
		{"json null", `null`, internal.PriceUnavailable},
		{"plain", `"350"`, 350},
		{"bare number", `480`, 480},
		{"grouped with space", `"1 200"`, 1200},
		{"grouped with nbsp", `"2\u00a0500"`, 2500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := `{"MovieCard":{"Name":"X"},"ScheduleWidget":{"Items":[{"Place":{"Name":"C"},` +
				`"Sessions":[{"DateTime":"2025-06-25T10:00:00","MinPriceFormatted":` + tt.price + `}]}]}}`
			sessions, err := ParseSchedule([]byte(payload), goldenDate, moscow)
			require.NoError(t, err)
			require.Len(t, sessions, 1)
			assert.Equal(t, tt.want, sessions[0].Price)
		})
	}
}

func TestUnit_ParseSchedule_UnparseablePriceIsMalformed(t *testing.T) {
	payload := `{"MovieCard":{"Name":"X"},"ScheduleWidget":{"Items":[{"Place":{"Name":"C"},` +
		`"Sessions":[{"DateTime":"2025-06-25T10:00:00","MinPriceFormatted":"от 300 ₽"}]}]}}`
	_, err := ParseSchedule([]byte(payload), goldenDate, moscow)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestUnit_ParseSchedule_SubtitleFlag(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"russiansubtitlessession", true},
		{"RussianSubtitlesSession", false},
		{"originalsession", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			payload := `{"MovieCard":{"Name":"X"},"ScheduleWidget":{"Items":[{"Place":{"Name":"C"},` +
				`"Sessions":[{"DateTime":"2025-06-25T10:00:00","MinPriceFormatted":"100","SubtitlesFormat":"` + tt.tag + `"}]}]}}`
			sessions, err := ParseSchedule([]byte(payload), goldenDate, moscow)
			require.NoError(t, err)
			require.Len(t, sessions, 1)
			assert.Equal(t, tt.want, sessions[0].HasRussianSubtitles)
		})
	}
}

func TestUnit_ParseSchedule_EmptySchedules(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"no container", `{"MovieCard":{"Name":"X"}}`},
		{"null container", `{"MovieCard":{"Name":"X"},"ScheduleWidget":null}`},
		{"no items", `{"MovieCard":{"Name":"X"},"ScheduleWidget":{}}`},
		{"empty body", ``},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sessions, err := ParseSchedule([]byte(tt.payload), goldenDate, moscow)
			require.NoError(t, err)
			assert.Empty(t, sessions)
		})
	}
}

func TestUnit_ParseSchedule_MissingDistributorMeansEmptyDescription(t *testing.T) {
	sessions, err := ParseSchedule(readGolden(t, "schedule-master-i-margarita-page1.json"), goldenDate, moscow)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	for _, s := range sessions {
		assert.Empty(t, s.Description)
		assert.Equal(t, []string{"драма", "фэнтези"}, s.Genres)
	}
	assert.Equal(t, internal.PriceUnavailable, sessions[1].Price)
	assert.True(t, sessions[1].HasRussianSubtitles)
}

func TestUnit_ParseSchedule_SessionsOwnTheirGenres(t *testing.T) {
	sessions, err := ParseSchedule(readGolden(t, "schedule-master-i-margarita-page1.json"), goldenDate, moscow)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	sessions[0].Genres[0] = "комедия"
	sessions[0].Genres = append(sessions[0].Genres, "мюзикл")
	assert.Equal(t, []string{"драма", "фэнтези"}, sessions[1].Genres)
}

func TestUnit_ParseSchedule_InvalidJSON(t *testing.T) {
	_, err := ParseSchedule([]byte(`{"MovieCard":`), goldenDate, moscow)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestUnit_ParseSchedule_OffsetTimestampsMoveIntoCityZone(t *testing.T) {
	payload := `{"MovieCard":{"Name":"X"},"ScheduleWidget":{"Items":[{"Place":{"Name":"C"},` +
		`"Sessions":[{"DateTime":"2025-06-25T16:30:00Z","MinPriceFormatted":"100"}]}]}}`
	sessions, err := ParseSchedule([]byte(payload), goldenDate, moscow)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 19, sessions[0].DateTime.Hour())
	assert.Equal(t, moscow, sessions[0].DateTime.Location())
}
