package scraper

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/drewfead/afisha-watcher/internal"
)

var ErrMalformedPayload = errors.New("malformed payload")

// russianSubtitlesTag is the only SubtitlesFormat value that marks a subtitled session.
const russianSubtitlesTag = "russiansubtitlessession"

// priceNull is how the site spells an unpublished price.
const priceNull = "null"

// scheduleLocalLayout is the site's zone-less session timestamp.
const scheduleLocalLayout = "2006-01-02T15:04:05"

// scheduleResponse matches golden/afisha/schedule-*.json, the XHR body of
// /movie/<slug>/<dd-MM-yyyy>/page<N>/.
type scheduleResponse struct {
	MovieCard      movieCard       `json:"MovieCard"`
	ScheduleWidget *scheduleWidget `json:"ScheduleWidget"`
}

type movieCard struct {
	Name    string `json:"Name"`
	Verdict string `json:"Verdict"`
	Genres  *struct {
		Links []struct {
			Name string `json:"Name"`
		} `json:"Links"`
	} `json:"Genres"`
	Distributor *struct {
		Description string `json:"Description"`
	} `json:"Distributor"`
}

type scheduleWidget struct {
	Items []scheduleItem `json:"Items"`
}

type scheduleItem struct {
	Place struct {
		Name    string `json:"Name"`
		Address string `json:"Address"`
	} `json:"Place"`
	Sessions []scheduleSession `json:"Sessions"`
}

type scheduleSession struct {
	DateTime          string     `json:"DateTime"`
	MinPriceFormatted priceField `json:"MinPriceFormatted"`
	SubtitlesFormat   string     `json:"SubtitlesFormat"`
}

// priceField keeps the raw price token. The site sends it as a string, sometimes as
// a bare number, and sometimes as JSON null.
type priceField struct {
	raw   string
	valid bool
}

func (p *priceField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = priceField{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = priceField{raw: s, valid: true}
		return nil
	}
	*p = priceField{raw: string(data), valid: true}
	return nil
}

func (p priceField) value() (int, error) {
	if !p.valid {
		return internal.PriceUnavailable, nil
	}
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\u00a0', '\u202f', '\t':
			return -1
		}
		return r
	}, p.raw)
	if cleaned == priceNull || cleaned == "" {
		return internal.PriceUnavailable, nil
	}
	n, err := strconv.Atoi(cleaned)
	if err != nil {
		return 0, fmt.Errorf("%w: price %q: %w", ErrMalformedPayload, p.raw, err)
	}
	return n, nil
}

// ParseSchedule turns one schedule page into sessions on date, in source order.
// Timestamps are read in loc. Sessions falling on any other calendar day are dropped.
// A payload without a schedule is an empty result, not an error.
func ParseSchedule(payload []byte, date time.Time, loc *time.Location) ([]internal.Session, error) {
	doc, err := decodeSchedule(payload)
	if err != nil {
		return nil, err
	}
	return doc.sessions(date, loc)
}

func decodeSchedule(payload []byte) (*scheduleResponse, error) {
	var doc scheduleResponse
	if len(bytes.TrimSpace(payload)) == 0 {
		return &doc, nil
	}
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return &doc, nil
}

func (doc *scheduleResponse) items() []scheduleItem {
	if doc.ScheduleWidget == nil {
		return nil
	}
	return doc.ScheduleWidget.Items
}

// cinemaNames is the page's identity for duplicate-page detection.
func (doc *scheduleResponse) cinemaNames() map[string]struct{} {
	names := make(map[string]struct{}, len(doc.items()))
	for _, item := range doc.items() {
		names[item.Place.Name] = struct{}{}
	}
	return names
}

func (doc *scheduleResponse) sessions(date time.Time, loc *time.Location) ([]internal.Session, error) {
	if loc == nil {
		loc = time.UTC
	}
	want := internal.DateOf(date)
	card := doc.MovieCard

	var genres []string
	if card.Genres != nil {
		for _, link := range card.Genres.Links {
			genres = append(genres, link.Name)
		}
	}
	var description string
	if card.Distributor != nil {
		description = card.Distributor.Description
	}

	var out []internal.Session
	for _, item := range doc.items() {
		for _, raw := range item.Sessions {
			start, err := parseSessionTime(raw.DateTime, loc)
			if err != nil {
				return nil, err
			}
			if !internal.DateOf(start).Equal(want) {
				continue
			}
			price, err := raw.MinPriceFormatted.value()
			if err != nil {
				return nil, err
			}
			out = append(out, internal.Session{
				DateTime:            start,
				Name:                card.Name,
				Description:         description,
				Verdict:             card.Verdict,
				Genres:              slices.Clone(genres),
				Cinema:              item.Place.Name,
				Address:             item.Place.Address,
				Price:               price,
				HasRussianSubtitles: raw.SubtitlesFormat == russianSubtitlesTag,
			})
		}
	}
	return out, nil
}

func parseSessionTime(value string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(scheduleLocalLayout, value, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: session time %q: %w", ErrMalformedPayload, value, err)
	}
	return t.In(loc), nil
}
