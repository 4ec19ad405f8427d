package internal

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidInterval = errors.New("interval end is before start")

// DateOf drops the clock part of t and returns its calendar day as a midnight UTC value.
// Every date in this package is in that form so days compare with ==.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	return DateOf(now.In(loc))
}

// ParseDate parses a yyyy-MM-dd day.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected yyyy-MM-dd): %w", s, err)
	}
	return t, nil
}

// DateInterval is an inclusive range of calendar days.
type DateInterval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewDateInterval(start, end time.Time) (DateInterval, error) {
	start, end = DateOf(start), DateOf(end)
	if end.Before(start) {
		return DateInterval{}, fmt.Errorf("%w: %s > %s", ErrInvalidInterval,
			start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return DateInterval{Start: start, End: end}, nil
}

// SingleDay is the interval holding just day.
func SingleDay(day time.Time) DateInterval {
	day = DateOf(day)
	return DateInterval{Start: day, End: day}
}

// DatesInRange returns every day from Start to End inclusive, ascending.
func (d DateInterval) DatesInRange() []time.Time {
	var out []time.Time
	for day := d.Start; !day.After(d.End); day = day.AddDate(0, 0, 1) {
		out = append(out, day)
	}
	return out
}

func (d DateInterval) Contains(day time.Time) bool {
	day = DateOf(day)
	return !day.Before(d.Start) && !day.After(d.End)
}

// Label renders the interval the way the listing URLs address it: ddMM_ddMM, year implied.
func (d DateInterval) Label() string {
	return d.Start.Format("0201") + "_" + d.End.Format("0201")
}

func (d DateInterval) String() string {
	return d.Start.Format(time.DateOnly) + ".." + d.End.Format(time.DateOnly)
}

// MergeIntoContiguousRanges folds ascending distinct days into the fewest gap-free intervals.
// [1,2,3,5,6,8] becomes [(1,3),(5,6),(8,8)].
func MergeIntoContiguousRanges(sortedDates []time.Time) []DateInterval {
	var out []DateInterval
	for _, day := range sortedDates {
		day = DateOf(day)
		if n := len(out); n > 0 && out[n-1].End.AddDate(0, 0, 1).Equal(day) {
			out[n-1].End = day
			continue
		}
		out = append(out, DateInterval{Start: day, End: day})
	}
	return out
}
