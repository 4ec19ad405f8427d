package internal

import "time"

// PriceUnavailable is the Session.Price sentinel for showtimes whose price the site does not publish.
const PriceUnavailable = -1

// Session is one showtime of one movie at one cinema.
type Session struct {
	DateTime            time.Time `json:"dateTime" yaml:"dateTime"`
	Name                string    `json:"name" yaml:"name"`
	Description         string    `json:"description" yaml:"description"`
	Verdict             string    `json:"verdict" yaml:"verdict"`
	Genres              []string  `json:"genres" yaml:"genres"`
	Cinema              string    `json:"cinema" yaml:"cinema"`
	Address             string    `json:"address" yaml:"address"`
	Price               int       `json:"price" yaml:"price"`
	Link                string    `json:"link" yaml:"link"`
	HasRussianSubtitles bool      `json:"hasRussianSubtitles" yaml:"hasRussianSubtitles"`
	ImageURL            string    `json:"imageUrl" yaml:"imageUrl"`
}

// Date returns the calendar day the session falls on, in the session's own zone.
func (s Session) Date() time.Time {
	return DateOf(s.DateTime)
}

// MovieThumbnail is a listing entry pointing at a movie's own schedule page.
type MovieThumbnail struct {
	Name         string `json:"name" yaml:"name"`
	ScheduleLink string `json:"schedule_link" yaml:"schedule_link"`
	ImageLink    string `json:"image_link" yaml:"image_link"`
}

type ListSessionsRequest struct {
	City     City         `json:"city" yaml:"city"`
	Interval DateInterval `json:"interval" yaml:"interval"`
}
