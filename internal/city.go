package internal

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // cities resolve their zones without a system tz database
)

// City is a closed enumeration of the cities the site publishes schedules for.
type City uint8

const (
	CityUnknown City = iota
	Moscow
	SPB
	Balashiha
	Kazan
	Ekaterinburg
	Novosibirsk
)

type cityInfo struct {
	name     string
	code     string
	timezone string
}

// Adding a city is one row here.
var cityTable = map[City]cityInfo{
	Moscow:       {name: "MOSCOW", code: "msk", timezone: "Europe/Moscow"},
	SPB:          {name: "SPB", code: "spb", timezone: "Europe/Moscow"},
	Balashiha:    {name: "BALASHIHA", code: "balashiha", timezone: "Europe/Moscow"},
	Kazan:        {name: "KAZAN", code: "kazan", timezone: "Europe/Moscow"},
	Ekaterinburg: {name: "EKATERINBURG", code: "ekaterinburg", timezone: "Asia/Yekaterinburg"},
	Novosibirsk:  {name: "NOVOSIBIRSK", code: "novosibirsk", timezone: "Asia/Novosibirsk"},
}

var ErrUnknownCity = errors.New("unknown city")

// Cities returns every known city in declaration order.
func Cities() []City {
	out := make([]City, 0, len(cityTable))
	for c := Moscow; c <= Novosibirsk; c++ {
		out = append(out, c)
	}
	return out
}

func ParseCity(value string) (City, error) {
	for _, c := range Cities() {
		info := cityTable[c]
		if strings.EqualFold(value, info.name) || strings.EqualFold(value, info.code) {
			return c, nil
		}
	}
	return CityUnknown, fmt.Errorf("%w: %q", ErrUnknownCity, value)
}

func (c City) String() string {
	if info, ok := cityTable[c]; ok {
		return info.name
	}
	return "UNKNOWN"
}

// Code is the city's path segment in site URLs.
func (c City) Code() string {
	return cityTable[c].code
}

// CachePrefix is prepended to every cache key stored for the city.
func (c City) CachePrefix() string {
	return c.String() + ":"
}

var cityLocations = make(map[City]*time.Location, len(cityTable))

func init() {
	for c, info := range cityTable {
		loc, err := time.LoadLocation(info.timezone)
		if err != nil {
			loc = time.UTC
		}
		cityLocations[c] = loc
	}
}

// Location is the zone the site's local timestamps for this city are in.
func (c City) Location() *time.Location {
	if loc, ok := cityLocations[c]; ok {
		return loc
	}
	return time.UTC
}

func (c City) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *City) UnmarshalText(text []byte) error {
	parsed, err := ParseCity(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
