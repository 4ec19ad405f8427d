package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/drewfead/afisha-watcher/internal"
	"github.com/titanous/json5"
)

const DefaultPath = "afisha-watcher.json5"

var ErrInvalidConfig = errors.New("invalid config")

// Config is the file form of the settings. Durations are Go duration strings ("30s", "5m").
// The local file only overrides fields it sets to a non-zero value, so switches whose off state
// must be expressible there are pointers.
type Config struct {
	Origin            string   `json:"origin"`
	CacheDir          string   `json:"cacheDir"`
	CacheMaxEntries   int      `json:"cacheMaxEntries"`
	CacheMinTTL       string   `json:"cacheMinTtl"`
	RequestTimeout    string   `json:"requestTimeout"`
	RetryInitialDelay string   `json:"retryInitialDelay"`
	RetryBudget       string   `json:"retryBudget"`
	PageDelayMin      string   `json:"pageDelayMin"`
	PageDelayMax      string   `json:"pageDelayMax"`
	Headless          *bool    `json:"headless"`
	Cities            []string `json:"cities"`
	WarmDays          int      `json:"warmDays"`
	WarmSchedule      string   `json:"warmSchedule"`
	LogLevel          string   `json:"logLevel"`
}

func Default() Config {
	return Config{
		Origin:            "https://www.afisha.ru",
		CacheMaxEntries:   4096,
		CacheMinTTL:       "5m",
		RequestTimeout:    "30s",
		RetryInitialDelay: "5s",
		RetryBudget:       "300s",
		PageDelayMin:      "3s",
		PageDelayMax:      "7s",
		WarmDays:          7,
		LogLevel:          "info",
	}
}

func splitExt(f string) (string, string) {
	ext := filepath.Ext(f)
	return strings.TrimSuffix(f, ext), strings.TrimPrefix(ext, ".")
}

// Read loads name and then name.local.<ext> on top of it; both are optional.
// Fields left empty by the files keep their Default values.
func Read(name string) (Config, error) {
	var out Config

	base, err := readFile(name)
	if err != nil {
		return out, err
	}
	if base != nil {
		out = *base
	}

	prefix, ext := splitExt(name)
	localName := fmt.Sprintf("%s.local.%s", prefix, ext)
	local, err := readFile(localName)
	if err != nil {
		return out, err
	}
	if local != nil {
		if err := mergo.Merge(&out, *local, mergo.WithOverride, mergo.WithoutDereference); err != nil {
			return out, fmt.Errorf("failed to merge %s: %w", localName, err)
		}
		slog.Info("config: merging local overrides", "local", localName)
	}

	if err := mergo.Merge(&out, Default()); err != nil {
		return out, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return out, nil
}

func readFile(name string) (*Config, error) {
	data, err := os.ReadFile(name)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var c Config
	if err := json5.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
	return &c, nil
}

// Settings is Config with every value parsed.
type Settings struct {
	Origin            string
	CacheDir          string
	CacheMaxEntries   int
	CacheMinTTL       time.Duration
	RequestTimeout    time.Duration
	RetryInitialDelay time.Duration
	RetryBudget       time.Duration
	PageDelayMin      time.Duration
	PageDelayMax      time.Duration
	Headless          bool
	Cities            []internal.City
	WarmDays          int
	WarmSchedule      string
	LogLevel          slog.Level
}

func (c Config) Resolve() (Settings, error) {
	s := Settings{
		Origin:          strings.TrimSuffix(c.Origin, "/"),
		CacheDir:        c.CacheDir,
		CacheMaxEntries: c.CacheMaxEntries,
		Headless:        c.Headless != nil && *c.Headless,
		WarmDays:        c.WarmDays,
		WarmSchedule:    c.WarmSchedule,
	}

	durations := []struct {
		field string
		value string
		dst   *time.Duration
	}{
		{"cacheMinTtl", c.CacheMinTTL, &s.CacheMinTTL},
		{"requestTimeout", c.RequestTimeout, &s.RequestTimeout},
		{"retryInitialDelay", c.RetryInitialDelay, &s.RetryInitialDelay},
		{"retryBudget", c.RetryBudget, &s.RetryBudget},
		{"pageDelayMin", c.PageDelayMin, &s.PageDelayMin},
		{"pageDelayMax", c.PageDelayMax, &s.PageDelayMax},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: %s: %w", ErrInvalidConfig, d.field, err)
		}
		if parsed < 0 {
			return Settings{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, d.field)
		}
		*d.dst = parsed
	}
	if s.WarmDays < 1 {
		return Settings{}, fmt.Errorf("%w: warmDays must be at least 1", ErrInvalidConfig)
	}
	if s.PageDelayMax < s.PageDelayMin {
		return Settings{}, fmt.Errorf("%w: pageDelayMax %s is below pageDelayMin %s",
			ErrInvalidConfig, s.PageDelayMax, s.PageDelayMin)
	}

	for _, name := range c.Cities {
		city, err := internal.ParseCity(name)
		if err != nil {
			return Settings{}, fmt.Errorf("%w: cities: %w", ErrInvalidConfig, err)
		}
		s.Cities = append(s.Cities, city)
	}
	if len(s.Cities) == 0 {
		s.Cities = internal.Cities()
	}

	if err := s.LogLevel.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return Settings{}, fmt.Errorf("%w: logLevel: %w", ErrInvalidConfig, err)
	}
	return s, nil
}
