package tui

import (
	"time"

	"github.com/Veraticus/kasa/internal/service"
	"github.com/Veraticus/kasa/internal/tui/themes"
)

// DefaultInterval is how often the dashboard polls the log and status.
const DefaultInterval = 2 * time.Second

// Config holds TUI configuration.
type Config struct {
	Theme    themes.Theme
	Log      service.SettlementLog
	Status   service.StatusStore
	RunID    string
	Interval time.Duration
	Limit    int
	Width    int
	Height   int
}

// Option is a functional option for configuring the TUI.
type Option func(*Config)

func defaultConfig() Config {
	return Config{
		Theme:    themes.Default,
		Interval: DefaultInterval,
		Limit:    500,
		Width:    100,
		Height:   30,
	}
}

// WithLog sets the settlement log to display.
func WithLog(log service.SettlementLog) Option {
	return func(c *Config) {
		c.Log = log
	}
}

// WithStatus sets the live status store.
func WithStatus(status service.StatusStore) Option {
	return func(c *Config) {
		c.Status = status
	}
}

// WithTheme sets the color theme.
func WithTheme(theme themes.Theme) Option {
	return func(c *Config) {
		c.Theme = theme
	}
}

// WithInterval sets the poll interval.
func WithInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.Interval = d
		}
	}
}

// WithRunID restricts the record table to one run.
func WithRunID(id string) Option {
	return func(c *Config) {
		c.RunID = id
	}
}

// WithSize sets the initial terminal size.
func WithSize(width, height int) Option {
	return func(c *Config) {
		c.Width = width
		c.Height = height
	}
}
