package state

import (
	"context"
	"log/slog"
	"time"
)

// Settings are the tunables shared by every router of a network.
type Settings struct {
	Host            string        `yaml:"host,omitempty"`
	Interval        time.Duration `yaml:"interval,omitempty"`
	ReceivePerCycle int           `yaml:"receive_per_cycle,omitempty"`
	InboxSize       int           `yaml:"inbox_size,omitempty"`
	LogPath         string        `yaml:"log_path,omitempty"`
}

// WithDefaults fills every zero field from the package defaults. ReceivePerCycle defaults to 0.
func (s Settings) WithDefaults() Settings {
	if s.Host == "" {
		s.Host = DefaultHost.String()
	}
	if s.Interval == 0 {
		s.Interval = UpdateInterval
	}
	if s.InboxSize == 0 {
		s.InboxSize = InboxSize
	}
	if s.LogPath == "" {
		s.LogPath = DefaultLogPath
	}
	return s
}

// Override replaces every field of s that is set in o.
func (s Settings) Override(o Settings) Settings {
	if o.Host != "" {
		s.Host = o.Host
	}
	if o.Interval != 0 {
		s.Interval = o.Interval
	}
	if o.ReceivePerCycle != 0 {
		s.ReceivePerCycle = o.ReceivePerCycle
	}
	if o.InboxSize != 0 {
		s.InboxSize = o.InboxSize
	}
	if o.LogPath != "" {
		s.LogPath = o.LogPath
	}
	return s
}

// Env can be read from any goroutine
type Env struct {
	Context context.Context
	Cancel  context.CancelCauseFunc
	Log     *slog.Logger
	Settings
}

func NewEnv(parent context.Context, log *slog.Logger, settings Settings) *Env {
	ctx, cancel := context.WithCancelCause(parent)
	return &Env{
		Context:  ctx,
		Cancel:   cancel,
		Log:      log,
		Settings: settings.WithDefaults(),
	}
}
