package cmd

import (
	"io"
	"log/slog"
	"os"

	"github.com/encodeous/dvsim/state"
	"github.com/encodeous/tint"
	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// resolveLogPath picks the --log flag, then the log_path of the topology, then the default.
func resolveLogPath() string {
	if logPath != "" {
		return logPath
	}
	if cfg, err := state.LoadTopology(configPath); err == nil {
		return cfg.Settings.WithDefaults().LogPath
	}
	return state.DefaultLogPath
}

// newLogger writes every record to a rotating log file. The console only gets logs with --verbose,
// so that they do not interleave with the shell.
func newLogger(console bool) (*slog.Logger, io.Closer) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	file := &lumberjack.Logger{
		Filename:   resolveLogPath(),
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}
	handlers := []slog.Handler{
		slog.NewTextHandler(file, &slog.HandlerOptions{Level: level}),
	}
	if console {
		handlers = append(handlers,
			tint.NewHandler(os.Stderr, &tint.Options{
				Level:        level,
				AddSource:    false,
				CustomPrefix: "dvsim",
				ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
					if attr.Key == "time" {
						return slog.Attr{}
					}
					return attr
				},
			}))
	}
	return slog.New(slogmulti.Fanout(handlers...)), file
}
