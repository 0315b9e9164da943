package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init must run before anything else in
// this package is useful; until then it's the zero value, which drops every
// event.
var Logger zerolog.Logger

// Level names accepted by Config. These mirror zerolog's own level names so
// Init can hand them straight to zerolog.ParseLevel rather than maintaining
// a parallel mapping.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls how Init builds the global logger.
type Config struct {
	Level Level
	// JSONOutput selects structured JSON records over the human-readable
	// console writer. Operators tailing a terminal want the latter; a log
	// shipper wants the former.
	JSONOutput bool
	// Output defaults to os.Stdout when nil.
	Output io.Writer
}

// Init builds the global Logger from cfg. Safe to call more than once, e.g.
// to raise verbosity after flags are parsed.
func Init(cfg Config) {
	level, err := zerolog.ParseLevel(string(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	Logger = zerolog.New(writerFor(cfg)).With().Timestamp().Logger()
}

func writerFor(cfg Config) io.Writer {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.JSONOutput {
		return out
	}
	return zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
}

// with returns a child of Logger tagged with a single string field. The
// WithXID helpers below are thin, named wrappers over this so call sites
// read as "tag this logger with a plate" rather than a bare key string.
func with(field, value string) zerolog.Logger {
	return Logger.With().Str(field, value).Logger()
}

// WithComponent tags a logger with the subsystem emitting it, for loggers
// handed to long-lived components (actors, pools, managers) at construction.
func WithComponent(component string) zerolog.Logger { return with("component", component) }

// WithPlateID tags a logger with the plate it concerns.
func WithPlateID(plateID string) zerolog.Logger { return with("plate_id", plateID) }

// WithMoverID tags a logger with the mover it concerns.
func WithMoverID(moverID string) zerolog.Logger { return with("mover_id", moverID) }

// WithStationID tags a logger with the station it concerns.
func WithStationID(stationID string) zerolog.Logger { return with("station_id", stationID) }

// WithDeviceID tags a logger with the device it concerns.
func WithDeviceID(deviceID string) zerolog.Logger { return with("device_id", deviceID) }

// Info, Debug, Warn, Error, Errorf, and Fatal log against the global Logger
// directly, for call sites that don't carry their own tagged logger.

func Info(msg string) { Logger.Info().Msg(msg) }

func Debug(msg string) { Logger.Debug().Msg(msg) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) { Logger.Error().Err(err).Msg(format) }

func Fatal(msg string) { Logger.Fatal().Msg(msg) }
