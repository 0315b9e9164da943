/*
Package log provides structured logging for Titan using zerolog.

The log package wraps zerolog to give every actor and coordinator
component JSON-structured logging with context-specific child loggers,
configurable levels, and a small set of helper functions for common
logging patterns. All logs carry timestamps and support filtering by
severity for production debugging.

# Usage

Initializing the logger:

	import "github.com/Boticus-OG/Titan/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("coordinator starting")
	log.Debug("resolving deck geometry")
	log.Warn("station queue depth high")
	log.Error("failed to load deck file")
	log.Fatal("cannot start without a valid deck") // exits process

Context loggers:

	plateLog := log.WithPlateID("plate-42")
	plateLog.Info().Msg("workflow assigned")

	moverLog := log.WithMoverID("mover-1")
	moverLog.Debug().Str("track_id", "t1").Msg("position updated")

	deviceLog := log.WithComponent("device").
		With().Str("device_id", "dev-3").Logger()
	deviceLog.Error().Err(err).Msg("process failed")

# Design

A single package-level Logger is initialized once at startup via Init
and handed down into actors and the coordinator as per-instance child
loggers (zerolog.With().Str(...).Logger()) rather than referenced
globally from deep call sites — matching the way pkg/actor and every
actor package in this module take a zerolog.Logger as a constructor
argument. The global Logger and top-level Info/Debug/Warn/Error/Fatal
helpers remain for cmd/titan's own startup and shutdown messages, where
no actor-scoped logger exists yet.

# Security

Never log secrets or sensitive data; prefer structured fields
(.Str, .Int, .Err) over string concatenation so log output stays
parseable and injection-safe.
*/
package log
