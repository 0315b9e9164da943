// Package sweeper periodically compares the coordinator's plate and mover
// snapshots against what it saw on the previous pass, flagging anything
// that hasn't moved (literally, for a mover, or through its workflow, for
// a plate) in too long. It never mutates plate or mover state directly;
// it only logs, counts, and publishes events, leaving the decision of
// what to do about a stuck actor to an operator or external tooling.
package sweeper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/coordinator"
	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/log"
	"github.com/Boticus-OG/Titan/pkg/metrics"
	"github.com/Boticus-OG/Titan/pkg/types"
)

const (
	// EventStalePlate is published when a plate's step has not advanced
	// for longer than StalePlateThreshold.
	EventStalePlate = "sweeper.stale_plate"
	// EventSilentMover is published when a mover's position has not
	// changed for longer than SilentMoverThreshold while it was expected
	// to be moving.
	EventSilentMover = "sweeper.silent_mover"
)

// Config tunes the sweeper's staleness thresholds and cadence.
type Config struct {
	Interval             time.Duration
	StalePlateThreshold  time.Duration
	SilentMoverThreshold time.Duration
}

// DefaultConfig returns reasonable defaults for a lab deck: a ten-second
// sweep cadence and a two-minute staleness threshold for both plates and
// movers, generous enough to tolerate a slow device step without false
// positives.
func DefaultConfig() Config {
	return Config{
		Interval:             10 * time.Second,
		StalePlateThreshold:  2 * time.Minute,
		SilentMoverThreshold: 2 * time.Minute,
	}
}

type plateObservation struct {
	stepIndex int
	phase     types.PlatePhase
	seenAt    time.Time
	flagged   bool
}

type moverObservation struct {
	position types.Position
	seenAt   time.Time
	flagged  bool
}

// Sweeper runs a ticker-driven staleness sweep over a coordinator's live
// plates and movers.
type Sweeper struct {
	coord  *coordinator.Coordinator
	bus    *eventbus.Bus
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	plates  map[string]plateObservation
	movers  map[string]moverObservation
	stopCh  chan struct{}
}

// New creates a sweeper bound to a coordinator and its event bus.
func New(coord *coordinator.Coordinator, bus *eventbus.Bus, cfg Config) *Sweeper {
	return &Sweeper{
		coord:  coord,
		bus:    bus,
		cfg:    cfg,
		logger: log.WithComponent("sweeper"),
		plates: make(map[string]plateObservation),
		movers: make(map[string]moverObservation),
		stopCh: make(chan struct{}),
	}
}

// Start begins the sweep loop in its own goroutine.
func (s *Sweeper) Start() {
	go s.run()
}

// Stop halts the sweep loop.
func (s *Sweeper) Stop() {
	close(s.stopCh)
}

func (s *Sweeper) run() {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info().Msg("staleness sweeper started")

	for {
		select {
		case <-ticker.C:
			if err := s.sweep(); err != nil {
				s.logger.Error().Err(err).Msg("sweep cycle failed")
			}
		case <-s.stopCh:
			s.logger.Info().Msg("staleness sweeper stopped")
			return
		}
	}
}

// sweep performs one staleness-detection cycle.
func (s *Sweeper) sweep() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.StalenessSweepDuration)
		metrics.StalenessSweepsTotal.Inc()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.sweepPlates(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to sweep plates")
	}
	if err := s.sweepMovers(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to sweep movers")
	}
	return nil
}

func (s *Sweeper) sweepPlates(ctx context.Context) error {
	plates, err := s.coord.ListPlates(ctx)
	if err != nil {
		return fmt.Errorf("listing plates: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(plates))
	for _, p := range plates {
		seen[p.PlateID] = struct{}{}

		prev, ok := s.plates[p.PlateID]
		if p.Phase.Terminal() || p.Phase == types.PhaseError || p.Phase == types.PhasePaused {
			delete(s.plates, p.PlateID)
			continue
		}

		if !ok || prev.stepIndex != p.StepIndex || prev.phase != p.Phase {
			s.plates[p.PlateID] = plateObservation{stepIndex: p.StepIndex, phase: p.Phase, seenAt: now}
			continue
		}

		if !prev.flagged && now.Sub(prev.seenAt) > s.cfg.StalePlateThreshold {
			s.logger.Warn().
				Str("plate_id", p.PlateID).
				Str("phase", string(p.Phase)).
				Dur("stuck_for", now.Sub(prev.seenAt)).
				Msg("plate has not advanced, flagging as stale")
			metrics.StalePlatesDetectedTotal.Inc()
			s.bus.Publish(EventStalePlate, map[string]interface{}{
				"plate_id":  p.PlateID,
				"phase":     string(p.Phase),
				"step":      p.StepIndex,
				"stuck_for": now.Sub(prev.seenAt).String(),
			})
			prev.flagged = true
		}
		s.plates[p.PlateID] = prev
	}

	for id := range s.plates {
		if _, ok := seen[id]; !ok {
			delete(s.plates, id)
		}
	}
	return nil
}

func (s *Sweeper) sweepMovers(ctx context.Context) error {
	movers, err := s.coord.ListMovers(ctx)
	if err != nil {
		return fmt.Errorf("listing movers: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{}, len(movers))
	for _, m := range movers {
		seen[m.MoverID] = struct{}{}

		prev, ok := s.movers[m.MoverID]
		if m.State != types.MoverTransporting {
			delete(s.movers, m.MoverID)
			continue
		}

		if !ok || prev.position != m.Position {
			s.movers[m.MoverID] = moverObservation{position: m.Position, seenAt: now}
			continue
		}

		if !prev.flagged && now.Sub(prev.seenAt) > s.cfg.SilentMoverThreshold {
			s.logger.Warn().
				Str("mover_id", m.MoverID).
				Dur("silent_for", now.Sub(prev.seenAt)).
				Msg("mover has not reported a position change while transporting, flagging as silent")
			s.bus.Publish(EventSilentMover, map[string]interface{}{
				"mover_id":   m.MoverID,
				"silent_for": now.Sub(prev.seenAt).String(),
			})
			prev.flagged = true
		}
		s.movers[m.MoverID] = prev
	}

	for id := range s.movers {
		if _, ok := seen[id]; !ok {
			delete(s.movers, id)
		}
	}
	return nil
}
