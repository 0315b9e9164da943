// Package driverapi defines the contract between Titan's actors and the
// physical layer (conveyor/mover controllers, instrument PLCs) and
// provides a deterministic in-memory SimulatedDriver for tests and
// standalone demo runs. A real deployment swaps SimulatedDriver for an
// implementation that speaks to the actual hardware network; the actors
// in pkg/mover and pkg/device never know the difference.
package driverapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/types"
)

// CompletionListener is notified when a device finishes a processing step
// out of band, mirroring how a real PLC would push a completion interrupt
// rather than being polled.
type CompletionListener func(deviceID, plateID, stepID string)

// SimulatedDriver is a deterministic stand-in for the physical layer. It
// tracks mover positions directly (free_move/hop_on/hop_off/follow/rotate
// all just overwrite position fields) and completes device operations
// after a configurable fixed delay, calling any registered completion
// listeners synchronously before returning.
type SimulatedDriver struct {
	mu        sync.Mutex
	positions map[string]types.Position
	listeners []CompletionListener
	stepDelay time.Duration
	logger    zerolog.Logger
}

// NewSimulatedDriver builds a simulated driver. stepDelay is the simulated
// processing time charged to every device Process call; zero means
// instantaneous completion, useful in unit tests.
func NewSimulatedDriver(stepDelay time.Duration, logger zerolog.Logger) *SimulatedDriver {
	return &SimulatedDriver{
		positions: make(map[string]types.Position),
		stepDelay: stepDelay,
		logger:    logger,
	}
}

// SeedPosition sets a mover's starting position before its actor is
// started.
func (s *SimulatedDriver) SeedPosition(moverID string, pos types.Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[moverID] = pos
}

// RegisterCompletionListener adds a callback invoked whenever a simulated
// Process call completes.
func (s *SimulatedDriver) RegisterCompletionListener(l CompletionListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// ExecuteCommand implements mover.Driver.
func (s *SimulatedDriver) ExecuteCommand(ctx context.Context, moverID string, cmd planner.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos := s.positions[moverID]
	switch cmd.Kind {
	case planner.CommandFreeMove, planner.CommandHopOff:
		pos.X, pos.Y = cmd.X, cmd.Y
	case planner.CommandRotate:
		pos.C = cmd.C
	case planner.CommandHopOn, planner.CommandFollow, planner.CommandTransition:
		// Position along a track is not modeled spatially by the simulator;
		// it only needs to agree with the planner's bookkeeping, which the
		// mover actor already tracks via Distance on the command.
	default:
		return fmt.Errorf("driverapi: unknown command kind %q", cmd.Kind)
	}
	s.positions[moverID] = pos
	return nil
}

// GetPosition implements mover.Driver.
func (s *SimulatedDriver) GetPosition(ctx context.Context, moverID string) (types.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positions[moverID], nil
}

// Load implements device.Driver.
func (s *SimulatedDriver) Load(ctx context.Context, deviceID, plateID string) error {
	s.logger.Debug().Str("device_id", deviceID).Str("plate_id", plateID).Msg("simulated load")
	return nil
}

// Process implements device.Driver.
func (s *SimulatedDriver) Process(ctx context.Context, deviceID string, step types.WorkflowStep) error {
	if s.stepDelay > 0 {
		select {
		case <-time.After(s.stepDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	s.mu.Lock()
	listeners := make([]CompletionListener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, l := range listeners {
		l(deviceID, "", step.StepID)
	}
	return nil
}

// Unload implements device.Driver.
func (s *SimulatedDriver) Unload(ctx context.Context, deviceID, plateID string) error {
	s.logger.Debug().Str("device_id", deviceID).Str("plate_id", plateID).Msg("simulated unload")
	return nil
}
