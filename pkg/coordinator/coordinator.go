// Package coordinator assembles a deck, its pools, movers, and devices
// into a running Titan instance, and exposes the thin in-process API the
// HTTP/WS layer and the physical driver sit on top of: spawning plates,
// querying their state, broadcasting control signals, and subscribing to
// the event stream. It also loads the YAML workflow library that gives
// cmd/titan a concrete source of itineraries to hand to spawned plates.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/Boticus-OG/Titan/pkg/deck"
	"github.com/Boticus-OG/Titan/pkg/device"
	"github.com/Boticus-OG/Titan/pkg/devicepool"
	"github.com/Boticus-OG/Titan/pkg/driverapi"
	"github.com/Boticus-OG/Titan/pkg/eventbus"
	"github.com/Boticus-OG/Titan/pkg/mover"
	"github.com/Boticus-OG/Titan/pkg/moverpool"
	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/plate"
	"github.com/Boticus-OG/Titan/pkg/station"
	"github.com/Boticus-OG/Titan/pkg/types"
)

// WorkflowLibrary is the YAML document shape for a file of named
// itineraries, so cmd/titan can load a deck of workflows the same way it
// loads a deck of geometry.
type WorkflowLibrary struct {
	Workflows []types.Workflow `yaml:"workflows"`
}

// LoadWorkflowLibrary reads a YAML workflow library file and indexes it by
// workflow ID.
func LoadWorkflowLibrary(path string) (map[string]types.Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("coordinator: reading workflow library %s: %w", path, err)
	}
	var lib WorkflowLibrary
	if err := yaml.Unmarshal(data, &lib); err != nil {
		return nil, fmt.Errorf("coordinator: parsing workflow library %s: %w", path, err)
	}
	out := make(map[string]types.Workflow, len(lib.Workflows))
	for _, wf := range lib.Workflows {
		if _, dup := out[wf.ID]; dup {
			return nil, fmt.Errorf("coordinator: duplicate workflow id %q in %s", wf.ID, path)
		}
		out[wf.ID] = wf
	}
	return out, nil
}

// PlateRef is the opaque handle spawn_plate hands back to a caller: enough
// to address the plate without exposing the running actor directly.
type PlateRef struct {
	PlateID string
}

// ControlKind enumerates the operator-issued control actions a plate can
// receive through control_plate.
type ControlKind string

const (
	ControlPause     ControlKind = "pause"
	ControlResume    ControlKind = "resume"
	ControlAbort     ControlKind = "abort"
	ControlRetryStep ControlKind = "retry_step"
	ControlSkipStep  ControlKind = "skip_step"
)

// Coordinator owns the deck, the resource pools, every spawned mover and
// device actor, and the index of live plates. It implements plate.World so
// the plates it spawns can resolve deck geometry and collaborator handles
// without depending on the coordinator type itself.
type Coordinator struct {
	mu sync.RWMutex

	deck       *deck.Deck
	bus        *eventbus.Bus
	stationMgr *station.Manager
	moverPool  *moverpool.Pool
	devicePool *devicepool.Pool
	driver     *driverapi.SimulatedDriver
	logger     zerolog.Logger

	movers  map[string]*mover.Mover
	devices map[string]*device.Device
	plates  map[string]*plate.Plate
}

// New assembles a Coordinator from a loaded, validated deck and a physical
// driver. It spawns (but does not Start) one mover actor per configured
// mover and one device actor per configured device.
func New(d *deck.Deck, drv *driverapi.SimulatedDriver, bus *eventbus.Bus, logger zerolog.Logger) *Coordinator {
	stationConfigs := make([]station.StationConfig, 0, len(d.Stations))
	for _, st := range d.Stations {
		stationConfigs = append(stationConfigs, station.StationConfig{ID: st.ID, Slots: st.Slots})
	}
	sort.Slice(stationConfigs, func(i, j int) bool { return stationConfigs[i].ID < stationConfigs[j].ID })

	moverIDs := make([]string, 0, len(d.Movers))
	startPositions := make(map[string]types.Position, len(d.Movers))
	for _, mc := range d.Movers {
		moverIDs = append(moverIDs, mc.ID)
		startPositions[mc.ID] = d.StartPosition(mc)
	}
	sort.Strings(moverIDs)

	deviceIDs := make([]string, 0, len(d.Devices))
	for _, dc := range d.Devices {
		deviceIDs = append(deviceIDs, dc.ID)
	}
	sort.Strings(deviceIDs)

	c := &Coordinator{
		deck:       d,
		bus:        bus,
		stationMgr: station.NewManager(stationConfigs, bus, logger),
		moverPool:  moverpool.New(moverIDs, startPositions, d.Tiles, d.Tracks, bus, logger),
		devicePool: devicepool.New(deviceIDs, bus, logger),
		driver:     drv,
		logger:     logger,
		movers:     make(map[string]*mover.Mover, len(d.Movers)),
		devices:    make(map[string]*device.Device, len(d.Devices)),
		plates:     make(map[string]*plate.Plate),
	}

	for _, mc := range d.Movers {
		c.movers[mc.ID] = mover.New(mc.ID, c.StartPosition(mc), d.Tiles, d.Tracks, drv, bus, logger.With().Str("mover_id", mc.ID).Logger())
	}
	for _, dc := range d.Devices {
		c.devices[dc.ID] = device.New(dc.ID, drv, bus, logger.With().Str("device_id", dc.ID).Logger())
	}

	return c
}

// StartPosition is a small pass-through so New can resolve a mover's
// starting position without exporting deck internals beyond what
// Coordinator already needs.
func (c *Coordinator) StartPosition(mc deck.MoverConfig) types.Position {
	return c.deck.StartPosition(mc)
}

// Start brings every owned actor up: the resource pools, then every mover
// and device. Plates are started individually as they are spawned.
func (c *Coordinator) Start() {
	c.stationMgr.Start()
	c.moverPool.Start()
	c.devicePool.Start()
	for _, mv := range c.movers {
		mv.Start()
	}
	for _, dv := range c.devices {
		dv.Start()
	}
}

// Stop tears down every owned actor, including spawned plates.
func (c *Coordinator) Stop() {
	c.mu.RLock()
	plates := make([]*plate.Plate, 0, len(c.plates))
	for _, p := range c.plates {
		plates = append(plates, p)
	}
	c.mu.RUnlock()

	for _, p := range plates {
		p.Stop()
	}
	for _, dv := range c.devices {
		dv.Stop()
	}
	for _, mv := range c.movers {
		mv.Stop()
	}
	c.devicePool.Stop()
	c.moverPool.Stop()
	c.stationMgr.Stop()
}

// plate.World implementation.

func (c *Coordinator) GetMover(id string) (plate.MoverHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mv, ok := c.movers[id]
	if !ok {
		return nil, false
	}
	return mv, true
}

func (c *Coordinator) GetDevice(id string) (plate.DeviceHandle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	dv, ok := c.devices[id]
	if !ok {
		return nil, false
	}
	return dv, true
}

func (c *Coordinator) GetStation(id string) (types.Station, bool) {
	st, ok := c.deck.Stations[id]
	return st, ok
}

func (c *Coordinator) ResolveLocation(name string) (planner.Anchor, error) {
	return c.deck.ResolveLocation(name)
}

// SpawnPlate creates, starts, and indexes a new plate actor, then hands it
// its workflow. The plate begins driving itself as soon as AssignWorkflow
// returns.
func (c *Coordinator) SpawnPlate(ctx context.Context, plateID string, wf types.Workflow, sampleIDs []string, barcode string) (PlateRef, error) {
	c.mu.Lock()
	if _, dup := c.plates[plateID]; dup {
		c.mu.Unlock()
		return PlateRef{}, fmt.Errorf("coordinator: plate %q already exists", plateID)
	}
	p := plate.New(plateID, sampleIDs, barcode, plate.Deps{
		World:      c,
		StationMgr: c.stationMgr,
		MoverPool:  c.moverPool,
		DevicePool: c.devicePool,
		Bus:        c.bus,
	}, c.logger.With().Str("plate_id", plateID).Logger())
	c.plates[plateID] = p
	c.mu.Unlock()

	p.Start()
	if err := p.AssignWorkflow(ctx, wf); err != nil {
		return PlateRef{}, err
	}
	return PlateRef{PlateID: plateID}, nil
}

// GetPlateState returns a snapshot of one plate's state.
func (c *Coordinator) GetPlateState(ctx context.Context, plateID string) (types.PlateState, error) {
	c.mu.RLock()
	p, ok := c.plates[plateID]
	c.mu.RUnlock()
	if !ok {
		return types.PlateState{}, fmt.Errorf("coordinator: unknown plate %q", plateID)
	}
	return p.GetState(ctx)
}

// ListPlates returns a snapshot of every known plate, ordered by ID for
// deterministic output.
func (c *Coordinator) ListPlates(ctx context.Context) ([]types.PlateState, error) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.plates))
	for id := range c.plates {
		ids = append(ids, id)
	}
	plates := make(map[string]*plate.Plate, len(c.plates))
	for id, p := range c.plates {
		plates[id] = p
	}
	c.mu.RUnlock()
	sort.Strings(ids)

	out := make([]types.PlateState, 0, len(ids))
	for _, id := range ids {
		state, err := plates[id].GetState(ctx)
		if err != nil {
			return nil, fmt.Errorf("coordinator: getting state of plate %q: %w", id, err)
		}
		out = append(out, state)
	}
	return out, nil
}

// ListMovers returns a snapshot of every mover's physical state, ordered by
// ID for deterministic output.
func (c *Coordinator) ListMovers(ctx context.Context) ([]types.MoverPhysicalState, error) {
	c.mu.RLock()
	ids := make([]string, 0, len(c.movers))
	for id := range c.movers {
		ids = append(ids, id)
	}
	movers := make(map[string]*mover.Mover, len(c.movers))
	for id, mv := range c.movers {
		movers[id] = mv
	}
	c.mu.RUnlock()
	sort.Strings(ids)

	out := make([]types.MoverPhysicalState, 0, len(ids))
	for _, id := range ids {
		state, err := movers[id].GetState(ctx)
		if err != nil {
			return nil, fmt.Errorf("coordinator: getting state of mover %q: %w", id, err)
		}
		out = append(out, types.MoverPhysicalState{
			MoverID:       id,
			Position:      state.Position,
			TrackID:       "",
			TrackDistance: 0,
			State:         state.RunState,
			AssignedPlate: state.AssignedPlate,
		})
	}
	return out, nil
}

// ControlPlate dispatches one operator control action to a plate.
func (c *Coordinator) ControlPlate(ctx context.Context, plateID string, kind ControlKind, reason string) error {
	c.mu.RLock()
	p, ok := c.plates[plateID]
	c.mu.RUnlock()
	if !ok {
		return fmt.Errorf("coordinator: unknown plate %q", plateID)
	}

	switch kind {
	case ControlPause:
		p.Pause(reason)
		return nil
	case ControlResume:
		p.Resume(ctx)
		return nil
	case ControlAbort:
		p.Abort(reason)
		return nil
	case ControlRetryStep:
		return p.RetryStep(ctx)
	case ControlSkipStep:
		return p.SkipStep(ctx)
	default:
		return fmt.Errorf("coordinator: unknown control kind %q", kind)
	}
}

// Subscribe registers a callback for events matching pattern on the
// coordinator's bus, the same bus every pool, mover, device, and plate
// publishes to.
func (c *Coordinator) Subscribe(pattern string, callback eventbus.Callback) eventbus.UnsubscribeHandle {
	return c.bus.Subscribe(pattern, callback)
}
