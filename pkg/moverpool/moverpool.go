// Package moverpool dispatches movers to plates: a FIFO wait queue for
// plates with no mover available, and planner-cost-based selection (the
// cheapest route the path planner can find from each idle mover to the
// requester's position) when more than one mover is idle at once.
package moverpool

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/actor"
	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/types"
)

// ErrNoMoversConfigured is returned when the pool was constructed with no
// movers at all.
var ErrNoMoversConfigured = errors.New("moverpool: no movers configured")

// ErrUnknownMover is returned for ReleaseMover/UpdatePosition calls naming a
// mover the pool doesn't know about.
var ErrUnknownMover = errors.New("moverpool: unknown mover id")

// EventMoverAssigned is published when a mover is handed to a plate,
// whether immediately or from the wait queue.
const EventMoverAssigned = "moverpool.mover_assigned"

type moverEntry struct {
	id        string
	available bool
	position  types.Position
}

type waiter struct {
	plateID  string
	position types.Position
}

type requestMover struct {
	plateID  string
	position types.Position
}

type releaseMover struct {
	moverID string
}

type updatePosition struct {
	moverID  string
	position types.Position
}

type cancelRequest struct {
	plateID string
}

// Assignment describes the outcome of a RequestMover call.
type Assignment struct {
	MoverID       string
	Granted       bool
	QueuePosition int
}

// Pool is the mover dispatch actor.
type Pool struct {
	runtime *actor.Runtime
	movers  map[string]*moverEntry
	order   []string // mover ids sorted by ID, for deterministic tie-breaks
	queue   []waiter
	tiles   []types.Tile
	tracks  []types.Track
	pub     actor.EventPublisher
	logger  zerolog.Logger
}

// New builds a mover pool seeded with the given mover IDs and starting
// positions (keyed by mover ID). tiles and tracks describe the deck the
// movers run on and are handed to the path planner on every selection.
func New(moverIDs []string, startPositions map[string]types.Position, tiles []types.Tile, tracks []types.Track, pub actor.EventPublisher, logger zerolog.Logger) *Pool {
	sorted := make([]string, len(moverIDs))
	copy(sorted, moverIDs)
	sort.Strings(sorted)

	p := &Pool{
		movers: make(map[string]*moverEntry, len(sorted)),
		order:  sorted,
		tiles:  tiles,
		tracks: tracks,
		pub:    pub,
		logger: logger,
	}
	for _, id := range sorted {
		p.movers[id] = &moverEntry{id: id, available: true, position: startPositions[id]}
	}
	p.runtime = actor.New("mover-pool", p.handle,
		actor.WithLogger(logger),
		actor.WithPublisher(pub),
	)
	return p
}

// Start begins processing requests.
func (p *Pool) Start() { p.runtime.Start() }

// Stop halts the pool.
func (p *Pool) Stop() { p.runtime.Stop() }

// RequestMover asks for the nearest idle mover to position on behalf of
// plateID. If none are idle, plateID is enqueued FIFO and the caller
// should wait for an EventMoverAssigned event naming this plate.
func (p *Pool) RequestMover(ctx context.Context, plateID string, position types.Position) (Assignment, error) {
	res, err := p.runtime.Ask(ctx, requestMover{plateID: plateID, position: position})
	if err != nil {
		return Assignment{}, err
	}
	return res.(Assignment), nil
}

// ReleaseMover returns moverID to the pool. If plates are waiting, the
// longest-waiting one is immediately handed the available mover with the
// cheapest route to it, which is not necessarily moverID.
func (p *Pool) ReleaseMover(ctx context.Context, moverID string) error {
	_, err := p.runtime.Ask(ctx, releaseMover{moverID: moverID})
	return err
}

// UpdatePosition records a mover's latest known position, used for cost
// estimation on the next RequestMover call.
func (p *Pool) UpdatePosition(ctx context.Context, moverID string, position types.Position) error {
	_, err := p.runtime.Ask(ctx, updatePosition{moverID: moverID, position: position})
	return err
}

// CancelRequest removes plateID from the wait queue, if present.
func (p *Pool) CancelRequest(ctx context.Context, plateID string) error {
	_, err := p.runtime.Ask(ctx, cancelRequest{plateID: plateID})
	return err
}

func (p *Pool) handle(msg interface{}) (interface{}, error) {
	switch req := msg.(type) {
	case requestMover:
		return p.onRequestMover(req)
	case releaseMover:
		return nil, p.onReleaseMover(req)
	case updatePosition:
		return nil, p.onUpdatePosition(req)
	case cancelRequest:
		return nil, p.onCancelRequest(req)
	default:
		return nil, fmt.Errorf("moverpool: unhandled message type %T", msg)
	}
}

func (p *Pool) onRequestMover(req requestMover) (Assignment, error) {
	if len(p.movers) == 0 {
		return Assignment{}, ErrNoMoversConfigured
	}

	best := p.nearestAvailable(req.position)
	if best != "" {
		p.movers[best].available = false
		p.publishAssigned(best, req.plateID)
		return Assignment{MoverID: best, Granted: true}, nil
	}

	p.queue = append(p.queue, waiter{plateID: req.plateID, position: req.position})
	return Assignment{Granted: false, QueuePosition: len(p.queue)}, nil
}

// nearestAvailable returns the idle mover with lowest planner-estimated
// cost to pos, tie-broken by lowest mover ID. A mover
// the planner can't route to at all (disconnected track, no enabled tile
// under the destination) is skipped even if it sits closer in a straight
// line than every reachable mover.
func (p *Pool) nearestAvailable(pos types.Position) string {
	best := ""
	bestCost := -1.0
	for _, id := range p.order {
		m := p.movers[id]
		if !m.available {
			continue
		}
		plan, err := planner.Plan(planner.Request{
			Source:      planner.Anchor{Position: m.position},
			Destination: planner.Anchor{Position: pos},
			Tiles:       p.tiles,
			Tracks:      p.tracks,
		})
		if err != nil {
			p.logger.Debug().Str("mover_id", id).Err(err).Msg("moverpool: mover unreachable, skipping")
			continue
		}
		if bestCost < 0 || plan.EstimatedCost < bestCost {
			bestCost = plan.EstimatedCost
			best = id
		}
	}
	return best
}

func (p *Pool) onReleaseMover(req releaseMover) error {
	m, ok := p.movers[req.moverID]
	if !ok {
		return ErrUnknownMover
	}
	m.available = true

	if len(p.queue) > 0 {
		next := p.queue[0]
		p.queue = p.queue[1:]
		// Re-run selection against every now-available mover (possibly the
		// one just released), per the pool's fulfillment rule: a release
		// wakes the head waiter but doesn't necessarily hand it the mover
		// that was freed.
		best := p.nearestAvailable(next.position)
		if best != "" {
			p.movers[best].available = false
			p.publishAssigned(best, next.plateID)
		} else {
			// No available mover can route to the head waiter; it keeps its
			// place at the front of the queue.
			p.queue = append([]waiter{next}, p.queue...)
		}
	}
	return nil
}

func (p *Pool) onUpdatePosition(req updatePosition) error {
	m, ok := p.movers[req.moverID]
	if !ok {
		return ErrUnknownMover
	}
	m.position = req.position
	return nil
}

func (p *Pool) onCancelRequest(req cancelRequest) error {
	for i, w := range p.queue {
		if w.plateID == req.plateID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (p *Pool) publishAssigned(moverID, plateID string) {
	if p.pub == nil {
		return
	}
	p.pub.Publish(EventMoverAssigned, map[string]interface{}{
		"mover_id": moverID,
		"plate_id": plateID,
	})
}
