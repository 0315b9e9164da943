// Package station implements the station access manager: a FIFO gatekeeper
// in front of each physical station (a device docking point, a queue lane)
// that hands out exclusive access grants to plates in arrival order, up to
// the station's configured slot capacity.
package station

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Boticus-OG/Titan/pkg/actor"
)

// ErrUnknownStation is returned for any request naming a station ID the
// manager wasn't configured with.
var ErrUnknownStation = errors.New("station: unknown station id")

// ErrNotHolder is returned when a plate tries to release a station it
// does not currently occupy.
var ErrNotHolder = errors.New("station: plate does not hold this station")

// EventAccessGranted is published whenever a plate receives (immediately or
// from the queue) access to a station.
const EventAccessGranted = "station.access_granted"

// EventAccessRequested is published whenever a plate's request is enqueued.
const EventAccessRequested = "station.access_requested"

// EventAccessReleased is published whenever a plate gives up a station.
const EventAccessReleased = "station.access_released"

type requestAccess struct {
	stationID string
	plateID   string
}

type releaseAccess struct {
	stationID string
	plateID   string
}

type cancelRequest struct {
	stationID string
	plateID   string
}

// Grant describes the outcome of a RequestAccess call.
type Grant struct {
	Granted       bool
	QueuePosition int // 1-based position if not immediately granted
}

type stationState struct {
	slots     int
	occupants map[string]struct{}
	queue     []string // plate IDs, FIFO
}

// Manager is the station access actor. Construct with NewManager and call
// Start before issuing requests.
type Manager struct {
	runtime *actor.Runtime
	states  map[string]*stationState
	pub     actor.EventPublisher
	logger  zerolog.Logger
}

// StationConfig describes a station's slot capacity for manager setup.
type StationConfig struct {
	ID    string
	Slots int
}

// NewManager builds a station manager for the given station configs. A
// Slots value below 1 defaults to 1.
func NewManager(stations []StationConfig, pub actor.EventPublisher, logger zerolog.Logger) *Manager {
	m := &Manager{
		states: make(map[string]*stationState, len(stations)),
		pub:    pub,
		logger: logger,
	}
	for _, s := range stations {
		slots := s.Slots
		if slots < 1 {
			slots = 1
		}
		m.states[s.ID] = &stationState{slots: slots, occupants: make(map[string]struct{})}
	}
	m.runtime = actor.New("station-manager", m.handle,
		actor.WithLogger(logger),
		actor.WithPublisher(pub),
	)
	return m
}

// Start begins processing requests.
func (m *Manager) Start() { m.runtime.Start() }

// Stop halts the manager, failing any in-flight requests with ErrStopped.
func (m *Manager) Stop() { m.runtime.Stop() }

// RequestAccess asks for access to stationID on behalf of plateID. If the
// station has a free slot, access is granted immediately. If it is full,
// the plate is enqueued FIFO and Granted is false; the caller should wait
// for an EventAccessGranted event naming this plate and station.
func (m *Manager) RequestAccess(ctx context.Context, stationID, plateID string) (Grant, error) {
	res, err := m.runtime.Ask(ctx, requestAccess{stationID: stationID, plateID: plateID})
	if err != nil {
		return Grant{}, err
	}
	return res.(Grant), nil
}

// ReleaseAccess relinquishes plateID's occupancy of stationID. If plates
// are waiting and a slot frees up, the longest-waiting ones become
// occupants and an EventAccessGranted event is published for each.
func (m *Manager) ReleaseAccess(ctx context.Context, stationID, plateID string) error {
	_, err := m.runtime.Ask(ctx, releaseAccess{stationID: stationID, plateID: plateID})
	return err
}

// CancelRequest removes plateID from stationID's wait queue. It is a no-op
// if the plate is not queued (e.g. it already holds the station or was
// never queued).
func (m *Manager) CancelRequest(ctx context.Context, stationID, plateID string) error {
	_, err := m.runtime.Ask(ctx, cancelRequest{stationID: stationID, plateID: plateID})
	return err
}

func (m *Manager) handle(msg interface{}) (interface{}, error) {
	switch req := msg.(type) {
	case requestAccess:
		return m.onRequestAccess(req)
	case releaseAccess:
		return nil, m.onReleaseAccess(req)
	case cancelRequest:
		return nil, m.onCancelRequest(req)
	default:
		return nil, fmt.Errorf("station: unhandled message type %T", msg)
	}
}

func (m *Manager) onRequestAccess(req requestAccess) (Grant, error) {
	st, ok := m.states[req.stationID]
	if !ok {
		return Grant{}, ErrUnknownStation
	}
	if len(st.occupants) < st.slots {
		st.occupants[req.plateID] = struct{}{}
		m.publishGranted(req.stationID, req.plateID)
		return Grant{Granted: true}, nil
	}
	st.queue = append(st.queue, req.plateID)
	m.publishRequested(req.stationID, req.plateID, len(st.queue))
	return Grant{Granted: false, QueuePosition: len(st.queue)}, nil
}

func (m *Manager) onReleaseAccess(req releaseAccess) error {
	st, ok := m.states[req.stationID]
	if !ok {
		return ErrUnknownStation
	}
	if _, held := st.occupants[req.plateID]; !held {
		return ErrNotHolder
	}
	delete(st.occupants, req.plateID)
	if m.pub != nil {
		m.pub.Publish(EventAccessReleased, map[string]interface{}{
			"station_id": req.stationID,
			"plate_id":   req.plateID,
		})
	}
	for len(st.occupants) < st.slots && len(st.queue) > 0 {
		next := st.queue[0]
		st.queue = st.queue[1:]
		st.occupants[next] = struct{}{}
		m.publishGranted(req.stationID, next)
	}
	return nil
}

func (m *Manager) onCancelRequest(req cancelRequest) error {
	st, ok := m.states[req.stationID]
	if !ok {
		return ErrUnknownStation
	}
	for i, id := range st.queue {
		if id == req.plateID {
			st.queue = append(st.queue[:i], st.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Manager) publishGranted(stationID, plateID string) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(EventAccessGranted, map[string]interface{}{
		"station_id": stationID,
		"plate_id":   plateID,
	})
}

func (m *Manager) publishRequested(stationID, plateID string, queuePosition int) {
	if m.pub == nil {
		return
	}
	m.pub.Publish(EventAccessRequested, map[string]interface{}{
		"station_id":     stationID,
		"plate_id":       plateID,
		"queue_position": queuePosition,
	})
}
