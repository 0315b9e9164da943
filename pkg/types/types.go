package types

import (
	"fmt"
	"math"
	"time"
)

// Position is a point on the deck: absolute millimeters plus a heading in
// degrees. A position is only meaningful relative to a Deck, which is the
// sole authority on whether (X, Y) lies over an enabled tile.
type Position struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	C float64 `yaml:"c" json:"c"`
}

// DistanceTo returns the planar distance between two positions, ignoring heading.
func (p Position) DistanceTo(o Position) float64 {
	dx := p.X - o.X
	dy := p.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}

// Within reports whether p is within eps millimeters of o.
func (p Position) Within(o Position, eps float64) bool {
	return p.DistanceTo(o) <= eps
}

// TileSizeMM is the fixed edge length of a stator tile.
const TileSizeMM = 240.0

// Bounds is an axis-aligned rectangle in deck-absolute millimeters.
type Bounds struct {
	MinX, MinY, MaxX, MaxY float64
}

// Contains reports whether (x, y) lies within the bounds, inclusive.
func (b Bounds) Contains(x, y float64) bool {
	return x >= b.MinX && x <= b.MaxX && y >= b.MinY && y <= b.MaxY
}

// Tile is a single 240mm square region of the navigable surface.
type Tile struct {
	GridCol int    `yaml:"grid_col" json:"grid_col"`
	GridRow int    `yaml:"grid_row" json:"grid_row"`
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Bounds  Bounds `yaml:"-" json:"bounds"`
}

// QuadrantPoints returns the eight reference points at +-60mm and +-180mm
// from the tile's bottom-left corner, used for snapping and planning.
func (t Tile) QuadrantPoints() []Position {
	ox, oy := t.Bounds.MinX, t.Bounds.MinY
	offsets := []float64{60, 180}
	points := make([]Position, 0, 8)
	for _, dx := range offsets {
		for _, dy := range offsets {
			points = append(points, Position{X: ox + dx, Y: oy + dy})
			points = append(points, Position{X: ox - dx, Y: oy - dy})
		}
	}
	return points
}

// Track is a configured line segment over the deck, the primary abstraction
// used for planned motion.
type Track struct {
	ID     string  `yaml:"id" json:"id"`
	Name   string  `yaml:"name" json:"name"`
	Start  Position `yaml:"start" json:"start"`
	End    Position `yaml:"end" json:"end"`
}

// Length returns the physical length of the track in millimeters.
func (t Track) Length() float64 {
	return t.Start.DistanceTo(t.End)
}

// PointAt returns the position at the given signed distance from Start,
// clamped to [0, Length()].
func (t Track) PointAt(distance float64) Position {
	length := t.Length()
	if length == 0 {
		return t.Start
	}
	frac := distance / length
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return Position{
		X: t.Start.X + (t.End.X-t.Start.X)*frac,
		Y: t.Start.Y + (t.End.Y-t.Start.Y)*frac,
	}
}

// TrackConnectionEpsilonMM is the maximum gap between two track endpoints
// for them to be considered connected.
const TrackConnectionEpsilonMM = 5.0

// LocationType distinguishes the role a named point plays on the deck.
type LocationType string

const (
	LocationWaypoint           LocationType = "waypoint"
	LocationDevice             LocationType = "device"
	LocationPivot              LocationType = "pivot"
	LocationQueue              LocationType = "queue"
	LocationTrackServicePoint  LocationType = "track_service_location"
)

// Location is a named point of interest on the deck.
type Location struct {
	Name          string       `yaml:"name" json:"name"`
	Type          LocationType `yaml:"type" json:"type"`
	Position      Position     `yaml:"position" json:"position"`
	ParentTrackID string       `yaml:"parent_track_id,omitempty" json:"parent_track_id,omitempty"`
	TrackDistance float64      `yaml:"track_distance,omitempty" json:"track_distance,omitempty"`
	StationID     string       `yaml:"station_id,omitempty" json:"station_id,omitempty"`
}

// Station is a logical dock associated with exactly one device actor.
type Station struct {
	ID             string   `yaml:"id" json:"id"`
	DeviceType     string   `yaml:"device_type" json:"device_type"`
	DeviceActorID  string   `yaml:"device_actor_id" json:"device_actor_id"`
	PrimaryLocation string  `yaml:"primary_location" json:"primary_location"`
	Slots          int      `yaml:"slots" json:"slots"`
	QueueLocation  string   `yaml:"queue_location" json:"queue_location"`
}

// WorkflowStep is a single stop in a plate's itinerary. Duration == nil
// means the device signals completion asynchronously rather than on a timer.
type WorkflowStep struct {
	StepID     string                 `yaml:"step_id" json:"step_id"`
	Name       string                 `yaml:"name" json:"name"`
	StationID  string                 `yaml:"station_id" json:"station_id"`
	DeviceID   string                 `yaml:"device_id" json:"device_id"`
	DeviceType string                 `yaml:"device_type" json:"device_type"`
	Duration   *time.Duration         `yaml:"duration,omitempty" json:"duration,omitempty"`
	Parameters map[string]interface{} `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

// Workflow is an immutable, ordered itinerary. Once assigned to a plate it
// is never mutated (spec invariant I7); copy it to derive a variant.
type Workflow struct {
	ID    string          `yaml:"id" json:"id"`
	Name  string          `yaml:"name" json:"name"`
	Steps []WorkflowStep  `yaml:"steps" json:"steps"`
}

// Clone returns a deep-enough copy of the workflow so that callers can
// freely hold onto it without affecting the coordinator's copy.
func (w Workflow) Clone() Workflow {
	steps := make([]WorkflowStep, len(w.Steps))
	copy(steps, w.Steps)
	return Workflow{ID: w.ID, Name: w.Name, Steps: steps}
}

// PlatePhase is the plate actor's position in its own state machine.
type PlatePhase string

const (
	PhaseCreated          PlatePhase = "created"
	PhaseReady            PlatePhase = "ready"
	PhaseRequestingMover  PlatePhase = "requesting_mover"
	PhaseAwaitingMover    PlatePhase = "awaiting_mover"
	PhaseInTransit        PlatePhase = "in_transit"
	PhaseRequestingDevice PlatePhase = "requesting_device"
	PhaseLoading          PlatePhase = "loading"
	PhaseProcessing       PlatePhase = "processing"
	PhaseUnloading        PlatePhase = "unloading"
	PhasePaused           PlatePhase = "paused"
	PhaseError            PlatePhase = "error"
	PhaseAborted          PlatePhase = "aborted"
	PhaseCompleted        PlatePhase = "completed"
)

// Terminal reports whether the phase is a final resting state.
func (p PlatePhase) Terminal() bool {
	return p == PhaseAborted || p == PhaseCompleted
}

// PlateLocationKind discriminates the variant carried by PlateLocation.
type PlateLocationKind string

const (
	PlateLocUnassigned PlateLocationKind = "unassigned"
	PlateLocOnMover    PlateLocationKind = "on_mover"
	PlateLocInDevice   PlateLocationKind = "in_device"
	PlateLocInStorage  PlateLocationKind = "in_storage"
)

// PlateLocation is the tagged-variant location of a plate. Exactly the
// fields relevant to Kind are populated; callers must switch on Kind rather
// than infer it from which fields are non-empty.
type PlateLocation struct {
	Kind      PlateLocationKind `json:"kind"`
	MoverID   string            `json:"mover_id,omitempty"`
	DeviceID  string            `json:"device_id,omitempty"`
	StationID string            `json:"station_id,omitempty"`
	SlotID    string            `json:"slot_id,omitempty"`
}

// HistoryEntry is one bounded record in a plate's or mover's event history.
type HistoryEntry struct {
	Timestamp time.Time `json:"timestamp"`
	EventType string    `json:"event_type"`
	Detail    string    `json:"detail,omitempty"`
}

// PlateState is an immutable snapshot of a plate actor's state, returned by
// GetPlateState. Mutating it does not affect the running actor.
type PlateState struct {
	PlateID       string          `json:"plate_id"`
	SampleIDs     []string        `json:"sample_ids"`
	Barcode       string          `json:"barcode,omitempty"`
	Workflow      Workflow        `json:"workflow"`
	StepIndex     int             `json:"step_index"`
	Phase         PlatePhase      `json:"phase"`
	Location      PlateLocation   `json:"location"`
	AssignedMover string          `json:"assigned_mover,omitempty"`
	StartTime     time.Time       `json:"start_time"`
	StepStartTime time.Time       `json:"step_start_time"`
	LastError     string          `json:"last_error,omitempty"`
	ErrorStep     int             `json:"error_step,omitempty"`
	History       []HistoryEntry  `json:"history"`
}

// MoverRunState is the mover actor's internal driving state.
type MoverRunState string

const (
	MoverIdle         MoverRunState = "idle"
	MoverAssigned     MoverRunState = "assigned"
	MoverTransporting MoverRunState = "transporting"
)

// MoverPhysicalState is an immutable snapshot of a mover actor's physical
// state, returned by the coordinator's ListMovers.
type MoverPhysicalState struct {
	MoverID       string        `json:"mover_id"`
	Position      Position      `json:"position"`
	TrackID       string        `json:"track_id,omitempty"`
	TrackDistance float64       `json:"track_distance"`
	Velocity      float64       `json:"velocity"`
	State         MoverRunState `json:"state"`
	AssignedPlate string        `json:"assigned_plate,omitempty"`
}

// DeviceRunState is the device actor's internal processing state.
type DeviceRunState string

const (
	DeviceIdle       DeviceRunState = "idle"
	DeviceLoading    DeviceRunState = "loading"
	DeviceProcessing DeviceRunState = "processing"
	DeviceUnloading  DeviceRunState = "unloading"
	DeviceError      DeviceRunState = "error"
)

// String renders a Position for logging.
func (p Position) String() string {
	return fmt.Sprintf("(%.1f, %.1f, %.1f)", p.X, p.Y, p.C)
}
