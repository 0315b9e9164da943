// Package deck loads and validates the boot-time, immutable description of
// the physical surface a Titan scheduler runs over: stator tiles, tracks,
// named locations, stations, and the devices and movers bound to them. A
// deck is read once, at startup, from a single YAML document, and handed
// read-only to the planner, the pools, and the plate actors; nothing in the
// running system mutates it.
package deck

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Boticus-OG/Titan/pkg/planner"
	"github.com/Boticus-OG/Titan/pkg/types"
)

// TileConfig is the YAML shape of a single stator tile.
type TileConfig struct {
	GridCol int  `yaml:"grid_col"`
	GridRow int  `yaml:"grid_row"`
	Enabled bool `yaml:"enabled"`
}

// MoverConfig is the YAML shape of a mover's boot-time identity and
// starting position.
type MoverConfig struct {
	ID            string `yaml:"id"`
	StartLocation string `yaml:"start_location"`
}

// DeviceConfig is the YAML shape of a device's boot-time identity.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Type string `yaml:"type"`
}

// Config is the raw YAML document shape for a deck file.
type Config struct {
	Tiles     []TileConfig     `yaml:"tiles"`
	Tracks    []types.Track    `yaml:"tracks"`
	Locations []types.Location `yaml:"locations"`
	Stations  []types.Station  `yaml:"stations"`
	Movers    []MoverConfig    `yaml:"movers"`
	Devices   []DeviceConfig   `yaml:"devices"`
}

// Deck is the resolved, query-ready form of a deck configuration.
type Deck struct {
	Tiles     []types.Tile
	Tracks    []types.Track
	Locations map[string]types.Location
	Stations  map[string]types.Station
	Movers    []MoverConfig
	Devices   []DeviceConfig
}

// ValidationError aggregates every problem found during Validate, so a
// misconfigured deck file is reported in one pass rather than one error at
// a time.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	if len(e.Problems) == 1 {
		return fmt.Sprintf("deck: %s", e.Problems[0])
	}
	return fmt.Sprintf("deck: %d problems found, first: %s", len(e.Problems), e.Problems[0])
}

func (e *ValidationError) add(format string, args ...interface{}) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// Load reads and parses a deck YAML file, resolving tile bounds and
// building lookup maps, but does not validate it; call Validate separately
// so callers can distinguish a malformed file from a well-formed-but-
// inconsistent one.
func Load(path string) (*Deck, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deck: reading %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("deck: parsing %s: %w", path, err)
	}
	return FromConfig(cfg), nil
}

// FromConfig resolves a parsed Config into a query-ready Deck.
func FromConfig(cfg Config) *Deck {
	tiles := make([]types.Tile, len(cfg.Tiles))
	for i, tc := range cfg.Tiles {
		minX := float64(tc.GridCol) * types.TileSizeMM
		minY := float64(tc.GridRow) * types.TileSizeMM
		tiles[i] = types.Tile{
			GridCol: tc.GridCol,
			GridRow: tc.GridRow,
			Enabled: tc.Enabled,
			Bounds: types.Bounds{
				MinX: minX,
				MinY: minY,
				MaxX: minX + types.TileSizeMM,
				MaxY: minY + types.TileSizeMM,
			},
		}
	}

	locations := make(map[string]types.Location, len(cfg.Locations))
	for _, loc := range cfg.Locations {
		locations[loc.Name] = loc
	}

	stations := make(map[string]types.Station, len(cfg.Stations))
	for _, st := range cfg.Stations {
		stations[st.ID] = st
	}

	return &Deck{
		Tiles:     tiles,
		Tracks:    cfg.Tracks,
		Locations: locations,
		Stations:  stations,
		Movers:    cfg.Movers,
		Devices:   cfg.Devices,
	}
}

// Validate enforces the deck's structural invariants: every track endpoint
// must land on an enabled tile, every location naming a parent track must
// reference a track that exists, every station's primary and queue
// locations must exist, station device bindings must reference a
// configured device, and mover start locations must resolve. It returns
// nil if the deck is consistent, or a *ValidationError aggregating every
// problem found.
func (d *Deck) Validate() error {
	ve := &ValidationError{}

	trackByID := make(map[string]types.Track, len(d.Tracks))
	for _, t := range d.Tracks {
		if _, dup := trackByID[t.ID]; dup {
			ve.add("duplicate track id %q", t.ID)
			continue
		}
		trackByID[t.ID] = t
	}

	for _, t := range d.Tracks {
		if !d.onEnabledTile(t.Start) {
			ve.add("track %q start point does not lie on an enabled tile", t.ID)
		}
		if !d.onEnabledTile(t.End) {
			ve.add("track %q end point does not lie on an enabled tile", t.ID)
		}
	}

	deviceByID := make(map[string]struct{}, len(d.Devices))
	for _, dc := range d.Devices {
		if _, dup := deviceByID[dc.ID]; dup {
			ve.add("duplicate device id %q", dc.ID)
			continue
		}
		deviceByID[dc.ID] = struct{}{}
	}

	for name, loc := range d.Locations {
		if loc.ParentTrackID != "" {
			if _, ok := trackByID[loc.ParentTrackID]; !ok {
				ve.add("location %q references unknown parent track %q", name, loc.ParentTrackID)
			}
		}
	}

	for id, st := range d.Stations {
		if _, ok := d.Locations[st.PrimaryLocation]; !ok {
			ve.add("station %q references unknown primary location %q", id, st.PrimaryLocation)
		}
		if st.QueueLocation != "" {
			if _, ok := d.Locations[st.QueueLocation]; !ok {
				ve.add("station %q references unknown queue location %q", id, st.QueueLocation)
			}
		}
		if _, ok := deviceByID[st.DeviceActorID]; !ok {
			ve.add("station %q references unknown device %q", id, st.DeviceActorID)
		}
		if st.Slots < 1 {
			ve.add("station %q has non-positive slot count %d", id, st.Slots)
		}
	}

	moverIDs := make(map[string]struct{}, len(d.Movers))
	for _, mc := range d.Movers {
		if _, dup := moverIDs[mc.ID]; dup {
			ve.add("duplicate mover id %q", mc.ID)
			continue
		}
		moverIDs[mc.ID] = struct{}{}
		if mc.StartLocation != "" {
			if _, ok := d.Locations[mc.StartLocation]; !ok {
				ve.add("mover %q references unknown start location %q", mc.ID, mc.StartLocation)
			}
		}
	}

	if len(ve.Problems) == 0 {
		return nil
	}
	return ve
}

func (d *Deck) onEnabledTile(pos types.Position) bool {
	for _, t := range d.Tiles {
		if t.Bounds.Contains(pos.X, pos.Y) {
			return t.Enabled
		}
	}
	return false
}

// ResolveLocation turns a named location into a planner.Anchor. Locations
// with a ParentTrackID resolve to a mid-track anchor; all others resolve
// to a free-standing position the planner will snap to the nearest track
// endpoint.
func (d *Deck) ResolveLocation(name string) (planner.Anchor, error) {
	loc, ok := d.Locations[name]
	if !ok {
		return planner.Anchor{}, fmt.Errorf("deck: unknown location %q", name)
	}
	return planner.Anchor{
		Position: loc.Position,
		TrackID:  loc.ParentTrackID,
		Distance: loc.TrackDistance,
	}, nil
}

// StartPosition returns the resolved starting position for a configured
// mover, falling back to the zero position if it names no start location.
func (d *Deck) StartPosition(mc MoverConfig) types.Position {
	if mc.StartLocation == "" {
		return types.Position{}
	}
	if loc, ok := d.Locations[mc.StartLocation]; ok {
		return loc.Position
	}
	return types.Position{}
}
