package deck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Boticus-OG/Titan/pkg/types"
)

func validConfig() Config {
	return Config{
		Tiles: []TileConfig{
			{GridCol: 0, GridRow: 0, Enabled: true},
			{GridCol: 1, GridRow: 0, Enabled: true},
		},
		Tracks: []types.Track{
			{ID: "t1", Name: "main", Start: types.Position{X: 60, Y: 60}, End: types.Position{X: 300, Y: 60}},
		},
		Locations: []types.Location{
			{Name: "dock1", Type: types.LocationDevice, Position: types.Position{X: 300, Y: 60}, ParentTrackID: "t1", TrackDistance: 240},
			{Name: "queue1", Type: types.LocationQueue, Position: types.Position{X: 60, Y: 60}, ParentTrackID: "t1"},
		},
		Stations: []types.Station{
			{ID: "st1", DeviceType: "reader", DeviceActorID: "dev1", PrimaryLocation: "dock1", Slots: 1, QueueLocation: "queue1"},
		},
		Movers: []MoverConfig{
			{ID: "mover1", StartLocation: "queue1"},
		},
		Devices: []DeviceConfig{
			{ID: "dev1", Type: "reader"},
		},
	}
}

func TestLoadAndValidateWellFormedDeck(t *testing.T) {
	d := FromConfig(validConfig())
	require.NoError(t, d.Validate())

	anchor, err := d.ResolveLocation("dock1")
	require.NoError(t, err)
	assert.Equal(t, "t1", anchor.TrackID)
}

func TestValidateCatchesTrackOffEnabledTile(t *testing.T) {
	cfg := validConfig()
	cfg.Tracks[0].End = types.Position{X: 9000, Y: 9000}
	d := FromConfig(cfg)

	err := d.Validate()
	require.Error(t, err)
	ve, ok := err.(*ValidationError)
	require.True(t, ok)
	assert.NotEmpty(t, ve.Problems)
}

func TestValidateCatchesUnknownStationReferences(t *testing.T) {
	cfg := validConfig()
	cfg.Stations[0].PrimaryLocation = "does-not-exist"
	d := FromConfig(cfg)

	err := d.Validate()
	require.Error(t, err)
}

func TestValidateCatchesDuplicateTrackIDs(t *testing.T) {
	cfg := validConfig()
	cfg.Tracks = append(cfg.Tracks, cfg.Tracks[0])
	d := FromConfig(cfg)

	err := d.Validate()
	require.Error(t, err)
	ve := err.(*ValidationError)
	found := false
	for _, p := range ve.Problems {
		if p == `duplicate track id "t1"` {
			found = true
		}
	}
	assert.True(t, found)
}

func TestResolveLocationUnknownName(t *testing.T) {
	d := FromConfig(validConfig())
	_, err := d.ResolveLocation("nowhere")
	assert.Error(t, err)
}
