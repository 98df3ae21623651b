package agents

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorplanner/pkg/design"
)

func TestBuildableEnvelopeScenario(t *testing.T) {
	env, err := BuildableEnvelope(29, 41, design.Setbacks{North: 2, South: 3, East: 3.5, West: 2})
	require.NoError(t, err)
	assert.InDelta(t, 24, env.WidthFt, 1e-9)
	assert.InDelta(t, 35.5, env.DepthFt, 1e-9)
	assert.InDelta(t, 852, env.AreaSqft, 1e-9)
}

func TestBuildableEnvelopeRejectsConsumedPlot(t *testing.T) {
	_, err := BuildableEnvelope(10, 40, design.Setbacks{North: 5, South: 5, East: 3, West: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no buildable area")
}

func TestDefaultSetbacks(t *testing.T) {
	tests := []struct {
		name string
		area float64
		road design.Direction
		want design.Setbacks
	}{
		{"small east-facing", 1189, design.East, design.Setbacks{North: 3, South: 3, East: 5, West: 3}},
		{"medium north-facing", 2400, design.North, design.Setbacks{North: 6.5, South: 5, East: 5, West: 5}},
		{"large south-facing", 3000, design.South, design.Setbacks{North: 6.5, South: 10, East: 6.5, West: 6.5}},
		{"unknown road treated as north", 1000, "", design.Setbacks{North: 5, South: 3, East: 3, West: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultSetbacks(tt.area, tt.road))
		})
	}
}

func TestRoadWidthLimits(t *testing.T) {
	tests := []struct {
		width     float64
		fsi       float64
		maxFloors int
	}{
		{12, 1.5, 2},
		{19.9, 1.5, 2},
		{20, 1.75, 3},
		{30, 2.0, 4},
		{40, 2.5, 4},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.fsi, FSIForRoad(tt.width), 1e-9, "fsi for %.1f ft", tt.width)
		assert.Equal(t, tt.maxFloors, MaxFloorsForRoad(tt.width), "floors for %.1f ft", tt.width)
	}
}

func TestEcoSizing(t *testing.T) {
	assert.Equal(t, 4500, SumpLitres(1189))
	assert.Equal(t, 0, SumpLitres(0))
	assert.InDelta(t, 36, CourtyardMinArea(852), 1e-9)
	assert.InDelta(t, 60, CourtyardMinArea(1500), 1e-9)
}

func TestStructuralRules(t *testing.T) {
	assert.Equal(t, design.StrategyLoadBearing, StructuralStrategy(1, "hard"))
	assert.Equal(t, design.StrategyHybrid, StructuralStrategy(2, "hard"))
	assert.Equal(t, design.StrategyRCC, StructuralStrategy(3, "hard"))
	assert.Equal(t, design.StrategyRCC, StructuralStrategy(1, "Black cotton"))
	assert.False(t, IsSoftSoil(soilUnknown))

	ext, internal := WallThickness(design.StrategyLoadBearing, 2)
	assert.InDelta(t, 13.5, ext, 1e-9)
	assert.InDelta(t, 4.5, internal, 1e-9)
	ext, _ = WallThickness(design.StrategyRCC, 3)
	assert.InDelta(t, 9, ext, 1e-9)
}

func TestStairGeometry(t *testing.T) {
	risers, riser := StairGeometry(FloorHeightFt)
	assert.Equal(t, 18, risers)
	assert.InDelta(t, 6.67, riser, 1e-9)
	assert.LessOrEqual(t, riser, MaxRiserIn)
}

func TestParseINR(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"4500000", 4500000},
		{"45 lakh", 4500000},
		{"45L", 4500000},
		{"1.2 crore", 12000000},
		{"Rs. 30,00,000", 3000000},
		{"₹ 50 lakhs", 5000000},
	}
	for _, tt := range tests {
		got, err := ParseINR(tt.in)
		require.NoError(t, err, tt.in)
		assert.InDelta(t, tt.want, got, 1e-6, tt.in)
	}

	_, err := ParseINR("about fifty")
	assert.Error(t, err)
}

func TestBuiltUpAreaExcludesCourtyard(t *testing.T) {
	rooms := []design.Room{
		{ID: "living-1", Type: "living", AreaSqft: 500},
		{ID: "bedroom-2", Type: "bedroom", AreaSqft: 500},
		{ID: "courtyard-1", Type: "courtyard", AreaSqft: 36},
	}
	assert.InDelta(t, 1120, BuiltUpArea(rooms), 1e-9)
}

func TestRoomProgramme(t *testing.T) {
	req := design.Requirements{Bedrooms: 3, Bathrooms: 2, Floors: 2, Pooja: true, Parking: true}
	rooms := RoomProgramme(req, nil, 36)

	floors := map[string]int{}
	for _, r := range rooms {
		floors[r.ID] = r.Floor
		assert.InDelta(t, r.WidthFt*r.DepthFt, r.AreaSqft, 0.05, r.ID)
		assert.NotEmpty(t, r.Zone, r.ID)
	}
	assert.Equal(t, map[string]int{
		"living-1":         0,
		"dining-1":         0,
		"kitchen-1":        0,
		"pooja-1":          0,
		"parking-1":        0,
		"courtyard-1":      0,
		"utility-1":        0,
		"staircase-1":      0,
		"master-bedroom-1": 1,
		"bedroom-2":        1,
		"bedroom-3":        0,
		"bathroom-1":       0,
		"bathroom-2":       1,
	}, floors)

	elderly := RoomProgramme(design.Requirements{Bedrooms: 1, Floors: 2, ElderlyFriendly: true}, nil, 0)
	for _, r := range elderly {
		if r.Type == "master-bedroom" {
			assert.Equal(t, 0, r.Floor)
		}
	}
}

func TestRoomProgrammeUsesZonePlan(t *testing.T) {
	zones := &design.ZonePlan{Zones: []design.Zone{{Name: design.ZoneTransition, Rooms: []string{"dining"}}}}
	rooms := RoomProgramme(design.Requirements{Bedrooms: 1, Floors: 1}, zones, 0)
	for _, r := range rooms {
		switch r.Type {
		case "dining":
			assert.Equal(t, design.ZoneTransition, r.Zone)
		case "kitchen":
			assert.Equal(t, design.ZoneService, r.Zone)
		}
	}
}

func TestDefaultZonesNormalised(t *testing.T) {
	env := design.Envelope{WidthFt: 24, DepthFt: 35.5, AreaSqft: 852}
	plan := DefaultZones(env, 2, design.Requirements{Pooja: true}, nil, design.East, true)

	total := 0.0
	for _, z := range plan.Zones {
		total += z.Share
		assert.InDelta(t, z.Share*852*2, z.AreaSqft, 0.1, z.Name)
	}
	assert.InDelta(t, 1, total, 0.011)
	assert.Equal(t, ZoneSourceDefault, plan.Source)
	assert.Equal(t, design.ZoneTransition, plan.ZoneForRoom("courtyard"))
	assert.Equal(t, design.ZonePublic, plan.ZoneForRoom("pooja"))
}

func TestUnionKeepsFirstSpelling(t *testing.T) {
	got := union([]string{"Pooja", " parking "}, []string{"pooja", "Terrace"}, nil)
	assert.Equal(t, []string{"Pooja", "parking", "Terrace"}, got)
	assert.NotNil(t, union())
}
