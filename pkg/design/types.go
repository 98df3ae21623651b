// Package design holds the floor-plan domain model: the pipeline input and the
// DesignContext that accumulates decisions as stages run.
//
// All lengths are feet and all areas square feet once the plot is normalised.
package design

// Unit is the measurement unit of a plot as supplied.
type Unit string

const (
	UnitFeet   Unit = "feet"
	UnitMeters Unit = "meters"
)

// FeetPerMeter converts metric plots.
const FeetPerMeter = 3.28084

// Direction is a cardinal direction.
type Direction string

const (
	North Direction = "north"
	South Direction = "south"
	East  Direction = "east"
	West  Direction = "west"
)

// Valid reports whether d is one of the four cardinal directions.
func (d Direction) Valid() bool {
	switch d {
	case North, South, East, West:
		return true
	}
	return false
}

// Opposite returns the facing direction.
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	}
	return ""
}

// Structural strategies.
const (
	StrategyLoadBearing = "load-bearing"
	StrategyHybrid      = "hybrid"
	StrategyRCC         = "rcc"
)

// Zone names used by the zoning plan and rooms.
const (
	ZonePublic     = "public"
	ZonePrivate    = "private"
	ZoneService    = "service"
	ZoneTransition = "transition"
	ZoneOutdoor    = "outdoor"
)

// Validation report statuses.
const (
	StatusPassed   = "passed"
	StatusWarnings = "warnings"
	StatusFailed   = "failed"
)

// PlotInput is the plot as the client describes it.
type PlotInput struct {
	Width       float64   `json:"width"`
	Depth       float64   `json:"depth"`
	Unit        Unit      `json:"unit,omitempty"`
	RoadSide    Direction `json:"road_side,omitempty"`
	RoadWidthFt float64   `json:"road_width_ft,omitempty"`
	Authority   string    `json:"authority,omitempty"`
	City        string    `json:"city,omitempty"`
}

// Setbacks are the mandatory open margins on each side of the plot.
type Setbacks struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// Side returns the setback on d.
func (s Setbacks) Side(d Direction) float64 {
	switch d {
	case North:
		return s.North
	case South:
		return s.South
	case East:
		return s.East
	case West:
		return s.West
	}
	return 0
}

// Input is everything the client supplies to start a session.
type Input struct {
	Plot            PlotInput         `json:"plot"`
	Setbacks        *Setbacks         `json:"setbacks,omitempty"`
	Brief           string            `json:"brief"`
	Bedrooms        *int              `json:"bedrooms,omitempty"`
	Bathrooms       *int              `json:"bathrooms,omitempty"`
	Floors          int               `json:"floors,omitempty"`
	BudgetINR       float64           `json:"budget_inr,omitempty"`
	Amenities       []string          `json:"amenities,omitempty"`
	VastuPreference string            `json:"vastu_preference,omitempty"`
	SoilType        string            `json:"soil_type,omitempty"`
	Answers         map[string]string `json:"existing_answers,omitempty"`
}

// Plot is the normalised plot in feet.
type Plot struct {
	WidthFt     float64   `json:"width_ft"`
	DepthFt     float64   `json:"depth_ft"`
	AreaSqft    float64   `json:"area_sqft"`
	RoadSide    Direction `json:"road_side,omitempty"`
	RoadWidthFt float64   `json:"road_width_ft,omitempty"`
	Authority   string    `json:"authority,omitempty"`
	City        string    `json:"city,omitempty"`
}

// Envelope is the buildable rectangle left after setbacks.
type Envelope struct {
	WidthFt  float64 `json:"width_ft"`
	DepthFt  float64 `json:"depth_ft"`
	AreaSqft float64 `json:"area_sqft"`
}

// Regulation is the compliance envelope for the plot.
type Regulation struct {
	Setbacks        Setbacks  `json:"setbacks"`
	SetbackSource   string    `json:"setback_source"`
	Envelope        Envelope  `json:"envelope"`
	PlotAreaSqft    float64   `json:"plot_area_sqft"`
	FSI             float64   `json:"fsi"`
	MaxBuiltUpSqft  float64   `json:"max_built_up_sqft"`
	GroundCoverage  float64   `json:"ground_coverage"`
	MaxGroundSqft   float64   `json:"max_ground_sqft"`
	MaxFloors       int       `json:"max_floors"`
	RoadSide        Direction `json:"road_side"`
	RoadWidthFt     float64   `json:"road_width_ft"`
	Notes           []string  `json:"notes,omitempty"`
	ApprovalsNeeded []string  `json:"approvals_needed,omitempty"`
}

// Requirements is the structured version of the client brief.
type Requirements struct {
	Bedrooms        int      `json:"bedrooms"`
	Bathrooms       int      `json:"bathrooms"`
	Floors          int      `json:"floors"`
	Amenities       []string `json:"amenities"`
	Parking         bool     `json:"parking"`
	Pooja           bool     `json:"pooja"`
	HomeOffice      bool     `json:"home_office"`
	ElderlyFriendly bool     `json:"elderly_friendly"`
	FamilySize      int      `json:"family_size,omitempty"`
	BudgetINR       float64  `json:"budget_inr,omitempty"`
	Style           string   `json:"style,omitempty"`
}

// VastuPlacement is one recommended room direction.
type VastuPlacement struct {
	Room       string   `json:"room"`
	Directions []string `json:"directions"`
}

// Vastu holds zone recommendations. Placements are fixed by code.
type Vastu struct {
	Preference string           `json:"preference"`
	Placements []VastuPlacement `json:"placements"`
	Entrance   Direction        `json:"entrance"`
	Notes      []string         `json:"notes,omitempty"`
	Remedies   []string         `json:"remedies,omitempty"`
}

// Placement returns the directions recommended for room.
func (v *Vastu) Placement(room string) []string {
	if v == nil {
		return nil
	}
	for _, p := range v.Placements {
		if p.Room == room {
			return p.Directions
		}
	}
	return nil
}

// Courtyard sizing.
type Courtyard struct {
	Required    bool    `json:"required"`
	MinAreaSqft float64 `json:"min_area_sqft"`
}

// Eco lists sustainable-design elements.
type Eco struct {
	Mandatory      []string  `json:"mandatory"`
	Courtyard      Courtyard `json:"courtyard"`
	SumpLitres     int       `json:"sump_litres"`
	Suggestions    []string  `json:"suggestions,omitempty"`
	EstimatedINR   float64   `json:"estimated_inr"`
	MaterialsNotes []string  `json:"materials_notes,omitempty"`
}

// Zone is one area of the architectural zoning plan.
type Zone struct {
	Name     string   `json:"name"`
	Share    float64  `json:"share"`
	Quadrant string   `json:"quadrant"`
	AreaSqft float64  `json:"area_sqft"`
	Rooms    []string `json:"rooms,omitempty"`
}

// ZonePlan is the output of architectural zoning.
type ZonePlan struct {
	Zones       []Zone `json:"zones"`
	Circulation string `json:"circulation,omitempty"`
	Source      string `json:"source"`
}

// ZoneForRoom returns the zone a room type was assigned to, or "".
func (z *ZonePlan) ZoneForRoom(roomType string) string {
	if z == nil {
		return ""
	}
	for _, zone := range z.Zones {
		for _, r := range zone.Rooms {
			if r == roomType {
				return zone.Name
			}
		}
	}
	return ""
}

// Structure is the structural strategy chosen with the engineer.
type Structure struct {
	Strategy       string   `json:"strategy"`
	ExternalWallIn float64  `json:"external_wall_in"`
	InternalWallIn float64  `json:"internal_wall_in"`
	SoilType       string   `json:"soil_type"`
	Foundation     string   `json:"foundation,omitempty"`
	Notes          []string `json:"notes,omitempty"`
}

// Room is one dimensioned room.
type Room struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Floor    int     `json:"floor"`
	Zone     string  `json:"zone"`
	WidthFt  float64 `json:"width_ft"`
	DepthFt  float64 `json:"depth_ft"`
	AreaSqft float64 `json:"area_sqft"`
}

// WallSystem carries wall thicknesses into the engineering plan.
type WallSystem struct {
	Strategy   string  `json:"strategy"`
	ExternalIn float64 `json:"external_in"`
	InternalIn float64 `json:"internal_in"`
	Material   string  `json:"material"`
}

// Staircase geometry for multi-storey homes.
type Staircase struct {
	Type          string  `json:"type"`
	Position      string  `json:"position,omitempty"`
	WidthFt       float64 `json:"width_ft"`
	FloorHeightFt float64 `json:"floor_height_ft"`
	Risers        int     `json:"risers"`
	RiserIn       float64 `json:"riser_in"`
	TreadIn       float64 `json:"tread_in"`
}

// Plumbing strategy.
type Plumbing struct {
	WetAreasGrouped bool      `json:"wet_areas_grouped"`
	SewerSide       Direction `json:"sewer_side"`
	ShaftPositions  []string  `json:"shaft_positions,omitempty"`
}

// Expansion describes a future-extension provision.
type Expansion struct {
	Direction Direction `json:"direction"`
	Type      string    `json:"type"`
	Notes     string    `json:"notes,omitempty"`
}

// Engineering is the buildable engineering plan.
type Engineering struct {
	WallSystem        WallSystem `json:"wall_system"`
	Staircase         *Staircase `json:"staircase,omitempty"`
	Plumbing          Plumbing   `json:"plumbing"`
	VentilationShafts []string   `json:"ventilation_shafts,omitempty"`
	Expansion         Expansion  `json:"expansion"`
}

// Check is one line of the validation report.
type Check struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Validation is the design-validation report.
type Validation struct {
	Status string  `json:"status"`
	Checks []Check `json:"checks"`
}

// Cost is the construction estimate.
type Cost struct {
	BuiltUpSqft   float64 `json:"built_up_sqft"`
	RatePerSqft   float64 `json:"rate_per_sqft"`
	BaseINR       float64 `json:"base_inr"`
	EcoExtrasINR  float64 `json:"eco_extras_inr"`
	TotalINR      float64 `json:"total_inr"`
	BudgetINR     float64 `json:"budget_inr,omitempty"`
	OverBudgetPct float64 `json:"over_budget_pct,omitempty"`
}

// Conflict records a downstream disagreement with an upstream value. The
// upstream value is kept.
type Conflict struct {
	Agent      string `json:"agent"`
	Field      string `json:"field"`
	Existing   string `json:"existing"`
	Proposed   string `json:"proposed"`
	Resolution string `json:"resolution"`
}
