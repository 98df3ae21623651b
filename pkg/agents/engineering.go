package agents

import (
	"fmt"
	"math"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Staircase geometry.
const (
	FloorHeightFt   = 10.0
	MaxRiserIn      = 7.0
	TreadIn         = 10.0
	StairWidthFt    = 3.5
	defaultStairway = "dog-legged"
)

// StairGeometry returns the riser count and riser height for one flight
// between floors floorHeightFt apart.
func StairGeometry(floorHeightFt float64) (risers int, riserIn float64) {
	rise := floorHeightFt * 12
	risers = int(math.Ceil(rise / MaxRiserIn))
	return risers, round2(rise / float64(risers))
}

// EngineeringInput is what the engineering plan is derived from.
type EngineeringInput struct {
	Structure design.Structure
	Floors    int
	MaxFloors int
	RoadSide  design.Direction
	Rooms     []design.Room
	Vastu     *design.Vastu
}

// EngineeringAgent derives the wall system, staircase and plumbing from
// upstream decisions. Ventilation and expansion come from the model.
type EngineeringAgent struct{}

func (EngineeringAgent) Name() string { return EngineeringPlan }

func (EngineeringAgent) SystemPrompt() string {
	return "You prepare a buildable engineering plan for a small Tamil Nadu home: ventilation shafts, plumbing shafts and a future-expansion provision."
}

func (EngineeringAgent) ValidateInput(in EngineeringInput) error {
	if in.Structure.Strategy == "" {
		return fmt.Errorf("engineering plan needs a structural strategy")
	}
	if len(in.Rooms) == 0 {
		return fmt.Errorf("engineering plan needs a room schedule")
	}
	return nil
}

func wallMaterial(strategy string) string {
	switch strategy {
	case design.StrategyRCC:
		return "RCC frame with AAC block infill"
	case design.StrategyHybrid:
		return "burnt clay brick in CM 1:6 with RCC corner columns"
	default:
		return "burnt clay brick in CM 1:6"
	}
}

func isWet(roomType string) bool {
	switch roomType {
	case "kitchen", "bathroom", "utility":
		return true
	}
	return false
}

// wetAreasGrouped reports whether all wet rooms on each floor share one zone.
func wetAreasGrouped(rooms []design.Room) bool {
	zoneByFloor := map[int]string{}
	for _, r := range rooms {
		if !isWet(r.Type) {
			continue
		}
		if z, ok := zoneByFloor[r.Floor]; ok && z != r.Zone {
			return false
		}
		zoneByFloor[r.Floor] = r.Zone
	}
	return true
}

func (EngineeringAgent) Precompute(in EngineeringInput) (design.Engineering, error) {
	s := in.Structure
	out := design.Engineering{
		WallSystem: design.WallSystem{
			Strategy:   s.Strategy,
			ExternalIn: s.ExternalWallIn,
			InternalIn: s.InternalWallIn,
			Material:   wallMaterial(s.Strategy),
		},
		Plumbing: design.Plumbing{
			WetAreasGrouped: wetAreasGrouped(in.Rooms),
			SewerSide:       in.RoadSide,
		},
		Expansion: defaultExpansion(in),
	}
	if in.Floors > 1 {
		risers, riser := StairGeometry(FloorHeightFt)
		position := "southwest"
		if d := in.Vastu.Placement("staircase"); len(d) > 0 {
			position = d[0]
		}
		out.Staircase = &design.Staircase{
			Type:          defaultStairway,
			Position:      position,
			WidthFt:       StairWidthFt,
			FloorHeightFt: FloorHeightFt,
			Risers:        risers,
			RiserIn:       riser,
			TreadIn:       TreadIn,
		}
	}
	return out, nil
}

func defaultExpansion(in EngineeringInput) design.Expansion {
	rear := in.RoadSide.Opposite()
	if in.Floors < in.MaxFloors {
		return design.Expansion{Direction: rear, Type: "vertical", Notes: fmt.Sprintf("columns and footings sized for floor %d", in.Floors+1)}
	}
	return design.Expansion{Direction: rear, Type: "horizontal", Notes: "rear extension within setbacks"}
}

func (EngineeringAgent) BuildPrompt(in EngineeringInput, pre design.Engineering, view string) (string, error) {
	var wet []string
	for _, r := range in.Rooms {
		if isWet(r.Type) {
			wet = append(wet, fmt.Sprintf("%s (floor %d)", r.ID, r.Floor))
		}
	}
	return newPrompt("Complete the engineering plan: ventilation shafts, plumbing shaft positions and the expansion provision.").
		section("Wet areas", strings.Join(wet, ", ")).
		fixed(pre).
		section("Design so far", view).
		shape(design.Engineering{}), nil
}

// Reconcile keeps the wall system, staircase and sewer side, and takes
// shafts, ventilation and a well-formed expansion from the model.
func (EngineeringAgent) Reconcile(_ EngineeringInput, pre design.Engineering, model *design.Engineering) (design.Engineering, []design.Conflict) {
	out := pre
	if model == nil {
		return out, nil
	}
	var conflicts []design.Conflict
	if m := model.WallSystem.ExternalIn; m > 0 && m != pre.WallSystem.ExternalIn {
		conflicts = append(conflicts, conflict(EngineeringPlan, "engineering.wall_system.external_in", pre.WallSystem.ExternalIn, m, keptFixed))
	}
	if pre.Staircase != nil && model.Staircase != nil && model.Staircase.Risers > 0 && model.Staircase.Risers != pre.Staircase.Risers {
		conflicts = append(conflicts, conflict(EngineeringPlan, "engineering.staircase.risers", pre.Staircase.Risers, model.Staircase.Risers, keptFixed))
	}
	if pre.Staircase != nil && model.Staircase != nil && model.Staircase.Type != "" {
		stair := *pre.Staircase
		stair.Type = model.Staircase.Type
		out.Staircase = &stair
	}

	out.Plumbing.ShaftPositions = union(pre.Plumbing.ShaftPositions, model.Plumbing.ShaftPositions)
	out.VentilationShafts = union(pre.VentilationShafts, model.VentilationShafts)
	if model.Expansion.Direction.Valid() && strings.TrimSpace(model.Expansion.Type) != "" {
		out.Expansion = model.Expansion
	}
	return out, conflicts
}

func (EngineeringAgent) Review(in EngineeringInput, out design.Engineering) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	var as []pipeline.Assumption
	if out.Staircase != nil {
		as = append(as, pipeline.Assumption{
			ID: "floor-height", Risk: pipeline.RiskLow,
			Text: fmt.Sprintf("Floor-to-floor height %.0f ft; %d risers of %.2f in", out.Staircase.FloorHeightFt, out.Staircase.Risers, out.Staircase.RiserIn),
		})
	}
	if !out.Plumbing.WetAreasGrouped {
		as = append(as, pipeline.Assumption{
			ID: "wet-areas", Risk: pipeline.RiskMedium,
			Text:  "Wet areas sit in different zones; separate plumbing stacks needed",
			Basis: "room zones",
		})
	}
	if len(out.VentilationShafts) == 0 && in.Floors > 1 {
		as = append(as, pipeline.Assumption{
			ID: "ventilation", Risk: pipeline.RiskLow,
			Text: "No ventilation shaft proposed; bathrooms rely on external walls",
		})
	}
	return nil, as
}
