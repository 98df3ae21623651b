package agents

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// DefaultRoadWidthFt is assumed when the road width is not known.
const DefaultRoadWidthFt = 20

// GroundCoverage is the share of the plot the ground floor may cover.
const GroundCoverage = 0.75

// RegulationInput is the plot and any setbacks the client already has.
type RegulationInput struct {
	Plot     design.Plot
	Setbacks *design.Setbacks
	Answers  map[string]string
}

// RegulationAgent computes setbacks, the buildable envelope and the FSI limits.
// The model adds notes and approvals only.
type RegulationAgent struct{}

func (RegulationAgent) Name() string { return RegulationCompliance }

func (RegulationAgent) SystemPrompt() string {
	return "You advise on Tamil Nadu building rules (TNCDBR 2019) for small residential plots. Numbers are computed for you; add notes and required approvals."
}

func (RegulationAgent) ValidateInput(in RegulationInput) error {
	if in.Plot.WidthFt <= 0 || in.Plot.DepthFt <= 0 {
		return fmt.Errorf("plot dimensions must be positive, got %.2f x %.2f", in.Plot.WidthFt, in.Plot.DepthFt)
	}
	if in.Plot.RoadSide != "" && !in.Plot.RoadSide.Valid() {
		return fmt.Errorf("invalid road side %q", in.Plot.RoadSide)
	}
	if s := in.Setbacks; s != nil && (s.North < 0 || s.South < 0 || s.East < 0 || s.West < 0) {
		return errors.New("setbacks must not be negative")
	}
	return nil
}

// setbackRule is one row of the default setback table.
type setbackRule struct {
	maxAreaSqft float64
	front       float64
	rear        float64
	side        float64
}

//nolint:gochecknoglobals
var defaultSetbacks = []setbackRule{
	{maxAreaSqft: 1200, front: 5, rear: 3, side: 3},
	{maxAreaSqft: 2400, front: 6.5, rear: 5, side: 5},
	{maxAreaSqft: math.Inf(1), front: 10, rear: 6.5, side: 6.5},
}

// DefaultSetbacks picks setbacks by plot area with the front on roadSide.
// An unknown road side is treated as north.
func DefaultSetbacks(areaSqft float64, roadSide design.Direction) design.Setbacks {
	if !roadSide.Valid() {
		roadSide = design.North
	}
	rule := defaultSetbacks[len(defaultSetbacks)-1]
	for _, r := range defaultSetbacks {
		if areaSqft <= r.maxAreaSqft {
			rule = r
			break
		}
	}
	sides := map[design.Direction]float64{
		design.North: rule.side, design.South: rule.side,
		design.East: rule.side, design.West: rule.side,
	}
	sides[roadSide] = rule.front
	sides[roadSide.Opposite()] = rule.rear
	return design.Setbacks{
		North: sides[design.North],
		South: sides[design.South],
		East:  sides[design.East],
		West:  sides[design.West],
	}
}

// BuildableEnvelope subtracts setbacks from the plot. Width loses the north
// and south setbacks, depth loses east and west.
func BuildableEnvelope(widthFt, depthFt float64, s design.Setbacks) (design.Envelope, error) {
	w := widthFt - s.North - s.South
	d := depthFt - s.East - s.West
	if w <= 0 || d <= 0 {
		return design.Envelope{}, fmt.Errorf("setbacks leave no buildable area (%.2f x %.2f ft)", w, d)
	}
	return design.Envelope{WidthFt: round2(w), DepthFt: round2(d), AreaSqft: round2(w * d)}, nil
}

// FSIForRoad returns the floor space index allowed for a road width.
func FSIForRoad(roadWidthFt float64) float64 {
	switch {
	case roadWidthFt < 20:
		return 1.5
	case roadWidthFt < 30:
		return 1.75
	case roadWidthFt < 40:
		return 2.0
	default:
		return 2.5
	}
}

// MaxFloorsForRoad caps the storey count by road width.
func MaxFloorsForRoad(roadWidthFt float64) int {
	switch {
	case roadWidthFt < 20:
		return 2
	case roadWidthFt < 30:
		return 3
	default:
		return 4
	}
}

func regulationRoad(in RegulationInput) (design.Direction, float64) {
	side := in.Plot.RoadSide
	if side == "" {
		if a, ok := answer(in.Answers, RegulationCompliance, "road_side"); ok {
			side = design.Direction(strings.ToLower(a))
		}
	}
	width := in.Plot.RoadWidthFt
	if width <= 0 {
		if a, ok := answer(in.Answers, RegulationCompliance, "road_width"); ok {
			if v, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(a), "ft"), 64); err == nil && v > 0 {
				width = v
			}
		}
	}
	if width <= 0 {
		width = DefaultRoadWidthFt
	}
	return side, width
}

func (RegulationAgent) Precompute(in RegulationInput) (design.Regulation, error) {
	side, roadWidth := regulationRoad(in)
	if side != "" && !side.Valid() {
		return design.Regulation{}, pipeline.NewStepError(pipeline.CodeInputInvalid, "answer to road side must be north, south, east or west, got %q", side)
	}

	setbacks, source := design.Setbacks{}, "input"
	if in.Setbacks != nil {
		setbacks = *in.Setbacks
	} else {
		setbacks, source = DefaultSetbacks(in.Plot.AreaSqft, side), "tn-default"
	}

	env, err := BuildableEnvelope(in.Plot.WidthFt, in.Plot.DepthFt, setbacks)
	if err != nil {
		return design.Regulation{}, pipeline.NewStepError(pipeline.CodeInputInvalid, "%v", err)
	}

	fsi := FSIForRoad(roadWidth)
	return design.Regulation{
		Setbacks:       setbacks,
		SetbackSource:  source,
		Envelope:       env,
		PlotAreaSqft:   round2(in.Plot.AreaSqft),
		FSI:            fsi,
		MaxBuiltUpSqft: round2(in.Plot.AreaSqft * fsi),
		GroundCoverage: GroundCoverage,
		MaxGroundSqft:  round2(math.Min(env.AreaSqft, in.Plot.AreaSqft*GroundCoverage)),
		MaxFloors:      MaxFloorsForRoad(roadWidth),
		RoadSide:       side,
		RoadWidthFt:    roadWidth,
	}, nil
}

func (RegulationAgent) BuildPrompt(in RegulationInput, pre design.Regulation, _ string) (string, error) {
	return newPrompt("List the regulatory notes and approvals for this residential plot.").
		section("Plot", fmt.Sprintf("%.1f x %.1f ft, authority %q, city %q", in.Plot.WidthFt, in.Plot.DepthFt, in.Plot.Authority, in.Plot.City)).
		fixed(pre).
		shape(design.Regulation{}), nil
}

func (RegulationAgent) Reconcile(_ RegulationInput, pre design.Regulation, model *design.Regulation) (design.Regulation, []design.Conflict) {
	out := pre
	if model == nil {
		return out, nil
	}
	var conflicts []design.Conflict
	if model.Envelope.AreaSqft > 0 && math.Abs(model.Envelope.AreaSqft-pre.Envelope.AreaSqft) > 0.5 {
		conflicts = append(conflicts, conflict(RegulationCompliance, "regulation.envelope.area_sqft", pre.Envelope.AreaSqft, model.Envelope.AreaSqft, keptFixed))
	}
	if model.FSI > 0 && model.FSI != pre.FSI {
		conflicts = append(conflicts, conflict(RegulationCompliance, "regulation.fsi", pre.FSI, model.FSI, keptFixed))
	}
	if model.MaxFloors > 0 && model.MaxFloors != pre.MaxFloors {
		conflicts = append(conflicts, conflict(RegulationCompliance, "regulation.max_floors", pre.MaxFloors, model.MaxFloors, keptFixed))
	}
	out.Notes = union(pre.Notes, model.Notes)
	out.ApprovalsNeeded = union(pre.ApprovalsNeeded, model.ApprovalsNeeded)
	return out, conflicts
}

func (RegulationAgent) Review(in RegulationInput, out design.Regulation) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	var qs []pipeline.OpenQuestion
	var as []pipeline.Assumption

	if out.RoadSide == "" {
		qs = append(qs, pipeline.OpenQuestion{
			ID: "road_side", Type: pipeline.Mandatory,
			Text:    "Which side of the plot faces the road?",
			Reason:  "Entrance, front setback, Vastu orientation and sewer connection all follow the road side.",
			Options: []string{string(design.North), string(design.South), string(design.East), string(design.West)},
		})
	}
	if in.Plot.RoadWidthFt <= 0 {
		if _, ok := answer(in.Answers, RegulationCompliance, "road_width"); !ok {
			qs = append(qs, pipeline.OpenQuestion{
				ID: "road_width", Type: pipeline.Optional,
				Text:    "How wide is the road in front of the plot (ft)?",
				Reason:  "FSI and the storey limit depend on road width.",
				Default: strconv.Itoa(DefaultRoadWidthFt),
			})
			as = append(as, pipeline.Assumption{
				ID: "road_width", Risk: pipeline.RiskMedium,
				Text:  fmt.Sprintf("Road width taken as %d ft", DefaultRoadWidthFt),
				Basis: "default",
			})
		}
	}
	if out.SetbackSource != "input" {
		as = append(as, pipeline.Assumption{
			ID: "setbacks", Risk: pipeline.RiskMedium,
			Text: fmt.Sprintf("Setbacks N%.1f S%.1f E%.1f W%.1f ft from the default table",
				out.Setbacks.North, out.Setbacks.South, out.Setbacks.East, out.Setbacks.West),
			Basis: "TNCDBR 2019 table by plot area",
		})
	}
	return qs, as
}
