package agents

import (
	"fmt"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

const soilUnknown = "unknown"

// EngineerInput is what the structural decision depends on.
type EngineerInput struct {
	Floors   int
	SoilType string
	Answers  map[string]string
}

// EngineerAgent picks the structural strategy and wall thicknesses. The model may
// comment; a different strategy from it is logged as a conflict.
type EngineerAgent struct{}

func (EngineerAgent) Name() string { return EngineerClarification }

func (EngineerAgent) SystemPrompt() string {
	return "You are a structural engineer for low-rise homes in Tamil Nadu. The strategy is decided by rule; add practical notes on foundation and detailing."
}

func (EngineerAgent) ValidateInput(in EngineerInput) error {
	if in.Floors < 1 {
		return fmt.Errorf("floors must be at least 1, got %d", in.Floors)
	}
	return nil
}

// IsSoftSoil reports soils that need a framed structure.
func IsSoftSoil(soil string) bool {
	s := strings.ToLower(soil)
	for _, k := range []string{"soft", "clay", "black cotton", "filled", "marsh", "loose"} {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

// StructuralStrategy applies the storey and soil rule.
func StructuralStrategy(floors int, soil string) string {
	switch {
	case floors >= 3 || IsSoftSoil(soil):
		return design.StrategyRCC
	case floors == 2:
		return design.StrategyHybrid
	default:
		return design.StrategyLoadBearing
	}
}

// WallThickness returns external and internal wall thickness in inches.
func WallThickness(strategy string, floors int) (external, internal float64) {
	if strategy == design.StrategyLoadBearing && floors >= 2 {
		return 13.5, 4.5
	}
	return 9, 4.5
}

func foundationFor(strategy, soil string) string {
	switch {
	case strategy == design.StrategyRCC && IsSoftSoil(soil):
		return "raft foundation"
	case strategy == design.StrategyRCC:
		return "isolated column footings"
	case strategy == design.StrategyHybrid:
		return "strip footing with RCC columns at corners"
	default:
		return "stepped brick strip footing"
	}
}

func engineerSoil(in EngineerInput) string {
	if a, ok := answer(in.Answers, EngineerClarification, "soil_type"); ok {
		return strings.ToLower(a)
	}
	if s := strings.TrimSpace(in.SoilType); s != "" {
		return strings.ToLower(s)
	}
	return soilUnknown
}

func (EngineerAgent) Precompute(in EngineerInput) (design.Structure, error) {
	soil := engineerSoil(in)
	strategy := StructuralStrategy(in.Floors, soil)
	ext, internal := WallThickness(strategy, in.Floors)
	return design.Structure{
		Strategy:       strategy,
		ExternalWallIn: ext,
		InternalWallIn: internal,
		SoilType:       soil,
		Foundation:     foundationFor(strategy, soil),
	}, nil
}

func (EngineerAgent) BuildPrompt(in EngineerInput, pre design.Structure, _ string) (string, error) {
	return newPrompt("Review the structural approach for this house and add engineering notes.").
		section("Building", fmt.Sprintf("%d floor(s), soil: %s", in.Floors, pre.SoilType)).
		fixed(pre).
		shape(design.Structure{}), nil
}

func (EngineerAgent) Reconcile(_ EngineerInput, pre design.Structure, model *design.Structure) (design.Structure, []design.Conflict) {
	out := pre
	if model == nil {
		return out, nil
	}
	var conflicts []design.Conflict
	if model.Strategy != "" && model.Strategy != pre.Strategy {
		conflicts = append(conflicts, conflict(EngineerClarification, "structure.strategy", pre.Strategy, model.Strategy, keptFixed))
	}
	if model.ExternalWallIn > 0 && model.ExternalWallIn != pre.ExternalWallIn {
		conflicts = append(conflicts, conflict(EngineerClarification, "structure.external_wall_in", pre.ExternalWallIn, model.ExternalWallIn, keptFixed))
	}
	out.Notes = union(pre.Notes, model.Notes)
	return out, conflicts
}

func (EngineerAgent) Review(in EngineerInput, out design.Structure) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	if out.SoilType != soilUnknown {
		return nil, nil
	}
	q := pipeline.OpenQuestion{
		ID: "soil_type", Type: pipeline.Optional,
		Text:    "What is the soil type on site?",
		Reason:  "Soft or expansive soils need a framed structure and a different foundation.",
		Default: "hard",
		Options: []string{"hard", "medium", "soft", "black cotton"},
	}
	a := pipeline.Assumption{
		ID: "soil_type", Risk: pipeline.RiskMedium,
		Text:  fmt.Sprintf("Firm soil assumed; %s structure chosen for %d floor(s)", out.Strategy, in.Floors),
		Basis: "no soil report",
	}
	return []pipeline.OpenQuestion{q}, []pipeline.Assumption{a}
}
