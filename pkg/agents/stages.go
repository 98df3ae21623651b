package agents

import (
	"fmt"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Stages returns the ten stages in pipeline order with their default failure
// policies. Advisory stages fall back to their computed values; stages whose
// output cannot be guessed halt.
func Stages() []pipeline.Stage {
	return []pipeline.Stage{
		pipeline.Bind[RequirementsInput, design.Requirements](RequirementsAgent{},
			requirementsInput, applyRequirements, nil, pipeline.PolicyHalt),
		pipeline.Bind[RegulationInput, design.Regulation](RegulationAgent{},
			regulationInput, applyRegulation, precomputed[RegulationInput, design.Regulation](RegulationAgent{}, regulationInput, applyRegulation), pipeline.PolicyHalt),
		pipeline.Bind[VastuInput, design.Vastu](VastuAgent{},
			vastuInput, applyVastu, precomputed[VastuInput, design.Vastu](VastuAgent{}, vastuInput, applyVastu), pipeline.PolicyUseDefault),
		pipeline.Bind[EcoInput, design.Eco](EcoAgent{},
			ecoInput, applyEco, precomputed[EcoInput, design.Eco](EcoAgent{}, ecoInput, applyEco), pipeline.PolicyUseDefault),
		pipeline.Bind[ZoningInput, design.ZonePlan](ZoningAgent{},
			zoningInput, applyZones, precomputed[ZoningInput, design.ZonePlan](ZoningAgent{}, zoningInput, applyFallbackZones), pipeline.PolicyUseDefault),
		pipeline.Bind[EngineerInput, design.Structure](EngineerAgent{},
			engineerInput, applyStructure, precomputed[EngineerInput, design.Structure](EngineerAgent{}, engineerInput, applyStructure), pipeline.PolicyUseDefault),
		pipeline.Bind[DimensioningInput, RoomSchedule](DimensioningAgent{},
			dimensioningInput, applyRooms, precomputed[DimensioningInput, RoomSchedule](DimensioningAgent{}, dimensioningInput, applyRooms), pipeline.PolicyHalt),
		pipeline.Bind[EngineeringInput, design.Engineering](EngineeringAgent{},
			engineeringInput, applyEngineering, precomputed[EngineeringInput, design.Engineering](EngineeringAgent{}, engineeringInput, applyEngineering), pipeline.PolicyUseDefault),
		pipeline.Bind[ValidationInput, design.Validation](ValidationAgent{},
			validationInput, applyValidation, nil, pipeline.PolicyHalt),
		pipeline.Bind[CostInput, design.Cost](CostAgent{},
			costInput, applyCost, nil, pipeline.PolicyHalt),
	}
}

// precomputed builds a stage default from the agent's own deterministic path:
// the computed values reconciled against no model output.
func precomputed[In, Out any](agent pipeline.Agent[In, Out], input pipeline.InputFunc[In], apply pipeline.ApplyFunc[Out]) pipeline.DefaultFunc {
	return func(dc *design.Context) ([]pipeline.Assumption, error) {
		in, err := input(dc, dc.Input.Answers)
		if err != nil {
			return nil, err
		}
		if err := agent.ValidateInput(in); err != nil {
			return nil, fmt.Errorf("%s default: %w", agent.Name(), err)
		}
		pre, err := agent.Precompute(in)
		if err != nil {
			return nil, fmt.Errorf("%s default: %w", agent.Name(), err)
		}
		out, _ := agent.Reconcile(in, pre, nil)
		apply(dc, &out)

		_, as := agent.Review(in, out)
		for i := range as {
			as[i].ID = pipeline.QuestionID(agent.Name(), as[i].ID)
			as[i].Agent = agent.Name()
		}
		return as, nil
	}
}

func requirementsInput(dc *design.Context, answers map[string]string) (RequirementsInput, error) {
	in := dc.Input
	return RequirementsInput{
		Brief:     in.Brief,
		Bedrooms:  in.Bedrooms,
		Bathrooms: in.Bathrooms,
		Floors:    in.Floors,
		BudgetINR: in.BudgetINR,
		Amenities: in.Amenities,
		Answers:   answers,
	}, nil
}

func applyRequirements(dc *design.Context, out *design.Requirements) { dc.Requirements = out }

func regulationInput(dc *design.Context, answers map[string]string) (RegulationInput, error) {
	if dc.Plot == nil {
		return RegulationInput{}, pipeline.Missing("plot")
	}
	return RegulationInput{Plot: *dc.Plot, Setbacks: design.SetbacksFt(dc.Input), Answers: answers}, nil
}

// applyRegulation keeps dc.Plot as the client gave it. Road values derived
// from answers or defaults live in dc.Regulation only, so a rerun after new
// answers starts from the client's values again.
func applyRegulation(dc *design.Context, out *design.Regulation) { dc.Regulation = out }

func vastuInput(dc *design.Context, answers map[string]string) (VastuInput, error) {
	if dc.Regulation == nil {
		return VastuInput{}, pipeline.Missing("regulation")
	}
	if dc.Requirements == nil {
		return VastuInput{}, pipeline.Missing("requirements")
	}
	return VastuInput{
		RoadSide:   dc.Regulation.RoadSide,
		Preference: dc.Input.VastuPreference,
		Pooja:      dc.Requirements.Pooja,
		Answers:    answers,
	}, nil
}

func applyVastu(dc *design.Context, out *design.Vastu) { dc.Vastu = out }

func ecoInput(dc *design.Context, _ map[string]string) (EcoInput, error) {
	if dc.Regulation == nil {
		return EcoInput{}, pipeline.Missing("regulation")
	}
	if dc.Requirements == nil {
		return EcoInput{}, pipeline.Missing("requirements")
	}
	return EcoInput{
		Envelope:     dc.Regulation.Envelope,
		PlotAreaSqft: dc.Regulation.PlotAreaSqft,
		Amenities:    dc.Requirements.Amenities,
	}, nil
}

func applyEco(dc *design.Context, out *design.Eco) { dc.Eco = out }

func zoningInput(dc *design.Context, _ map[string]string) (ZoningInput, error) {
	if dc.Regulation == nil {
		return ZoningInput{}, pipeline.Missing("regulation")
	}
	if dc.Requirements == nil {
		return ZoningInput{}, pipeline.Missing("requirements")
	}
	return ZoningInput{
		Envelope:     dc.Regulation.Envelope,
		Requirements: *dc.Requirements,
		Vastu:        dc.Vastu,
		RoadSide:     dc.Regulation.RoadSide,
		Courtyard:    dc.Eco != nil && dc.Eco.Courtyard.Required,
	}, nil
}

func applyZones(dc *design.Context, out *design.ZonePlan) { dc.Zones = out }

func applyFallbackZones(dc *design.Context, out *design.ZonePlan) {
	out.Source = ZoneSourceFallback
	dc.Zones = out
}

func engineerInput(dc *design.Context, answers map[string]string) (EngineerInput, error) {
	if dc.Requirements == nil {
		return EngineerInput{}, pipeline.Missing("requirements")
	}
	return EngineerInput{Floors: dc.Requirements.Floors, SoilType: dc.Input.SoilType, Answers: answers}, nil
}

func applyStructure(dc *design.Context, out *design.Structure) { dc.Structure = out }

func courtyardMin(dc *design.Context) float64 {
	if dc.Eco == nil || !dc.Eco.Courtyard.Required {
		return 0
	}
	return dc.Eco.Courtyard.MinAreaSqft
}

func dimensioningInput(dc *design.Context, _ map[string]string) (DimensioningInput, error) {
	if dc.Regulation == nil {
		return DimensioningInput{}, pipeline.Missing("regulation")
	}
	if dc.Requirements == nil {
		return DimensioningInput{}, pipeline.Missing("requirements")
	}
	return DimensioningInput{
		Requirements:  *dc.Requirements,
		Envelope:      dc.Regulation.Envelope,
		MaxGroundSqft: dc.Regulation.MaxGroundSqft,
		Zones:         dc.Zones,
		CourtyardMin:  courtyardMin(dc),
	}, nil
}

func applyRooms(dc *design.Context, out *RoomSchedule) { dc.Rooms = out.Rooms }

func engineeringInput(dc *design.Context, _ map[string]string) (EngineeringInput, error) {
	switch {
	case dc.Structure == nil:
		return EngineeringInput{}, pipeline.Missing("structure")
	case dc.Requirements == nil:
		return EngineeringInput{}, pipeline.Missing("requirements")
	case dc.Regulation == nil:
		return EngineeringInput{}, pipeline.Missing("regulation")
	case len(dc.Rooms) == 0:
		return EngineeringInput{}, pipeline.Missing("rooms")
	}
	return EngineeringInput{
		Structure: *dc.Structure,
		Floors:    dc.Requirements.Floors,
		MaxFloors: dc.Regulation.MaxFloors,
		RoadSide:  dc.Regulation.RoadSide,
		Rooms:     dc.Rooms,
		Vastu:     dc.Vastu,
	}, nil
}

func applyEngineering(dc *design.Context, out *design.Engineering) { dc.Engineering = out }

func validationInput(dc *design.Context, _ map[string]string) (ValidationInput, error) {
	switch {
	case dc.Regulation == nil:
		return ValidationInput{}, pipeline.Missing("regulation")
	case dc.Requirements == nil:
		return ValidationInput{}, pipeline.Missing("requirements")
	case len(dc.Rooms) == 0:
		return ValidationInput{}, pipeline.Missing("rooms")
	}
	return ValidationInput{
		Regulation:  *dc.Regulation,
		Rooms:       dc.Rooms,
		Floors:      dc.Requirements.Floors,
		Eco:         dc.Eco,
		Engineering: dc.Engineering,
	}, nil
}

func applyValidation(dc *design.Context, out *design.Validation) { dc.Validation = out }

func costInput(dc *design.Context, _ map[string]string) (CostInput, error) {
	switch {
	case dc.Structure == nil:
		return CostInput{}, pipeline.Missing("structure")
	case dc.Requirements == nil:
		return CostInput{}, pipeline.Missing("requirements")
	case len(dc.Rooms) == 0:
		return CostInput{}, pipeline.Missing("rooms")
	}
	in := CostInput{
		Rooms:     dc.Rooms,
		Strategy:  dc.Structure.Strategy,
		BudgetINR: dc.Requirements.BudgetINR,
	}
	if dc.Eco != nil {
		in.EcoINR = dc.Eco.EstimatedINR
	}
	return in, nil
}

func applyCost(dc *design.Context, out *design.Cost) { dc.Cost = out }
