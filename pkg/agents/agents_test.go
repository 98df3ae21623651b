package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"floorplanner/pkg/agent"
	"floorplanner/pkg/agent/llm"
	"floorplanner/pkg/budget"
	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

func reply(content string) llm.CompletionResponse {
	return llm.CompletionResponse{Content: content, StopReason: "end_turn", Usage: llm.Usage{InputTokens: 100, OutputTokens: 40}}
}

func testEnv(client llm.LLMClient) *pipeline.Env {
	return &pipeline.Env{
		Client:  client,
		Budget:  budget.NewTracker(budget.Config{}),
		Schemas: Schemas(),
		Answers: map[string]string{},
	}
}

func scenarioPlot() RegulationInput {
	return RegulationInput{
		Plot:     design.NormalizePlot(design.PlotInput{Width: 29, Depth: 41, RoadSide: design.East}),
		Setbacks: &design.Setbacks{North: 2, South: 3, East: 3.5, West: 2},
	}
}

func TestRegulationScenarioIgnoresModelArithmetic(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"envelope": {"width_ft": 29, "depth_ft": 41, "area_sqft": 1189}, "fsi": 3, "max_floors": 5, "notes": ["Corner plot"]}`),
	}, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), RegulationAgent{}, scenarioPlot())

	require.True(t, res.Success, "error: %+v", res.Error)
	reg := res.Data
	assert.InDelta(t, 24, reg.Envelope.WidthFt, 1e-9)
	assert.InDelta(t, 35.5, reg.Envelope.DepthFt, 1e-9)
	assert.InDelta(t, 852, reg.Envelope.AreaSqft, 1e-9)
	assert.InDelta(t, 1.75, reg.FSI, 1e-9)
	assert.InDelta(t, 2080.75, reg.MaxBuiltUpSqft, 1e-9)
	assert.InDelta(t, 852, reg.MaxGroundSqft, 1e-9)
	assert.Equal(t, 3, reg.MaxFloors)
	assert.Equal(t, "input", reg.SetbackSource)
	assert.Equal(t, []string{"Corner plot"}, reg.Notes)

	fields := make([]string, 0, len(res.Conflicts))
	for _, c := range res.Conflicts {
		fields = append(fields, c.Field)
	}
	assert.ElementsMatch(t, []string{"regulation.envelope.area_sqft", "regulation.fsi", "regulation.max_floors"}, fields)

	// Road width was not given: optional question plus an assumption.
	require.Len(t, res.OpenQuestions, 1)
	assert.Equal(t, "regulation-compliance.road_width", res.OpenQuestions[0].ID)
	assert.False(t, pipeline.HasUnansweredMandatory(res.OpenQuestions))
}

func TestDeterministicMergeIsIdempotent(t *testing.T) {
	outputs := []string{
		`{}`,
		`{"envelope": {"width_ft": 10, "depth_ft": 10, "area_sqft": 100}, "fsi": 9, "max_floors": 12}`,
		`{"setbacks": {"north": 0, "south": 0, "east": 0, "west": 0}, "max_built_up_sqft": 99999, "road_side": "west"}`,
	}
	var first *design.Regulation
	for _, out := range outputs {
		mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(out)}, nil)
		res := pipeline.Execute(context.Background(), testEnv(mock), RegulationAgent{}, scenarioPlot())
		require.True(t, res.Success, "output %s: %+v", out, res.Error)

		got := *res.Data
		got.Notes, got.ApprovalsNeeded = nil, nil
		if first == nil {
			first = &got
			continue
		}
		assert.Equal(t, *first, got, "model output %s changed deterministic fields", out)
	}
}

func TestEcoMergeIsIdempotent(t *testing.T) {
	in := EcoInput{Envelope: design.Envelope{WidthFt: 24, DepthFt: 35.5, AreaSqft: 852}, PlotAreaSqft: 1189}
	outputs := []string{
		`{"mandatory": [], "sump_litres": 100, "courtyard": {"required": false, "min_area_sqft": 10}}`,
		`{"mandatory": ["green roof"], "suggestions": ["jaali walls"], "estimated_inr": 5}`,
	}
	for _, out := range outputs {
		mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(out)}, nil)
		res := pipeline.Execute(context.Background(), testEnv(mock), EcoAgent{}, in)
		require.True(t, res.Success, "output %s: %+v", out, res.Error)

		eco := res.Data
		assert.Equal(t, []string{EcoRainwater, EcoSolarHeater, EcoCrossVent, EcoCourtyard}, eco.Mandatory)
		assert.Equal(t, 4500, eco.SumpLitres)
		assert.True(t, eco.Courtyard.Required)
		assert.InDelta(t, 36, eco.Courtyard.MinAreaSqft, 1e-9)
		assert.InDelta(t, 96400, eco.EstimatedINR, 1e-9)
	}
}

func TestEcoModelMandatoryBecomesSuggestion(t *testing.T) {
	in := EcoInput{Envelope: design.Envelope{WidthFt: 20, DepthFt: 20, AreaSqft: 400}, PlotAreaSqft: 800}
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"mandatory": ["Rainwater harvesting", "green roof"], "suggestions": ["jaali walls"]}`),
	}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), EcoAgent{}, in)

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.False(t, res.Data.Courtyard.Required)
	assert.Len(t, res.Data.Mandatory, 3)
	assert.Equal(t, []string{"green roof", "jaali walls"}, res.Data.Suggestions)
}

func TestRequirementsExplicitValuesWin(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"bedrooms": 4, "bathrooms": 3, "amenities": ["Terrace garden"], "home_office": true, "family_size": 5}`),
	}, nil)
	in := RequirementsInput{Brief: "3BHK house, G+1, with car parking and a pooja room"}

	res := pipeline.Execute(context.Background(), testEnv(mock), RequirementsAgent{}, in)

	require.True(t, res.Success, "error: %+v", res.Error)
	req := res.Data
	assert.Equal(t, 3, req.Bedrooms)
	assert.Equal(t, 3, req.Bathrooms)
	assert.Equal(t, 2, req.Floors)
	assert.True(t, req.Parking)
	assert.True(t, req.Pooja)
	assert.True(t, req.HomeOffice)
	assert.Equal(t, 5, req.FamilySize)
	assert.Equal(t, []string{"parking", "pooja", "Terrace garden"}, req.Amenities)

	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "requirements.bedrooms", res.Conflicts[0].Field)
	assert.False(t, pipeline.HasUnansweredMandatory(res.OpenQuestions))
}

func TestRequirementsMandatoryBedroomQuestion(t *testing.T) {
	in := RequirementsInput{Brief: "A comfortable home for our family near Madurai"}

	mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{}`)}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), RequirementsAgent{}, in)
	require.True(t, res.Success, "error: %+v", res.Error)
	assert.True(t, pipeline.HasUnansweredMandatory(res.OpenQuestions))
	unanswered := pipeline.Unanswered(res.OpenQuestions)
	require.Len(t, unanswered, 1)
	assert.Equal(t, "requirements-analysis.bedrooms", unanswered[0].ID)

	// Answering resolves it.
	env := testEnv(agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{}`)}, nil))
	env.Answers = map[string]string{"requirements-analysis.bedrooms": "2", "requirements-analysis.budget": "40 lakh"}
	in.Answers = env.Answers
	res = pipeline.Execute(context.Background(), env, RequirementsAgent{}, in)
	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, 2, res.Data.Bedrooms)
	assert.InDelta(t, 4000000, res.Data.BudgetINR, 1e-6)
	assert.False(t, pipeline.HasUnansweredMandatory(res.OpenQuestions))
}

func TestRequirementsRejectsBadAnswer(t *testing.T) {
	mock := agent.NewMockLLMClient(nil, nil)
	in := RequirementsInput{Brief: "house", Answers: map[string]string{"requirements-analysis.bedrooms": "several"}}

	res := pipeline.Execute(context.Background(), testEnv(mock), RequirementsAgent{}, in)

	require.False(t, res.Success)
	assert.Equal(t, pipeline.CodeInputInvalid, res.Error.Code)
	assert.Equal(t, 0, mock.Calls())
}

func TestRequirementsSchemaGateOnModelOutput(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{"bedrooms": "three"}`)}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), RequirementsAgent{}, RequirementsInput{Brief: "a house"})

	require.False(t, res.Success)
	assert.Equal(t, pipeline.CodeSchemaInvalid, res.Error.Code)
	assert.Contains(t, res.Error.Message, "bedrooms")
}

func TestRegulationAsksForRoadSide(t *testing.T) {
	in := scenarioPlot()
	in.Plot.RoadSide = ""
	in.Setbacks = nil

	mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{}`)}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), RegulationAgent{}, in)
	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, "tn-default", res.Data.SetbackSource)
	require.NotEmpty(t, pipeline.Unanswered(res.OpenQuestions))
	assert.Equal(t, "regulation-compliance.road_side", pipeline.Unanswered(res.OpenQuestions)[0].ID)

	in.Answers = map[string]string{"regulation-compliance.road_side": "South"}
	mock = agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{}`)}, nil)
	res = pipeline.Execute(context.Background(), testEnv(mock), RegulationAgent{}, in)
	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, design.South, res.Data.RoadSide)
	assert.InDelta(t, 5, res.Data.Setbacks.South, 1e-9)
	assert.InDelta(t, 3, res.Data.Setbacks.North, 1e-9)
}

func TestRegulationSetbacksConsumingPlot(t *testing.T) {
	in := scenarioPlot()
	in.Setbacks = &design.Setbacks{North: 20, South: 10}
	mock := agent.NewMockLLMClient(nil, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), RegulationAgent{}, in)

	require.False(t, res.Success)
	assert.Equal(t, pipeline.CodeInputInvalid, res.Error.Code)
	assert.Equal(t, 0, mock.Calls())
}

func TestVastuNoneSkipsModel(t *testing.T) {
	mock := agent.NewMockLLMClient(nil, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), VastuAgent{}, VastuInput{RoadSide: design.East, Preference: "none"})

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, 0, mock.Calls())
	assert.Empty(t, res.Data.Placements)
	assert.Equal(t, design.East, res.Data.Entrance)
}

func TestVastuPlacementsFixed(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"entrance": "north", "placements": [{"room": "kitchen", "directions": ["northeast"]}], "remedies": ["Pyramid at entrance"]}`),
	}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), VastuAgent{}, VastuInput{RoadSide: design.East, Pooja: true})

	require.True(t, res.Success, "error: %+v", res.Error)
	v := res.Data
	assert.Equal(t, []string{"southeast", "east"}, v.Placement("kitchen"))
	assert.Equal(t, []string{"northeast", "north"}, v.Placement("pooja"))
	assert.Equal(t, []string{"east"}, v.Placement("veranda"))
	assert.Equal(t, design.East, v.Entrance)
	assert.Equal(t, []string{"Pyramid at entrance"}, v.Remedies)
	assert.Len(t, res.Conflicts, 2)
}

func TestZoningAdoptsModelZonesAndRehomesRooms(t *testing.T) {
	in := ZoningInput{
		Envelope:     design.Envelope{WidthFt: 24, DepthFt: 35.5, AreaSqft: 852},
		Requirements: design.Requirements{Bedrooms: 2, Floors: 1},
		RoadSide:     design.East,
	}
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"zones": [
			{"name": "Public", "share": 2, "quadrant": "northeast", "rooms": ["living", "dining"]},
			{"name": "private", "share": 2, "quadrant": "southwest", "rooms": ["master-bedroom", "bedroom"]},
			{"name": "garden", "share": 1, "rooms": ["lawn"]}
		], "circulation": "side corridor"}`),
	}, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), ZoningAgent{}, in)

	require.True(t, res.Success, "error: %+v", res.Error)
	plan := res.Data
	assert.Equal(t, ZoneSourceModel, plan.Source)
	require.Len(t, plan.Zones, 2)
	assert.Equal(t, design.ZonePublic, plan.Zones[0].Name)
	assert.InDelta(t, 0.5, plan.Zones[0].Share, 1e-9)
	assert.InDelta(t, 426, plan.Zones[0].AreaSqft, 1e-9)
	assert.Equal(t, "side corridor", plan.Circulation)
	// Kitchen was missing from the model's plan and lands in the first zone.
	assert.NotEmpty(t, plan.ZoneForRoom("kitchen"))
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "garden", res.Conflicts[0].Proposed)
	assert.Empty(t, res.Assumptions)
}

func TestEngineerKeepsStrategy(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"strategy": "rcc", "external_wall_in": 12, "notes": ["Plinth beam at 450 mm"]}`),
	}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), EngineerAgent{}, EngineerInput{Floors: 2, SoilType: "hard"})

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, design.StrategyHybrid, res.Data.Strategy)
	assert.InDelta(t, 9, res.Data.ExternalWallIn, 1e-9)
	assert.Equal(t, []string{"Plinth beam at 450 mm"}, res.Data.Notes)
	assert.Len(t, res.Conflicts, 2)
	assert.Empty(t, res.OpenQuestions)
}

func TestEngineerAsksForSoil(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{}`)}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), EngineerAgent{}, EngineerInput{Floors: 1})

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, design.StrategyLoadBearing, res.Data.Strategy)
	require.Len(t, res.OpenQuestions, 1)
	assert.Equal(t, "engineer-clarification.soil_type", res.OpenQuestions[0].ID)
	assert.Equal(t, pipeline.Optional, res.OpenQuestions[0].Type)
}

func dimensioningInputFixture() DimensioningInput {
	return DimensioningInput{
		Requirements:  design.Requirements{Bedrooms: 2, Bathrooms: 1, Floors: 1},
		Envelope:      design.Envelope{WidthFt: 24, DepthFt: 35.5, AreaSqft: 852},
		MaxGroundSqft: 852,
	}
}

func TestDimensioningReconcile(t *testing.T) {
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"rooms": [
			{"id": "living-1", "width_ft": 13, "depth_ft": 15, "area_sqft": 1},
			{"id": "kitchen-1", "width_ft": 5, "depth_ft": 5},
			{"id": "bathroom-1", "width_ft": 0, "depth_ft": 7},
			{"id": "gym-1", "type": "gym", "width_ft": 10, "depth_ft": 10}
		]}`),
	}, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), DimensioningAgent{}, dimensioningInputFixture())

	require.True(t, res.Success, "error: %+v", res.Error)
	rooms := map[string]design.Room{}
	for _, r := range res.Data.Rooms {
		rooms[r.ID] = r
		assert.InDelta(t, r.WidthFt*r.DepthFt, r.AreaSqft, 0.05, r.ID)
	}
	assert.NotContains(t, rooms, "gym-1")
	assert.InDelta(t, 195, rooms["living-1"].AreaSqft, 1e-9)
	assert.InDelta(t, 80, rooms["kitchen-1"].AreaSqft, 1e-9)
	assert.InDelta(t, 35, rooms["bathroom-1"].AreaSqft, 1e-9)
	assert.Contains(t, res.Data.Defaulted, "kitchen-1")
	assert.Contains(t, res.Data.Defaulted, "bathroom-1")
	assert.NotContains(t, res.Data.Defaulted, "living-1")

	fields := map[string]bool{}
	for _, c := range res.Conflicts {
		fields[c.Field] = true
	}
	assert.True(t, fields["rooms.kitchen-1.area_sqft"])
	assert.True(t, fields["rooms.gym-1"])
}

func TestDimensioningFlagsOverArea(t *testing.T) {
	in := dimensioningInputFixture()
	in.Envelope = design.Envelope{WidthFt: 15, DepthFt: 20, AreaSqft: 300}
	in.MaxGroundSqft = 300

	mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{"rooms": []}`)}, nil)
	res := pipeline.Execute(context.Background(), testEnv(mock), DimensioningAgent{}, in)

	require.True(t, res.Success, "error: %+v", res.Error)
	high := pipeline.HighRisk(res.Assumptions)
	require.Len(t, high, 1)
	assert.Equal(t, "dimensioning.floor-0-over-area", high[0].ID)
}

func TestEngineeringPlan(t *testing.T) {
	rooms := RoomProgramme(design.Requirements{Bedrooms: 3, Bathrooms: 2, Floors: 2}, nil, 0)
	in := EngineeringInput{
		Structure: design.Structure{Strategy: design.StrategyHybrid, ExternalWallIn: 9, InternalWallIn: 4.5},
		Floors:    2,
		MaxFloors: 3,
		RoadSide:  design.East,
		Rooms:     rooms,
	}
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{
		reply(`{"staircase": {"type": "open well", "risers": 16}, "ventilation_shafts": ["between bathrooms"],
			"expansion": {"direction": "north", "type": "horizontal", "notes": "future car porch"}}`),
	}, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), EngineeringAgent{}, in)

	require.True(t, res.Success, "error: %+v", res.Error)
	eng := res.Data
	require.NotNil(t, eng.Staircase)
	assert.Equal(t, 18, eng.Staircase.Risers)
	assert.Equal(t, "open well", eng.Staircase.Type)
	assert.Equal(t, design.East, eng.Plumbing.SewerSide)
	assert.Equal(t, design.North, eng.Expansion.Direction)
	assert.Equal(t, []string{"between bathrooms"}, eng.VentilationShafts)
	require.Len(t, res.Conflicts, 1)
	assert.Equal(t, "engineering.staircase.risers", res.Conflicts[0].Field)
}

func TestEngineeringSingleStoreyHasNoStair(t *testing.T) {
	in := EngineeringInput{
		Structure: design.Structure{Strategy: design.StrategyLoadBearing, ExternalWallIn: 9, InternalWallIn: 4.5},
		Floors:    1,
		MaxFloors: 3,
		RoadSide:  design.West,
		Rooms:     RoomProgramme(design.Requirements{Bedrooms: 1, Bathrooms: 1, Floors: 1}, nil, 0),
	}
	mock := agent.NewMockLLMClient([]llm.CompletionResponse{reply(`{"expansion": {"direction": "sideways", "type": "x"}}`)}, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), EngineeringAgent{}, in)

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Nil(t, res.Data.Staircase)
	assert.Equal(t, "vertical", res.Data.Expansion.Type)
	assert.Equal(t, design.East, res.Data.Expansion.Direction)
}

func TestValidationNeverCallsModel(t *testing.T) {
	reg := design.Regulation{
		Envelope:       design.Envelope{WidthFt: 24, DepthFt: 35.5, AreaSqft: 852},
		MaxBuiltUpSqft: 2080.75,
		MaxGroundSqft:  852,
		MaxFloors:      3,
	}
	rooms := []design.Room{
		{ID: "living-1", Type: "living", Floor: 0, AreaSqft: 168},
		{ID: "kitchen-1", Type: "kitchen", Floor: 0, AreaSqft: 25},
	}
	eco := &design.Eco{Mandatory: []string{EcoRainwater, EcoSolarHeater, EcoCrossVent}}
	mock := agent.NewMockLLMClient(nil, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), ValidationAgent{},
		ValidationInput{Regulation: reg, Rooms: rooms, Floors: 1, Eco: eco})

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, 0, mock.Calls())
	assert.Equal(t, design.StatusFailed, res.Data.Status)
	high := pipeline.HighRisk(res.Assumptions)
	require.Len(t, high, 1)
	assert.Equal(t, "design-validation.check-nbc-room-sizes", high[0].ID)
	assert.Contains(t, high[0].Text, "kitchen-1")
}

func TestValidationWarnings(t *testing.T) {
	reg := design.Regulation{
		Envelope:       design.Envelope{AreaSqft: 852},
		MaxBuiltUpSqft: 2080.75,
		MaxGroundSqft:  150,
		MaxFloors:      3,
	}
	rooms := []design.Room{{ID: "living-1", Type: "living", Floor: 0, AreaSqft: 168}}
	eco := &design.Eco{Mandatory: []string{EcoRainwater, EcoSolarHeater, EcoCrossVent}}

	res := pipeline.Execute(context.Background(), testEnv(nil), ValidationAgent{},
		ValidationInput{Regulation: reg, Rooms: rooms, Floors: 1, Eco: eco})

	require.True(t, res.Success, "error: %+v", res.Error)
	assert.Equal(t, design.StatusWarnings, res.Data.Status)
	assert.Empty(t, pipeline.HighRisk(res.Assumptions))
}

func TestCostEstimate(t *testing.T) {
	rooms := []design.Room{
		{ID: "living-1", Type: "living", AreaSqft: 600},
		{ID: "bedroom-2", Type: "bedroom", AreaSqft: 400},
	}
	mock := agent.NewMockLLMClient(nil, nil)

	res := pipeline.Execute(context.Background(), testEnv(mock), CostAgent{},
		CostInput{Rooms: rooms, Strategy: design.StrategyHybrid, EcoINR: 82000, BudgetINR: 2000000})

	require.True(t, res.Success, "error: %+v", res.Error)
	cost := res.Data
	assert.Equal(t, 0, mock.Calls())
	assert.InDelta(t, 1120, cost.BuiltUpSqft, 1e-9)
	assert.InDelta(t, 2100, cost.RatePerSqft, 1e-9)
	assert.InDelta(t, 2352000, cost.BaseINR, 1e-9)
	assert.InDelta(t, 2434000, cost.TotalINR, 1e-9)
	assert.InDelta(t, 21.7, cost.OverBudgetPct, 1e-9)

	high := pipeline.HighRisk(res.Assumptions)
	require.Len(t, high, 1)
	assert.Equal(t, "cost-estimation.over-budget", high[0].ID)
}
