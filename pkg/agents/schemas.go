package agents

import (
	"floorplanner/pkg/design"
	"floorplanner/pkg/schema"
)

func directionOrEmpty() *schema.Schema {
	return schema.Enum(string(design.North), string(design.South), string(design.East), string(design.West), "")
}

func nonNegative() *schema.Schema { return schema.Number().AtLeast(0) }

func strategyEnum() *schema.Schema {
	return schema.Enum(design.StrategyLoadBearing, design.StrategyHybrid, design.StrategyRCC)
}

func zoneEnum() *schema.Schema {
	return schema.Enum(design.ZonePublic, design.ZonePrivate, design.ZoneService, design.ZoneTransition, design.ZoneOutdoor)
}

func stringList() *schema.Schema { return schema.Array(schema.String()) }

// RoomSchema is the shape of one dimensioned room.
func RoomSchema() *schema.Schema {
	return schema.Object(
		schema.Req("id", schema.String().NonBlank()),
		schema.Req("name", schema.String()),
		schema.Req("type", schema.String().NonBlank()),
		schema.Req("floor", schema.Integer().AtLeast(0)),
		schema.Req("zone", zoneEnum()),
		schema.Req("width_ft", schema.Number().Positive()),
		schema.Req("depth_ft", schema.Number().Positive()),
		schema.Req("area_sqft", schema.Number().Positive()),
	)
}

// Schemas returns a registry holding the output schema of every agent.
func Schemas() *schema.Registry {
	reg := schema.NewRegistry()

	reg.Register(RequirementsAnalysis, schema.Object(
		schema.Req("bedrooms", schema.Integer().AtLeast(0)),
		schema.Req("bathrooms", schema.Integer().AtLeast(0)),
		schema.Req("floors", schema.Integer().AtLeast(1)),
		schema.Req("amenities", stringList()),
		schema.Req("parking", schema.Boolean()),
		schema.Req("pooja", schema.Boolean()),
		schema.Req("home_office", schema.Boolean()),
		schema.Req("elderly_friendly", schema.Boolean()),
		schema.Opt("family_size", schema.Integer().AtLeast(0)),
		schema.Opt("budget_inr", nonNegative()),
		schema.Opt("style", schema.String()),
	))

	reg.Register(RegulationCompliance, schema.Object(
		schema.Req("setbacks", schema.Object(
			schema.Req("north", nonNegative()),
			schema.Req("south", nonNegative()),
			schema.Req("east", nonNegative()),
			schema.Req("west", nonNegative()),
		)),
		schema.Req("setback_source", schema.String().NonBlank()),
		schema.Req("envelope", schema.Object(
			schema.Req("width_ft", schema.Number().Positive()),
			schema.Req("depth_ft", schema.Number().Positive()),
			schema.Req("area_sqft", schema.Number().Positive()),
		)),
		schema.Req("plot_area_sqft", schema.Number().Positive()),
		schema.Req("fsi", schema.Number().Positive()),
		schema.Req("max_built_up_sqft", schema.Number().Positive()),
		schema.Req("ground_coverage", schema.Number().Positive()),
		schema.Req("max_ground_sqft", schema.Number().Positive()),
		schema.Req("max_floors", schema.Integer().AtLeast(1)),
		schema.Req("road_side", directionOrEmpty()),
		schema.Req("road_width_ft", schema.Number().Positive()),
		schema.Opt("notes", stringList()),
		schema.Opt("approvals_needed", stringList()),
	))

	reg.Register(VastuCompliance, schema.Object(
		schema.Req("preference", schema.Enum(VastuStrict, VastuModerate, VastuNone)),
		schema.Req("placements", schema.Array(schema.Object(
			schema.Req("room", schema.String().NonBlank()),
			schema.Req("directions", stringList().MinLen(1)),
		))),
		schema.Req("entrance", directionOrEmpty()),
		schema.Opt("notes", stringList()),
		schema.Opt("remedies", stringList()),
	))

	reg.Register(EcoDesign, schema.Object(
		schema.Req("mandatory", stringList().MinLen(3)),
		schema.Req("courtyard", schema.Object(
			schema.Req("required", schema.Boolean()),
			schema.Req("min_area_sqft", nonNegative()),
		)),
		schema.Req("sump_litres", schema.Integer().AtLeast(0)),
		schema.Opt("suggestions", stringList()),
		schema.Req("estimated_inr", nonNegative()),
		schema.Opt("materials_notes", stringList()),
	))

	reg.Register(ArchitecturalZoning, schema.Object(
		schema.Req("zones", schema.Array(schema.Object(
			schema.Req("name", zoneEnum()),
			schema.Req("share", nonNegative()),
			schema.Req("quadrant", schema.String()),
			schema.Req("area_sqft", nonNegative()),
			schema.Opt("rooms", stringList()),
		)).MinLen(1)),
		schema.Opt("circulation", schema.String()),
		schema.Req("source", schema.Enum(ZoneSourceModel, ZoneSourceDefault, ZoneSourceFallback)),
	))

	reg.Register(EngineerClarification, schema.Object(
		schema.Req("strategy", strategyEnum()),
		schema.Req("external_wall_in", schema.Number().Positive()),
		schema.Req("internal_wall_in", schema.Number().Positive()),
		schema.Req("soil_type", schema.String().NonBlank()),
		schema.Opt("foundation", schema.String()),
		schema.Opt("notes", stringList()),
	))

	reg.Register(Dimensioning, schema.Object(
		schema.Req("rooms", schema.Array(RoomSchema()).MinLen(1)),
		schema.Opt("defaulted", stringList()),
	))

	reg.Register(EngineeringPlan, schema.Object(
		schema.Req("wall_system", schema.Object(
			schema.Req("strategy", strategyEnum()),
			schema.Req("external_in", schema.Number().Positive()),
			schema.Req("internal_in", schema.Number().Positive()),
			schema.Req("material", schema.String()),
		)),
		schema.Opt("staircase", schema.Object(
			schema.Req("type", schema.String().NonBlank()),
			schema.Opt("position", schema.String()),
			schema.Req("width_ft", schema.Number().Positive()),
			schema.Req("floor_height_ft", schema.Number().Positive()),
			schema.Req("risers", schema.Integer().AtLeast(1)),
			schema.Req("riser_in", schema.Number().Positive()),
			schema.Req("tread_in", schema.Number().Positive()),
		).OrNull()),
		schema.Req("plumbing", schema.Object(
			schema.Req("wet_areas_grouped", schema.Boolean()),
			schema.Req("sewer_side", directionOrEmpty()),
			schema.Opt("shaft_positions", stringList()),
		)),
		schema.Opt("ventilation_shafts", stringList()),
		schema.Req("expansion", schema.Object(
			schema.Req("direction", directionOrEmpty()),
			schema.Req("type", schema.String()),
			schema.Opt("notes", schema.String()),
		)),
	))

	reg.Register(DesignValidation, schema.Object(
		schema.Req("status", schema.Enum(design.StatusPassed, design.StatusWarnings, design.StatusFailed)),
		schema.Req("checks", schema.Array(schema.Object(
			schema.Req("name", schema.String().NonBlank()),
			schema.Req("passed", schema.Boolean()),
			schema.Req("severity", schema.Enum(SeverityError, SeverityWarning)),
			schema.Req("message", schema.String()),
		)).MinLen(1)),
	))

	reg.Register(CostEstimation, schema.Object(
		schema.Req("built_up_sqft", schema.Number().Positive()),
		schema.Req("rate_per_sqft", schema.Number().Positive()),
		schema.Req("base_inr", nonNegative()),
		schema.Req("eco_extras_inr", nonNegative()),
		schema.Req("total_inr", schema.Number().Positive()),
		schema.Opt("budget_inr", nonNegative()),
		schema.Opt("over_budget_pct", nonNegative()),
	))

	return reg
}
