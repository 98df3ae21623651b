package agents

import (
	"fmt"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Check severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// WallCirculationFactor grosses up room areas for walls and circulation.
const WallCirculationFactor = 1.12

// BuiltUpArea is the gross built-up area of a room schedule.
func BuiltUpArea(rooms []design.Room) float64 {
	total := 0.0
	for _, r := range rooms {
		if r.Type == "courtyard" {
			continue
		}
		total += r.AreaSqft
	}
	return round1(total * WallCirculationFactor)
}

// ValidationInput is the assembled design.
type ValidationInput struct {
	Regulation  design.Regulation
	Rooms       []design.Room
	Floors      int
	Eco         *design.Eco
	Engineering *design.Engineering
}

// ValidationAgent checks the assembled design against the rules. It never
// calls the model.
type ValidationAgent struct{}

func (ValidationAgent) Name() string { return DesignValidation }

func (ValidationAgent) ValidateInput(in ValidationInput) error {
	if in.Regulation.Envelope.AreaSqft <= 0 {
		return fmt.Errorf("validation needs the regulation envelope")
	}
	if len(in.Rooms) == 0 {
		return fmt.Errorf("validation needs a room schedule")
	}
	return nil
}

type checker struct {
	checks []design.Check
}

func (c *checker) add(name, severity string, passed bool, format string, args ...any) {
	c.checks = append(c.checks, design.Check{Name: name, Passed: passed, Severity: severity, Message: fmt.Sprintf(format, args...)})
}

func (ValidationAgent) Precompute(in ValidationInput) (design.Validation, error) {
	reg := in.Regulation
	c := &checker{}

	builtUp := BuiltUpArea(in.Rooms)
	c.add("fsi", SeverityError, builtUp <= reg.MaxBuiltUpSqft,
		"built-up %.0f sqft against FSI limit %.0f sqft", builtUp, reg.MaxBuiltUpSqft)

	floors := in.Floors
	if floors < 1 {
		floors = 1
	}
	c.add("max-floors", SeverityError, reg.MaxFloors == 0 || floors <= reg.MaxFloors,
		"%d floor(s) against a limit of %d", floors, reg.MaxFloors)

	areas := floorAreas(in.Rooms)
	for _, f := range sortedFloors(areas) {
		area := areas[f]
		c.add(fmt.Sprintf("floor-%d-envelope", f), SeverityError, area <= reg.Envelope.AreaSqft,
			"floor %d rooms %.0f sqft within envelope %.0f sqft", f, area, reg.Envelope.AreaSqft)
	}
	if ground, ok := areas[0]; ok && reg.MaxGroundSqft > 0 {
		c.add("ground-coverage", SeverityWarning, ground <= reg.MaxGroundSqft,
			"ground floor %.0f sqft against coverage limit %.0f sqft", ground, reg.MaxGroundSqft)
	}

	var small []string
	for _, r := range in.Rooms {
		if minArea := MinRoomArea(r.Type); minArea > 0 && r.AreaSqft < minArea {
			small = append(small, fmt.Sprintf("%s %.0f<%.0f", r.ID, r.AreaSqft, minArea))
		}
	}
	if len(small) == 0 {
		c.add("nbc-room-sizes", SeverityError, true, "all rooms meet NBC minimum areas")
	} else {
		c.add("nbc-room-sizes", SeverityError, false, "rooms below NBC minimum: %s", strings.Join(small, ", "))
	}

	if in.Eco != nil {
		if in.Eco.Courtyard.Required {
			area := 0.0
			for _, r := range in.Rooms {
				if r.Type == "courtyard" {
					area += r.AreaSqft
				}
			}
			c.add("courtyard", SeverityWarning, area >= in.Eco.Courtyard.MinAreaSqft,
				"courtyard %.0f sqft against minimum %.0f sqft", area, in.Eco.Courtyard.MinAreaSqft)
		}
		have := map[string]bool{}
		for _, m := range in.Eco.Mandatory {
			have[strings.ToLower(m)] = true
		}
		var missing []string
		for _, m := range []string{EcoRainwater, EcoSolarHeater, EcoCrossVent} {
			if !have[m] {
				missing = append(missing, m)
			}
		}
		c.add("eco-mandatory", SeverityError, len(missing) == 0, "missing eco elements: %s", strings.Join(missing, ", "))
	} else {
		c.add("eco-mandatory", SeverityError, false, "no eco design in context")
	}

	if floors > 1 {
		ok := in.Engineering != nil && in.Engineering.Staircase != nil
		c.add("staircase", SeverityError, ok, "staircase required for %d floors", floors)
	}

	return design.Validation{Status: validationStatus(c.checks), Checks: c.checks}, nil
}

func validationStatus(checks []design.Check) string {
	status := design.StatusPassed
	for _, ch := range checks {
		if ch.Passed {
			continue
		}
		if ch.Severity == SeverityError {
			return design.StatusFailed
		}
		status = design.StatusWarnings
	}
	return status
}

func (ValidationAgent) BuildPrompt(ValidationInput, design.Validation, string) (string, error) {
	return "", nil
}

func (ValidationAgent) Reconcile(_ ValidationInput, pre design.Validation, _ *design.Validation) (design.Validation, []design.Conflict) {
	return pre, nil
}

func (ValidationAgent) Review(_ ValidationInput, out design.Validation) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	var as []pipeline.Assumption
	for _, ch := range out.Checks {
		if ch.Passed {
			continue
		}
		risk := pipeline.RiskMedium
		if ch.Severity == SeverityError {
			risk = pipeline.RiskHigh
		}
		as = append(as, pipeline.Assumption{ID: "check-" + ch.Name, Risk: risk, Text: ch.Message, Basis: "design validation"})
	}
	return nil, as
}
