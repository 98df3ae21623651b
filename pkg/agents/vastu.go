package agents

import (
	"fmt"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Vastu preference levels.
const (
	VastuStrict   = "strict"
	VastuModerate = "moderate"
	VastuNone     = "none"
)

// VastuInput carries what the zone table depends on.
type VastuInput struct {
	RoadSide   design.Direction
	Preference string
	Pooja      bool
	Answers    map[string]string
}

// VastuAgent fixes room directions from the zone table. The model contributes
// notes and remedies.
type VastuAgent struct{}

func (VastuAgent) Name() string { return VastuCompliance }

func (VastuAgent) SystemPrompt() string {
	return "You are a Vastu Shastra consultant. The room directions are fixed; explain them briefly and suggest practical remedies where the plot forces a compromise."
}

func (VastuAgent) ValidateInput(in VastuInput) error {
	if in.RoadSide != "" && !in.RoadSide.Valid() {
		return fmt.Errorf("invalid road side %q", in.RoadSide)
	}
	return nil
}

// vastuTable is the recommended direction list per room type, best first.
//
//nolint:gochecknoglobals
var vastuTable = []design.VastuPlacement{
	{Room: "kitchen", Directions: []string{"southeast", "east"}},
	{Room: "master-bedroom", Directions: []string{"southwest", "south"}},
	{Room: "bedroom", Directions: []string{"southwest", "south", "northwest", "west"}},
	{Room: "living", Directions: []string{"northeast", "north", "east"}},
	{Room: "dining", Directions: []string{"west", "northwest"}},
	{Room: "bathroom", Directions: []string{"northwest", "west"}},
	{Room: "staircase", Directions: []string{"southwest", "south", "west"}},
	{Room: "store", Directions: []string{"northwest", "west"}},
	{Room: "utility", Directions: []string{"northwest", "southeast"}},
	{Room: "courtyard", Directions: []string{"center"}},
}

func vastuPreference(in VastuInput) string {
	pref := strings.ToLower(strings.TrimSpace(in.Preference))
	if a, ok := answer(in.Answers, VastuCompliance, "preference"); ok {
		pref = strings.ToLower(a)
	}
	switch pref {
	case VastuStrict, VastuModerate, VastuNone:
		return pref
	}
	return VastuModerate
}

func (VastuAgent) Precompute(in VastuInput) (design.Vastu, error) {
	out := design.Vastu{
		Preference: vastuPreference(in),
		Placements: []design.VastuPlacement{},
		Entrance:   in.RoadSide,
	}
	if out.Preference == VastuNone {
		out.Notes = []string{"Vastu not applied at client request"}
		return out, nil
	}
	for _, p := range vastuTable {
		out.Placements = append(out.Placements, design.VastuPlacement{Room: p.Room, Directions: append([]string(nil), p.Directions...)})
	}
	if in.Pooja {
		out.Placements = append(out.Placements, design.VastuPlacement{Room: "pooja", Directions: []string{"northeast", "north"}})
	}
	if in.RoadSide.Valid() {
		out.Placements = append(out.Placements, design.VastuPlacement{Room: "veranda", Directions: []string{string(in.RoadSide)}})
	}
	return out, nil
}

func (VastuAgent) BuildPrompt(in VastuInput, pre design.Vastu, view string) (string, error) {
	if pre.Preference == VastuNone {
		return "", nil
	}
	return newPrompt("Review these Vastu placements for a Tamil Nadu home and suggest remedies.").
		section("Entrance", fmt.Sprintf("Road and main entrance on the %s side.", in.RoadSide)).
		fixed(pre).
		section("Design so far", view).
		shape(design.Vastu{}), nil
}

func (VastuAgent) Reconcile(_ VastuInput, pre design.Vastu, model *design.Vastu) (design.Vastu, []design.Conflict) {
	out := pre
	if model == nil {
		return out, nil
	}
	var conflicts []design.Conflict
	if model.Entrance != "" && pre.Entrance != "" && model.Entrance != pre.Entrance {
		conflicts = append(conflicts, conflict(VastuCompliance, "vastu.entrance", pre.Entrance, model.Entrance, "entrance follows the road side"))
	}
	for _, mp := range model.Placements {
		fixed := pre.Placement(mp.Room)
		if fixed == nil || len(mp.Directions) == 0 {
			continue
		}
		if !strings.EqualFold(fixed[0], mp.Directions[0]) {
			conflicts = append(conflicts, conflict(VastuCompliance, "vastu.placements."+mp.Room, fixed[0], mp.Directions[0], keptFixed))
		}
	}
	out.Notes = union(pre.Notes, model.Notes)
	out.Remedies = union(pre.Remedies, model.Remedies)
	return out, conflicts
}

func (VastuAgent) Review(in VastuInput, out design.Vastu) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	var qs []pipeline.OpenQuestion
	var as []pipeline.Assumption
	_, answered := answer(in.Answers, VastuCompliance, "preference")
	if strings.TrimSpace(in.Preference) == "" && !answered {
		qs = append(qs, pipeline.OpenQuestion{
			ID: "preference", Type: pipeline.Optional,
			Text:    "How closely should the plan follow Vastu?",
			Default: VastuModerate,
			Options: []string{VastuStrict, VastuModerate, VastuNone},
		})
		as = append(as, pipeline.Assumption{ID: "preference", Risk: pipeline.RiskLow, Text: "Moderate Vastu compliance assumed"})
	}
	if out.Preference == VastuStrict && (out.Entrance == design.South || out.Entrance == design.West) {
		as = append(as, pipeline.Assumption{
			ID: "entrance", Risk: pipeline.RiskMedium,
			Text:  fmt.Sprintf("%s-facing entrance under strict Vastu relies on remedies", out.Entrance),
			Basis: "road side",
		})
	}
	return qs, as
}
