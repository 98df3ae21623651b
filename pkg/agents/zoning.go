package agents

import (
	"fmt"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Zone plan sources.
const (
	ZoneSourceModel    = "model"
	ZoneSourceDefault  = "default"
	ZoneSourceFallback = "fallback"
)

// ZoningInput is what the zoning plan is laid out against.
type ZoningInput struct {
	Envelope     design.Envelope
	Requirements design.Requirements
	Vastu        *design.Vastu
	RoadSide     design.Direction
	Courtyard    bool
}

// ZoningAgent groups rooms into public, private, service, transition and outdoor
// zones. Shares are normalised and areas computed in code.
type ZoningAgent struct{}

func (ZoningAgent) Name() string { return ArchitecturalZoning }

func (ZoningAgent) SystemPrompt() string {
	return "You are a residential architect laying out functional zones. Keep private rooms away from the entrance and group wet areas."
}

func (ZoningAgent) ValidateInput(in ZoningInput) error {
	if in.Envelope.AreaSqft <= 0 {
		return fmt.Errorf("zoning needs a positive buildable envelope")
	}
	return nil
}

//nolint:gochecknoglobals
var zoneNames = map[string]bool{
	design.ZonePublic: true, design.ZonePrivate: true, design.ZoneService: true,
	design.ZoneTransition: true, design.ZoneOutdoor: true,
}

// DefaultZones is the zoning plan used when the model gives none.
func DefaultZones(env design.Envelope, floors int, req design.Requirements, vastu *design.Vastu, roadSide design.Direction, courtyard bool) design.ZonePlan {
	quadrant := func(room, fallback string) string {
		if d := vastu.Placement(room); len(d) > 0 {
			return d[0]
		}
		return fallback
	}
	outdoor := "east"
	if roadSide.Valid() {
		outdoor = string(roadSide)
	}

	public := []string{"living", "dining"}
	if req.Pooja {
		public = append(public, "pooja")
	}
	private := []string{"master-bedroom", "bedroom"}
	if req.HomeOffice {
		private = append(private, "home-office")
	}
	transition := []string{"foyer"}
	if courtyard {
		transition = append(transition, "courtyard")
	}
	outside := []string{"veranda"}
	if req.Parking {
		outside = append(outside, "parking")
	}

	plan := design.ZonePlan{
		Zones: []design.Zone{
			{Name: design.ZonePublic, Share: 0.30, Quadrant: quadrant("living", "northeast"), Rooms: public},
			{Name: design.ZonePrivate, Share: 0.35, Quadrant: quadrant("master-bedroom", "southwest"), Rooms: private},
			{Name: design.ZoneService, Share: 0.20, Quadrant: quadrant("kitchen", "southeast"), Rooms: []string{"kitchen", "bathroom", "staircase", "store", "utility"}},
			{Name: design.ZoneTransition, Share: 0.10, Quadrant: "center", Rooms: transition},
			{Name: design.ZoneOutdoor, Share: 0.05, Quadrant: outdoor, Rooms: outside},
		},
		Circulation: "central foyer linking public and private zones",
		Source:      ZoneSourceDefault,
	}
	sizeZones(&plan, env, floors)
	return plan
}

// sizeZones normalises shares to sum to one and sets zone areas over all
// floors.
func sizeZones(plan *design.ZonePlan, env design.Envelope, floors int) {
	if floors < 1 {
		floors = 1
	}
	total := 0.0
	for _, z := range plan.Zones {
		if z.Share > 0 {
			total += z.Share
		}
	}
	for i := range plan.Zones {
		z := &plan.Zones[i]
		switch {
		case total <= 0:
			z.Share = 1 / float64(len(plan.Zones))
		case z.Share <= 0:
			z.Share = 0
		default:
			z.Share /= total
		}
		z.Share = round2(z.Share)
		z.AreaSqft = round1(z.Share * env.AreaSqft * float64(floors))
	}
}

func (ZoningAgent) Precompute(in ZoningInput) (design.ZonePlan, error) {
	return DefaultZones(in.Envelope, in.Requirements.Floors, in.Requirements, in.Vastu, in.RoadSide, in.Courtyard), nil
}

func (ZoningAgent) BuildPrompt(in ZoningInput, pre design.ZonePlan, view string) (string, error) {
	return newPrompt("Propose the functional zones for this house. Use only the zone names public, private, service, transition and outdoor, and assign every room type to one zone.").
		section("Starting point", fmt.Sprintf("Envelope %.1f x %.1f ft, %d floor(s). A reasonable default is given below; improve it.",
			in.Envelope.WidthFt, in.Envelope.DepthFt, in.Requirements.Floors)).
		fixed(pre).
		section("Design so far", view).
		shape(design.ZonePlan{}), nil
}

// Reconcile adopts the model's zones when they use known names, re-homes any
// room type the model forgot, then resizes everything.
func (ZoningAgent) Reconcile(in ZoningInput, pre design.ZonePlan, model *design.ZonePlan) (design.ZonePlan, []design.Conflict) {
	if model == nil || len(model.Zones) == 0 {
		return pre, nil
	}
	var conflicts []design.Conflict

	plan := design.ZonePlan{Circulation: model.Circulation, Source: ZoneSourceModel}
	index := map[string]int{}
	for _, z := range model.Zones {
		name := strings.ToLower(strings.TrimSpace(z.Name))
		if !zoneNames[name] {
			conflicts = append(conflicts, conflict(ArchitecturalZoning, "zones.name", "known zone", z.Name, "dropped unknown zone"))
			continue
		}
		if _, dup := index[name]; dup {
			continue
		}
		z.Name = name
		z.Rooms = union(z.Rooms)
		index[name] = len(plan.Zones)
		plan.Zones = append(plan.Zones, z)
	}
	if len(plan.Zones) == 0 {
		return pre, conflicts
	}

	for _, dz := range pre.Zones {
		for _, room := range dz.Rooms {
			if plan.ZoneForRoom(room) != "" {
				continue
			}
			i, ok := index[dz.Name]
			if !ok {
				i = 0
			}
			plan.Zones[i].Rooms = append(plan.Zones[i].Rooms, room)
		}
		if i, ok := index[dz.Name]; ok && plan.Zones[i].Quadrant == "" {
			plan.Zones[i].Quadrant = dz.Quadrant
		}
	}
	if plan.Circulation == "" {
		plan.Circulation = pre.Circulation
	}
	sizeZones(&plan, in.Envelope, in.Requirements.Floors)
	return plan, conflicts
}

func (ZoningAgent) Review(_ ZoningInput, out design.ZonePlan) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	if out.Source == ZoneSourceModel {
		return nil, nil
	}
	return nil, []pipeline.Assumption{{
		ID: "default-zones", Risk: pipeline.RiskMedium,
		Text:  "Standard zoning template used",
		Basis: "no usable zoning from the model",
	}}
}
