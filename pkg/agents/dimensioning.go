package agents

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// RoomSchedule is the dimensioning output.
type RoomSchedule struct {
	Rooms []design.Room `json:"rooms"`
	// Defaulted lists room ids that fell back to standard sizes.
	Defaulted []string `json:"defaulted,omitempty"`
}

// roomSpec is the standard size and NBC minimum for a room type.
type roomSpec struct {
	name     string
	widthFt  float64
	depthFt  float64
	minSqft  float64
	zoneHint string
}

// roomSpecs follow NBC 2016 minimum areas for habitable rooms, kitchens and
// bathrooms.
//
//nolint:gochecknoglobals
var roomSpecs = map[string]roomSpec{
	"living":         {"Living", 12, 14, 100, design.ZonePublic},
	"dining":         {"Dining", 10, 10, 60, design.ZonePublic},
	"kitchen":        {"Kitchen", 8, 10, 50, design.ZoneService},
	"master-bedroom": {"Master Bedroom", 12, 12, 100, design.ZonePrivate},
	"bedroom":        {"Bedroom", 10, 11, 80, design.ZonePrivate},
	"bathroom":       {"Bathroom", 5, 7, 30, design.ZoneService},
	"pooja":          {"Pooja", 4, 5, 16, design.ZonePublic},
	"home-office":    {"Home Office", 8, 9, 64, design.ZonePrivate},
	"parking":        {"Parking", 9, 15, 135, design.ZoneOutdoor},
	"staircase":      {"Staircase", 3.5, 12, 40, design.ZoneService},
	"utility":        {"Utility", 4, 6, 20, design.ZoneService},
	"courtyard":      {"Courtyard", 6, 6, 36, design.ZoneTransition},
}

// MinRoomArea returns the NBC minimum area for a room type, 0 if none.
func MinRoomArea(roomType string) float64 {
	return roomSpecs[roomType].minSqft
}

// DimensioningInput is the programme and the constraints rooms must fit.
type DimensioningInput struct {
	Requirements  design.Requirements
	Envelope      design.Envelope
	MaxGroundSqft float64
	Zones         *design.ZonePlan
	CourtyardMin  float64
}

// DimensioningAgent sizes every room in the programme. The model proposes sizes;
// code checks them against NBC minimums and computes every area.
type DimensioningAgent struct{}

func (DimensioningAgent) Name() string { return Dimensioning }

func (DimensioningAgent) SystemPrompt() string {
	return "You size rooms for compact Indian homes. Respect NBC 2016 minimums and keep each floor's rooms within the buildable envelope."
}

func (DimensioningAgent) ValidateInput(in DimensioningInput) error {
	if in.Envelope.AreaSqft <= 0 {
		return fmt.Errorf("dimensioning needs a positive buildable envelope")
	}
	if in.Requirements.Bedrooms < 1 {
		return fmt.Errorf("dimensioning needs at least one bedroom, got %d", in.Requirements.Bedrooms)
	}
	return nil
}

// RoomProgramme lists the rooms the requirements call for, with stable ids and
// standard sizes.
func RoomProgramme(req design.Requirements, zones *design.ZonePlan, courtyardMin float64) []design.Room {
	floors := req.Floors
	if floors < 1 {
		floors = 1
	}
	var rooms []design.Room
	add := func(roomType string, n, floor int) {
		spec := roomSpecs[roomType]
		w, d := spec.widthFt, spec.depthFt
		if roomType == "courtyard" && courtyardMin > w*d {
			side := math.Ceil(math.Sqrt(courtyardMin))
			w, d = side, side
		}
		zone := zones.ZoneForRoom(roomType)
		if zone == "" {
			zone = spec.zoneHint
		}
		name := spec.name
		if n > 1 {
			name = fmt.Sprintf("%s %d", spec.name, n)
		}
		rooms = append(rooms, design.Room{
			ID:       fmt.Sprintf("%s-%d", roomType, n),
			Name:     name,
			Type:     roomType,
			Floor:    floor,
			Zone:     zone,
			WidthFt:  w,
			DepthFt:  d,
			AreaSqft: round1(w * d),
		})
	}

	add("living", 1, 0)
	add("dining", 1, 0)
	add("kitchen", 1, 0)
	if req.Pooja {
		add("pooja", 1, 0)
	}
	if req.Parking {
		add("parking", 1, 0)
	}
	if courtyardMin > 0 {
		add("courtyard", 1, 0)
	}
	add("utility", 1, 0)
	if floors > 1 {
		add("staircase", 1, 0)
	}

	masterFloor := 0
	if floors > 1 && !req.ElderlyFriendly {
		masterFloor = 1
	}
	add("master-bedroom", 1, masterFloor)
	for i := 2; i <= req.Bedrooms; i++ {
		add("bedroom", i, (i-1)%floors)
	}
	for i := 1; i <= req.Bathrooms; i++ {
		add("bathroom", i, (i-1)%floors)
	}
	if req.HomeOffice {
		add("home-office", 1, floors-1)
	}
	return rooms
}

func (DimensioningAgent) Precompute(in DimensioningInput) (RoomSchedule, error) {
	return RoomSchedule{Rooms: RoomProgramme(in.Requirements, in.Zones, in.CourtyardMin)}, nil
}

func (DimensioningAgent) BuildPrompt(in DimensioningInput, pre RoomSchedule, view string) (string, error) {
	var sb strings.Builder
	for _, r := range pre.Rooms {
		fmt.Fprintf(&sb, "- %s (%s, floor %d, zone %s), minimum %.0f sqft\n", r.ID, r.Type, r.Floor, r.Zone, MinRoomArea(r.Type))
	}
	return newPrompt("Give width_ft and depth_ft for each room below. Keep the ids, types and floors exactly as listed.").
		section("Rooms", sb.String()).
		section("Limits", fmt.Sprintf("Buildable envelope %.1f x %.1f ft (%.1f sqft per floor), ground coverage limit %.0f sqft.",
			in.Envelope.WidthFt, in.Envelope.DepthFt, in.Envelope.AreaSqft, in.MaxGroundSqft)).
		section("Design so far", view).
		shape(RoomSchedule{}), nil
}

// Reconcile takes the model's size for each programmed room when it is
// positive and meets the minimum. Ids, types, floors and zones stay as
// programmed; area is always width x depth.
func (DimensioningAgent) Reconcile(in DimensioningInput, pre RoomSchedule, model *RoomSchedule) (RoomSchedule, []design.Conflict) {
	out := RoomSchedule{Rooms: make([]design.Room, 0, len(pre.Rooms)), Defaulted: []string{}}
	var conflicts []design.Conflict

	proposed := map[string]design.Room{}
	if model != nil {
		for _, r := range model.Rooms {
			proposed[r.ID] = r
		}
	}

	for _, room := range pre.Rooms {
		m, ok := proposed[room.ID]
		delete(proposed, room.ID)
		switch {
		case !ok:
			out.Defaulted = append(out.Defaulted, room.ID)
		case m.WidthFt <= 0 || m.DepthFt <= 0:
			out.Defaulted = append(out.Defaulted, room.ID)
		case round1(m.WidthFt*m.DepthFt) < MinRoomArea(room.Type):
			conflicts = append(conflicts, conflict(Dimensioning, "rooms."+room.ID+".area_sqft",
				MinRoomArea(room.Type), round1(m.WidthFt*m.DepthFt), "below minimum, standard size used"))
			out.Defaulted = append(out.Defaulted, room.ID)
		default:
			room.WidthFt = round1(m.WidthFt)
			room.DepthFt = round1(m.DepthFt)
		}
		room.AreaSqft = round1(room.WidthFt * room.DepthFt)
		out.Rooms = append(out.Rooms, room)
	}

	for _, id := range sortedKeys(proposed) {
		conflicts = append(conflicts, conflict(Dimensioning, "rooms."+id, "not in programme", id, "dropped"))
	}

	areas := floorAreas(out.Rooms)
	for _, floor := range sortedFloors(areas) {
		area := areas[floor]
		if limit := floorLimit(in, floor); area > limit {
			conflicts = append(conflicts, conflict(Dimensioning, fmt.Sprintf("rooms.floor_%d.area_sqft", floor),
				limit, round1(area), "rooms exceed the floor limit; flagged for review"))
		}
	}
	return out, conflicts
}

func floorLimit(in DimensioningInput, floor int) float64 {
	if floor == 0 && in.MaxGroundSqft > 0 {
		return math.Min(in.MaxGroundSqft, in.Envelope.AreaSqft)
	}
	return in.Envelope.AreaSqft
}

// floorAreas sums room areas per floor.
func floorAreas(rooms []design.Room) map[int]float64 {
	areas := map[int]float64{}
	for _, r := range rooms {
		areas[r.Floor] += r.AreaSqft
	}
	return areas
}

func sortedFloors(areas map[int]float64) []int {
	floors := make([]int, 0, len(areas))
	for f := range areas {
		floors = append(floors, f)
	}
	sort.Ints(floors)
	return floors
}

func (DimensioningAgent) Review(in DimensioningInput, out RoomSchedule) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	var as []pipeline.Assumption
	if len(out.Defaulted) > 0 {
		as = append(as, pipeline.Assumption{
			ID: "standard-sizes", Risk: pipeline.RiskMedium,
			Text:  fmt.Sprintf("Standard sizes used for %s", strings.Join(out.Defaulted, ", ")),
			Basis: "NBC 2016 minimums",
		})
	}
	areas := floorAreas(out.Rooms)
	for _, f := range sortedFloors(areas) {
		area := areas[f]
		if limit := floorLimit(in, f); area > limit {
			as = append(as, pipeline.Assumption{
				ID: fmt.Sprintf("floor-%d-over-area", f), Risk: pipeline.RiskHigh,
				Text:  fmt.Sprintf("Floor %d rooms total %.0f sqft against a %.0f sqft limit", f, area, limit),
				Basis: "room schedule",
			})
		}
	}
	return nil, as
}
