package design

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Context is the DesignContext threaded through the pipeline. A nil section
// means no stage has produced it yet. The orchestrator owns one instance per
// session and hands it to one stage at a time.
type Context struct {
	SessionID    string        `json:"session_id"`
	Input        Input         `json:"input"`
	Plot         *Plot         `json:"plot,omitempty"`
	Regulation   *Regulation   `json:"regulation,omitempty"`
	Requirements *Requirements `json:"requirements,omitempty"`
	Vastu        *Vastu        `json:"vastu,omitempty"`
	Eco          *Eco          `json:"eco,omitempty"`
	Zones        *ZonePlan     `json:"zones,omitempty"`
	Structure    *Structure    `json:"structure,omitempty"`
	Rooms        []Room        `json:"rooms,omitempty"`
	Engineering  *Engineering  `json:"engineering,omitempty"`
	Cost         *Cost         `json:"cost,omitempty"`
	Validation   *Validation   `json:"validation,omitempty"`
	Conflicts    []Conflict    `json:"conflicts"`
	Fallbacks    []string      `json:"fallbacks"`
}

// NewContext creates the context for a session and normalises the plot.
func NewContext(sessionID string, in Input) *Context {
	plot := NormalizePlot(in.Plot)
	return &Context{
		SessionID: sessionID,
		Input:     in,
		Plot:      &plot,
		Conflicts: []Conflict{},
		Fallbacks: []string{},
	}
}

// NormalizePlot converts the plot to feet and computes its area.
func NormalizePlot(p PlotInput) Plot {
	width, depth := p.Width, p.Depth
	if p.Unit == UnitMeters {
		width *= FeetPerMeter
		depth *= FeetPerMeter
	}
	return Plot{
		WidthFt:     width,
		DepthFt:     depth,
		AreaSqft:    width * depth,
		RoadSide:    p.RoadSide,
		RoadWidthFt: p.RoadWidthFt,
		Authority:   p.Authority,
		City:        p.City,
	}
}

// SetbacksFt returns the client's setbacks in feet, converted with the plot
// unit. nil when none were given.
func SetbacksFt(in Input) *Setbacks {
	if in.Setbacks == nil {
		return nil
	}
	s := *in.Setbacks
	if in.Plot.Unit == UnitMeters {
		s.North *= FeetPerMeter
		s.South *= FeetPerMeter
		s.East *= FeetPerMeter
		s.West *= FeetPerMeter
	}
	return &s
}

// RecordConflict registers a disagreement without touching the upstream value.
func (c *Context) RecordConflict(agent, field string, existing, proposed any, resolution string) {
	c.Conflicts = append(c.Conflicts, Conflict{
		Agent:      agent,
		Field:      field,
		Existing:   fmt.Sprint(existing),
		Proposed:   fmt.Sprint(proposed),
		Resolution: resolution,
	})
}

// AddConflicts appends conflicts produced by a stage.
func (c *Context) AddConflicts(conflicts []Conflict) {
	c.Conflicts = append(c.Conflicts, conflicts...)
}

// AddFallback notes that stage ran on its default instead of its own output.
func (c *Context) AddFallback(stage string) {
	for _, f := range c.Fallbacks {
		if f == stage {
			return
		}
	}
	c.Fallbacks = append(c.Fallbacks, stage)
}

// Clone deep-copies the context through JSON.
func (c *Context) Clone() (*Context, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("clone design context: %w", err)
	}
	var out Context
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone design context: %w", err)
	}
	return &out, nil
}

// JSON returns the indented JSON document handed to downstream consumers.
func (c *Context) JSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// PromptView renders the context for a prompt. The full view is the JSON
// document without the raw input answers; the compact view is a short summary
// used once the token budget asks for summarisation.
func (c *Context) PromptView(compact bool) (string, error) {
	if !compact {
		view := *c
		view.Input.Answers = nil
		data, err := json.MarshalIndent(&view, "", "  ")
		if err != nil {
			return "", fmt.Errorf("render design context: %w", err)
		}
		return string(data), nil
	}

	var sb strings.Builder
	if c.Plot != nil {
		road := c.Plot.RoadSide
		if c.Regulation != nil && c.Regulation.RoadSide != "" {
			road = c.Regulation.RoadSide
		}
		fmt.Fprintf(&sb, "Plot: %.1f x %.1f ft (%.0f sqft), road on %s\n", c.Plot.WidthFt, c.Plot.DepthFt, c.Plot.AreaSqft, road)
	}
	if r := c.Regulation; r != nil {
		fmt.Fprintf(&sb, "Buildable envelope: %.1f x %.1f ft (%.1f sqft), FSI %.2f, max built-up %.0f sqft, max floors %d\n",
			r.Envelope.WidthFt, r.Envelope.DepthFt, r.Envelope.AreaSqft, r.FSI, r.MaxBuiltUpSqft, r.MaxFloors)
	}
	if r := c.Requirements; r != nil {
		fmt.Fprintf(&sb, "Requirements: %d bed, %d bath, %d floors, amenities %s\n", r.Bedrooms, r.Bathrooms, r.Floors, strings.Join(r.Amenities, ", "))
	}
	if c.Vastu != nil {
		fmt.Fprintf(&sb, "Vastu: %s, entrance %s\n", c.Vastu.Preference, c.Vastu.Entrance)
	}
	if c.Eco != nil {
		fmt.Fprintf(&sb, "Eco mandatory: %s\n", strings.Join(c.Eco.Mandatory, ", "))
	}
	if c.Zones != nil {
		names := make([]string, 0, len(c.Zones.Zones))
		for _, z := range c.Zones.Zones {
			names = append(names, fmt.Sprintf("%s(%s %.0f%%)", z.Name, z.Quadrant, z.Share*100))
		}
		fmt.Fprintf(&sb, "Zones: %s\n", strings.Join(names, ", "))
	}
	if c.Structure != nil {
		fmt.Fprintf(&sb, "Structure: %s, walls %.1f/%.1f in\n", c.Structure.Strategy, c.Structure.ExternalWallIn, c.Structure.InternalWallIn)
	}
	if len(c.Rooms) > 0 {
		fmt.Fprintf(&sb, "Rooms: %d dimensioned\n", len(c.Rooms))
	}
	return sb.String(), nil
}
