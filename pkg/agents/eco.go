package agents

import (
	"fmt"
	"math"
	"strings"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Eco elements every plan carries.
const (
	EcoRainwater   = "rainwater harvesting"
	EcoSolarHeater = "solar water heater"
	EcoCrossVent   = "cross ventilation"
	EcoCourtyard   = "central courtyard"
)

const (
	courtyardThresholdSqft = 600
	courtyardMinSqft       = 36
	courtyardShare         = 0.04

	sqmPerSqft      = 0.0929
	rainfallDepthM  = 0.05
	runoffCoeff     = 0.8
	sumpRoundLitres = 500

	rainwaterINR     = 25000
	solarHeaterINR   = 30000
	sumpINRPerLitre  = 6
	courtyardINRSqft = 400
)

// EcoInput is the geometry eco sizing depends on.
type EcoInput struct {
	Envelope     design.Envelope
	PlotAreaSqft float64
	Amenities    []string
}

// EcoAgent fixes the mandatory sustainable elements and sizes the courtyard and
// sump. The model adds optional suggestions.
type EcoAgent struct{}

func (EcoAgent) Name() string { return EcoDesign }

func (EcoAgent) SystemPrompt() string {
	return "You are a sustainable-architecture consultant for hot humid Tamil Nadu. Mandatory elements are fixed; add low-cost passive measures and local material notes."
}

func (EcoAgent) ValidateInput(in EcoInput) error {
	if in.Envelope.AreaSqft <= 0 || in.PlotAreaSqft <= 0 {
		return fmt.Errorf("eco sizing needs a positive envelope and plot area")
	}
	return nil
}

// CourtyardMinArea is max(36, 4% of the envelope).
func CourtyardMinArea(envelopeSqft float64) float64 {
	return round1(math.Max(courtyardMinSqft, envelopeSqft*courtyardShare))
}

// SumpLitres sizes the rainwater sump for one 50 mm storm over the plot,
// rounded up to the next 500 litres.
func SumpLitres(plotAreaSqft float64) int {
	litres := plotAreaSqft * sqmPerSqft * rainfallDepthM * runoffCoeff * 1000
	return int(math.Ceil(litres/sumpRoundLitres)) * sumpRoundLitres
}

func (EcoAgent) Precompute(in EcoInput) (design.Eco, error) {
	out := design.Eco{
		Mandatory:  []string{EcoRainwater, EcoSolarHeater, EcoCrossVent},
		SumpLitres: SumpLitres(in.PlotAreaSqft),
	}
	out.EstimatedINR = rainwaterINR + solarHeaterINR + float64(out.SumpLitres)*sumpINRPerLitre
	if in.Envelope.AreaSqft >= courtyardThresholdSqft {
		out.Mandatory = append(out.Mandatory, EcoCourtyard)
		out.Courtyard = design.Courtyard{Required: true, MinAreaSqft: CourtyardMinArea(in.Envelope.AreaSqft)}
		out.EstimatedINR += out.Courtyard.MinAreaSqft * courtyardINRSqft
	}
	out.EstimatedINR = math.Round(out.EstimatedINR)
	return out, nil
}

func (EcoAgent) BuildPrompt(in EcoInput, pre design.Eco, _ string) (string, error) {
	return newPrompt("Suggest eco-design measures for this house.").
		section("Site", fmt.Sprintf("Buildable envelope %.1f x %.1f ft (%.1f sqft), plot %.0f sqft, amenities: %s",
			in.Envelope.WidthFt, in.Envelope.DepthFt, in.Envelope.AreaSqft, in.PlotAreaSqft, strings.Join(in.Amenities, ", "))).
		fixed(pre).
		shape(design.Eco{}), nil
}

// Reconcile keeps the mandatory list and sizing. Extra elements the model
// calls mandatory become suggestions.
func (EcoAgent) Reconcile(_ EcoInput, pre design.Eco, model *design.Eco) (design.Eco, []design.Conflict) {
	out := pre
	if model == nil {
		return out, nil
	}
	var conflicts []design.Conflict

	fixed := map[string]bool{}
	for _, m := range pre.Mandatory {
		fixed[strings.ToLower(m)] = true
	}
	var extra []string
	for _, m := range model.Mandatory {
		if !fixed[strings.ToLower(strings.TrimSpace(m))] {
			extra = append(extra, m)
		}
	}
	if model.Courtyard.MinAreaSqft > 0 && pre.Courtyard.Required && math.Abs(model.Courtyard.MinAreaSqft-pre.Courtyard.MinAreaSqft) > 0.5 {
		conflicts = append(conflicts, conflict(EcoDesign, "eco.courtyard.min_area_sqft", pre.Courtyard.MinAreaSqft, model.Courtyard.MinAreaSqft, keptFixed))
	}
	if model.SumpLitres > 0 && model.SumpLitres != pre.SumpLitres {
		conflicts = append(conflicts, conflict(EcoDesign, "eco.sump_litres", pre.SumpLitres, model.SumpLitres, keptFixed))
	}
	out.Suggestions = union(pre.Suggestions, extra, model.Suggestions)
	out.MaterialsNotes = union(pre.MaterialsNotes, model.MaterialsNotes)
	return out, conflicts
}

func (EcoAgent) Review(in EcoInput, out design.Eco) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	var as []pipeline.Assumption
	wantsCourtyard := false
	for _, a := range in.Amenities {
		if strings.EqualFold(a, "courtyard") {
			wantsCourtyard = true
		}
	}
	if !out.Courtyard.Required && wantsCourtyard {
		as = append(as, pipeline.Assumption{
			ID: "courtyard", Risk: pipeline.RiskMedium,
			Text:  fmt.Sprintf("Envelope under %d sqft; courtyard treated as optional", courtyardThresholdSqft),
			Basis: "eco sizing rule",
		})
	}
	as = append(as, pipeline.Assumption{
		ID: "sump", Risk: pipeline.RiskLow,
		Text:  fmt.Sprintf("Sump sized at %d litres for a 50 mm storm", out.SumpLitres),
		Basis: "plot area x 50 mm x 0.8 runoff",
	})
	return nil, as
}
