package agents

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// RequirementsInput is the client brief plus any explicit counts.
type RequirementsInput struct {
	Brief     string
	Bedrooms  *int
	Bathrooms *int
	Floors    int
	BudgetINR float64
	Amenities []string
	Answers   map[string]string
}

// RequirementsAgent extracts a structured room programme from the brief.
type RequirementsAgent struct{}

func (RequirementsAgent) Name() string { return RequirementsAnalysis }

func (RequirementsAgent) SystemPrompt() string {
	return "You turn a homeowner's brief into a room programme. Count bedrooms and bathrooms exactly as described; do not invent rooms."
}

func (RequirementsAgent) ValidateInput(in RequirementsInput) error {
	if strings.TrimSpace(in.Brief) == "" && in.Bedrooms == nil {
		return errors.New("brief is empty and no bedroom count was given")
	}
	if in.Bedrooms != nil && *in.Bedrooms < 0 {
		return fmt.Errorf("bedrooms must not be negative, got %d", *in.Bedrooms)
	}
	if in.Bathrooms != nil && *in.Bathrooms < 0 {
		return fmt.Errorf("bathrooms must not be negative, got %d", *in.Bathrooms)
	}
	if in.Floors < 0 || in.BudgetINR < 0 {
		return errors.New("floors and budget must not be negative")
	}
	return nil
}

//nolint:gochecknoglobals
var (
	bhkPattern   = regexp.MustCompile(`(?i)\b(\d)\s*-?\s*bhk\b`)
	floorPattern = regexp.MustCompile(`(?i)\bg\s*\+\s*(\d)\b`)
)

// amenityKeywords maps brief keywords to the amenity they imply.
//
//nolint:gochecknoglobals
var amenityKeywords = map[string]string{
	"pooja":     "pooja",
	"prayer":    "pooja",
	"car":       "parking",
	"parking":   "parking",
	"garage":    "parking",
	"office":    "home office",
	"study":     "home office",
	"elderly":   "elderly-friendly",
	"parents":   "elderly-friendly",
	"courtyard": "courtyard",
	"mutram":    "courtyard",
	"terrace":   "terrace garden",
	"balcony":   "balcony",
	"store":     "store",
	"utility":   "utility",
}

// Precompute reads explicit counts, answers and unambiguous brief patterns.
func (RequirementsAgent) Precompute(in RequirementsInput) (design.Requirements, error) {
	out := design.Requirements{
		Floors:    in.Floors,
		BudgetINR: in.BudgetINR,
		Amenities: union(in.Amenities),
	}

	brief := strings.ToLower(in.Brief)
	if m := bhkPattern.FindStringSubmatch(brief); m != nil {
		out.Bedrooms, _ = strconv.Atoi(m[1])
	}
	if m := floorPattern.FindStringSubmatch(brief); m != nil && out.Floors == 0 {
		n, _ := strconv.Atoi(m[1])
		out.Floors = n + 1
	}
	if in.Bedrooms != nil {
		out.Bedrooms = *in.Bedrooms
	}
	if in.Bathrooms != nil {
		out.Bathrooms = *in.Bathrooms
	}

	if a, ok := answer(in.Answers, RequirementsAnalysis, "bedrooms"); ok {
		n, err := strconv.Atoi(a)
		if err != nil || n < 1 {
			return out, pipeline.NewStepError(pipeline.CodeInputInvalid, "answer to bedrooms must be a positive number, got %q", a)
		}
		out.Bedrooms = n
	}
	if a, ok := answer(in.Answers, RequirementsAnalysis, "budget"); ok {
		if v, err := ParseINR(a); err == nil {
			out.BudgetINR = v
		}
	}

	words := map[string]bool{}
	for _, w := range strings.FieldsFunc(brief, func(r rune) bool { return !unicode.IsLetter(r) }) {
		words[w] = true
	}
	var found []string
	for _, kw := range sortedKeys(amenityKeywords) {
		if words[kw] || words[kw+"s"] {
			found = append(found, amenityKeywords[kw])
		}
	}
	out.Amenities = union(out.Amenities, found)
	applyAmenityFlags(&out)
	return out, nil
}

func applyAmenityFlags(r *design.Requirements) {
	for _, a := range r.Amenities {
		switch strings.ToLower(a) {
		case "pooja":
			r.Pooja = true
		case "parking":
			r.Parking = true
		case "home office":
			r.HomeOffice = true
		case "elderly-friendly":
			r.ElderlyFriendly = true
		}
	}
}

func (RequirementsAgent) BuildPrompt(in RequirementsInput, pre design.Requirements, _ string) (string, error) {
	fixed := map[string]any{}
	if pre.Bedrooms > 0 {
		fixed["bedrooms"] = pre.Bedrooms
	}
	if pre.Bathrooms > 0 {
		fixed["bathrooms"] = pre.Bathrooms
	}
	if pre.Floors > 0 {
		fixed["floors"] = pre.Floors
	}
	if pre.BudgetINR > 0 {
		fixed["budget_inr"] = pre.BudgetINR
	}
	return newPrompt("Extract the residential requirements from this brief.").
		section("Brief", in.Brief).
		fixed(fixed).
		shape(design.Requirements{}), nil
}

// Reconcile lets explicit values win, then fills gaps from the model and
// defaults.
func (RequirementsAgent) Reconcile(_ RequirementsInput, pre design.Requirements, model *design.Requirements) (design.Requirements, []design.Conflict) {
	out := pre
	var conflicts []design.Conflict
	if model == nil {
		model = &design.Requirements{}
	}

	pick := func(field string, fixed, proposed int) int {
		if fixed > 0 {
			if proposed > 0 && proposed != fixed {
				conflicts = append(conflicts, conflict(RequirementsAnalysis, field, fixed, proposed, keptFixed))
			}
			return fixed
		}
		if proposed > 0 {
			return proposed
		}
		return 0
	}
	out.Bedrooms = pick("requirements.bedrooms", pre.Bedrooms, model.Bedrooms)
	out.Bathrooms = pick("requirements.bathrooms", pre.Bathrooms, model.Bathrooms)
	out.Floors = pick("requirements.floors", pre.Floors, model.Floors)

	if out.Bathrooms == 0 && out.Bedrooms > 0 {
		out.Bathrooms = out.Bedrooms
	}
	if out.Floors == 0 {
		out.Floors = defaultFloors(out.Bedrooms)
	}
	if out.BudgetINR == 0 && model.BudgetINR > 0 {
		out.BudgetINR = model.BudgetINR
	}
	if out.FamilySize == 0 && model.FamilySize > 0 {
		out.FamilySize = model.FamilySize
	}
	if out.Style == "" {
		out.Style = model.Style
	}

	out.Amenities = union(pre.Amenities, model.Amenities)
	out.Parking = pre.Parking || model.Parking
	out.Pooja = pre.Pooja || model.Pooja
	out.HomeOffice = pre.HomeOffice || model.HomeOffice
	out.ElderlyFriendly = pre.ElderlyFriendly || model.ElderlyFriendly
	applyAmenityFlags(&out)
	return out, conflicts
}

func defaultFloors(bedrooms int) int {
	if bedrooms > 2 {
		return 2
	}
	return 1
}

func (RequirementsAgent) Review(in RequirementsInput, out design.Requirements) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	var qs []pipeline.OpenQuestion
	var as []pipeline.Assumption
	_, answeredBeds := answer(in.Answers, RequirementsAnalysis, "bedrooms")

	if out.Bedrooms == 0 {
		qs = append(qs, pipeline.OpenQuestion{
			ID: "bedrooms", Type: pipeline.Mandatory,
			Text:    "How many bedrooms should the house have?",
			Reason:  "The brief does not state a bedroom count and every room size depends on it.",
			Options: []string{"1", "2", "3", "4"},
		})
	} else if in.Bedrooms == nil && !answeredBeds && !bhkPattern.MatchString(in.Brief) {
		as = append(as, pipeline.Assumption{
			ID: "bedrooms", Risk: pipeline.RiskMedium,
			Text:  fmt.Sprintf("%d bedrooms inferred from the brief", out.Bedrooms),
			Basis: "brief text",
		})
	}
	if in.Bathrooms == nil && out.Bathrooms > 0 {
		as = append(as, pipeline.Assumption{
			ID: "bathrooms", Risk: pipeline.RiskLow,
			Text: fmt.Sprintf("%d bathrooms assumed", out.Bathrooms),
		})
	}
	if in.Floors == 0 && !floorPattern.MatchString(in.Brief) {
		as = append(as, pipeline.Assumption{
			ID: "floors", Risk: pipeline.RiskMedium,
			Text: fmt.Sprintf("%d floor(s) assumed", out.Floors),
		})
	}
	if out.BudgetINR == 0 {
		qs = append(qs, pipeline.OpenQuestion{
			ID: "budget", Type: pipeline.Optional,
			Text:   "What is the construction budget (e.g. 45 lakh)?",
			Reason: "Used to flag estimates that overshoot.",
		})
	}
	return qs, as
}

// ParseINR reads amounts such as "4500000", "45 lakh", "45L" or "1.2 crore".
func ParseINR(s string) (float64, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "rs.")
	s = strings.TrimPrefix(s, "rs")
	s = strings.TrimPrefix(s, "₹")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	mult := 1.0
	for _, u := range []struct {
		suffix string
		mult   float64
	}{
		{"crores", 1e7}, {"crore", 1e7}, {"cr", 1e7},
		{"lakhs", 1e5}, {"lakh", 1e5}, {"lac", 1e5}, {"l", 1e5},
	} {
		if strings.HasSuffix(s, u.suffix) {
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			mult = u.mult
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("cannot read amount %q", s)
	}
	return v * mult, nil
}
