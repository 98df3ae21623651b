// Package agents implements the ten floor-plan planning agents and binds them
// into the default stage list.
//
// Each agent owns a slice of the design context. Values that follow from fixed
// rules (setbacks, envelope, FSI, zone tables, wall thickness, stair geometry,
// costs) are computed in Precompute and always override the model. The model is
// asked only for what code cannot decide, and design-validation and
// cost-estimation never call it at all.
package agents

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// Agent names double as schema-registry keys and question namespaces.
const (
	RequirementsAnalysis  = "requirements-analysis"
	RegulationCompliance  = "regulation-compliance"
	VastuCompliance       = "vastu-compliance"
	EcoDesign             = "eco-design"
	ArchitecturalZoning   = "architectural-zoning"
	EngineerClarification = "engineer-clarification"
	Dimensioning          = "dimensioning"
	EngineeringPlan       = "engineering-plan"
	DesignValidation      = "design-validation"
	CostEstimation        = "cost-estimation"
)

// Names lists the agents in pipeline order.
func Names() []string {
	return []string{
		RequirementsAnalysis,
		RegulationCompliance,
		VastuCompliance,
		EcoDesign,
		ArchitecturalZoning,
		EngineerClarification,
		Dimensioning,
		EngineeringPlan,
		DesignValidation,
		CostEstimation,
	}
}

// noteFields is appended to every output shape so the model knows where to put
// questions and assumptions.
const noteFields = `Also include "open_questions": [{"key", "text", "type": "mandatory"|"optional", "reason", "default", "options"}] ` +
	`and "assumptions": [{"key", "text", "risk": "low"|"medium"|"high", "basis"}] when you have any.`

// shapeOf renders the JSON schema of v for a prompt.
func shapeOf(v any) string {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	data, err := json.Marshal(s)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// prompt assembles a user prompt from a task line, fixed values and the
// context view.
type prompt struct {
	sb strings.Builder
}

func newPrompt(task string) *prompt {
	p := &prompt{}
	p.sb.WriteString(task)
	p.sb.WriteString("\n")
	return p
}

func (p *prompt) section(title, body string) *prompt {
	if strings.TrimSpace(body) == "" {
		return p
	}
	fmt.Fprintf(&p.sb, "\n## %s\n%s\n", title, strings.TrimSpace(body))
	return p
}

func (p *prompt) fixed(v any) *prompt {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return p
	}
	return p.section("Fixed values (do not change)", string(data))
}

func (p *prompt) shape(v any) string {
	p.section("Respond with JSON matching this schema", shapeOf(v)+"\n"+noteFields)
	return p.sb.String()
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// answer returns the trimmed answer to agent.key, if any.
func answer(answers map[string]string, agent, key string) (string, bool) {
	a, ok := answers[pipeline.QuestionID(agent, key)]
	a = strings.TrimSpace(a)
	return a, ok && a != ""
}

// union merges string lists case-insensitively, keeping first spelling and
// order of appearance.
func union(lists ...[]string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, l := range lists {
		for _, s := range l {
			k := strings.ToLower(strings.TrimSpace(s))
			if k == "" || seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}

func conflict(agent, field string, existing, proposed any, resolution string) design.Conflict {
	return design.Conflict{
		Agent:      agent,
		Field:      field,
		Existing:   fmt.Sprint(existing),
		Proposed:   fmt.Sprint(proposed),
		Resolution: resolution,
	}
}

const keptFixed = "kept computed value"

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
