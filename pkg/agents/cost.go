package agents

import (
	"fmt"
	"math"

	"floorplanner/pkg/design"
	"floorplanner/pkg/pipeline"
)

// OverBudgetTolerancePct is how far over budget an estimate may run before it
// is flagged.
const OverBudgetTolerancePct = 10

// RatePerSqft is the construction rate in INR for a structural strategy.
func RatePerSqft(strategy string) float64 {
	switch strategy {
	case design.StrategyRCC:
		return 2350
	case design.StrategyHybrid:
		return 2100
	default:
		return 1850
	}
}

// CostInput is what the estimate is priced from.
type CostInput struct {
	Rooms     []design.Room
	Strategy  string
	EcoINR    float64
	BudgetINR float64
}

// CostAgent prices the design. It never calls the model.
type CostAgent struct{}

func (CostAgent) Name() string { return CostEstimation }

func (CostAgent) ValidateInput(in CostInput) error {
	if len(in.Rooms) == 0 {
		return fmt.Errorf("cost estimation needs a room schedule")
	}
	if in.Strategy == "" {
		return fmt.Errorf("cost estimation needs a structural strategy")
	}
	return nil
}

func (CostAgent) Precompute(in CostInput) (design.Cost, error) {
	builtUp := BuiltUpArea(in.Rooms)
	rate := RatePerSqft(in.Strategy)
	out := design.Cost{
		BuiltUpSqft:  builtUp,
		RatePerSqft:  rate,
		BaseINR:      math.Round(builtUp * rate),
		EcoExtrasINR: math.Round(in.EcoINR),
		BudgetINR:    in.BudgetINR,
	}
	out.TotalINR = out.BaseINR + out.EcoExtrasINR
	if in.BudgetINR > 0 && out.TotalINR > in.BudgetINR {
		out.OverBudgetPct = round1((out.TotalINR - in.BudgetINR) / in.BudgetINR * 100)
	}
	return out, nil
}

func (CostAgent) BuildPrompt(CostInput, design.Cost, string) (string, error) {
	return "", nil
}

func (CostAgent) Reconcile(_ CostInput, pre design.Cost, _ *design.Cost) (design.Cost, []design.Conflict) {
	return pre, nil
}

func (CostAgent) Review(in CostInput, out design.Cost) ([]pipeline.OpenQuestion, []pipeline.Assumption) {
	as := []pipeline.Assumption{{
		ID: "rates", Risk: pipeline.RiskLow,
		Text:  fmt.Sprintf("%s construction at INR %.0f per sqft", in.Strategy, out.RatePerSqft),
		Basis: "Tamil Nadu market rates",
	}}
	if out.OverBudgetPct > OverBudgetTolerancePct {
		as = append(as, pipeline.Assumption{
			ID: "over-budget", Risk: pipeline.RiskHigh,
			Text:  fmt.Sprintf("Estimate INR %.0f is %.1f%% over the INR %.0f budget", out.TotalINR, out.OverBudgetPct, out.BudgetINR),
			Basis: "cost estimate",
		})
	}
	return nil, as
}
