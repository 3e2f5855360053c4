package core

// BudgetKind identifies one of the budgeted resource dimensions.
type BudgetKind string

const (
	BudgetWallTime   BudgetKind = "wall_time_ms"
	BudgetTokens     BudgetKind = "output_tokens"
	BudgetToolCalls  BudgetKind = "tool_calls"
	BudgetIterations BudgetKind = "iterations"
	BudgetRiskAction BudgetKind = "risk_actions"
)

// Budgets tracks maxima and current usage for every budgeted dimension, plus
// the warning threshold fraction used by shouldCheckpoint.
type Budgets struct {
	MaxWallTimeMS  int64 `yaml:"max_wall_time_ms,omitempty"`
	UsedWallTimeMS int64 `yaml:"-"`

	MaxOutputTokens  int `yaml:"max_output_tokens,omitempty"`
	UsedOutputTokens int `yaml:"-"`

	MaxToolCalls  int `yaml:"max_tool_calls,omitempty"`
	UsedToolCalls int `yaml:"-"`

	MaxIterations  int `yaml:"max_iterations,omitempty"`
	UsedIterations int `yaml:"-"`

	MaxRiskActions  int `yaml:"max_risk_actions,omitempty"`
	UsedRiskActions int `yaml:"-"`

	// WarningThreshold is the fraction in [0,1] of any max at which the
	// governor reports shouldCheckpoint()==true. Default 0.8.
	WarningThreshold float64 `yaml:"warning_threshold,omitempty"`
}

// DefaultBudgets returns a Budgets value with the warning threshold set and
// all maxima left at zero (callers must size maxima for their run).
func DefaultBudgets() Budgets {
	return Budgets{WarningThreshold: DefaultWarningThreshold}
}

// Fraction returns the used/max fraction for the given budget kind, or 0 if
// the kind has no maximum configured (max<=0 is treated as unbounded).
func (b Budgets) Fraction(kind BudgetKind) float64 {
	used, max := b.usedMax(kind)
	if max <= 0 {
		return 0
	}
	return float64(used) / float64(max)
}

// MaxFraction returns the largest fraction used across all budgeted
// dimensions, used for BUDGET_TICK payloads.
func (b Budgets) MaxFraction() float64 {
	var max float64
	for _, k := range []BudgetKind{BudgetWallTime, BudgetTokens, BudgetToolCalls, BudgetIterations, BudgetRiskAction} {
		if f := b.Fraction(k); f > max {
			max = f
		}
	}
	return max
}

// AnyAtOrAbove reports whether any budget dimension's fraction is at or
// above the given threshold.
func (b Budgets) AnyAtOrAbove(threshold float64) bool {
	for _, k := range []BudgetKind{BudgetWallTime, BudgetTokens, BudgetToolCalls, BudgetIterations, BudgetRiskAction} {
		if b.Fraction(k) >= threshold {
			return true
		}
	}
	return false
}

// AnyExhausted reports whether any budget dimension has used>=max (max>0).
func (b Budgets) AnyExhausted() bool {
	for _, k := range []BudgetKind{BudgetWallTime, BudgetTokens, BudgetToolCalls, BudgetIterations, BudgetRiskAction} {
		used, max := b.usedMax(k)
		if max > 0 && used >= max {
			return true
		}
	}
	return false
}

func (b Budgets) usedMax(kind BudgetKind) (used, max int64) {
	switch kind {
	case BudgetWallTime:
		return b.UsedWallTimeMS, b.MaxWallTimeMS
	case BudgetTokens:
		return int64(b.UsedOutputTokens), int64(b.MaxOutputTokens)
	case BudgetToolCalls:
		return int64(b.UsedToolCalls), int64(b.MaxToolCalls)
	case BudgetIterations:
		return int64(b.UsedIterations), int64(b.MaxIterations)
	case BudgetRiskAction:
		return int64(b.UsedRiskActions), int64(b.MaxRiskActions)
	}
	return 0, 0
}
