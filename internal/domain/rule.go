package domain

// GateRule is one classifier gate rule: a CEL expression scored into bands.
type GateRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression to evaluate
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping
	Bands []GateBand `json:"bands"`

	// Rule weight in the gate score
	Weight float64 `json:"weight"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// GateBand maps a score range to an outcome.
type GateBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".pass", ".review", ".fail"
	Reason     string   `json:"reason"`
}

// GateResult is the output of one gate rule evaluation.
type GateResult struct {
	RuleID    string  `json:"ruleId"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	Weight    float64 `json:"weight"`
	ProcessMs int64   `json:"processMs"`
}

// Gate rule outcomes. A .fail outcome vetoes the message as non-financial.
const (
	OutcomePass   = ".pass"
	OutcomeFail   = ".fail"
	OutcomeReview = ".review"
	OutcomeError  = ".err"
)
