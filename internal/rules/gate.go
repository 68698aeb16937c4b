package rules

import (
	"context"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// DefaultThreshold is the weighted mean score a message needs to pass the gate.
const DefaultThreshold = 0.5

// Gate decides whether a message is a financial transaction by aggregating
// gate rule results.
type Gate struct {
	engine     *Engine
	threshold  float64
	windowSecs int
}

// NewGate creates a gate over engine. windowSecs is the sender velocity window.
func NewGate(engine *Engine, threshold float64, windowSecs int) *Gate {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Gate{engine: engine, threshold: threshold, windowSecs: windowSecs}
}

// Threshold returns the gate's pass threshold.
func (g *Gate) Threshold() float64 {
	return g.threshold
}

// GateInput is one message to classify.
type GateInput struct {
	TenantID  string
	MessageID string
	Sender    string
	Text      string
}

// Decision is the aggregated gate outcome.
type Decision struct {
	Financial bool
	Vetoed    bool
	Score     float64
	Results   []domain.GateResult
}

// Evaluate runs every loaded rule over the message and aggregates the results.
func (g *Gate) Evaluate(ctx context.Context, in *GateInput) (*Decision, error) {
	results, err := g.engine.EvaluateAll(ctx, &EvaluateInput{
		TenantID:       in.TenantID,
		MessageID:      in.MessageID,
		Sender:         in.Sender,
		Text:           in.Text,
		VelocityWindow: g.windowSecs,
	})
	if err != nil {
		return nil, err
	}
	d := Decide(results, g.threshold)
	return &d, nil
}

// IsFinancial implements domain.Classifier.
func (g *Gate) IsFinancial(ctx context.Context, text string) (bool, error) {
	d, err := g.Evaluate(ctx, &GateInput{Text: text})
	if err != nil {
		return false, err
	}
	return d.Financial, nil
}

// Decide aggregates gate results. Any .fail outcome vetoes the message;
// otherwise the weighted mean score must reach threshold. Errored rules are
// left out of the mean. With no scored results the gate is open.
func Decide(results []domain.GateResult, threshold float64) Decision {
	d := Decision{Results: results}
	if len(results) == 0 {
		d.Financial = true
		return d
	}

	var total, weights float64
	for _, r := range results {
		switch r.Outcome {
		case domain.OutcomeError:
			continue
		case domain.OutcomeFail:
			d.Vetoed = true
		}

		weight := r.Weight
		if weight <= 0 {
			weight = 1.0
		}
		total += r.Score * weight
		weights += weight
	}

	if weights > 0 {
		d.Score = total / weights
	}
	d.Financial = !d.Vetoed && (weights == 0 || d.Score >= threshold)
	return d
}
