package rules

import "github.com/opensource-finance/parsepay/internal/domain"

// vetoExpression scores 0 for OTP or marketing text that reports no
// completed transaction.
const vetoExpression = `lower.matches(r'\b(?:otp|one[- ]time password|verification code|promo code|cashback offer|congratulations|apply now|pre-approved|limited period)\b') &&
	!lower.matches(r'\b(?:debited|credited|spent|withdrawn|transferred|received)\b') ? 0.0 : 1.0`

func limit(v float64) *float64 { return &v }

// presenceBands scores a 0/1 signal: 1 passes, anything lower asks for review.
func presenceBands(present, absent string) []domain.GateBand {
	return []domain.GateBand{
		{UpperLimit: limit(1), Outcome: domain.OutcomeReview, Reason: absent},
		{LowerLimit: limit(1), Outcome: domain.OutcomePass, Reason: present},
	}
}

// DefaultGateRules returns the built-in classifier gate rules.
func DefaultGateRules() []*domain.GateRule {
	return []*domain.GateRule{
		{
			ID:          "gate-currency-001",
			Name:        "Currency Marker",
			Description: "Message carries an amount in rupees",
			Version:     "1.0.0",
			Expression:  `has_currency ? 1.0 : 0.0`,
			Bands:       presenceBands("Currency amount present", "No currency amount"),
			Weight:      2.0,
			Enabled:     true,
		},
		{
			ID:          "gate-vocabulary-001",
			Name:        "Transaction Vocabulary",
			Description: "Message uses debit, credit or payment wording",
			Version:     "1.0.0",
			Expression:  `lower.matches(r'\b(?:debited|credited|spent|paid|sent|received|withdrawn|withdrawal|purchase|payment|transferred|deposited|refund|txn|transaction)\b') ? 1.0 : 0.0`,
			Bands:       presenceBands("Transaction wording present", "No transaction wording"),
			Weight:      2.0,
			Enabled:     true,
		},
		{
			ID:          "gate-account-001",
			Name:        "Masked Account",
			Description: "Message references a masked account or card number",
			Version:     "1.0.0",
			Expression:  `has_account ? 1.0 : 0.0`,
			Bands:       presenceBands("Masked account present", "No account reference"),
			Weight:      1.0,
			Enabled:     true,
		},
		{
			ID:          "gate-upi-001",
			Name:        "UPI Handle",
			Description: "Message references a UPI handle",
			Version:     "1.0.0",
			Expression:  `has_upi ? 1.0 : 0.0`,
			Bands:       presenceBands("UPI handle present", "No UPI handle"),
			Weight:      1.0,
			Enabled:     true,
		},
		{
			ID:          "gate-veto-001",
			Name:        "OTP and Promotion Veto",
			Description: "Rejects one-time passwords and marketing messages that report no completed transaction",
			Version:     "1.0.0",
			Expression:  vetoExpression,
			Bands: []domain.GateBand{
				{UpperLimit: limit(0.5), Outcome: domain.OutcomeFail, Reason: "OTP or promotional message"},
				{LowerLimit: limit(0.5), Outcome: domain.OutcomePass, Reason: "No OTP or promotional content"},
			},
			Weight:  1.0,
			Enabled: true,
		},
	}
}

// MergeGateRules returns defaults with stored rules layered on top: a stored
// rule replaces the default of the same ID, other stored rules are added.
func MergeGateRules(defaults, stored []*domain.GateRule) []*domain.GateRule {
	byID := make(map[string]int, len(defaults)+len(stored))
	merged := make([]*domain.GateRule, 0, len(defaults)+len(stored))
	for _, set := range [][]*domain.GateRule{defaults, stored} {
		for _, r := range set {
			if i, ok := byID[r.ID]; ok {
				merged[i] = r
				continue
			}
			byID[r.ID] = len(merged)
			merged = append(merged, r)
		}
	}
	return merged
}
