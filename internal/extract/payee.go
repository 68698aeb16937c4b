package extract

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// payeeTier is one class of payee patterns. Within a tier the first
// pattern whose capture survives the veto wins.
type payeeTier struct {
	confidence float64
	patterns   []*regexp.Regexp
	veto       *regexp.Regexp
	compose    func(m []string) string
}

func compile(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// payeeTiers in priority order: merchant, UPI handle, person, service,
// mixed formats, bank and card payments.
var payeeTiers = []payeeTier{
	{
		confidence: 0.9,
		patterns: compile(
			`(?i)(?:at|@)\s+([A-Z0-9\s]+)(?:\s+on|\.|$)`,
			`(?i)(?:at|to|@)\s+([A-Z][A-Z0-9\s]+)(?:\s+using|\s+via|\s+on|\.|$)`,
			`(?i)(?:POS|purchase)\s+(?:at|@)\s+([A-Z0-9\s]+)(?:\s+on|\.|$)`,
			`(?i)(?:for purchase at|spent at|paid to|payment to)\s+([A-Z0-9\s]+)(?:\s+on|\.|$)`,
			`(?i)(?:card|debit card|credit card).+(?:used|transaction|purchase).+(?:at|@)\s+([A-Z0-9\s]+)(?:\s+on|\.|$)`,
		),
		veto: regexp.MustCompile(`(?i)^(?:on|using|via|the|your|our)\b`),
	},
	{
		confidence: 0.85,
		patterns: compile(
			`(?i)(?:to|2|sent to|paid to|payment to)\s+([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+)`,
			`(?i)(?:UPI:?\s+|VPA:?\s+)([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+)`,
			`(?i)(?:UPI ID|VPA ID):?\s+([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+)`,
			`(?i)(?:UPI|VPA|UPI Ref):?\s+(?:.*?)\s+(?:to|2|ID:?)\s+([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+)`,
		),
	},
	{
		confidence: 0.85,
		patterns: compile(
			`(?i)(?:transferred|sent|payment|paid)(?:\s+to)?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})(?:'s)?\s+(?:A/C|A/c|Acct|account|a/c)`,
			`(?i)(?:transferred|sent|payment|paid)(?:\s+to)?\s+([A-Z]{2,}(?:\s+[A-Z]{2,}){1,2})(?:'s)?\s+(?:A/C|A/c|Acct|account|a/c)`,
			`(?i)(?:to|2)\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})(?:\s+via|\s+through|\s+using|\s+by)?`,
			`(?i)(?:to|2)\s+([A-Z]{2,}(?:\s+[A-Z]{2,}){1,2})(?:\s+via|\s+through|\s+using|\s+by)?`,
			`(?i)(?:beneficiary|benef|recipient):?\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})`,
			`(?i)(?:beneficiary|benef|recipient):?\s+([A-Z]{2,}(?:\s+[A-Z]{2,}){1,2})`,
			`(?i)(?:to|2)\s+(?:the\s+account\s+of\s+)([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})`,
			`(?i)(?:to|2)\s+(?:the\s+account\s+of\s+)([A-Z]{2,}(?:\s+[A-Z]{2,}){1,2})`,
			`(?i)(?:transfer|payment|sent|paid)\s+to\s+(?:[^.]*?)(?:\()([^)]+)(?:\))`,
			`(?i)(?:fund\s+transfer|transfer|payment|sent|paid)\s+to\s+([A-Z][a-z]+(?:\s+[A-Z][a-z]+){1,2})`,
			`(?i)(?:fund\s+transfer|transfer|payment|sent|paid)\s+to\s+([A-Z]{2,}(?:\s+[A-Z]{2,}){1,2})`,
			`(?i)(?:to|2|sent to|paid to|payment to)\s+((?:Dr|Mr|Mrs|Ms|Prof)\.?\s+[A-Z][a-z]+(?:\s+[A-Z][a-z]+)?)`,
		),
		veto: regexp.MustCompile(`(?i)\b(?:bank|card|account|billing|payment|purchase|transaction|reference|paid|using|info)\b`),
	},
	{
		confidence: 0.8,
		patterns: compile(
			`(?i)(?:towards|for)\s+([A-Za-z\s]+\b(?:Bill|Payment|Recharge|Subscription))(?:\s+-\s+([A-Za-z\s]+))?`,
			`(?i)(?:towards|for)\s+([A-Za-z\s]+(?:Bill|Payment|Recharge|Subscription))(?:\s+to|\s+for|\s+of)?\s+([A-Za-z\s]+)`,
			`(?i)(?:[A-Za-z\s]+(?:Bill|Payment|Recharge|Subscription))\s+-\s+([A-Za-z\s]+)`,
			`(?i)(?:payment|paid|transferred|sent)(?:\s+for)?\s+([A-Za-z\s]+(?:Bill|Invoice|Receipt|Statement|Dues|Fee|Fees))`,
			`(?i)(?:payment|paid|transferred|sent)(?:\s+for)?\s+([A-Za-z\s]+)\s+(?:Bill|Invoice|Receipt|Dues|Fee|Fees)`,
		),
		compose: joinDash,
	},
	{
		confidence: 0.75,
		patterns: compile(
			`(?i)(?:to|2|sent to|paid to|payment to)\s+([^()]+)(?:\s*\(UPI ID:?\s*([a-zA-Z0-9._-]+@[a-zA-Z0-9._-]+)\))`,
			`(?i)(?:to|2|sent to|paid to|payment to)\s+([^()]+)(?:\s+via|through|using)\s+UPI`,
			`(?i)(?:to|2|sent to|paid to|payment to|for)\s+([A-Za-z\s]+(?:service|consultation|fee|invoice|subscription))`,
			`(?i)(?:to|2|sent to|paid to|payment to)\s+([^()]+)(?:\s+-\s+([A-Za-z\s]+))`,
			`(?i)(?:at|@)\s+([A-Za-z0-9\s]+)\s+(?:subscription|membership|recurring)`,
		),
		compose: func(m []string) string {
			name := strings.TrimSpace(m[1])
			extra := group(m, 2)
			switch {
			case extra == "":
				return name
			case strings.Contains(extra, "@"):
				return name + " (" + extra + ")"
			default:
				return name + " - " + extra
			}
		},
	},
	{
		confidence: 0.8,
		patterns: compile(
			`(?i)(?:payment|paid)(?:\s+towards|\s+for)?\s+(?:your)?\s+([A-Za-z\s]+(?:Card|credit\s+card|loan|mortgage)(?:\s+Bill)?)`,
			`(?i)(?:payment|paid)(?:\s+towards|\s+for)?\s+(?:your)?\s+([A-Za-z\s]+(?:EMI|Loan\s+EMI|Dues|Statement))`,
			`(?i)(?:payment|paid)(?:\s+to)?\s+(?:your)?\s+([A-Za-z\s]+(?:Bank|Financial|Finance|Insurance)(?:\s+[A-Za-z\s]+)?)`,
		),
	},
}

func group(m []string, i int) string {
	if i >= len(m) {
		return ""
	}
	return strings.TrimSpace(m[i])
}

// joinDash renders "service - provider" when a provider was captured.
func joinDash(m []string) string {
	name := strings.TrimSpace(m[1])
	if extra := group(m, 2); extra != "" {
		return name + " - " + extra
	}
	return name
}

// Payee finds the merchant, person, UPI handle or service paid.
func Payee(text string) domain.FieldResult {
	for _, tier := range payeeTiers {
		if value, ok := tier.match(text); ok {
			return domain.Found(value, tier.confidence, domain.SourceRule)
		}
	}
	return domain.Missing("Payee not found")
}

func (t payeeTier) match(text string) (string, bool) {
	for _, p := range t.patterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		var value string
		if t.compose != nil {
			value = t.compose(m)
		} else {
			value = strings.TrimSpace(m[1])
		}
		if value == "" {
			continue
		}
		if t.veto != nil && t.veto.MatchString(strings.TrimSpace(m[1])) {
			continue
		}
		return value, true
	}
	return "", false
}
