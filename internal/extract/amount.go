package extract

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/parsepay/internal/domain"
)

const amountConfidence = 1.0

// amountPattern matches a currency marker followed by a decimal number.
var amountPattern = regexp.MustCompile(`(?i)(?:rs\.?|inr)\s?([0-9,]+(?:\.[0-9]{1,2})?)(?:\s*/-)?`)

// Amount extracts the first currency amount in text, separators stripped.
func Amount(text string) domain.FieldResult {
	m := amountPattern.FindStringSubmatch(text)
	if m == nil {
		return domain.Missing("Amount not found")
	}
	value := strings.ReplaceAll(m[1], ",", "")
	if value == "" {
		return domain.Missing("Amount not found")
	}
	return domain.Found(value, amountConfidence, domain.SourceRule)
}
