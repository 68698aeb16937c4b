package extract

import (
	"regexp"
	"strings"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// Bank tier confidences, strictly decreasing.
const (
	bankNameConfidence   = 0.9
	bankUPIConfidence    = 0.65
	bankPrefixConfidence = 0.5
)

var bankNamePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:^|\s)([A-Z]{2,}(?:\s+[A-Z]+)?\s+Bank)`),
	regexp.MustCompile(`(?i)(?:^|\s)([A-Z]{2,}(?:\s+[A-Z]+)?):?(?:\s|$)`),
	regexp.MustCompile(`(?i)(?:from|on|to|in|your)\s+([A-Z][a-zA-Z]+(?:\s+[A-Z][a-zA-Z]+)?\s+[Bb]ank)`),
	regexp.MustCompile(`(?i)(?:from|on|to|in|your)\s+([A-Z]{2,}\s+FIRST)`),
}

var (
	bankLeadIn    = regexp.MustCompile(`(?i)^(?:from|alert|to|in|your)\s+`)
	upiSuffix     = regexp.MustCompile(`(?i)@([a-z]+)`)
	maskedAccount = regexp.MustCompile(`(?:xx|x|XX)(\d{2})\d+`)
)

// Bank finds the bank named or implied by text.
func Bank(text string, reg *domain.Registry) domain.FieldResult {
	if bank, ok := bankByName(text, reg); ok {
		return domain.Found(bank, bankNameConfidence, domain.SourceRule)
	}
	if bank, ok := BankByUPI(text, reg); ok {
		return domain.Found(bank, bankUPIConfidence, domain.SourceRule)
	}
	if bank, ok := BankByAccountPrefix(text, reg); ok {
		return domain.Found(bank, bankPrefixConfidence, domain.SourceRule)
	}
	return domain.Missing("Bank name not found")
}

// bankByName checks the first match of each name pattern against the registry.
func bankByName(text string, reg *domain.Registry) (string, bool) {
	for _, p := range bankNamePatterns {
		m := p.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		candidate := strings.Trim(strings.TrimSpace(m[1]), ".:,")
		candidate = bankLeadIn.ReplaceAllString(candidate, "")
		if bank, ok := reg.BankIn(candidate); ok {
			return bank, true
		}
	}
	return "", false
}

// BankByUPI infers the bank from the first UPI handle suffix in text.
func BankByUPI(text string, reg *domain.Registry) (string, bool) {
	m := upiSuffix.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return reg.BankForUPISuffix(m[1])
}

// BankByAccountPrefix infers the bank from the leading digits of a masked account.
func BankByAccountPrefix(text string, reg *domain.Registry) (string, bool) {
	m := maskedAccount.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return reg.BankForPrefix(m[1])
}
