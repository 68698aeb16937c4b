package extract

import (
	"regexp"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// Transaction type values.
const (
	TypeDebit  = "debit"
	TypeCredit = "credit"
)

const txnTypeConfidence = 0.95

var (
	debitVocabulary    = regexp.MustCompile(`(?i)\b(?:debited|spent|paid|sent|withdrawn|withdrawal|purchase|payment)\b`)
	creditVocabulary   = regexp.MustCompile(`(?i)\b(?:credited|received|deposit|salary|credit|cash\s+in)\b`)
	transferVocabulary = regexp.MustCompile(`(?i)\b(?:transferred|transfer|sent|paid|payment)\b`)
	cardUsage          = regexp.MustCompile(`(?i)\b(?:card|debit card).+used\b`)
)

// txnTypeRules is evaluated in order; debit wins over credit on mixed vocabulary.
var txnTypeRules = []struct {
	pattern *regexp.Regexp
	value   string
}{
	{debitVocabulary, TypeDebit},
	{creditVocabulary, TypeCredit},
	{transferVocabulary, TypeDebit},
	{cardUsage, TypeDebit},
}

// TransactionType classifies text as debit or credit.
func TransactionType(text string) domain.FieldResult {
	for _, r := range txnTypeRules {
		if r.pattern.MatchString(text) {
			return domain.Found(r.value, txnTypeConfidence, domain.SourceRule)
		}
	}
	return domain.Missing("Transaction type not found")
}
