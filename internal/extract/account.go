package extract

import (
	"regexp"

	"github.com/opensource-finance/parsepay/internal/domain"
)

const (
	explicitAccountConfidence = 0.95
	genericAccountConfidence  = 0.8
)

var fromAccountPattern = regexp.MustCompile(`(?i)from\s+(?:A/C|A/c|Acct|account)?\s*(?:xx|x|XX|ending)?\s*([xX\d]{4,})`)

var toAccountPatterns = compile(
	`(?i)to\s+(?:.*?)\s*\((?:A/C|A/c|Acct|account)?\s*(?:no\.?)?\s*(?:xx|x|XX|ending)?\s*([xX\d]{4,})\)`,
	`(?i)to\s+(?:A/C|A/c|Acct|account)?\s*(?:xx|x|XX|ending)?\s*([xX\d]{4,})`,
	`(?i)credited\s+to\s+(?:A/C|A/c|Acct|account)?\s*(?:no\.?)?\s*(?:xx|x|XX|ending)?\s*([xX\d]{4,})`,
	`(?i)transferred\s+to\s+(?:.*?)\s+(?:\()?(?:A/C|A/c|Acct|account)?\s*(?:no\.?)?\s*(?:xx|x|XX|ending)?\s*([xX\d]{4,})(?:\))?`,
	`(?i)deposited\s+to\s+(?:your)?\s+(?:A/C|A/c|Acct|account)?\s*(?:no\.?)?\s*(?:xx|x|XX)?\s*([xX\d]{4,})`,
	`(?i)beneficiary\s+(?:A/C|A/c|Acct|account)?\s*(?:no\.?)?\s*(?:xx|x|XX)?\s*([xX\d]{4,})`,
	`(?i)to\s+(?:.*?)@(?:\w+)/(\d{4,})`,
	`(?i)UPI[- ]P2A[- ](?:.*?)(?:to|a/c|account)[- ](\d{4,})`,
	`(?i)UPI/(\d{4,})/`,
	`(?i)to\s+(?:.*?)\s+via\s+IMPS\s+Ref:\s+(\d{4,})`,
	`(?i)to\s+(?:.*?)\s+using\s+NEFT\s+Ref:\s+(\d{4,})`,
	`(?i)to\s+(?:.*?)\s+via\s+RTGS\s+Ref:\s+(\d{4,})`,
)

// Generic masks, matched case-sensitively.
var genericAccountPatterns = compile(
	`(?:A/C|A/c|Acct|Card|account)?\s*(?:xx|x|XX|ending|[Ee]nding in)?\s*([xX\d]{4,})`,
	`[Aa]/?[Cc](?:count)?\s*(?:\w+\s*)?(?:no\.?)?\s*(?:xx|x|XX)?\s*([xX\d]{4,})`,
	`(?:acct|account|a/c)[.\s]*(?:no\.?)?[.\s]*(?:xx|x|XX)?[.\s]*([xX\d]{4,})`,
	`(?:xx|XX)(\d{4,})`,
)

// Accounts extracts the source and destination account identifiers.
// Role indicators ("from", "to", "credited to", ...) are trusted first; a
// bare account number is assigned a role from the debit or credit
// vocabulary of the message.
func Accounts(text string) (from, to domain.FieldResult) {
	from = domain.Missing("Source account not found")
	to = domain.Missing("Destination account not found")

	if m := fromAccountPattern.FindStringSubmatch(text); m != nil {
		from = domain.Found(m[1], explicitAccountConfidence, domain.SourceRule)
	}
	for _, p := range toAccountPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			to = domain.Found(m[1], explicitAccountConfidence, domain.SourceRule)
			break
		}
	}

	if from.Present() && to.Present() {
		return from, to
	}
	account, ok := genericAccount(text)
	if !ok {
		return from, to
	}
	if !from.Present() && debitVocabulary.MatchString(text) {
		from = domain.Found(account, genericAccountConfidence, domain.SourceRule)
	}
	if !to.Present() && creditVocabulary.MatchString(text) {
		to = domain.Found(account, genericAccountConfidence, domain.SourceRule)
	}
	return from, to
}

// genericAccount returns the capture of the first generic pattern that matches.
func genericAccount(text string) (string, bool) {
	for _, p := range genericAccountPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	}
	return "", false
}
