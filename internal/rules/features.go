package rules

import "regexp"

// Features are cheap lexical signals computed once per message and exposed
// to gate expressions.
type Features struct {
	HasCurrency bool
	HasAccount  bool
	HasUPI      bool
}

var (
	currencyMarker = regexp.MustCompile(`(?i)(?:\brs\.?|\binr|₹)\s?\d`)
	accountMask    = regexp.MustCompile(`(?i)\b(?:a/c|acct|account|card)\b[\s.:]*(?:no\.?\s*)?(?:ending\s+(?:in\s+)?)?[x*]*\d{3,}|\b[x*]{2,}\d{3,}`)
	upiHandle      = regexp.MustCompile(`[a-zA-Z0-9._-]{2,}@[a-zA-Z]{2,}`)
)

// DetectFeatures computes the lexical features of text.
func DetectFeatures(text string) Features {
	return Features{
		HasCurrency: currencyMarker.MatchString(text),
		HasAccount:  accountMask.MatchString(text),
		HasUPI:      upiHandle.MatchString(text),
	}
}
