package domain

import "strings"

// Registry holds the bank lookup tables used by the extractors.
// Build one with NewRegistry or DefaultRegistry; it is read-only afterwards.
type Registry struct {
	banks    []string
	prefixes map[string]string
	aliases  []upiAlias
}

type upiAlias struct {
	key  string
	bank string
}

// UPIAlias maps a UPI handle suffix fragment to a canonical bank.
type UPIAlias struct {
	Suffix string `json:"suffix"`
	Bank   string `json:"bank"`
}

// NewRegistry builds a registry. Bank order is kept and decides ties when a
// capture contains more than one bank token.
func NewRegistry(banks []string, prefixes map[string]string, aliases []UPIAlias) *Registry {
	r := &Registry{
		banks:    make([]string, 0, len(banks)),
		prefixes: make(map[string]string, len(prefixes)),
	}
	for _, b := range banks {
		r.banks = append(r.banks, strings.ToUpper(b))
	}
	for p, b := range prefixes {
		r.prefixes[p] = b
	}
	for _, a := range aliases {
		r.aliases = append(r.aliases, upiAlias{key: strings.ToUpper(a.Suffix), bank: a.Bank})
	}
	return r
}

// DefaultRegistry returns the registry for Indian retail banks.
func DefaultRegistry() *Registry {
	return NewRegistry(
		[]string{
			"HDFC", "SBI", "ICICI", "AXIS", "IDFC FIRST", "YES", "KOTAK", "PNB",
			"BOB", "BOI", "CANARA", "UNION", "DEUTSCHE", "INDUSIND", "FEDERAL",
			"RBL", "CITI", "HSBC", "IDBI", "UCO", "BANDHAN", "KARNATAKA", "INDIAN",
		},
		map[string]string{
			"45": "HDFC",
			"21": "SBI",
			"33": "ICICI",
			"91": "AXIS",
			"59": "KOTAK",
			"36": "CITI",
			"40": "YES",
		},
		[]UPIAlias{
			{Suffix: "OKICICI", Bank: "ICICI"},
			{Suffix: "OKAXIS", Bank: "AXIS"},
			{Suffix: "YBL", Bank: "YES"},
		},
	)
}

// Banks returns a copy of the known bank tokens.
func (r *Registry) Banks() []string {
	out := make([]string, len(r.banks))
	copy(out, r.banks)
	return out
}

// BankIn returns the first known bank token contained in s, case-insensitively.
func (r *Registry) BankIn(s string) (string, bool) {
	upper := strings.ToUpper(s)
	for _, b := range r.banks {
		if strings.Contains(upper, b) {
			return b, true
		}
	}
	return "", false
}

// IsBank reports whether s equals a known bank token.
func (r *Registry) IsBank(s string) bool {
	upper := strings.ToUpper(s)
	for _, b := range r.banks {
		if upper == b {
			return true
		}
	}
	return false
}

// BankForUPISuffix resolves a UPI handle suffix to a bank.
func (r *Registry) BankForUPISuffix(suffix string) (string, bool) {
	upper := strings.ToUpper(suffix)
	if r.IsBank(upper) {
		return upper, true
	}
	for _, a := range r.aliases {
		if strings.Contains(upper, a.key) {
			return a.bank, true
		}
	}
	return "", false
}

// BankForPrefix resolves a two-digit account prefix to a bank.
func (r *Registry) BankForPrefix(prefix string) (string, bool) {
	b, ok := r.prefixes[prefix]
	return b, ok
}
