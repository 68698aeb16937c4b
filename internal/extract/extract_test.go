package extract

import (
	"testing"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

var refTime = time.Date(2025, time.April, 10, 12, 0, 0, 0, time.UTC)

const (
	sentSMS    = "Sent Rs.73.00 From HDFC Bank A/C x2228 To Marvel On 04/04/25 Ref 509482752071"
	creditSMS  = "Credit Alert! Rs.10.00 credited to HDFC Bank A/c xx2228 on 03-04-25 from VPA one97735@icici"
	upiSMS     = "Your UPI payment of Rs.450 to rahul@okaxis has been successful."
	otpSMS     = "Your OTP for login is 234556. Valid for 10 minutes."
	netflixSMS = "Payment of Rs.599 made today for Netflix subscription renewal."
)

func assertFound(t *testing.T, got domain.FieldResult, value string, confidence float64) {
	t.Helper()
	if !got.Present() {
		t.Fatalf("expected %q, got absent (%s)", value, *got.Error)
	}
	if got.String() != value {
		t.Errorf("expected value %q, got %q", value, got.String())
	}
	if got.Confidence != confidence {
		t.Errorf("expected confidence %v, got %v", confidence, got.Confidence)
	}
	if got.Source != domain.SourceRule {
		t.Errorf("expected source rule, got %s", got.Source)
	}
	if !got.Valid() {
		t.Error("field violates absence invariant")
	}
}

func assertMissing(t *testing.T, got domain.FieldResult) {
	t.Helper()
	if got.Present() {
		t.Fatalf("expected absent, got %q", got.String())
	}
	if got.Error == nil || *got.Error == "" {
		t.Error("expected a populated error")
	}
	if !got.Valid() {
		t.Error("field violates absence invariant")
	}
}

func TestAmount(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"decimal", sentSMS, "73.00"},
		{"grouped inr", "INR 1,25,000.50 credited to your account", "125000.50"},
		{"slash dash suffix", "Rs 500/- debited from A/c XX1234", "500"},
		{"lowercase marker", "rs.5,000 spent at DMART", "5000"},
		{"first amount wins", "Paid Rs. 20 and Rs. 30", "20"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertFound(t, Amount(tt.text), tt.want, 1.0)
		})
	}

	t.Run("absent", func(t *testing.T) {
		assertMissing(t, Amount(otpSMS))
	})
	t.Run("separators only", func(t *testing.T) {
		assertMissing(t, Amount("INR ,, only"))
	})
}

func TestBank(t *testing.T) {
	reg := domain.DefaultRegistry()
	tests := []struct {
		name       string
		text       string
		want       string
		confidence float64
	}{
		{"name tier", sentSMS, "HDFC", 0.9},
		{"name tier beats upi", creditSMS, "HDFC", 0.9},
		{"multi word bank", "Rs 500 debited from your IDFC FIRST Bank account", "IDFC FIRST", 0.9},
		{"upi alias", upiSMS, "AXIS", 0.65},
		{"upi ybl alias", "Paid to shop@ybl Rs 20", "YES", 0.65},
		{"upi exact suffix", "Received Rs 20 from ravi@sbi", "SBI", 0.65},
		{"account prefix", "Acct XX4512 debited Rs 100", "HDFC", 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertFound(t, Bank(tt.text, reg), tt.want, tt.confidence)
		})
	}

	t.Run("absent", func(t *testing.T) {
		assertMissing(t, Bank(otpSMS, reg))
	})
	t.Run("unmasked account", func(t *testing.T) {
		assertMissing(t, Bank("Card ending 4512 debited Rs 100", reg))
	})
}

func TestTransactionType(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"sent", sentSMS, TypeDebit},
		{"credited", creditSMS, TypeCredit},
		{"payment", upiSMS, TypeDebit},
		{"salary", "Salary of INR 50,000 deposited", TypeCredit},
		{"debit wins on mixed vocabulary", "Rs 100 debited and Rs 100 credited", TypeDebit},
		{"card used", "Your card ending 1234 was used at STORE", TypeDebit},
		{"cash in", "Cash in of Rs 200 successful", TypeCredit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertFound(t, TransactionType(tt.text), tt.want, 0.95)
		})
	}

	t.Run("absent", func(t *testing.T) {
		assertMissing(t, TransactionType(otpSMS))
	})
}

func TestDate(t *testing.T) {
	dates := NewDateTable()
	tests := []struct {
		name       string
		text       string
		ref        time.Time
		want       string
		confidence float64
	}{
		{"explicit numeric", sentSMS, refTime, "2025-04-04", 0.95},
		{"explicit iso with clock", "Rs 10 debited on 2025-03-25:06:43:19", refTime, "2025-03-25", 0.95},
		{"explicit month name", "Rs 10 debited on April 5, 2025", refTime, "2025-04-05", 0.85},
		{"timestamp", "Txn of Rs 50 at 2025-03-25 10:15:00 done", refTime, "2025-03-25", 1.0},
		{"implicit abbreviated month", "Rs 200 spent 05-Apr-25 at Store", refTime, "2025-04-05", 0.85},
		{"implicit day month", "Salary credited 1st March 2025", refTime, "2025-03-01", 0.8},
		{"malformed falls through", "Txn on 32/13/25 ref 05-Apr-25", refTime, "2025-04-05", 0.85},
		{"malformed skipped within shape", "Rs 500 debited on 31-02-2025 ref 05.04.2025", refTime, "2025-04-05", 0.9},
		{"second indicator date after malformed", "Txn on 31/02/25 posted on 03/04/25", refTime, "2025-04-03", 0.95},
		{"today", netflixSMS, refTime, "2025-04-10", 0.85},
		{"yesterday", "Rs 100 debited yesterday", refTime, "2025-04-09", 0.85},
		{"anchored today", "Rs 100 debited dated today", refTime, "2025-04-10", 0.9},
		{"billing period", "Rs 799 paid towards electricity bill for March 2025", refTime, "2025-03-01", 0.65},
		{"subscription", "Rs 149 auto-debit for Spotify subscription successful", refTime, "2025-04-10", 0.6},
		{"service bill", "Recharge of Rs 239 successful for 98XXXXXX10", refTime, "2025-04-10", 0.55},
		{"time only", "Rs 50 debited at 10:30 AM", refTime, "2025-04-10", 0.5},
		{"time only ahead of reference", "Rs 50 debited at 11:45 PM", refTime, "2025-04-09", 0.5},
		{"within future window", "Rs 10 debited on 20/04/25", refTime, "2025-04-20", 0.95},
		{"future clamped to previous year", "Rs 10 debited on 15/12/25", refTime, "2024-12-15", 0.95},
		{"old two digit year", "Rs 10 debited on 01/04/99", refTime, "2025-04-01", 0.95},
		{"leap day kept", "Rs 10 debited on 29/02/2024", refTime, "2024-02-29", 0.95},
		{"leap day clamped", "Rs 10 debited on 29/02/2028", refTime, "2025-02-28", 0.95},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertFound(t, dates.Date(tt.text, tt.ref), tt.want, tt.confidence)
		})
	}

	t.Run("absent", func(t *testing.T) {
		assertMissing(t, dates.Date(otpSMS, refTime))
	})
	t.Run("never beyond future window", func(t *testing.T) {
		limit := refTime.AddDate(0, 0, 30)
		for _, tt := range tests {
			got, err := time.Parse(DateLayout, dates.Date(tt.text, tt.ref).String())
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if got.After(limit) {
				t.Errorf("%s: %s is past the future window", tt.name, got.Format(DateLayout))
			}
		}
	})
}

func TestPayee(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		want       string
		confidence float64
	}{
		{"merchant before on", "Rs 500 spent on card at AMAZON on 05-04-25", "AMAZON", 0.9},
		{"merchant to", sentSMS, "Marvel", 0.9},
		{"merchant starting with stop word letters", "Spent at ONLINESHOP.", "ONLINESHOP", 0.9},
		{"upi handle", upiSMS, "rahul@okaxis", 0.85},
		{"upi id", "Rs 300 sent to Ravi (UPI ID: ravi@upi)", "ravi@upi", 0.85},
		{"person account", "Rs 1000 transferred to Rajesh Kumar's A/c", "Rajesh Kumar", 0.85},
		{"service", netflixSMS, "Netflix subscription", 0.8},
		{"service with provider", "Rs 450 paid towards Mobile Bill - Airtel", "Mobile Bill - Airtel", 0.8},
		{"consultation", "Rs 800 paid for Medical Consultation", "Medical Consultation", 0.75},
		{"loan payment", "Rs 12,000 paid towards your Home Loan EMI", "Home Loan", 0.8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertFound(t, Payee(tt.text), tt.want, tt.confidence)
		})
	}

	t.Run("absent", func(t *testing.T) {
		assertMissing(t, Payee(otpSMS))
	})
	t.Run("stop word veto", func(t *testing.T) {
		assertMissing(t, Payee("Paid at the store."))
	})
}

func TestAccounts(t *testing.T) {
	t.Run("generic debit account", func(t *testing.T) {
		from, to := Accounts(sentSMS)
		assertFound(t, from, "2228", 0.8)
		assertMissing(t, to)
	})

	t.Run("generic credit account", func(t *testing.T) {
		from, to := Accounts(creditSMS)
		assertMissing(t, from)
		assertFound(t, to, "2228", 0.8)
	})

	t.Run("explicit roles", func(t *testing.T) {
		from, to := Accounts("Rs 500 transferred from A/c XX1234 to A/c XX5678")
		assertFound(t, from, "1234", 0.95)
		assertFound(t, to, "5678", 0.95)
	})

	t.Run("credited to", func(t *testing.T) {
		from, to := Accounts("Rs 2000 credited to A/c no. XX9012")
		assertMissing(t, from)
		assertFound(t, to, "9012", 0.95)
	})

	t.Run("number without role vocabulary", func(t *testing.T) {
		from, to := Accounts(otpSMS)
		assertMissing(t, from)
		assertMissing(t, to)
	})
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"full width digits", "Rs.１００ debited", "Rs.100 debited"},
		{"no-break space", "Rs\u00a0500", "Rs 500"},
		{"control characters", "Rs 5\x00 debited\x07", "Rs 5 debited"},
		{"keeps newlines", "  Rs 5\ndebited  ", "Rs 5\ndebited"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
