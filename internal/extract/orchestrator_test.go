package extract

import (
	"testing"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

func newTestOrchestrator() *Orchestrator {
	return New(Options{Now: func() time.Time { return refTime }})
}

func TestExtractScenarios(t *testing.T) {
	o := newTestOrchestrator()

	t.Run("sent via hdfc", func(t *testing.T) {
		rec := o.Extract(sentSMS)
		assertFound(t, rec.Bank, "HDFC", 0.9)
		assertFound(t, rec.Amount, "73.00", 1.0)
		assertFound(t, rec.Date, "2025-04-04", 0.95)
		assertFound(t, rec.TransactionType, "debit", 0.95)
		assertFound(t, rec.AccountFrom, "2228", 0.8)
	})

	t.Run("credit alert", func(t *testing.T) {
		rec := o.Extract(creditSMS)
		assertFound(t, rec.TransactionType, "credit", 0.95)
		assertFound(t, rec.Bank, "HDFC", 0.9)
		assertFound(t, rec.Date, "2025-04-03", 0.95)
	})

	t.Run("upi alias", func(t *testing.T) {
		rec := o.Extract(upiSMS)
		assertFound(t, rec.Bank, "AXIS", 0.65)
		assertFound(t, rec.Amount, "450", 1.0)
	})

	t.Run("otp", func(t *testing.T) {
		rec := o.Extract(otpSMS)
		for _, f := range rec.Fields() {
			if f.Result.Present() {
				t.Errorf("%s: expected absent, got %q", f.Name, f.Result.String())
			}
		}
		if got := len(rec.MissingFields()); got != 7 {
			t.Errorf("expected 7 missing fields, got %d", got)
		}
	})

	t.Run("subscription", func(t *testing.T) {
		rec := o.Extract(netflixSMS)
		assertFound(t, rec.Date, "2025-04-10", 0.85)
		assertFound(t, rec.Payee, "Netflix subscription", 0.8)
	})
}

func TestExtractInvariants(t *testing.T) {
	o := newTestOrchestrator()
	texts := []string{sentSMS, creditSMS, upiSMS, otpSMS, netflixSMS, "", "Rs", "@@@ xx"}

	for _, text := range texts {
		rec := o.Extract(text)
		for _, f := range rec.Fields() {
			if !f.Result.Valid() {
				t.Errorf("%q %s: invalid field %+v", text, f.Name, f.Result)
			}
			if f.Result.Present() && f.Result.Source != domain.SourceRule {
				t.Errorf("%q %s: expected rule source, got %s", text, f.Name, f.Result.Source)
			}
			if f.Result.Confidence < 0 || f.Result.Confidence > 1 {
				t.Errorf("%q %s: confidence out of range: %v", text, f.Name, f.Result.Confidence)
			}
		}
	}
}

func TestExtractIsDeterministic(t *testing.T) {
	o := newTestOrchestrator()
	first := o.Extract(sentSMS)
	for i := 0; i < 10; i++ {
		again := o.Extract(sentSMS)
		for j, f := range again.Fields() {
			if f.Result.String() != first.Fields()[j].Result.String() {
				t.Fatalf("run %d: %s changed", i, f.Name)
			}
		}
	}
}

func TestField(t *testing.T) {
	o := newTestOrchestrator()
	rec := o.ExtractAt(sentSMS, refTime)

	for _, name := range domain.FieldNames() {
		got, err := o.Field(name, sentSMS, refTime)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		want, _ := rec.Get(name)
		if got.String() != want.String() || got.Confidence != want.Confidence {
			t.Errorf("%s: expected %+v, got %+v", name, want, got)
		}
	}

	if _, err := o.Field("balance", sentSMS, refTime); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestCustomRegistry(t *testing.T) {
	reg := domain.NewRegistry([]string{"ACME"}, map[string]string{"77": "ACME"}, nil)
	o := New(Options{Registry: reg, Now: func() time.Time { return refTime }})

	assertFound(t, o.Extract("Rs 10 debited from ACME Bank").Bank, "ACME", 0.9)
	assertFound(t, o.Extract("Rs 10 debited from xx7712").Bank, "ACME", 0.5)
	assertMissing(t, o.Extract(sentSMS).Bank)
}
