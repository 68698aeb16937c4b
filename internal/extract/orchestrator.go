// Package extract pulls transaction fields out of SMS text with ordered
// regular-expression cascades. Matchers are pure functions of the text,
// the bank registry and a reference time.
package extract

import (
	"fmt"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
)

// Options configures an Orchestrator. Zero values select the defaults.
type Options struct {
	Registry *domain.Registry
	Dates    *DateTable
	Now      func() time.Time
}

// Orchestrator runs every field matcher over a message.
type Orchestrator struct {
	registry *domain.Registry
	dates    *DateTable
	now      func() time.Time
}

// New creates an Orchestrator.
func New(opts Options) *Orchestrator {
	o := &Orchestrator{
		registry: opts.Registry,
		dates:    opts.Dates,
		now:      opts.Now,
	}
	if o.registry == nil {
		o.registry = domain.DefaultRegistry()
	}
	if o.dates == nil {
		o.dates = NewDateTable()
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o
}

// Now returns the orchestrator's current reference time.
func (o *Orchestrator) Now() time.Time {
	return o.now()
}

// Extract extracts all fields using the current time as reference.
func (o *Orchestrator) Extract(text string) *domain.TransactionRecord {
	return o.ExtractAt(text, o.now())
}

// ExtractAt extracts all fields relative to ref. Every field is populated,
// either with a value or with the reason it is absent.
func (o *Orchestrator) ExtractAt(text string, ref time.Time) *domain.TransactionRecord {
	from, to := Accounts(text)
	return &domain.TransactionRecord{
		Bank:            Bank(text, o.registry),
		Amount:          Amount(text),
		Date:            o.dates.Date(text, ref),
		TransactionType: TransactionType(text),
		Payee:           Payee(text),
		AccountFrom:     from,
		AccountTo:       to,
	}
}

// Field runs the matcher for a single named field.
func (o *Orchestrator) Field(name, text string, ref time.Time) (domain.FieldResult, error) {
	switch name {
	case domain.FieldBank:
		return Bank(text, o.registry), nil
	case domain.FieldAmount:
		return Amount(text), nil
	case domain.FieldDate:
		return o.dates.Date(text, ref), nil
	case domain.FieldTransactionType:
		return TransactionType(text), nil
	case domain.FieldPayee:
		return Payee(text), nil
	case domain.FieldAccountFrom:
		from, _ := Accounts(text)
		return from, nil
	case domain.FieldAccountTo:
		_, to := Accounts(text)
		return to, nil
	}
	return domain.FieldResult{}, fmt.Errorf("unknown field: %s", name)
}
