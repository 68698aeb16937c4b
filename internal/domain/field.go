package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Source records which extractor produced a field value.
type Source string

const (
	SourceNone  Source = "none"
	SourceRule  Source = "rule"
	SourceModel Source = "model"
)

// Field names in their fixed record order.
const (
	FieldBank            = "bank"
	FieldAmount          = "amount"
	FieldDate            = "date"
	FieldTransactionType = "transaction_type"
	FieldPayee           = "payee"
	FieldAccountFrom     = "account_from"
	FieldAccountTo       = "account_to"
)

// FieldNames returns the record's field names in order.
func FieldNames() []string {
	return []string{
		FieldBank,
		FieldAmount,
		FieldDate,
		FieldTransactionType,
		FieldPayee,
		FieldAccountFrom,
		FieldAccountTo,
	}
}

// FieldResult is one extracted field.
// Exactly one of these holds: Value != nil, or Error != nil with Confidence 0.
type FieldResult struct {
	Value      *string `json:"value"`
	Confidence float64 `json:"confidence"`
	Error      *string `json:"error"`
	Source     Source  `json:"source"`
}

// Found builds a present field.
func Found(value string, confidence float64, source Source) FieldResult {
	return FieldResult{Value: &value, Confidence: confidence, Source: source}
}

// Missing builds an absent field carrying reason.
func Missing(reason string) FieldResult {
	return FieldResult{Error: &reason, Source: SourceNone}
}

// Present reports whether the field holds a value.
func (f FieldResult) Present() bool {
	return f.Value != nil
}

// String returns the value or "" when absent.
func (f FieldResult) String() string {
	if f.Value == nil {
		return ""
	}
	return *f.Value
}

// Valid checks the absence invariant: value, zero confidence and error agree.
func (f FieldResult) Valid() bool {
	absent := f.Value == nil
	return absent == (f.Confidence == 0) && absent == (f.Error != nil)
}

// TransactionRecord holds the seven extracted fields.
type TransactionRecord struct {
	Bank            FieldResult
	Amount          FieldResult
	Date            FieldResult
	TransactionType FieldResult
	Payee           FieldResult
	AccountFrom     FieldResult
	AccountTo       FieldResult
}

// NamedField pairs a field name with its result.
type NamedField struct {
	Name   string
	Result FieldResult
}

// Fields returns the record's fields in fixed order.
func (r *TransactionRecord) Fields() []NamedField {
	return []NamedField{
		{FieldBank, r.Bank},
		{FieldAmount, r.Amount},
		{FieldDate, r.Date},
		{FieldTransactionType, r.TransactionType},
		{FieldPayee, r.Payee},
		{FieldAccountFrom, r.AccountFrom},
		{FieldAccountTo, r.AccountTo},
	}
}

// Get returns the field for name.
func (r *TransactionRecord) Get(name string) (FieldResult, bool) {
	p := r.slot(name)
	if p == nil {
		return FieldResult{}, false
	}
	return *p, true
}

// Set replaces the field for name.
func (r *TransactionRecord) Set(name string, f FieldResult) error {
	p := r.slot(name)
	if p == nil {
		return fmt.Errorf("unknown field: %s", name)
	}
	*p = f
	return nil
}

// FillMissing copies into r every field of src that r lacks. Present fields
// of r are kept.
func (r *TransactionRecord) FillMissing(src *TransactionRecord) {
	for _, name := range FieldNames() {
		if dst := r.slot(name); !dst.Present() {
			*dst = *src.slot(name)
		}
	}
}

func (r *TransactionRecord) slot(name string) *FieldResult {
	switch name {
	case FieldBank:
		return &r.Bank
	case FieldAmount:
		return &r.Amount
	case FieldDate:
		return &r.Date
	case FieldTransactionType:
		return &r.TransactionType
	case FieldPayee:
		return &r.Payee
	case FieldAccountFrom:
		return &r.AccountFrom
	case FieldAccountTo:
		return &r.AccountTo
	}
	return nil
}

// MissingFields returns the names of absent fields in order.
func (r *TransactionRecord) MissingFields() []string {
	var names []string
	for _, f := range r.Fields() {
		if !f.Result.Present() {
			names = append(names, f.Name)
		}
	}
	return names
}

// EmptyRecord returns a record with every field absent for reason.
func EmptyRecord(reason string) *TransactionRecord {
	return &TransactionRecord{
		Bank:            Missing(reason),
		Amount:          Missing(reason),
		Date:            Missing(reason),
		TransactionType: Missing(reason),
		Payee:           Missing(reason),
		AccountFrom:     Missing(reason),
		AccountTo:       Missing(reason),
	}
}

// MarshalJSON encodes the record as an object in fixed field order.
func (r TransactionRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, _ := json.Marshal(f.Name)
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(f.Result)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a record object; unknown keys are rejected.
func (r *TransactionRecord) UnmarshalJSON(data []byte) error {
	var raw map[string]FieldResult
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for name, f := range raw {
		if err := r.Set(name, f); err != nil {
			return err
		}
	}
	return nil
}
