package domain

import "context"

// Classifier decides whether a message describes a financial transaction.
type Classifier interface {
	IsFinancial(ctx context.Context, text string) (bool, error)
}

// Tagger is a statistical named-entity tagger over SMS text.
// An error means the tagger is unavailable for this call.
type Tagger interface {
	Tag(ctx context.Context, text string) ([]Span, error)
}

// Span is one tagged entity. Offsets are rune offsets, End exclusive.
type Span struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Label string `json:"label"`
}

// Tagger labels.
const (
	LabelAmount          = "AMOUNT"
	LabelDate            = "DATE"
	LabelPayee           = "PAYEE"
	LabelBank            = "BANK"
	LabelTransactionType = "TRANSACTION_TYPE"
	LabelAccountFrom     = "ACCOUNT_FROM"
	LabelAccountTo       = "ACCOUNT_TO"
)

// FieldForLabel maps a tagger label to its record field.
func FieldForLabel(label string) (string, bool) {
	switch label {
	case LabelAmount:
		return FieldAmount, true
	case LabelDate:
		return FieldDate, true
	case LabelPayee:
		return FieldPayee, true
	case LabelBank:
		return FieldBank, true
	case LabelTransactionType:
		return FieldTransactionType, true
	case LabelAccountFrom:
		return FieldAccountFrom, true
	case LabelAccountTo:
		return FieldAccountTo, true
	}
	return "", false
}
