package domain

import (
	"time"
)

// Extraction is the stored result of running one message through the pipeline.
type Extraction struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenantId"`
	MessageID string `json:"messageId"`

	// Financial is the classifier gate verdict.
	Financial bool               `json:"financial"`
	Record    *TransactionRecord `json:"record"`

	ReferenceTime time.Time `json:"referenceTime"`
	Timestamp     time.Time `json:"timestamp"`

	GateResults []GateResult       `json:"gateResults,omitempty"`
	Metadata    ExtractionMetadata `json:"metadata"`
}

// ExtractionMetadata contains processing information.
type ExtractionMetadata struct {
	TraceID            string  `json:"traceId"`
	GateMs             int64   `json:"gateMs"`
	ExtractMs          int64   `json:"extractMs"`
	TotalMs            int64   `json:"totalMs"`
	GateRulesEvaluated int     `json:"gateRulesEvaluated"`
	GateScore          float64 `json:"gateScore"`
	TaggerUsed         bool    `json:"taggerUsed"`
	CacheHit           bool    `json:"cacheHit"`
	EngineVersion      string  `json:"engineVersion"`
}

// ExtractionResponse is the API response for an extraction.
type ExtractionResponse struct {
	ExtractionID string             `json:"extractionId"`
	MessageID    string             `json:"messageId"`
	TenantID     string             `json:"tenantId"`
	Status       string             `json:"status"`
	Record       *TransactionRecord `json:"record"`
	Missing      []string           `json:"missing,omitempty"`
	Metadata     ExtractionMetadata `json:"metadata"`
}

// Extraction statuses.
const (
	StatusExtracted = "EXTRACTED" // financial, at least one field found
	StatusEmpty     = "EMPTY"     // financial, nothing found
	StatusRejected  = "REJECTED"  // gate said non-financial
)

// ReasonNotFinancial is the field error used when the gate rejects a message.
const ReasonNotFinancial = "Message is not a financial transaction"

// Status derives the extraction status.
func (e *Extraction) Status() string {
	if !e.Financial {
		return StatusRejected
	}
	if e.Record == nil || len(e.Record.MissingFields()) == len(FieldNames()) {
		return StatusEmpty
	}
	return StatusExtracted
}

// ToResponse converts an Extraction to an API response.
func (e *Extraction) ToResponse() *ExtractionResponse {
	resp := &ExtractionResponse{
		ExtractionID: e.ID,
		MessageID:    e.MessageID,
		TenantID:     e.TenantID,
		Status:       e.Status(),
		Record:       e.Record,
		Metadata:     e.Metadata,
	}
	if e.Record != nil && e.Financial {
		resp.Missing = e.Record.MissingFields()
	}
	return resp
}
