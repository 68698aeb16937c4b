// Package fallback merges statistical tagger output with the rule matchers.
package fallback

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/extract"
)

// ModelConfidence is the fixed confidence of tagger-filled fields.
const ModelConfidence = 0.85

// Arbiter fills a TransactionRecord from the tagger first and the rules second.
type Arbiter struct {
	rules  *extract.Orchestrator
	tagger domain.Tagger
}

// NewArbiter creates an Arbiter. A nil tagger selects the rule path for every message.
func NewArbiter(rules *extract.Orchestrator, tagger domain.Tagger) *Arbiter {
	return &Arbiter{rules: rules, tagger: tagger}
}

// Resolve extracts all fields from text relative to ref. It reports whether
// any field came from the tagger.
func (a *Arbiter) Resolve(ctx context.Context, text string, ref time.Time) (*domain.TransactionRecord, bool) {
	if a.tagger == nil {
		return a.rules.ExtractAt(text, ref), false
	}

	spans, err := a.tagger.Tag(ctx, text)
	if err != nil {
		slog.Warn("tagger unavailable, using rules",
			"error", err,
		)
		return a.rules.ExtractAt(text, ref), false
	}

	rec, tagged := FromSpans(text, spans)
	if tagged == 0 {
		return a.rules.ExtractAt(text, ref), false
	}

	a.Fill(rec, text, ref)
	return rec, true
}

// Fill runs the rule matchers once and copies their result into every absent
// field of rec. Present fields are left untouched.
func (a *Arbiter) Fill(rec *domain.TransactionRecord, text string, ref time.Time) {
	if len(rec.MissingFields()) == 0 {
		return
	}
	rec.FillMissing(a.rules.ExtractAt(text, ref))
}

// FromSpans builds a record from tagger spans. Offsets are rune offsets into
// text; spans outside the text or with unknown labels are skipped, and a
// later span for the same label replaces an earlier one. It returns the
// number of fields filled.
func FromSpans(text string, spans []domain.Span) (*domain.TransactionRecord, int) {
	rec := domain.EmptyRecord("Not tagged")
	runes := []rune(text)
	filled := make(map[string]bool)

	for _, s := range spans {
		name, ok := domain.FieldForLabel(strings.ToUpper(s.Label))
		if !ok {
			continue
		}
		if s.Start < 0 || s.End > len(runes) || s.Start >= s.End {
			continue
		}
		value := strings.TrimSpace(string(runes[s.Start:s.End]))
		if value == "" {
			continue
		}
		if err := rec.Set(name, domain.Found(value, ModelConfidence, domain.SourceModel)); err != nil {
			continue
		}
		filled[name] = true
	}
	return rec, len(filled)
}
