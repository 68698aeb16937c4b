// Package pipeline runs one SMS through normalization, the classifier gate
// and field extraction, producing a stored Extraction.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/extract"
	"github.com/opensource-finance/parsepay/internal/fallback"
	"github.com/opensource-finance/parsepay/internal/rules"
)

// EngineVersion is stamped on every extraction.
const EngineVersion = "parsepay-1.0"

var tracer = otel.Tracer("parsepay-pipeline")

// Processor turns a message into an Extraction.
type Processor struct {
	gate      *rules.Gate
	arbiter   *fallback.Arbiter
	cache     domain.Cache
	recordTTL time.Duration
	location  *time.Location
}

// Options configures a Processor. Gate and Cache are optional: without a
// gate every message is treated as financial, without a cache nothing is
// memoized. Location is where a message without a receive time is dated;
// nil selects Asia/Kolkata.
type Options struct {
	Gate      *rules.Gate
	Arbiter   *fallback.Arbiter
	Cache     domain.Cache
	RecordTTL time.Duration
	Location  *time.Location
}

// NewProcessor creates a processor.
func NewProcessor(opts Options) *Processor {
	ttl := opts.RecordTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	loc := opts.Location
	if loc == nil {
		loc = domain.DefaultLocation()
	}
	return &Processor{
		gate:      opts.Gate,
		arbiter:   opts.Arbiter,
		cache:     opts.Cache,
		recordTTL: ttl,
		location:  loc,
	}
}

// Location returns the timezone messages without a receive time are dated in.
func (p *Processor) Location() *time.Location {
	return p.location
}

// GateThreshold returns the gate's pass threshold, or 0 when there is no gate.
func (p *Processor) GateThreshold() float64 {
	if p.gate == nil {
		return 0
	}
	return p.gate.Threshold()
}

// Input is one message to process.
type Input struct {
	TenantID   string
	MessageID  string
	Sender     string
	Text       string
	ReceivedAt time.Time
	TraceID    string
	StartTime  time.Time
}

// Process runs the message through the gate and, when it is financial,
// through the arbiter. A non-financial message gets a record with every
// field absent.
func (p *Processor) Process(ctx context.Context, in *Input) (*domain.Extraction, error) {
	start := in.StartTime
	if start.IsZero() {
		start = time.Now()
	}
	ref := in.ReceivedAt
	if ref.IsZero() {
		ref = time.Now().In(p.location)
	}

	ctx, span := tracer.Start(ctx, "pipeline.Process",
		trace.WithAttributes(
			attribute.String("tenant.id", in.TenantID),
			attribute.String("message.id", in.MessageID),
		),
	)
	defer span.End()

	text := extract.Normalize(in.Text)
	ext := &domain.Extraction{
		ID:            uuid.New().String(),
		TenantID:      in.TenantID,
		MessageID:     in.MessageID,
		ReferenceTime: ref,
		Timestamp:     time.Now().UTC(),
	}
	ext.Metadata.TraceID = traceID(span, in.TraceID)
	ext.Metadata.EngineVersion = EngineVersion

	fp := Fingerprint(text, in.Sender, ref)
	if cached := p.lookup(ctx, in.TenantID, fp); cached != nil {
		ext.Financial = cached.Financial
		ext.Record = cached.Record
		ext.GateResults = cached.GateResults
		ext.Metadata.GateScore = cached.GateScore
		ext.Metadata.GateRulesEvaluated = len(cached.GateResults)
		ext.Metadata.TaggerUsed = cached.TaggerUsed
		ext.Metadata.CacheHit = true
		ext.Metadata.TotalMs = time.Since(start).Milliseconds()
		span.SetAttributes(attribute.Bool("cache.hit", true))
		return ext, nil
	}

	gateStart := time.Now()
	decision, err := p.classify(ctx, in, text)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	ext.Financial = decision.Financial
	ext.GateResults = decision.Results
	ext.Metadata.GateScore = decision.Score
	ext.Metadata.GateRulesEvaluated = len(decision.Results)
	ext.Metadata.GateMs = time.Since(gateStart).Milliseconds()

	if decision.Financial {
		extractStart := time.Now()
		_, exSpan := tracer.Start(ctx, "pipeline.Extract")
		ext.Record, ext.Metadata.TaggerUsed = p.arbiter.Resolve(ctx, text, ref)
		exSpan.End()
		ext.Metadata.ExtractMs = time.Since(extractStart).Milliseconds()
	} else {
		ext.Record = domain.EmptyRecord(domain.ReasonNotFinancial)
	}

	p.store(ctx, in.TenantID, fp, &domain.CachedRecord{
		Financial:   ext.Financial,
		GateScore:   ext.Metadata.GateScore,
		GateResults: ext.GateResults,
		Record:      ext.Record,
		TaggerUsed:  ext.Metadata.TaggerUsed,
	})

	ext.Metadata.TotalMs = time.Since(start).Milliseconds()
	span.SetAttributes(
		attribute.Bool("financial", ext.Financial),
		attribute.Float64("gate.score", ext.Metadata.GateScore),
	)
	return ext, nil
}

func (p *Processor) classify(ctx context.Context, in *Input, text string) (*rules.Decision, error) {
	if p.gate == nil {
		return &rules.Decision{Financial: true}, nil
	}
	ctx, span := tracer.Start(ctx, "pipeline.Gate")
	defer span.End()

	return p.gate.Evaluate(ctx, &rules.GateInput{
		TenantID:  in.TenantID,
		MessageID: in.MessageID,
		Sender:    in.Sender,
		Text:      text,
	})
}

func (p *Processor) lookup(ctx context.Context, tenantID, fp string) *domain.CachedRecord {
	if p.cache == nil || tenantID == "" {
		return nil
	}
	cached, err := p.cache.GetRecord(ctx, tenantID, fp)
	if err != nil {
		slog.Warn("extraction cache read failed",
			"tenant_id", tenantID,
			"error", err,
		)
		return nil
	}
	if cached == nil || cached.Record == nil {
		return nil
	}
	return cached
}

func (p *Processor) store(ctx context.Context, tenantID, fp string, rec *domain.CachedRecord) {
	if p.cache == nil || tenantID == "" {
		return
	}
	if err := p.cache.SetRecord(ctx, tenantID, fp, rec, p.recordTTL); err != nil {
		slog.Warn("extraction cache write failed",
			"tenant_id", tenantID,
			"error", err,
		)
	}
}

// Fingerprint identifies a message for caching: its normalized text, its
// sender and the reference wall clock to the second, offset included.
func Fingerprint(text, sender string, ref time.Time) string {
	h := sha256.New()
	h.Write([]byte(text))
	h.Write([]byte{0})
	h.Write([]byte(sender))
	h.Write([]byte{0})
	h.Write([]byte(ref.Truncate(time.Second).Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

func traceID(span trace.Span, fallbackID string) string {
	if sc := span.SpanContext(); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	if fallbackID != "" {
		return fallbackID
	}
	return uuid.New().String()
}
