package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/parsepay/internal/cache"
	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/extract"
	"github.com/opensource-finance/parsepay/internal/fallback"
	"github.com/opensource-finance/parsepay/internal/rules"
)

const (
	sentSMS = "Sent Rs.73.00 From HDFC Bank A/C x2228 To Marvel On 04/04/25 Ref 509482752071"
	otpSMS  = "Your OTP for login is 234556. Valid for 10 minutes."
)

var received = time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)

type countingTagger struct {
	calls atomic.Int32
	err   error
}

func (c *countingTagger) Tag(ctx context.Context, text string) ([]domain.Span, error) {
	c.calls.Add(1)
	return nil, c.err
}

func newProcessor(t *testing.T, tagger domain.Tagger, c domain.Cache) *Processor {
	t.Helper()
	engine, err := rules.NewEngine(nil, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	if err := engine.LoadRules(rules.DefaultGateRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}

	return NewProcessor(Options{
		Gate:    rules.NewGate(engine, 0, 0),
		Arbiter: fallback.NewArbiter(extract.New(extract.Options{}), tagger),
		Cache:   c,
	})
}

func TestProcessFinancial(t *testing.T) {
	proc := newProcessor(t, nil, nil)

	ext, err := proc.Process(context.Background(), &Input{
		TenantID:   "tenant-001",
		MessageID:  "msg-001",
		Text:       sentSMS,
		ReceivedAt: received,
		TraceID:    "trace-001",
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if !ext.Financial {
		t.Fatalf("expected financial, gate score %.2f", ext.Metadata.GateScore)
	}
	if ext.ID == "" || ext.MessageID != "msg-001" || ext.TenantID != "tenant-001" {
		t.Errorf("envelope not populated: %+v", ext)
	}
	if got := ext.Record.Amount.String(); got != "73.00" {
		t.Errorf("expected amount 73.00, got %q", got)
	}
	if got := ext.Record.Bank.String(); got != "HDFC" {
		t.Errorf("expected bank HDFC, got %q", got)
	}
	if ext.Record.Amount.Source != domain.SourceRule {
		t.Errorf("expected rule source, got %s", ext.Record.Amount.Source)
	}
	if ext.Metadata.TraceID != "trace-001" {
		t.Errorf("expected trace-001, got %s", ext.Metadata.TraceID)
	}
	if ext.Metadata.EngineVersion != EngineVersion {
		t.Errorf("expected engine version %s, got %s", EngineVersion, ext.Metadata.EngineVersion)
	}
	if ext.Metadata.GateRulesEvaluated != len(rules.DefaultGateRules()) {
		t.Errorf("expected %d gate results, got %d", len(rules.DefaultGateRules()), ext.Metadata.GateRulesEvaluated)
	}
	if ext.Status() != domain.StatusExtracted {
		t.Errorf("expected status %s, got %s", domain.StatusExtracted, ext.Status())
	}
}

func TestProcessNonFinancial(t *testing.T) {
	tagger := &countingTagger{}
	proc := newProcessor(t, tagger, nil)

	ext, err := proc.Process(context.Background(), &Input{
		TenantID:   "tenant-001",
		MessageID:  "msg-otp",
		Text:       otpSMS,
		ReceivedAt: received,
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if ext.Financial {
		t.Fatal("expected OTP message to be rejected")
	}
	for _, f := range ext.Record.Fields() {
		if f.Result.Present() {
			t.Errorf("%s: expected absent, got %q", f.Name, f.Result.String())
		}
		if f.Result.Error == nil || *f.Result.Error != domain.ReasonNotFinancial {
			t.Errorf("%s: expected reason %q", f.Name, domain.ReasonNotFinancial)
		}
	}
	if tagger.calls.Load() != 0 {
		t.Error("tagger must not run for rejected messages")
	}
	if ext.Status() != domain.StatusRejected {
		t.Errorf("expected status %s, got %s", domain.StatusRejected, ext.Status())
	}
}

func TestProcessCacheHit(t *testing.T) {
	tagger := &countingTagger{err: errors.New("connection refused")}
	proc := newProcessor(t, tagger, cache.NewLRUCache(100))
	ctx := context.Background()

	in := &Input{
		TenantID:   "tenant-001",
		MessageID:  "msg-001",
		Text:       sentSMS,
		ReceivedAt: received,
	}

	first, err := proc.Process(ctx, in)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if first.Metadata.CacheHit {
		t.Error("first run must not be a cache hit")
	}

	second, err := proc.Process(ctx, in)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !second.Metadata.CacheHit {
		t.Fatal("expected cache hit on second run")
	}
	if second.ID == first.ID {
		t.Error("each run gets its own extraction id")
	}
	if tagger.calls.Load() != 1 {
		t.Errorf("expected tagger called once, got %d", tagger.calls.Load())
	}

	for i, f := range first.Record.Fields() {
		g := second.Record.Fields()[i]
		if f.Result.String() != g.Result.String() || f.Result.Confidence != g.Result.Confidence {
			t.Errorf("%s differs: %+v vs %+v", f.Name, f.Result, g.Result)
		}
	}

	other := *in
	other.ReceivedAt = received.Add(24 * time.Hour)
	third, _ := proc.Process(ctx, &other)
	if third.Metadata.CacheHit {
		t.Error("a different reference time must miss the cache")
	}
}

func TestProcessWithoutGate(t *testing.T) {
	proc := NewProcessor(Options{
		Arbiter: fallback.NewArbiter(extract.New(extract.Options{}), nil),
	})

	ext, err := proc.Process(context.Background(), &Input{TenantID: "tenant-001", Text: otpSMS, ReceivedAt: received})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if !ext.Financial {
		t.Error("without a gate every message is financial")
	}
	if ext.Record == nil || len(ext.Record.Fields()) != 7 {
		t.Error("expected a full record")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint(sentSMS, "VM-HDFCBK", received)
	if a != Fingerprint(sentSMS, "VM-HDFCBK", received.Add(300*time.Millisecond)) {
		t.Error("sub-second differences must not change the fingerprint")
	}
	if a == Fingerprint(sentSMS, "AD-HDFCBK", received) {
		t.Error("sender must change the fingerprint")
	}
	if a == Fingerprint(sentSMS+".", "VM-HDFCBK", received) {
		t.Error("text must change the fingerprint")
	}
	ist := time.FixedZone("IST", 19800)
	if a == Fingerprint(sentSMS, "VM-HDFCBK", received.In(ist)) {
		t.Error("the same instant on another wall clock must change the fingerprint")
	}
}

func TestProcessKeepsSenderClock(t *testing.T) {
	proc := newProcessor(t, nil, nil)
	ist := time.FixedZone("IST", 19800)

	// 00:30 IST on the 10th is still the 9th in UTC.
	ext, err := proc.Process(context.Background(), &Input{
		TenantID:   "tenant-001",
		Text:       "Rs 100 debited from A/c XX1234 today",
		ReceivedAt: time.Date(2025, 4, 10, 0, 30, 0, 0, ist),
	})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if got := ext.Record.Date.String(); got != "2025-04-10" {
		t.Errorf("expected 2025-04-10 in the sender's day, got %q", got)
	}
}

func TestProcessDefaultLocation(t *testing.T) {
	proc := NewProcessor(Options{
		Arbiter: fallback.NewArbiter(extract.New(extract.Options{}), nil),
	})
	if proc.Location().String() != domain.DefaultLocation().String() {
		t.Errorf("expected default location %v, got %v", domain.DefaultLocation(), proc.Location())
	}

	ext, err := proc.Process(context.Background(), &Input{TenantID: "tenant-001", Text: "Rs 100 debited today"})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	want := time.Now().In(domain.DefaultLocation()).Format("2006-01-02")
	if got := ext.Record.Date.String(); got != want {
		t.Errorf("expected %s, got %q", want, got)
	}
}
