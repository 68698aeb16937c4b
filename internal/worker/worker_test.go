package worker

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/parsepay/internal/bus"
	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/extract"
	"github.com/opensource-finance/parsepay/internal/fallback"
	"github.com/opensource-finance/parsepay/internal/pipeline"
	"github.com/opensource-finance/parsepay/internal/repository"
	"github.com/opensource-finance/parsepay/internal/rules"
)

const (
	sentSMS = "Sent Rs.73.00 From HDFC Bank A/C x2228 To Marvel On 04/04/25 Ref 509482752071"
	otpSMS  = "Your OTP for login is 234556. Valid for 10 minutes."
)

func newTestProcessor(t *testing.T) *pipeline.Processor {
	t.Helper()
	engine, err := rules.NewEngine(nil, 4)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	if err := engine.LoadRules(rules.DefaultGateRules()); err != nil {
		t.Fatalf("failed to load rules: %v", err)
	}
	return pipeline.NewProcessor(pipeline.Options{
		Gate:    rules.NewGate(engine, 0, 0),
		Arbiter: fallback.NewArbiter(extract.New(extract.Options{}), nil),
	})
}

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()
	tmpFile, err := os.CreateTemp("", "parsepay-worker-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{Driver: "sqlite", SQLitePath: tmpPath})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

// await subscribes to topic and returns a channel of received payloads.
func await(t *testing.T, b domain.EventBus, tenantID, topic string) <-chan []byte {
	t.Helper()
	ch := make(chan []byte, 4)
	sub, err := b.Subscribe(context.Background(), tenantID, topic, func(ctx context.Context, evt *domain.Event) error {
		ch <- evt.Payload
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}
	t.Cleanup(func() { sub.Unsubscribe() })
	return ch
}

func publish(t *testing.T, b domain.EventBus, tenantID string, evt MessageEvent) {
	t.Helper()
	payload, _ := json.Marshal(evt)
	if err := b.Publish(context.Background(), tenantID, domain.TopicMessageReceived, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func TestWorkerStartAndStop(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newTestProcessor(t))
	if err := w.Start(Config{TenantIDs: []string{"tenant-a", "tenant-b"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 4 {
		t.Errorf("expected 4 subscriptions for 2 tenants, got %d", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
	if n := w.GetStats().SubscriptionCount; n != 0 {
		t.Errorf("expected 0 subscriptions after stop, got %d", n)
	}
}

func TestWorkerExtractsAndStores(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	repo := newTestRepo(t)

	w := NewWorker(eventBus, repo, newTestProcessor(t))
	if err := w.Start(Config{TenantIDs: []string{"tenant-test"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	extracted := await(t, eventBus, "tenant-test", domain.TopicExtracted)

	publish(t, eventBus, "tenant-test", MessageEvent{
		MessageID:  "msg-001",
		TraceID:    "trace-001",
		Sender:     "VM-HDFCBK",
		Text:       sentSMS,
		ReceivedAt: time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC),
	})

	var resp domain.ExtractionResponse
	select {
	case payload := <-extracted:
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Fatalf("failed to parse extraction: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for extraction")
	}

	if resp.MessageID != "msg-001" || resp.TenantID != "tenant-test" {
		t.Errorf("unexpected envelope: %+v", resp)
	}
	if resp.Status != domain.StatusExtracted {
		t.Errorf("expected %s, got %s", domain.StatusExtracted, resp.Status)
	}
	if resp.Record.Amount.String() != "73.00" {
		t.Errorf("expected amount 73.00, got %q", resp.Record.Amount.String())
	}
	if resp.Metadata.TraceID != "trace-001" {
		t.Errorf("expected trace-001, got %s", resp.Metadata.TraceID)
	}

	ctx := context.Background()
	if _, err := repo.GetMessage(ctx, "tenant-test", "msg-001"); err != nil {
		t.Errorf("message not stored: %v", err)
	}
	stored, err := repo.GetExtraction(ctx, "tenant-test", resp.ExtractionID)
	if err != nil {
		t.Fatalf("extraction not stored: %v", err)
	}
	if stored.Record.Amount.String() != "73.00" {
		t.Errorf("stored record mismatch: %+v", stored.Record.Amount)
	}
}

func TestWorkerPublishesRejected(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newTestProcessor(t))
	if err := w.Start(Config{TenantIDs: []string{"tenant-otp"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	rejected := await(t, eventBus, "tenant-otp", domain.TopicRejected)
	publish(t, eventBus, "tenant-otp", MessageEvent{Text: otpSMS})

	select {
	case payload := <-rejected:
		var resp domain.ExtractionResponse
		if err := json.Unmarshal(payload, &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Status != domain.StatusRejected {
			t.Errorf("expected %s, got %s", domain.StatusRejected, resp.Status)
		}
		if resp.MessageID == "" {
			t.Error("expected a generated message id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for rejection")
	}
}

func TestWorkerRequestReply(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newTestProcessor(t))
	if err := w.Start(Config{}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	payload, _ := json.Marshal(MessageEvent{TenantID: "tenant-sync", Text: sentSMS})
	reply, err := eventBus.Request(ctx, GlobalTenant, domain.TopicExtractRequest, payload)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	var resp domain.ExtractionResponse
	if err := json.Unmarshal(reply, &resp); err != nil {
		t.Fatalf("failed to parse reply: %v", err)
	}
	if resp.TenantID != "tenant-sync" {
		t.Errorf("expected tenant from payload, got %s", resp.TenantID)
	}
	if resp.Record.Bank.String() != "HDFC" {
		t.Errorf("expected bank HDFC, got %q", resp.Record.Bank.String())
	}
}

func TestMessageEventDefaults(t *testing.T) {
	var evt MessageEvent
	if err := json.Unmarshal([]byte(`{"text":"Rs 10 debited"}`), &evt); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if !evt.ReceivedAt.IsZero() || evt.Stored {
		t.Errorf("unexpected defaults: %+v", evt)
	}

	data, _ := json.Marshal(MessageEvent{Text: "x"})
	if string(data) != `{"text":"x"}` {
		t.Errorf("expected zero fields omitted, got %s", data)
	}
}
