// Package worker consumes inbound SMS events from the EventBus and runs
// them through the extraction pipeline.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/parsepay/internal/domain"
	"github.com/opensource-finance/parsepay/internal/pipeline"
)

// Worker processes messages asynchronously from the EventBus.
type Worker struct {
	bus       domain.EventBus
	repo      domain.Repository
	processor *pipeline.Processor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = the "_global" tenant)
	TenantIDs []string
}

// GlobalTenant is the subscription tenant used when no tenants are configured.
const GlobalTenant = "_global"

// NewWorker creates a new async worker. repo may be nil, in which case
// extractions are published but not stored.
func NewWorker(bus domain.EventBus, repo domain.Repository, processor *pipeline.Processor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		repo:      repo,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the received and request topics of each tenant.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenant}
	}

	started := 0
	for _, tenantID := range tenants {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		started++
	}
	if started == 0 {
		return fmt.Errorf("no tenant worker could be started")
	}

	slog.Info("workers started",
		"tenant_count", started,
	)
	return nil
}

func (w *Worker) startTenantWorker(tenantID string) error {
	received, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicMessageReceived, w.tracked(w.handleReceived))
	if err != nil {
		return err
	}
	requests, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicExtractRequest, w.tracked(w.handleRequest))
	if err != nil {
		received.Unsubscribe()
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, received, requests)
	w.mu.Unlock()

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topic", domain.TopicMessageReceived,
	)
	return nil
}

// tracked lets Stop wait for in-flight handlers.
func (w *Worker) tracked(h domain.EventHandler) domain.EventHandler {
	return func(ctx context.Context, evt *domain.Event) error {
		w.wg.Add(1)
		defer w.wg.Done()
		return h(ctx, evt)
	}
}

// MessageEvent is the payload of received and request events.
type MessageEvent struct {
	MessageID  string    `json:"messageId,omitempty"`
	TenantID   string    `json:"tenantId,omitempty"`
	TraceID    string    `json:"traceId,omitempty"`
	Sender     string    `json:"sender,omitempty"`
	Text       string    `json:"text"`
	ReceivedAt time.Time `json:"receivedAt,omitzero"`
	Stored     bool      `json:"stored,omitempty"`
}

func (w *Worker) handleReceived(ctx context.Context, evt *domain.Event) error {
	ext, err := w.process(ctx, evt)
	if err != nil {
		return err
	}

	topic := domain.TopicExtracted
	if !ext.Financial {
		topic = domain.TopicRejected
	}
	payload, _ := json.Marshal(ext.ToResponse())
	if err := w.bus.Publish(ctx, ext.TenantID, topic, payload); err != nil {
		slog.Error("failed to publish extraction",
			"message_id", ext.MessageID,
			"topic", topic,
			"error", err,
		)
	}
	return nil
}

func (w *Worker) handleRequest(ctx context.Context, evt *domain.Event) error {
	ext, err := w.process(ctx, evt)
	if err != nil {
		body, _ := json.Marshal(map[string]string{"error": err.Error()})
		return w.bus.Reply(ctx, evt, body)
	}
	payload, _ := json.Marshal(ext.ToResponse())
	return w.bus.Reply(ctx, evt, payload)
}

// process decodes the event, stores the message if needed, runs the
// pipeline and stores the extraction.
func (w *Worker) process(ctx context.Context, evt *domain.Event) (*domain.Extraction, error) {
	start := time.Now()

	var in MessageEvent
	if err := json.Unmarshal(evt.Payload, &in); err != nil {
		slog.Error("failed to parse message event",
			"event_id", evt.ID,
			"error", err,
		)
		return nil, fmt.Errorf("invalid message event: %w", err)
	}

	tenantID := in.TenantID
	if tenantID == "" {
		tenantID = evt.TenantID
	}
	traceID := in.TraceID
	if traceID == "" {
		traceID = evt.ID
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Unix(0, evt.Timestamp).In(w.processor.Location())
	}
	if in.MessageID == "" {
		in.MessageID = uuid.New().String()
	}

	if w.repo != nil && !in.Stored {
		msg := &domain.Message{
			ID:         in.MessageID,
			TenantID:   tenantID,
			Sender:     in.Sender,
			Text:       in.Text,
			ReceivedAt: in.ReceivedAt,
			CreatedAt:  time.Now().UTC(),
		}
		if err := w.repo.SaveMessage(ctx, tenantID, msg); err != nil {
			slog.Error("failed to save message",
				"message_id", in.MessageID,
				"error", err,
			)
		}
	}

	ext, err := w.processor.Process(ctx, &pipeline.Input{
		TenantID:   tenantID,
		MessageID:  in.MessageID,
		Sender:     in.Sender,
		Text:       in.Text,
		ReceivedAt: in.ReceivedAt,
		TraceID:    traceID,
		StartTime:  start,
	})
	if err != nil {
		slog.Error("extraction failed",
			"message_id", in.MessageID,
			"tenant_id", tenantID,
			"error", err,
		)
		return nil, err
	}

	if w.repo != nil {
		if err := w.repo.SaveExtraction(ctx, tenantID, ext); err != nil {
			slog.Error("failed to save extraction",
				"message_id", in.MessageID,
				"error", err,
			)
		}
	}

	slog.Info("message processed",
		"message_id", in.MessageID,
		"tenant_id", tenantID,
		"status", ext.Status(),
		"gate_score", ext.Metadata.GateScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return ext, nil
}

// Stop unsubscribes and waits for in-flight messages.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
