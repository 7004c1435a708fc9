package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aatwiz/calendar-reminder/internal/channels/whatsapp"
	"github.com/aatwiz/calendar-reminder/internal/notify"
	"github.com/aatwiz/calendar-reminder/internal/observability/metrics"
	"github.com/aatwiz/calendar-reminder/pkg/logging"
)

const markReadTimeout = 5 * time.Second

// MessageResult is the outcome of one inbound message in a delivery.
type MessageResult struct {
	MessageID string  `json:"messageId"`
	From      string  `json:"from"`
	Type      string  `json:"type"`
	Outcome   Outcome `json:"outcome"`
}

// Dispatcher routes webhook deliveries to the Handler.
type Dispatcher struct {
	handler  *Handler
	notifier notify.Notifier
	deduper  Deduper
	metrics  *metrics.ReminderMetrics
	logger   *logging.Logger
}

func NewDispatcher(handler *Handler, notifier notify.Notifier, logger *logging.Logger) *Dispatcher {
	if handler == nil {
		panic("reply: handler cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		handler:  handler,
		notifier: notifier,
		deduper:  NewMemoryDeduper(DefaultDedupeTTL),
		logger:   logger,
	}
}

// WithDeduper replaces the in-memory deduper.
func (d *Dispatcher) WithDeduper(dd Deduper) *Dispatcher {
	if dd != nil {
		d.deduper = dd
	}
	return d
}

// WithMetrics records inbound counts.
func (d *Dispatcher) WithMetrics(m *metrics.ReminderMetrics) *Dispatcher {
	d.metrics = m
	return d
}

// Dispatch decodes a raw webhook body and processes every message in it.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) ([]MessageResult, error) {
	var event whatsapp.WebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		d.metrics.ObserveWebhook("invalid", "malformed")
		return nil, fmt.Errorf("reply: decode webhook: %w", err)
	}
	return d.DispatchEvent(ctx, event), nil
}

// DispatchEvent processes a decoded delivery. Messages are handled in order;
// status callbacks are only counted.
func (d *Dispatcher) DispatchEvent(ctx context.Context, event whatsapp.WebhookEvent) []MessageResult {
	for _, st := range whatsapp.ParseStatuses(event) {
		d.metrics.ObserveWebhook("status", st.Status)
	}

	msgs := whatsapp.ParseMessages(event)
	results := make([]MessageResult, 0, len(msgs))
	for _, msg := range msgs {
		outcome := d.process(ctx, msg)
		d.metrics.ObserveWebhook(msg.Type, string(outcome))
		results = append(results, MessageResult{MessageID: msg.MessageID, From: msg.From, Type: msg.Type, Outcome: outcome})
	}
	return results
}

func (d *Dispatcher) process(ctx context.Context, msg whatsapp.InboundMessage) Outcome {
	log := d.logger.With("message_id", msg.MessageID, "phone", msg.From, "type", msg.Type)
	if msg.Type != "text" && msg.Type != "button" {
		log.Debug("ignoring unsupported message type")
		return OutcomeIgnored
	}

	if msg.MessageID != "" {
		seen, err := d.deduper.AlreadyProcessed(ctx, msg.MessageID)
		if err != nil {
			log.Warn("failed to check message idempotency", "error", err)
		} else if seen {
			log.Info("skipping duplicate webhook delivery")
			return OutcomeDuplicate
		}
		d.markRead(msg.MessageID)
	}

	outcome, err := d.handler.HandleMessage(ctx, msg.From, msg.Text)
	if err != nil {
		log.Error("failed to handle inbound message", "error", err)
		return OutcomeFailed
	}
	if outcome.Terminal() && msg.MessageID != "" {
		if _, err := d.deduper.MarkProcessed(ctx, msg.MessageID); err != nil {
			log.Warn("failed to mark message processed", "error", err)
		}
	}
	return outcome
}

// markRead is best effort and never blocks the reply path.
func (d *Dispatcher) markRead(messageID string) {
	if d.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
		defer cancel()
		if err := d.notifier.MarkRead(ctx, messageID); err != nil {
			d.logger.Debug("mark read failed", "message_id", messageID, "error", err)
		}
	}()
}
