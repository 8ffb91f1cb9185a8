package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// DomainEventHandler is implemented by the application service.
type DomainEventHandler interface {
	HandleDomainEvent(ctx context.Context, event contracts.EventEnvelope) error
}

// ConsumerWorker pulls commerce events and drives license issuance. Events
// that keep failing past the retry budget are handed to the DLQ so one poison
// message never stalls the stream.
type ConsumerWorker struct {
	logger      *slog.Logger
	consumer    ports.EventConsumer
	handler     DomainEventHandler
	dlq         ports.DLQPublisher
	retryBudget int
}

func NewConsumerWorker(
	logger *slog.Logger,
	consumer ports.EventConsumer,
	handler DomainEventHandler,
	dlq ports.DLQPublisher,
	retryBudget int,
) *ConsumerWorker {
	if retryBudget <= 0 {
		retryBudget = 3
	}
	return &ConsumerWorker{
		logger:      logger,
		consumer:    consumer,
		handler:     handler,
		dlq:         dlq,
		retryBudget: retryBudget,
	}
}

// Run consumes events until the source drains or the context is canceled.
func (w *ConsumerWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		event, err := w.consumer.Receive(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger.ErrorContext(ctx, "event receive failed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "receive_event",
				"outcome", "failure",
				"error", err,
			)
			continue
		}
		if event == nil {
			continue
		}

		w.processEvent(ctx, *event)
	}
}

func (w *ConsumerWorker) processEvent(ctx context.Context, event contracts.EventEnvelope) {
	firstSeen := time.Now().UTC()
	var lastErr error
	for attempt := 1; attempt <= w.retryBudget; attempt++ {
		lastErr = w.handler.HandleDomainEvent(ctx, event)
		if lastErr == nil {
			w.logger.InfoContext(ctx, "event processed",
				"module", "events.consumer_worker",
				"layer", "adapter",
				"operation", "handle_event",
				"outcome", "success",
				"event_id", event.EventID,
				"event_type", event.EventType,
				"attempt", attempt,
			)
			return
		}
		// Malformed or unsupported events never succeed on retry.
		if errors.Is(lastErr, domain.ErrInvalidInput) ||
			errors.Is(lastErr, domain.ErrUnsupportedEventClass) ||
			errors.Is(lastErr, domain.ErrUnsupportedEventType) {
			break
		}
		w.logger.WarnContext(ctx, "event handling failed; retrying",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "handle_event",
			"outcome", "failure",
			"event_id", event.EventID,
			"event_type", event.EventType,
			"attempt", attempt,
			"error", lastErr,
		)
	}

	record := contracts.DLQRecord{
		OriginalEvent: event,
		ErrorSummary:  lastErr.Error(),
		RetryCount:    w.retryBudget,
		FirstSeenAt:   firstSeen,
		LastErrorAt:   time.Now().UTC(),
		TraceID:       event.TraceID,
	}
	if err := w.dlq.Publish(ctx, record); err != nil {
		w.logger.ErrorContext(ctx, "dlq publish failed",
			"module", "events.consumer_worker",
			"layer", "adapter",
			"operation", "dlq_publish",
			"outcome", "failure",
			"event_id", event.EventID,
			"error", err,
		)
	}
}
