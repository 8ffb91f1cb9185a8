package events

import (
	"context"
	"log/slog"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
)

// LoggingPublisher writes outbound envelopes to the log stream. It stands
// in for the broker client until the platform bus is wired up.
type LoggingPublisher struct {
	logger *slog.Logger
}

func NewLoggingPublisher(logger *slog.Logger) *LoggingPublisher {
	return &LoggingPublisher{logger: logger}
}

func (p *LoggingPublisher) Publish(ctx context.Context, event contracts.EventEnvelope) error {
	p.logger.InfoContext(ctx, "published event",
		"event_id", event.EventID,
		"event_type", event.EventType,
		"partition_key", event.PartitionKey,
		"source_service", event.SourceService,
		"payload", string(event.Data),
	)
	return nil
}

// LoggingDLQPublisher records dead-lettered inbound events. A broker-backed
// DLQ can replace it without touching the consumer loop.
type LoggingDLQPublisher struct {
	logger *slog.Logger
}

func NewLoggingDLQPublisher(logger *slog.Logger) *LoggingDLQPublisher {
	return &LoggingDLQPublisher{logger: logger}
}

func (p *LoggingDLQPublisher) Publish(ctx context.Context, record contracts.DLQRecord) error {
	p.logger.ErrorContext(ctx, "event moved to dlq",
		"event_id", record.OriginalEvent.EventID,
		"event_type", record.OriginalEvent.EventType,
		"error_summary", record.ErrorSummary,
		"retry_count", record.RetryCount,
	)
	return nil
}
