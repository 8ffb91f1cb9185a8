package ports

import (
	"context"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
)

// EventPublisher is the outbound domain-event publish port.
// Publishers receive fully formed envelopes so broker and client concerns
// stay in adapters.
type EventPublisher interface {
	Publish(ctx context.Context, event contracts.EventEnvelope) error
}

// EventConsumer delivers inbound domain events one at a time.
type EventConsumer interface {
	Receive(ctx context.Context) (*contracts.EventEnvelope, error)
}

// DLQPublisher receives events that exhausted their processing retries.
type DLQPublisher interface {
	Publish(ctx context.Context, record contracts.DLQRecord) error
}
