package events

import (
	"context"
	"io"
	"sync"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
)

// MemoryConsumer serves seeded events in order and reports io.EOF once
// drained. It stands in for the broker subscription in local runs and tests.
type MemoryConsumer struct {
	mu     sync.Mutex
	queued []contracts.EventEnvelope
}

func NewMemoryConsumer() *MemoryConsumer {
	return &MemoryConsumer{}
}

func (c *MemoryConsumer) Seed(events ...contracts.EventEnvelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queued = append(c.queued, events...)
}

func (c *MemoryConsumer) Receive(ctx context.Context) (*contracts.EventEnvelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queued) == 0 {
		return nil, io.EOF
	}
	next := c.queued[0]
	c.queued = c.queued[1:]
	return &next, nil
}
