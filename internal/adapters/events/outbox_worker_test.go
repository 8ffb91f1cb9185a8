package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type stubOutboxRepo struct {
	mu           sync.Mutex
	pending      []ports.OutboxRecord
	published    []uuid.UUID
	failed       []uuid.UUID
	deadLettered []uuid.UUID
}

func (r *stubOutboxRepo) Enqueue(_ context.Context, _ ports.OutboxEvent) error {
	return nil
}

func (r *stubOutboxRepo) ClaimUnpublished(_ context.Context, _ int, _ string, _ time.Time) ([]ports.OutboxRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	claimed := r.pending
	r.pending = nil
	return claimed, nil
}

func (r *stubOutboxRepo) MarkPublished(_ context.Context, outboxID uuid.UUID, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.published = append(r.published, outboxID)
	return nil
}

func (r *stubOutboxRepo) MarkFailed(_ context.Context, outboxID uuid.UUID, _, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, outboxID)
	return nil
}

func (r *stubOutboxRepo) MarkDeadLettered(_ context.Context, outboxID uuid.UUID, _, _ string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deadLettered = append(r.deadLettered, outboxID)
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []contracts.EventEnvelope
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, event contracts.EventEnvelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, event)
	return nil
}

func TestOutboxWorkerPublishesPlatformEnvelopes(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	issued := ports.OutboxRecord{
		OutboxID:     uuid.New(),
		EventType:    "license.issued",
		PartitionKey: "order-1",
		Payload:      []byte(`{"order_id":"order-1"}`),
		CreatedAt:    now,
	}
	revoked := ports.OutboxRecord{
		OutboxID:     uuid.New(),
		EventType:    "license.revoked",
		PartitionKey: "lic-1",
		Payload:      []byte(`{"license_id":"lic-1"}`),
		CreatedAt:    now,
	}
	repo := &stubOutboxRepo{pending: []ports.OutboxRecord{issued, revoked}}
	publisher := &capturePublisher{}
	worker := NewOutboxWorker(quietLogger(), "M91-License-Service", repo, publisher, time.Second, 10, time.Minute, 5)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce failed: %v", err)
	}
	if len(publisher.events) != 2 {
		t.Fatalf("expected 2 published envelopes, got %d", len(publisher.events))
	}

	first := publisher.events[0]
	if first.EventID != issued.OutboxID.String() {
		t.Fatalf("envelope event_id = %s, want outbox id %s", first.EventID, issued.OutboxID)
	}
	if first.EventType != "license.issued" || first.EventClass != contracts.EventClassDomain {
		t.Fatalf("unexpected envelope classification: %+v", first)
	}
	if first.SourceService != "M91-License-Service" || first.SchemaVersion != "1.0" {
		t.Fatalf("envelope missing source metadata: %+v", first)
	}
	if first.PartitionKey != "order-1" || first.PartitionKeyPath != "data.order_id" {
		t.Fatalf("issuance must partition by order: %+v", first)
	}
	if string(first.Data) != `{"order_id":"order-1"}` {
		t.Fatalf("payload must pass through untouched: %s", first.Data)
	}
	if got := publisher.events[1].PartitionKeyPath; got != "data.license_id" {
		t.Fatalf("lifecycle events must partition by license, got %s", got)
	}

	if len(repo.published) != 2 {
		t.Fatalf("expected both records marked published, got %d", len(repo.published))
	}
}

func TestOutboxWorkerRetriesThenDeadLetters(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	fresh := ports.OutboxRecord{
		OutboxID:  uuid.New(),
		EventType: "license.issued",
		Payload:   []byte(`{}`),
		CreatedAt: now,
	}
	exhausted := ports.OutboxRecord{
		OutboxID:   uuid.New(),
		EventType:  "license.issued",
		Payload:    []byte(`{}`),
		RetryCount: 2,
		CreatedAt:  now,
	}
	repo := &stubOutboxRepo{pending: []ports.OutboxRecord{fresh, exhausted}}
	publisher := &capturePublisher{err: errors.New("broker unavailable")}
	worker := NewOutboxWorker(quietLogger(), "M91-License-Service", repo, publisher, time.Second, 10, time.Minute, 3)

	if err := worker.processOnce(context.Background()); err != nil {
		t.Fatalf("processOnce failed: %v", err)
	}

	if len(repo.failed) != 1 || repo.failed[0] != fresh.OutboxID {
		t.Fatalf("fresh record must be scheduled for retry, failed = %v", repo.failed)
	}
	if len(repo.deadLettered) != 1 || repo.deadLettered[0] != exhausted.OutboxID {
		t.Fatalf("exhausted record must dead-letter, dlq = %v", repo.deadLettered)
	}
	if len(repo.published) != 0 {
		t.Fatalf("nothing may be marked published on broker failure")
	}
}
