package ports

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// CreateLicenseTxParams captures atomic license-issuance inputs.
// Issuance writes the license and its outbox event in one transaction so a
// sold license can never exist without its announcement, or vice versa.
type CreateLicenseTxParams struct {
	Key            string
	ProductID      uuid.UUID
	ProductName    string
	OrderID        uuid.UUID
	UserID         uuid.UUID
	CustomerEmail  string
	CustomerName   string
	MaxActivations int
	ExpiresAt      *time.Time
	IssuedAtUTC    time.Time
}

// LicenseRepository defines persistence operations for license keys.
type LicenseRepository interface {
	CreateWithOutboxTx(ctx context.Context, params CreateLicenseTxParams, outboxEvent OutboxEvent) (domain.License, error)
	GetByKey(ctx context.Context, key string) (domain.License, error)
	GetByID(ctx context.Context, licenseID uuid.UUID) (domain.License, error)
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (domain.License, error)
	KeyExists(ctx context.Context, key string) (bool, error)
	ListBySeller(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.License, int64, error)
	// MarkExpired flips active licenses past their expiry. The guarded
	// update makes the transition idempotent under concurrent callers;
	// it reports whether this call performed the flip.
	MarkExpired(ctx context.Context, licenseID uuid.UUID, at time.Time) (bool, error)
	TouchVerified(ctx context.Context, licenseID uuid.UUID, at time.Time) error
	// SetStatusTx applies an admin transition guarded on the current
	// status and enqueues the matching outbox event in one transaction.
	SetStatusTx(ctx context.Context, licenseID uuid.UUID, from []domain.LicenseStatus, to domain.LicenseStatus, at time.Time, outboxEvent OutboxEvent) (domain.License, error)
}

// ActivateParams carries one machine-activation request into the store.
type ActivateParams struct {
	LicenseID   uuid.UUID
	MachineID   string
	MachineName string
	IPAddress   string
	UserAgent   string
	Now         time.Time
}

// ActivationRepository owns the activation slot bookkeeping.
// Activate and Deactivate are transactional: the active-row set and the
// cached counter on the license row move together or not at all.
type ActivationRepository interface {
	// Activate returns the resulting activation and whether a new slot was
	// consumed. An already-active machine gets a heartbeat update instead
	// of a second slot. ErrMaxActivationsReached is returned without side
	// effects when the ceiling is hit.
	Activate(ctx context.Context, params ActivateParams) (domain.Activation, bool, error)
	Deactivate(ctx context.Context, licenseID uuid.UUID, machineID string, at time.Time) error
	ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error)
	CountActive(ctx context.Context, licenseID uuid.UUID) (int, error)
}

// OutboxEvent is the write-side event payload prior to storage.
// It is adapter-neutral to keep application code independent of broker specifics.
type OutboxEvent struct {
	EventID      uuid.UUID
	EventType    string
	PartitionKey string
	Payload      []byte
	OccurredAt   time.Time
}

// OutboxRecord represents durable outbox state, including retry/error metadata.
type OutboxRecord struct {
	OutboxID       uuid.UUID
	EventType      string
	PartitionKey   string
	Payload        []byte
	RetryCount     int
	LastError      *string
	CreatedAt      time.Time
	PublishedAt    *time.Time
	LastErrorAt    *time.Time
	FirstSeenAt    time.Time
	ClaimToken     *string
	ClaimUntil     *time.Time
	DeadLetteredAt *time.Time
}

// OutboxRepository controls publish-retry workflow for domain events.
// This explicit contract enables transactional outbox patterns without leaking DB details.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event OutboxEvent) error
	ClaimUnpublished(ctx context.Context, limit int, claimToken string, claimUntil time.Time) ([]OutboxRecord, error)
	MarkPublished(ctx context.Context, outboxID uuid.UUID, claimToken string, at time.Time) error
	MarkFailed(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
	MarkDeadLettered(ctx context.Context, outboxID uuid.UUID, claimToken, errMsg string, at time.Time) error
}

// EventDedupRepository makes broker redelivery safe for consumed events.
type EventDedupRepository interface {
	IsDuplicate(ctx context.Context, eventID string, now time.Time) (bool, error)
	MarkProcessed(ctx context.Context, eventID, eventType string, expiresAt time.Time) error
}
