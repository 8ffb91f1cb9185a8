package contracts

import (
	"encoding/json"
	"time"
)

// EventClassDomain marks broker events that carry domain state changes.
const EventClassDomain = "domain"

type EventEnvelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	EventClass       string          `json:"event_class"`
	OccurredAt       time.Time       `json:"occurred_at"`
	PartitionKey     string          `json:"partition_key"`
	PartitionKeyPath string          `json:"partition_key_path"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    string          `json:"schema_version"`
	Data             json.RawMessage `json:"data"`
}

// OrderCompletedPayload is the commerce-side trigger for license issuance.
type OrderCompletedPayload struct {
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	UserID        string `json:"user_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name,omitempty"`
}

type LicenseIssuedPayload struct {
	LicenseID     string `json:"license_id"`
	Key           string `json:"key"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	UserID        string `json:"user_id"`
	CustomerEmail string `json:"customer_email"`
	ExpiresAt     string `json:"expires_at,omitempty"`
	IssuedAt      string `json:"issued_at"`
}

type LicenseStatusChangedPayload struct {
	LicenseID string `json:"license_id"`
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	ChangedAt string `json:"changed_at"`
}

type DLQRecord struct {
	OriginalEvent EventEnvelope `json:"original_event"`
	ErrorSummary  string        `json:"error_summary"`
	RetryCount    int           `json:"retry_count"`
	FirstSeenAt   time.Time     `json:"first_seen_at"`
	LastErrorAt   time.Time     `json:"last_error_at"`
	SourceTopic   string        `json:"source_topic,omitempty"`
	TraceID       string        `json:"trace_id,omitempty"`
}
