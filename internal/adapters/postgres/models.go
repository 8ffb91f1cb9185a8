package postgres

import (
	"time"

	"github.com/google/uuid"
)

type licenseKeyModel struct {
	LicenseKeyID       uuid.UUID  `gorm:"column:license_key_id;type:uuid;default:gen_random_uuid();primaryKey"`
	Key                string     `gorm:"column:key"`
	ProductID          uuid.UUID  `gorm:"column:product_id"`
	ProductName        string     `gorm:"column:product_name"`
	OrderID            uuid.UUID  `gorm:"column:order_id"`
	UserID             uuid.UUID  `gorm:"column:user_id"`
	CustomerEmail      string     `gorm:"column:customer_email"`
	CustomerName       *string    `gorm:"column:customer_name"`
	Status             string     `gorm:"column:status"`
	MaxActivations     int        `gorm:"column:max_activations"`
	CurrentActivations int        `gorm:"column:current_activations"`
	ExpiresAt          *time.Time `gorm:"column:expires_at"`
	LastVerifiedAt     *time.Time `gorm:"column:last_verified_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (licenseKeyModel) TableName() string { return "license_keys" }

type licenseActivationModel struct {
	ActivationID  uuid.UUID  `gorm:"column:activation_id;type:uuid;default:gen_random_uuid();primaryKey"`
	LicenseKeyID  uuid.UUID  `gorm:"column:license_key_id"`
	MachineID     string     `gorm:"column:machine_id"`
	MachineName   *string    `gorm:"column:machine_name"`
	IPAddress     *string    `gorm:"column:ip_address"`
	UserAgent     *string    `gorm:"column:user_agent"`
	IsActive      bool       `gorm:"column:is_active"`
	ActivatedAt   time.Time  `gorm:"column:activated_at"`
	LastSeenAt    time.Time  `gorm:"column:last_seen_at"`
	DeactivatedAt *time.Time `gorm:"column:deactivated_at"`
}

func (licenseActivationModel) TableName() string { return "license_activations" }

type licenseOutboxModel struct {
	OutboxID       uuid.UUID  `gorm:"column:outbox_id;type:uuid;primaryKey"`
	EventType      string     `gorm:"column:event_type"`
	PartitionKey   string     `gorm:"column:partition_key"`
	Payload        string     `gorm:"column:payload;type:jsonb"`
	CreatedAt      time.Time  `gorm:"column:created_at"`
	FirstSeenAt    time.Time  `gorm:"column:first_seen_at"`
	PublishedAt    *time.Time `gorm:"column:published_at"`
	RetryCount     int        `gorm:"column:retry_count"`
	LastError      *string    `gorm:"column:last_error"`
	LastErrorAt    *time.Time `gorm:"column:last_error_at"`
	ClaimToken     *string    `gorm:"column:claim_token"`
	ClaimUntil     *time.Time `gorm:"column:claim_until"`
	DeadLetteredAt *time.Time `gorm:"column:dead_lettered_at"`
}

func (licenseOutboxModel) TableName() string { return "license_outbox" }

type licenseEventDedupModel struct {
	EventID     string    `gorm:"column:event_id;primaryKey"`
	EventType   string    `gorm:"column:event_type"`
	ProcessedAt time.Time `gorm:"column:processed_at"`
	ExpiresAt   time.Time `gorm:"column:expires_at"`
}

func (licenseEventDedupModel) TableName() string { return "license_event_dedup" }
