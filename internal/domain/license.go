package domain

import (
	"time"

	"github.com/google/uuid"
)

// LicenseStatus is the lifecycle state of an issued license key.
type LicenseStatus string

const (
	LicenseStatusActive    LicenseStatus = "active"
	LicenseStatusSuspended LicenseStatus = "suspended"
	LicenseStatusRevoked   LicenseStatus = "revoked"
	LicenseStatusExpired   LicenseStatus = "expired"
)

// License is the canonical license-key aggregate owned by M91.
// Product name and customer contact are denormalized at issuance so
// verification snapshots never require a cross-service call.
type License struct {
	LicenseID          uuid.UUID
	Key                string
	ProductID          uuid.UUID
	ProductName        string
	OrderID            uuid.UUID
	UserID             uuid.UUID
	CustomerEmail      string
	CustomerName       string
	Status             LicenseStatus
	MaxActivations     int
	CurrentActivations int
	ExpiresAt          *time.Time
	LastVerifiedAt     *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsExpired reports whether the license has a passed expiry timestamp.
// A nil ExpiresAt means a lifetime license.
func (l License) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && !l.ExpiresAt.After(now)
}

// Activation records one machine slot consumed against a license.
// Rows are flipped inactive on deactivation rather than deleted, so the
// table doubles as an activation audit trail.
type Activation struct {
	ActivationID  uuid.UUID
	LicenseID     uuid.UUID
	MachineID     string
	MachineName   string
	IPAddress     string
	UserAgent     string
	IsActive      bool
	ActivatedAt   time.Time
	LastSeenAt    time.Time
	DeactivatedAt *time.Time
}

// CanTransition reports whether an admin status change is allowed.
// Revoked is terminal; expired is owned by the clock, not by admins.
func CanTransition(from, to LicenseStatus) bool {
	switch {
	case from == LicenseStatusRevoked:
		return false
	case to == LicenseStatusSuspended:
		return from == LicenseStatusActive
	case to == LicenseStatusActive:
		return from == LicenseStatusSuspended
	case to == LicenseStatusRevoked:
		return true
	default:
		return false
	}
}

// TransitionSources lists the statuses an admin transition to the given
// target may start from, so guarded status updates and CanTransition can
// never disagree.
func TransitionSources(to LicenseStatus) []LicenseStatus {
	all := []LicenseStatus{
		LicenseStatusActive,
		LicenseStatusSuspended,
		LicenseStatusRevoked,
		LicenseStatusExpired,
	}
	var from []LicenseStatus
	for _, status := range all {
		if CanTransition(status, to) {
			from = append(from, status)
		}
	}
	return from
}
