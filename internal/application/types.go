package application

import (
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

type Config struct {
	DefaultMaxActivations int
	EventDedupTTL         time.Duration

	VerifyRateLimitThreshold   int
	ActivateRateLimitThreshold int
	RateLimitWindow            time.Duration
}

// Actor is the authenticated caller of a protected operation.
type Actor struct {
	UserID uuid.UUID
	Role   string
}

func (a Actor) IsAdmin() bool { return a.Role == "ADMIN" }

// Verification outcome reasons exposed on the public wire.
const (
	ReasonLicenseNotFound       = "license_not_found"
	ReasonProductMismatch       = "product_mismatch"
	ReasonLicenseRevoked        = "license_revoked"
	ReasonLicenseSuspended      = "license_suspended"
	ReasonLicenseExpired        = "license_expired"
	ReasonMaxActivationsReached = "max_activations_reached"
	ReasonActivationNotFound    = "activation_not_found"
	ReasonInternalError         = "internal_error"
)

type IssueLicenseInput struct {
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	UserID        string `json:"user_id"`
	CustomerEmail string `json:"customer_email"`
	CustomerName  string `json:"customer_name,omitempty"`
}

type IssueLicenseResult struct {
	License *LicenseDetail `json:"license,omitempty"`
	Created bool           `json:"created"`
}

type VerifyRequest struct {
	Key       string `json:"key"`
	MachineID string `json:"machine_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	IPAddress string `json:"-"`
}

type LicenseSnapshot struct {
	Status         string     `json:"status"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
	Activations    int        `json:"activations"`
	MaxActivations int        `json:"max_activations"`
	ProductID      uuid.UUID  `json:"product_id"`
	ProductName    string     `json:"product_name"`
	CustomerEmail  string     `json:"customer_email"`
	CustomerName   string     `json:"customer_name,omitempty"`
}

type VerifyResponse struct {
	Valid   bool             `json:"valid"`
	Reason  string           `json:"reason,omitempty"`
	License *LicenseSnapshot `json:"license,omitempty"`
}

type ActivateRequest struct {
	Key         string `json:"key"`
	MachineID   string `json:"machine_id"`
	MachineName string `json:"machine_name,omitempty"`
	IPAddress   string `json:"-"`
	UserAgent   string `json:"-"`
}

type ActivateResponse struct {
	Activated      bool      `json:"activated"`
	ActivationID   uuid.UUID `json:"activation_id"`
	Activations    int       `json:"activations"`
	MaxActivations int       `json:"max_activations"`
}

type DeactivateRequest struct {
	Key       string `json:"key"`
	MachineID string `json:"machine_id"`
	IPAddress string `json:"-"`
}

type ActivationItem struct {
	ActivationID  uuid.UUID  `json:"activation_id"`
	MachineID     string     `json:"machine_id"`
	MachineName   string     `json:"machine_name,omitempty"`
	IPAddress     string     `json:"ip_address,omitempty"`
	IsActive      bool       `json:"is_active"`
	ActivatedAt   time.Time  `json:"activated_at"`
	LastSeenAt    time.Time  `json:"last_seen_at"`
	DeactivatedAt *time.Time `json:"deactivated_at,omitempty"`
}

type LicenseDetail struct {
	LicenseID          uuid.UUID        `json:"license_id"`
	Key                string           `json:"key"`
	ProductID          uuid.UUID        `json:"product_id"`
	ProductName        string           `json:"product_name"`
	OrderID            uuid.UUID        `json:"order_id"`
	UserID             uuid.UUID        `json:"user_id"`
	CustomerEmail      string           `json:"customer_email"`
	CustomerName       string           `json:"customer_name,omitempty"`
	Status             string           `json:"status"`
	MaxActivations     int              `json:"max_activations"`
	CurrentActivations int              `json:"current_activations"`
	ExpiresAt          *time.Time       `json:"expires_at,omitempty"`
	LastVerifiedAt     *time.Time       `json:"last_verified_at,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	Activations        []ActivationItem `json:"activations,omitempty"`
}

type LicenseListQuery struct {
	UserID string
	Page   int
	Limit  int
}

type LicenseListResult struct {
	Licenses   []LicenseDetail `json:"licenses"`
	Pagination Pagination      `json:"pagination"`
}

type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
}

func toLicenseDetail(l domain.License) LicenseDetail {
	return LicenseDetail{
		LicenseID:          l.LicenseID,
		Key:                l.Key,
		ProductID:          l.ProductID,
		ProductName:        l.ProductName,
		OrderID:            l.OrderID,
		UserID:             l.UserID,
		CustomerEmail:      l.CustomerEmail,
		CustomerName:       l.CustomerName,
		Status:             string(l.Status),
		MaxActivations:     l.MaxActivations,
		CurrentActivations: l.CurrentActivations,
		ExpiresAt:          l.ExpiresAt,
		LastVerifiedAt:     l.LastVerifiedAt,
		CreatedAt:          l.CreatedAt,
	}
}

func toActivationItem(a domain.Activation) ActivationItem {
	return ActivationItem{
		ActivationID:  a.ActivationID,
		MachineID:     a.MachineID,
		MachineName:   a.MachineName,
		IPAddress:     a.IPAddress,
		IsActive:      a.IsActive,
		ActivatedAt:   a.ActivatedAt,
		LastSeenAt:    a.LastSeenAt,
		DeactivatedAt: a.DeactivatedAt,
	}
}
