package postgres

import (
	"errors"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"gorm.io/gorm"
)

func toDomainLicense(row licenseKeyModel) domain.License {
	return domain.License{
		LicenseID:          row.LicenseKeyID,
		Key:                row.Key,
		ProductID:          row.ProductID,
		ProductName:        row.ProductName,
		OrderID:            row.OrderID,
		UserID:             row.UserID,
		CustomerEmail:      row.CustomerEmail,
		CustomerName:       derefString(row.CustomerName),
		Status:             domain.LicenseStatus(row.Status),
		MaxActivations:     row.MaxActivations,
		CurrentActivations: row.CurrentActivations,
		ExpiresAt:          row.ExpiresAt,
		LastVerifiedAt:     row.LastVerifiedAt,
		CreatedAt:          row.CreatedAt,
		UpdatedAt:          row.UpdatedAt,
	}
}

func toDomainActivation(row licenseActivationModel) domain.Activation {
	return domain.Activation{
		ActivationID:  row.ActivationID,
		LicenseID:     row.LicenseKeyID,
		MachineID:     row.MachineID,
		MachineName:   derefString(row.MachineName),
		IPAddress:     derefString(row.IPAddress),
		UserAgent:     derefString(row.UserAgent),
		IsActive:      row.IsActive,
		ActivatedAt:   row.ActivatedAt,
		LastSeenAt:    row.LastSeenAt,
		DeactivatedAt: row.DeactivatedAt,
	}
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}
