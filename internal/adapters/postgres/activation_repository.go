package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type activationRepository struct {
	db *gorm.DB
}

// Activate runs the whole slot negotiation in one transaction. The guarded
// counter increment is the serialization point: it takes the license row
// lock and fails cleanly when the ceiling is already reached, so the check
// and the consumption are a single atomic step.
func (r *activationRepository) Activate(ctx context.Context, params ports.ActivateParams) (domain.Activation, bool, error) {
	var result domain.Activation
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing licenseActivationModel
		err := tx.Where("license_key_id = ? AND machine_id = ?", params.LicenseID, params.MachineID).
			Take(&existing).Error
		switch {
		case err == nil && existing.IsActive:
			// Heartbeat path: the machine already holds a slot. The
			// is_active guard re-checks under the row update, because a
			// concurrent Deactivate may have released the slot after the
			// read above.
			res := tx.Model(&licenseActivationModel{}).
				Where("activation_id = ?", existing.ActivationID).
				Where("is_active = ?", true).
				Updates(map[string]any{
					"last_seen_at": params.Now,
					"ip_address":   nullableString(params.IPAddress),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrConflict
			}
			existing.LastSeenAt = params.Now
			existing.IPAddress = nullableString(params.IPAddress)
			result = toDomainActivation(existing)
			return nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		res := tx.Model(&licenseKeyModel{}).
			Where("license_key_id = ?", params.LicenseID).
			Where("current_activations < max_activations").
			Updates(map[string]any{
				"current_activations": gorm.Expr("current_activations + 1"),
				"updated_at":          params.Now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrMaxActivationsReached
		}

		if err == nil {
			// Inactive audit row exists for this machine; flip it back
			// instead of violating the (license, machine) unique pair.
			// Guarding on is_active = false keeps a racing reactivation of
			// the same machine from consuming a second slot: the loser sees
			// zero rows, the rollback releases its increment, and the retry
			// lands on the heartbeat path.
			res := tx.Model(&licenseActivationModel{}).
				Where("activation_id = ?", existing.ActivationID).
				Where("is_active = ?", false).
				Updates(map[string]any{
					"is_active":      true,
					"activated_at":   params.Now,
					"last_seen_at":   params.Now,
					"deactivated_at": nil,
					"machine_name":   nullableString(params.MachineName),
					"ip_address":     nullableString(params.IPAddress),
					"user_agent":     nullableString(params.UserAgent),
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return domain.ErrConflict
			}
			existing.IsActive = true
			existing.ActivatedAt = params.Now
			existing.LastSeenAt = params.Now
			existing.DeactivatedAt = nil
			existing.MachineName = nullableString(params.MachineName)
			existing.IPAddress = nullableString(params.IPAddress)
			existing.UserAgent = nullableString(params.UserAgent)
			result = toDomainActivation(existing)
			created = true
			return nil
		}

		rec := licenseActivationModel{
			LicenseKeyID: params.LicenseID,
			MachineID:    params.MachineID,
			MachineName:  nullableString(params.MachineName),
			IPAddress:    nullableString(params.IPAddress),
			UserAgent:    nullableString(params.UserAgent),
			IsActive:     true,
			ActivatedAt:  params.Now,
			LastSeenAt:   params.Now,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				// A racing first-time activation for the same machine got
				// there first; roll back so the caller can retry onto the
				// heartbeat path.
				return domain.ErrConflict
			}
			return err
		}
		result = toDomainActivation(rec)
		created = true
		return nil
	})
	if err != nil {
		return domain.Activation{}, false, err
	}
	return result, created, nil
}

// Deactivate releases the machine's slot, pairing the row flip with a
// guarded counter decrement so the two never drift apart.
func (r *activationRepository) Deactivate(ctx context.Context, licenseID uuid.UUID, machineID string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&licenseActivationModel{}).
			Where("license_key_id = ? AND machine_id = ?", licenseID, machineID).
			Where("is_active = ?", true).
			Updates(map[string]any{
				"is_active":      false,
				"deactivated_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrActivationNotFound
		}

		return tx.Model(&licenseKeyModel{}).
			Where("license_key_id = ?", licenseID).
			Where("current_activations > 0").
			Updates(map[string]any{
				"current_activations": gorm.Expr("current_activations - 1"),
				"updated_at":          at,
			}).Error
	})
}

func (r *activationRepository) ListByLicense(ctx context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	var rows []licenseActivationModel
	query := r.db.WithContext(ctx).
		Where("license_key_id = ?", licenseID).
		Order("activated_at DESC")
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]domain.Activation, 0, len(rows))
	for _, item := range rows {
		result = append(result, toDomainActivation(item))
	}
	return result, nil
}

func (r *activationRepository) CountActive(ctx context.Context, licenseID uuid.UUID) (int, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&licenseActivationModel{}).
		Where("license_key_id = ?", licenseID).
		Where("is_active = ?", true).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
