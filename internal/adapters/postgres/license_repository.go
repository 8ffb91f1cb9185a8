package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
	"gorm.io/gorm"
)

type licenseRepository struct {
	db *gorm.DB
}

func (r *licenseRepository) CreateWithOutboxTx(ctx context.Context, params ports.CreateLicenseTxParams, outboxEvent ports.OutboxEvent) (domain.License, error) {
	var result domain.License
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec := licenseKeyModel{
			Key:                params.Key,
			ProductID:          params.ProductID,
			ProductName:        params.ProductName,
			OrderID:            params.OrderID,
			UserID:             params.UserID,
			CustomerEmail:      params.CustomerEmail,
			CustomerName:       nullableString(params.CustomerName),
			Status:             string(domain.LicenseStatusActive),
			MaxActivations:     params.MaxActivations,
			CurrentActivations: 0,
			ExpiresAt:          params.ExpiresAt,
			CreatedAt:          params.IssuedAtUTC,
			UpdatedAt:          params.IssuedAtUTC,
		}
		if err := tx.Create(&rec).Error; err != nil {
			if isUniqueViolation(err) {
				return domain.ErrConflict
			}
			return err
		}

		payload := outboxEvent.Payload
		if len(payload) == 0 {
			payload = []byte(`{}`)
		}
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["license_id"] = rec.LicenseKeyID.String()
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}

		outbox := licenseOutboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: outboxEvent.PartitionKey,
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
			FirstSeenAt:  outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainLicense(rec)
		return nil
	})
	if err != nil {
		return domain.License{}, err
	}
	return result, nil
}

func (r *licenseRepository) GetByKey(ctx context.Context, key string) (domain.License, error) {
	var rec licenseKeyModel
	if err := r.db.WithContext(ctx).Where("key = ?", key).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.License{}, domain.ErrNotFound
		}
		return domain.License{}, err
	}
	return toDomainLicense(rec), nil
}

func (r *licenseRepository) GetByID(ctx context.Context, licenseID uuid.UUID) (domain.License, error) {
	var rec licenseKeyModel
	if err := r.db.WithContext(ctx).Where("license_key_id = ?", licenseID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.License{}, domain.ErrNotFound
		}
		return domain.License{}, err
	}
	return toDomainLicense(rec), nil
}

func (r *licenseRepository) GetByOrderID(ctx context.Context, orderID uuid.UUID) (domain.License, error) {
	var rec licenseKeyModel
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Take(&rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.License{}, domain.ErrNotFound
		}
		return domain.License{}, err
	}
	return toDomainLicense(rec), nil
}

func (r *licenseRepository) KeyExists(ctx context.Context, key string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&licenseKeyModel{}).Where("key = ?", key).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *licenseRepository) ListBySeller(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.License, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&licenseKeyModel{}).Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []licenseKeyModel
	query := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset)
	if err := query.Find(&rows).Error; err != nil {
		return nil, 0, err
	}
	result := make([]domain.License, 0, len(rows))
	for _, item := range rows {
		result = append(result, toDomainLicense(item))
	}
	return result, total, nil
}

func (r *licenseRepository) MarkExpired(ctx context.Context, licenseID uuid.UUID, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&licenseKeyModel{}).
		Where("license_key_id = ?", licenseID).
		Where("status = ?", string(domain.LicenseStatusActive)).
		Where("expires_at IS NOT NULL AND expires_at <= ?", at).
		Updates(map[string]any{
			"status":     string(domain.LicenseStatusExpired),
			"updated_at": at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *licenseRepository) TouchVerified(ctx context.Context, licenseID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&licenseKeyModel{}).
		Where("license_key_id = ?", licenseID).
		Update("last_verified_at", at).Error
}

func (r *licenseRepository) SetStatusTx(ctx context.Context, licenseID uuid.UUID, from []domain.LicenseStatus, to domain.LicenseStatus, at time.Time, outboxEvent ports.OutboxEvent) (domain.License, error) {
	var result domain.License
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fromStatuses := make([]string, 0, len(from))
		for _, st := range from {
			fromStatuses = append(fromStatuses, string(st))
		}
		res := tx.Model(&licenseKeyModel{}).
			Where("license_key_id = ?", licenseID).
			Where("status IN ?", fromStatuses).
			Updates(map[string]any{
				"status":     string(to),
				"updated_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var exists int64
			if err := tx.Model(&licenseKeyModel{}).Where("license_key_id = ?", licenseID).Count(&exists).Error; err != nil {
				return err
			}
			if exists == 0 {
				return domain.ErrNotFound
			}
			return domain.ErrInvalidStateTransition
		}

		var rec licenseKeyModel
		if err := tx.Where("license_key_id = ?", licenseID).Take(&rec).Error; err != nil {
			return err
		}

		payload := outboxEvent.Payload
		var payloadObj map[string]any
		if err := json.Unmarshal(payload, &payloadObj); err == nil {
			payloadObj["order_id"] = rec.OrderID.String()
			if adjusted, mErr := json.Marshal(payloadObj); mErr == nil {
				payload = adjusted
			}
		}

		outbox := licenseOutboxModel{
			OutboxID:     outboxEvent.EventID,
			EventType:    outboxEvent.EventType,
			PartitionKey: outboxEvent.PartitionKey,
			Payload:      string(payload),
			CreatedAt:    outboxEvent.OccurredAt,
			FirstSeenAt:  outboxEvent.OccurredAt,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return err
		}

		result = toDomainLicense(rec)
		return nil
	})
	if err != nil {
		return domain.License{}, err
	}
	return result, nil
}
