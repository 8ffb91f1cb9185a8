package application

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// SuspendLicense pauses an active license pending review.
func (s *Service) SuspendLicense(ctx context.Context, actor Actor, licenseID uuid.UUID, reason string) (LicenseDetail, error) {
	return s.transition(ctx, actor, licenseID, reason, domain.LicenseStatusSuspended, "license.suspended")
}

// ReinstateLicense lifts a suspension.
func (s *Service) ReinstateLicense(ctx context.Context, actor Actor, licenseID uuid.UUID, reason string) (LicenseDetail, error) {
	return s.transition(ctx, actor, licenseID, reason, domain.LicenseStatusActive, "license.reinstated")
}

// RevokeLicense permanently invalidates a license. There is no way back;
// the platform flow for a wrongly revoked key is a fresh order.
func (s *Service) RevokeLicense(ctx context.Context, actor Actor, licenseID uuid.UUID, reason string) (LicenseDetail, error) {
	return s.transition(ctx, actor, licenseID, reason, domain.LicenseStatusRevoked, "license.revoked")
}

func (s *Service) transition(ctx context.Context, actor Actor, licenseID uuid.UUID, reason string, to domain.LicenseStatus, eventType string) (LicenseDetail, error) {
	if !actor.IsAdmin() {
		return LicenseDetail{}, domain.ErrForbidden
	}
	if licenseID == uuid.Nil {
		return LicenseDetail{}, fmt.Errorf("%w: license_id is required", domain.ErrInvalidInput)
	}
	from := domain.TransitionSources(to)

	now := s.nowFn()
	payload, err := json.Marshal(contracts.LicenseStatusChangedPayload{
		LicenseID: licenseID.String(),
		Status:    string(to),
		Reason:    strings.TrimSpace(reason),
		ChangedAt: now.Format(time.RFC3339),
	})
	if err != nil {
		return LicenseDetail{}, fmt.Errorf("encode %s payload: %w", eventType, err)
	}

	license, err := s.licenses.SetStatusTx(ctx, licenseID, from, to, now, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    eventType,
		PartitionKey: licenseID.String(),
		Payload:      payload,
		OccurredAt:   now,
	})
	if err != nil {
		return LicenseDetail{}, err
	}
	return toLicenseDetail(license), nil
}

// GetLicense returns full license detail including activation history.
// Admins see everything; sellers only their own licenses.
func (s *Service) GetLicense(ctx context.Context, actor Actor, licenseID uuid.UUID) (LicenseDetail, error) {
	license, err := s.licenses.GetByID(ctx, licenseID)
	if err != nil {
		return LicenseDetail{}, err
	}
	if !actor.IsAdmin() && license.UserID != actor.UserID {
		return LicenseDetail{}, domain.ErrForbidden
	}

	activations, err := s.activations.ListByLicense(ctx, licenseID)
	if err != nil {
		return LicenseDetail{}, err
	}

	detail := toLicenseDetail(license)
	detail.Activations = make([]ActivationItem, 0, len(activations))
	for _, a := range activations {
		detail.Activations = append(detail.Activations, toActivationItem(a))
	}
	return detail, nil
}

// ListSellerLicenses pages through a seller's issued licenses.
func (s *Service) ListSellerLicenses(ctx context.Context, actor Actor, q LicenseListQuery) (LicenseListResult, error) {
	userID := actor.UserID
	if requested := strings.TrimSpace(q.UserID); requested != "" {
		parsed, err := uuid.Parse(requested)
		if err != nil {
			return LicenseListResult{}, fmt.Errorf("%w: invalid user_id", domain.ErrInvalidInput)
		}
		if parsed != actor.UserID && !actor.IsAdmin() {
			return LicenseListResult{}, domain.ErrForbidden
		}
		userID = parsed
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	offset := (q.Page - 1) * q.Limit

	licenses, total, err := s.licenses.ListBySeller(ctx, userID, q.Limit, offset)
	if err != nil {
		return LicenseListResult{}, err
	}

	items := make([]LicenseDetail, 0, len(licenses))
	for _, l := range licenses {
		items = append(items, toLicenseDetail(l))
	}
	return LicenseListResult{
		Licenses: items,
		Pagination: Pagination{
			Page:  q.Page,
			Limit: q.Limit,
			Total: total,
		},
	}, nil
}
