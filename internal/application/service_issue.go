package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// IssueLicense creates at most one license per completed order.
// It is safe to call repeatedly for the same order: replays return the
// already-issued license with Created=false.
func (s *Service) IssueLicense(ctx context.Context, input IssueLicenseInput) (IssueLicenseResult, error) {
	orderID, err := parseRequiredUUID(input.OrderID, "order_id")
	if err != nil {
		return IssueLicenseResult{}, err
	}
	productID, err := parseRequiredUUID(input.ProductID, "product_id")
	if err != nil {
		return IssueLicenseResult{}, err
	}
	userID, err := parseRequiredUUID(input.UserID, "user_id")
	if err != nil {
		return IssueLicenseResult{}, err
	}
	customerEmail := strings.ToLower(strings.TrimSpace(input.CustomerEmail))
	if customerEmail == "" {
		return IssueLicenseResult{}, fmt.Errorf("%w: customer_email is required", domain.ErrInvalidInput)
	}

	if existing, getErr := s.licenses.GetByOrderID(ctx, orderID); getErr == nil {
		detail := toLicenseDetail(existing)
		return IssueLicenseResult{License: &detail, Created: false}, nil
	} else if !errors.Is(getErr, domain.ErrNotFound) {
		return IssueLicenseResult{}, getErr
	}

	policy, err := s.catalog.GetLicensingPolicy(ctx, productID.String())
	if err != nil {
		return IssueLicenseResult{}, fmt.Errorf("resolve licensing policy: %w", err)
	}
	if !policy.IsLicensed() {
		return IssueLicenseResult{Created: false}, nil
	}

	key, err := s.generateUnissuedKey(ctx, policy.KeyPrefix)
	if err != nil {
		return IssueLicenseResult{}, err
	}

	now := s.nowFn()
	maxActivations := policy.MaxActivations
	if maxActivations <= 0 {
		maxActivations = s.cfg.DefaultMaxActivations
	}
	var expiresAt *time.Time
	if policy.DurationDays > 0 {
		t := now.Add(time.Duration(policy.DurationDays) * 24 * time.Hour)
		expiresAt = &t
	}

	event, err := s.issuedOutboxEvent(orderID, productID, userID, key, customerEmail, expiresAt, now)
	if err != nil {
		return IssueLicenseResult{}, err
	}

	license, err := s.licenses.CreateWithOutboxTx(ctx, ports.CreateLicenseTxParams{
		Key:            key,
		ProductID:      productID,
		ProductName:    policy.ProductName,
		OrderID:        orderID,
		UserID:         userID,
		CustomerEmail:  customerEmail,
		CustomerName:   strings.TrimSpace(input.CustomerName),
		MaxActivations: maxActivations,
		ExpiresAt:      expiresAt,
		IssuedAtUTC:    now,
	}, event)
	if err != nil {
		// A racing issuance for the same order wins the unique index;
		// replay semantics still hold by returning the winner.
		if errors.Is(err, domain.ErrConflict) {
			if existing, getErr := s.licenses.GetByOrderID(ctx, orderID); getErr == nil {
				detail := toLicenseDetail(existing)
				return IssueLicenseResult{License: &detail, Created: false}, nil
			}
		}
		return IssueLicenseResult{}, err
	}

	detail := toLicenseDetail(license)
	return IssueLicenseResult{License: &detail, Created: true}, nil
}

// generateUnissuedKey draws candidate keys until one is unused.
// The attempt cap turns a saturated prefix space into a loud operational
// failure instead of an unbounded loop.
func (s *Service) generateUnissuedKey(ctx context.Context, prefix string) (string, error) {
	for attempt := 0; attempt < domain.MaxKeyGenerationAttempts; attempt++ {
		key, err := domain.GenerateKey(prefix)
		if err != nil {
			return "", err
		}
		exists, err := s.licenses.KeyExists(ctx, key)
		if err != nil {
			return "", err
		}
		if !exists {
			return key, nil
		}
	}
	return "", fmt.Errorf("%w after %d attempts", domain.ErrKeyspaceExhausted, domain.MaxKeyGenerationAttempts)
}

func (s *Service) issuedOutboxEvent(orderID, productID, userID uuid.UUID, key, customerEmail string, expiresAt *time.Time, now time.Time) (ports.OutboxEvent, error) {
	payload := contractsLicenseIssued(orderID, productID, userID, key, customerEmail, expiresAt, now)
	raw, err := json.Marshal(payload)
	if err != nil {
		return ports.OutboxEvent{}, fmt.Errorf("encode license.issued payload: %w", err)
	}
	return ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "license.issued",
		PartitionKey: orderID.String(),
		Payload:      raw,
		OccurredAt:   now,
	}, nil
}

func contractsLicenseIssued(orderID, productID, userID uuid.UUID, key, customerEmail string, expiresAt *time.Time, now time.Time) contracts.LicenseIssuedPayload {
	payload := contracts.LicenseIssuedPayload{
		Key:           key,
		OrderID:       orderID.String(),
		ProductID:     productID.String(),
		UserID:        userID.String(),
		CustomerEmail: customerEmail,
		IssuedAt:      now.Format(time.RFC3339),
	}
	if expiresAt != nil {
		payload.ExpiresAt = expiresAt.Format(time.RFC3339)
	}
	return payload
}

func parseRequiredUUID(raw, field string) (uuid.UUID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, field)
	}
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrInvalidInput, field)
	}
	return id, nil
}
