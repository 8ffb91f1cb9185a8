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

type Service struct {
	cfg         Config
	licenses    ports.LicenseRepository
	activations ports.ActivationRepository
	outbox      ports.OutboxRepository
	eventDedup  ports.EventDedupRepository
	catalog     ports.CatalogClient
	rateLimits  ports.RateLimitStore
	nowFn       func() time.Time
}

type Dependencies struct {
	Config      Config
	Licenses    ports.LicenseRepository
	Activations ports.ActivationRepository
	Outbox      ports.OutboxRepository
	EventDedup  ports.EventDedupRepository
	Catalog     ports.CatalogClient
	RateLimits  ports.RateLimitStore
}

func NewService(deps Dependencies) *Service {
	cfg := deps.Config
	if cfg.DefaultMaxActivations <= 0 {
		cfg.DefaultMaxActivations = 1
	}
	if cfg.EventDedupTTL <= 0 {
		cfg.EventDedupTTL = 7 * 24 * time.Hour
	}
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = time.Minute
	}
	return &Service{
		cfg:         cfg,
		licenses:    deps.Licenses,
		activations: deps.Activations,
		outbox:      deps.Outbox,
		eventDedup:  deps.EventDedup,
		catalog:     deps.Catalog,
		rateLimits:  deps.RateLimits,
		nowFn:       func() time.Time { return time.Now().UTC() },
	}
}

// allowRate applies a fixed-window counter per operation, key and caller IP.
// A nil store disables limiting, which unit fixtures rely on.
func (s *Service) allowRate(ctx context.Context, operation, key, ip string, threshold int) error {
	if s.rateLimits == nil || threshold <= 0 {
		return nil
	}
	count, err := s.rateLimits.Hit(ctx, operation+":"+key+":"+ip, s.cfg.RateLimitWindow)
	if err != nil {
		// Rate limiting is advisory; a cache outage must not take
		// verification down with it.
		return nil
	}
	if count > threshold {
		return domain.ErrRateLimited
	}
	return nil
}

// clearRate resets the fixed window after a successful attempt so only
// failed or abusive bursts accumulate toward the threshold.
func (s *Service) clearRate(ctx context.Context, operation, key, ip string) {
	if s.rateLimits == nil {
		return
	}
	_ = s.rateLimits.Clear(ctx, operation+":"+key+":"+ip)
}

// expireLicense applies the lazy one-way expiry flip and, when this call
// performed it, announces the transition through the outbox. The guarded
// update means concurrent callers produce exactly one announcement.
func (s *Service) expireLicense(ctx context.Context, license domain.License) error {
	now := s.nowFn()
	flipped, err := s.licenses.MarkExpired(ctx, license.LicenseID, now)
	if err != nil {
		return err
	}
	// A nil outbox disables announcements, which thin test harnesses use.
	if !flipped || s.outbox == nil {
		return nil
	}

	payload, err := json.Marshal(contracts.LicenseStatusChangedPayload{
		LicenseID: license.LicenseID.String(),
		OrderID:   license.OrderID.String(),
		Status:    string(domain.LicenseStatusExpired),
		ChangedAt: now.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("encode license.expired payload: %w", err)
	}
	return s.outbox.Enqueue(ctx, ports.OutboxEvent{
		EventID:      uuid.New(),
		EventType:    "license.expired",
		PartitionKey: license.LicenseID.String(),
		Payload:      payload,
		OccurredAt:   now,
	})
}

func statusError(status domain.LicenseStatus) error {
	switch status {
	case domain.LicenseStatusSuspended:
		return domain.ErrLicenseSuspended
	case domain.LicenseStatusRevoked:
		return domain.ErrLicenseRevoked
	case domain.LicenseStatusExpired:
		return domain.ErrLicenseExpired
	default:
		return nil
	}
}

func normalizeKey(raw string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return "", fmt.Errorf("%w: key is required", domain.ErrInvalidInput)
	}
	return key, nil
}

func normalizeMachineID(raw string) (string, error) {
	machineID := strings.TrimSpace(raw)
	if machineID == "" {
		return "", fmt.Errorf("%w: machine_id is required", domain.ErrInvalidInput)
	}
	if len(machineID) > 255 {
		return "", fmt.Errorf("%w: machine_id too long", domain.ErrInvalidInput)
	}
	return machineID, nil
}
