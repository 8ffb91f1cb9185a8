package application

import (
	"context"
	"errors"
	"strings"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

// VerifyLicense answers whether a key is currently usable, with a typed
// reason when it is not. Business outcomes come back in the response;
// only infrastructure failures and rate limiting surface as errors.
func (s *Service) VerifyLicense(ctx context.Context, req VerifyRequest) (VerifyResponse, error) {
	key, err := normalizeKey(req.Key)
	if err != nil {
		return VerifyResponse{}, err
	}
	if err := s.allowRate(ctx, "verify", key, req.IPAddress, s.cfg.VerifyRateLimitThreshold); err != nil {
		return VerifyResponse{}, err
	}

	// Shape check before touching the store; malformed input cannot name
	// an issued key.
	if !domain.IsValidKeyFormat(key) {
		return VerifyResponse{Valid: false, Reason: ReasonLicenseNotFound}, nil
	}

	license, err := s.licenses.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return VerifyResponse{Valid: false, Reason: ReasonLicenseNotFound}, nil
		}
		return VerifyResponse{}, err
	}

	if pinned := strings.TrimSpace(req.ProductID); pinned != "" && pinned != license.ProductID.String() {
		return VerifyResponse{Valid: false, Reason: ReasonProductMismatch}, nil
	}

	switch license.Status {
	case domain.LicenseStatusRevoked:
		return VerifyResponse{Valid: false, Reason: ReasonLicenseRevoked}, nil
	case domain.LicenseStatusSuspended:
		return VerifyResponse{Valid: false, Reason: ReasonLicenseSuspended}, nil
	case domain.LicenseStatusExpired:
		return VerifyResponse{Valid: false, Reason: ReasonLicenseExpired}, nil
	}

	now := s.nowFn()
	if license.IsExpired(now) {
		// Lazy one-way transition; the guarded update makes concurrent
		// verifications of a freshly-expired license converge.
		if err := s.expireLicense(ctx, license); err != nil {
			return VerifyResponse{}, err
		}
		return VerifyResponse{Valid: false, Reason: ReasonLicenseExpired}, nil
	}

	// Advisory bookkeeping; verification success must not depend on it.
	_ = s.licenses.TouchVerified(ctx, license.LicenseID, now)

	activations, err := s.activations.CountActive(ctx, license.LicenseID)
	if err != nil {
		return VerifyResponse{}, err
	}

	return VerifyResponse{
		Valid: true,
		License: &LicenseSnapshot{
			Status:         string(license.Status),
			ExpiresAt:      license.ExpiresAt,
			Activations:    activations,
			MaxActivations: license.MaxActivations,
			ProductID:      license.ProductID,
			ProductName:    license.ProductName,
			CustomerEmail:  license.CustomerEmail,
			CustomerName:   license.CustomerName,
		},
	}, nil
}
