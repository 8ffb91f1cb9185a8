package application

import (
	"context"
	"errors"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// ActivateMachine consumes (or refreshes) one activation slot for a machine.
// The ceiling check and the counter increment are a single conditional
// update in the store, so concurrent activations cannot oversubscribe a key.
func (s *Service) ActivateMachine(ctx context.Context, req ActivateRequest) (ActivateResponse, error) {
	key, err := normalizeKey(req.Key)
	if err != nil {
		return ActivateResponse{}, err
	}
	machineID, err := normalizeMachineID(req.MachineID)
	if err != nil {
		return ActivateResponse{}, err
	}
	if err := s.allowRate(ctx, "activate", key, req.IPAddress, s.cfg.ActivateRateLimitThreshold); err != nil {
		return ActivateResponse{}, err
	}

	license, err := s.lookupActivatableLicense(ctx, key)
	if err != nil {
		return ActivateResponse{}, err
	}

	params := ports.ActivateParams{
		LicenseID:   license.LicenseID,
		MachineID:   machineID,
		MachineName: req.MachineName,
		IPAddress:   req.IPAddress,
		UserAgent:   req.UserAgent,
		Now:         s.nowFn(),
	}
	activation, _, err := s.activations.Activate(ctx, params)
	if errors.Is(err, domain.ErrConflict) {
		// Two activations or a deactivation of the same machine raced; the
		// loser retries once against the row's settled state.
		activation, _, err = s.activations.Activate(ctx, params)
	}
	if err != nil {
		return ActivateResponse{}, err
	}
	s.clearRate(ctx, "activate", key, req.IPAddress)

	active, err := s.activations.CountActive(ctx, license.LicenseID)
	if err != nil {
		return ActivateResponse{}, err
	}

	return ActivateResponse{
		Activated:      true,
		ActivationID:   activation.ActivationID,
		Activations:    active,
		MaxActivations: license.MaxActivations,
	}, nil
}

// DeactivateMachine releases the machine's slot. Deactivating a machine
// that holds no active slot is an error so client installs notice drift.
func (s *Service) DeactivateMachine(ctx context.Context, req DeactivateRequest) error {
	key, err := normalizeKey(req.Key)
	if err != nil {
		return err
	}
	machineID, err := normalizeMachineID(req.MachineID)
	if err != nil {
		return err
	}

	if !domain.IsValidKeyFormat(key) {
		return domain.ErrLicenseNotFound
	}
	license, err := s.licenses.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrLicenseNotFound
		}
		return err
	}

	return s.activations.Deactivate(ctx, license.LicenseID, machineID, s.nowFn())
}

// lookupActivatableLicense loads the license and enforces that only an
// unexpired active license can take new activations, applying the lazy
// expiry transition on the way.
func (s *Service) lookupActivatableLicense(ctx context.Context, key string) (domain.License, error) {
	if !domain.IsValidKeyFormat(key) {
		return domain.License{}, domain.ErrLicenseNotFound
	}
	license, err := s.licenses.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.License{}, domain.ErrLicenseNotFound
		}
		return domain.License{}, err
	}
	if stErr := statusError(license.Status); stErr != nil {
		return domain.License{}, stErr
	}
	if license.IsExpired(s.nowFn()) {
		if err := s.expireLicense(ctx, license); err != nil {
			return domain.License{}, err
		}
		return domain.License{}, domain.ErrLicenseExpired
	}
	return license, nil
}
