package application_test

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

// memStore backs all repository fakes with one mutex so the activation
// fake can mirror the production conditional-increment semantics.
type memStore struct {
	mu             sync.Mutex
	licenses       map[uuid.UUID]*domain.License
	activations    map[uuid.UUID]map[string]*domain.Activation
	outbox         []storedOutboxEvent
	dedup          map[string]time.Time
	keyAlwaysTaken bool
}

type storedOutboxEvent struct {
	ports.OutboxEvent
	PayloadObj map[string]any
}

func newMemStore() *memStore {
	return &memStore{
		licenses:    make(map[uuid.UUID]*domain.License),
		activations: make(map[uuid.UUID]map[string]*domain.Activation),
		dedup:       make(map[string]time.Time),
	}
}

func (s *memStore) appendOutboxLocked(event ports.OutboxEvent, inject map[string]string) {
	payloadObj := map[string]any{}
	_ = json.Unmarshal(event.Payload, &payloadObj)
	for k, v := range inject {
		payloadObj[k] = v
	}
	if adjusted, err := json.Marshal(payloadObj); err == nil {
		event.Payload = adjusted
	}
	s.outbox = append(s.outbox, storedOutboxEvent{OutboxEvent: event, PayloadObj: payloadObj})
}

func (s *memStore) eventsOfType(eventType string) []storedOutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storedOutboxEvent
	for _, e := range s.outbox {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type fakeLicenseRepo struct {
	store *memStore
}

func (r *fakeLicenseRepo) CreateWithOutboxTx(_ context.Context, params ports.CreateLicenseTxParams, outboxEvent ports.OutboxEvent) (domain.License, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.licenses {
		if l.Key == params.Key || l.OrderID == params.OrderID {
			return domain.License{}, domain.ErrConflict
		}
	}
	license := domain.License{
		LicenseID:      uuid.New(),
		Key:            params.Key,
		ProductID:      params.ProductID,
		ProductName:    params.ProductName,
		OrderID:        params.OrderID,
		UserID:         params.UserID,
		CustomerEmail:  params.CustomerEmail,
		CustomerName:   params.CustomerName,
		Status:         domain.LicenseStatusActive,
		MaxActivations: params.MaxActivations,
		ExpiresAt:      params.ExpiresAt,
		CreatedAt:      params.IssuedAtUTC,
		UpdatedAt:      params.IssuedAtUTC,
	}
	s.licenses[license.LicenseID] = &license
	s.appendOutboxLocked(outboxEvent, map[string]string{"license_id": license.LicenseID.String()})
	copied := license
	return copied, nil
}

func (r *fakeLicenseRepo) GetByKey(_ context.Context, key string) (domain.License, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.licenses {
		if l.Key == key {
			return *l, nil
		}
	}
	return domain.License{}, domain.ErrNotFound
}

func (r *fakeLicenseRepo) GetByID(_ context.Context, licenseID uuid.UUID) (domain.License, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.licenses[licenseID]; ok {
		return *l, nil
	}
	return domain.License{}, domain.ErrNotFound
}

func (r *fakeLicenseRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (domain.License, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.licenses {
		if l.OrderID == orderID {
			return *l, nil
		}
	}
	return domain.License{}, domain.ErrNotFound
}

func (r *fakeLicenseRepo) KeyExists(_ context.Context, key string) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keyAlwaysTaken {
		return true, nil
	}
	for _, l := range s.licenses {
		if l.Key == key {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeLicenseRepo) ListBySeller(_ context.Context, userID uuid.UUID, limit, offset int) ([]domain.License, int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []domain.License
	for _, l := range s.licenses {
		if l.UserID == userID {
			matched = append(matched, *l)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })
	total := int64(len(matched))
	if offset >= len(matched) {
		return nil, total, nil
	}
	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *fakeLicenseRepo) MarkExpired(_ context.Context, licenseID uuid.UUID, at time.Time) (bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[licenseID]
	if !ok {
		return false, nil
	}
	if l.Status != domain.LicenseStatusActive || l.ExpiresAt == nil || l.ExpiresAt.After(at) {
		return false, nil
	}
	l.Status = domain.LicenseStatusExpired
	l.UpdatedAt = at
	return true, nil
}

func (r *fakeLicenseRepo) TouchVerified(_ context.Context, licenseID uuid.UUID, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.licenses[licenseID]; ok {
		t := at
		l.LastVerifiedAt = &t
	}
	return nil
}

func (r *fakeLicenseRepo) SetStatusTx(_ context.Context, licenseID uuid.UUID, from []domain.LicenseStatus, to domain.LicenseStatus, at time.Time, outboxEvent ports.OutboxEvent) (domain.License, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.licenses[licenseID]
	if !ok {
		return domain.License{}, domain.ErrNotFound
	}
	allowed := false
	for _, st := range from {
		if l.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return domain.License{}, domain.ErrInvalidStateTransition
	}
	l.Status = to
	l.UpdatedAt = at
	s.appendOutboxLocked(outboxEvent, map[string]string{"order_id": l.OrderID.String()})
	return *l, nil
}

type fakeActivationRepo struct {
	store *memStore
}

func (r *fakeActivationRepo) Activate(_ context.Context, params ports.ActivateParams) (domain.Activation, bool, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	license, ok := s.licenses[params.LicenseID]
	if !ok {
		return domain.Activation{}, false, domain.ErrNotFound
	}
	machines := s.activations[params.LicenseID]
	if machines == nil {
		machines = make(map[string]*domain.Activation)
		s.activations[params.LicenseID] = machines
	}

	if existing, ok := machines[params.MachineID]; ok && existing.IsActive {
		existing.LastSeenAt = params.Now
		existing.IPAddress = params.IPAddress
		return *existing, false, nil
	}

	if license.CurrentActivations >= license.MaxActivations {
		return domain.Activation{}, false, domain.ErrMaxActivationsReached
	}
	license.CurrentActivations++
	license.UpdatedAt = params.Now

	if existing, ok := machines[params.MachineID]; ok {
		existing.IsActive = true
		existing.ActivatedAt = params.Now
		existing.LastSeenAt = params.Now
		existing.DeactivatedAt = nil
		existing.MachineName = params.MachineName
		existing.IPAddress = params.IPAddress
		existing.UserAgent = params.UserAgent
		return *existing, true, nil
	}
	activation := &domain.Activation{
		ActivationID: uuid.New(),
		LicenseID:    params.LicenseID,
		MachineID:    params.MachineID,
		MachineName:  params.MachineName,
		IPAddress:    params.IPAddress,
		UserAgent:    params.UserAgent,
		IsActive:     true,
		ActivatedAt:  params.Now,
		LastSeenAt:   params.Now,
	}
	machines[params.MachineID] = activation
	return *activation, true, nil
}

func (r *fakeActivationRepo) Deactivate(_ context.Context, licenseID uuid.UUID, machineID string, at time.Time) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	machines := s.activations[licenseID]
	activation, ok := machines[machineID]
	if !ok || !activation.IsActive {
		return domain.ErrActivationNotFound
	}
	activation.IsActive = false
	t := at
	activation.DeactivatedAt = &t
	if license, ok := s.licenses[licenseID]; ok && license.CurrentActivations > 0 {
		license.CurrentActivations--
		license.UpdatedAt = at
	}
	return nil
}

func (r *fakeActivationRepo) ListByLicense(_ context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Activation
	for _, a := range s.activations[licenseID] {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ActivatedAt.After(out[j].ActivatedAt) })
	return out, nil
}

func (r *fakeActivationRepo) CountActive(_ context.Context, licenseID uuid.UUID) (int, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, a := range s.activations[licenseID] {
		if a.IsActive {
			count++
		}
	}
	return count, nil
}

type fakeOutboxRepo struct {
	store *memStore
}

func (r *fakeOutboxRepo) Enqueue(_ context.Context, event ports.OutboxEvent) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.appendOutboxLocked(event, nil)
	return nil
}

func (r *fakeOutboxRepo) ClaimUnpublished(_ context.Context, _ int, _ string, _ time.Time) ([]ports.OutboxRecord, error) {
	return nil, nil
}

func (r *fakeOutboxRepo) MarkPublished(_ context.Context, _ uuid.UUID, _ string, _ time.Time) error {
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(_ context.Context, _ uuid.UUID, _, _ string, _ time.Time) error {
	return nil
}

func (r *fakeOutboxRepo) MarkDeadLettered(_ context.Context, _ uuid.UUID, _, _ string, _ time.Time) error {
	return nil
}

type fakeDedupRepo struct {
	store *memStore
}

func (r *fakeDedupRepo) IsDuplicate(_ context.Context, eventID string, now time.Time) (bool, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	expiresAt, ok := r.store.dedup[eventID]
	return ok && expiresAt.After(now), nil
}

func (r *fakeDedupRepo) MarkProcessed(_ context.Context, eventID, _ string, expiresAt time.Time) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.dedup[eventID] = expiresAt
	return nil
}

type fakeCatalog struct {
	mu       sync.Mutex
	policies map[string]ports.LicensingPolicy
	fallback ports.LicensingPolicy
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{
		policies: make(map[string]ports.LicensingPolicy),
		fallback: ports.LicensingPolicy{
			ProductType:    "one_time_license",
			ProductName:    "Test Product",
			KeyPrefix:      "TEST",
			MaxActivations: 3,
		},
	}
}

func (c *fakeCatalog) SetPolicy(productID string, policy ports.LicensingPolicy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.policies[productID] = policy
}

func (c *fakeCatalog) GetLicensingPolicy(_ context.Context, productID string) (ports.LicensingPolicy, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if policy, ok := c.policies[productID]; ok {
		return policy, nil
	}
	return c.fallback, nil
}

type fakeRateLimits struct {
	mu     sync.Mutex
	counts map[string]int
}

func newFakeRateLimits() *fakeRateLimits {
	return &fakeRateLimits{counts: make(map[string]int)}
}

func (f *fakeRateLimits) Hit(_ context.Context, key string, _ time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateLimits) Clear(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.counts, key)
	return nil
}

type fixture struct {
	store   *memStore
	catalog *fakeCatalog
	limits  *fakeRateLimits
	service *application.Service
}

func newFixture() *fixture {
	return newFixtureWithConfig(application.Config{
		DefaultMaxActivations: 1,
	})
}

func newFixtureWithConfig(cfg application.Config) *fixture {
	store := newMemStore()
	catalog := newFakeCatalog()
	limits := newFakeRateLimits()
	svc := application.NewService(application.Dependencies{
		Config:      cfg,
		Licenses:    &fakeLicenseRepo{store: store},
		Activations: &fakeActivationRepo{store: store},
		Outbox:      &fakeOutboxRepo{store: store},
		EventDedup:  &fakeDedupRepo{store: store},
		Catalog:     catalog,
		RateLimits:  limits,
	})
	return &fixture{store: store, catalog: catalog, limits: limits, service: svc}
}

func (f *fixture) issue(ctx context.Context, orderID, productID, userID uuid.UUID) (application.IssueLicenseResult, error) {
	return f.service.IssueLicense(ctx, application.IssueLicenseInput{
		OrderID:       orderID.String(),
		ProductID:     productID.String(),
		UserID:        userID.String(),
		CustomerEmail: "buyer@example.com",
		CustomerName:  "Buyer",
	})
}

func (f *fixture) mustIssue(ctx context.Context, t testingT) application.LicenseDetail {
	result, err := f.issue(ctx, uuid.New(), uuid.New(), uuid.New())
	if err != nil {
		t.Fatalf("issue license failed: %v", err)
	}
	if result.License == nil || !result.Created {
		t.Fatalf("expected freshly created license, got %+v", result)
	}
	return *result.License
}

// testingT keeps helpers usable from both tests and benchmarks.
type testingT interface {
	Fatalf(format string, args ...any)
}

func (f *fixture) setLicense(licenseID uuid.UUID, mutate func(*domain.License)) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	if l, ok := f.store.licenses[licenseID]; ok {
		mutate(l)
	}
}
