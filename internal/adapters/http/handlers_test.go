package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/adapters/security"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/ports"
)

type stubLicenseRepo struct {
	mu       sync.Mutex
	licenses map[string]*domain.License
}

func (r *stubLicenseRepo) add(l domain.License) {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := l
	r.licenses[l.Key] = &copied
}

func (r *stubLicenseRepo) CreateWithOutboxTx(_ context.Context, params ports.CreateLicenseTxParams, _ ports.OutboxEvent) (domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	license := domain.License{
		LicenseID:      uuid.New(),
		Key:            params.Key,
		ProductID:      params.ProductID,
		ProductName:    params.ProductName,
		OrderID:        params.OrderID,
		UserID:         params.UserID,
		CustomerEmail:  params.CustomerEmail,
		Status:         domain.LicenseStatusActive,
		MaxActivations: params.MaxActivations,
		CreatedAt:      params.IssuedAtUTC,
	}
	r.licenses[license.Key] = &license
	return license, nil
}

func (r *stubLicenseRepo) GetByKey(_ context.Context, key string) (domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.licenses[key]; ok {
		return *l, nil
	}
	return domain.License{}, domain.ErrNotFound
}

func (r *stubLicenseRepo) GetByID(_ context.Context, licenseID uuid.UUID) (domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.licenses {
		if l.LicenseID == licenseID {
			return *l, nil
		}
	}
	return domain.License{}, domain.ErrNotFound
}

func (r *stubLicenseRepo) GetByOrderID(_ context.Context, orderID uuid.UUID) (domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.licenses {
		if l.OrderID == orderID {
			return *l, nil
		}
	}
	return domain.License{}, domain.ErrNotFound
}

func (r *stubLicenseRepo) KeyExists(_ context.Context, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.licenses[key]
	return ok, nil
}

func (r *stubLicenseRepo) ListBySeller(_ context.Context, userID uuid.UUID, _, _ int) ([]domain.License, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.License
	for _, l := range r.licenses {
		if l.UserID == userID {
			out = append(out, *l)
		}
	}
	return out, int64(len(out)), nil
}

func (r *stubLicenseRepo) MarkExpired(_ context.Context, licenseID uuid.UUID, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.licenses {
		if l.LicenseID == licenseID && l.Status == domain.LicenseStatusActive {
			l.Status = domain.LicenseStatusExpired
			l.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (r *stubLicenseRepo) TouchVerified(_ context.Context, _ uuid.UUID, _ time.Time) error {
	return nil
}

func (r *stubLicenseRepo) SetStatusTx(_ context.Context, licenseID uuid.UUID, from []domain.LicenseStatus, to domain.LicenseStatus, at time.Time, _ ports.OutboxEvent) (domain.License, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.licenses {
		if l.LicenseID != licenseID {
			continue
		}
		for _, st := range from {
			if l.Status == st {
				l.Status = to
				l.UpdatedAt = at
				return *l, nil
			}
		}
		return domain.License{}, domain.ErrInvalidStateTransition
	}
	return domain.License{}, domain.ErrNotFound
}

type stubActivationRepo struct {
	mu       sync.Mutex
	licenses *stubLicenseRepo
	active   map[uuid.UUID]map[string]domain.Activation
}

func (r *stubActivationRepo) Activate(_ context.Context, params ports.ActivateParams) (domain.Activation, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	machines := r.active[params.LicenseID]
	if machines == nil {
		machines = make(map[string]domain.Activation)
		r.active[params.LicenseID] = machines
	}
	if existing, ok := machines[params.MachineID]; ok {
		existing.LastSeenAt = params.Now
		machines[params.MachineID] = existing
		return existing, false, nil
	}

	r.licenses.mu.Lock()
	defer r.licenses.mu.Unlock()
	for _, l := range r.licenses.licenses {
		if l.LicenseID != params.LicenseID {
			continue
		}
		if l.CurrentActivations >= l.MaxActivations {
			return domain.Activation{}, false, domain.ErrMaxActivationsReached
		}
		l.CurrentActivations++
		activation := domain.Activation{
			ActivationID: uuid.New(),
			LicenseID:    params.LicenseID,
			MachineID:    params.MachineID,
			IsActive:     true,
			ActivatedAt:  params.Now,
			LastSeenAt:   params.Now,
		}
		machines[params.MachineID] = activation
		return activation, true, nil
	}
	return domain.Activation{}, false, domain.ErrNotFound
}

func (r *stubActivationRepo) Deactivate(_ context.Context, licenseID uuid.UUID, machineID string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	machines := r.active[licenseID]
	if _, ok := machines[machineID]; !ok {
		return domain.ErrActivationNotFound
	}
	delete(machines, machineID)
	r.licenses.mu.Lock()
	defer r.licenses.mu.Unlock()
	for _, l := range r.licenses.licenses {
		if l.LicenseID == licenseID && l.CurrentActivations > 0 {
			l.CurrentActivations--
		}
	}
	return nil
}

func (r *stubActivationRepo) ListByLicense(_ context.Context, licenseID uuid.UUID) ([]domain.Activation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Activation
	for _, a := range r.active[licenseID] {
		out = append(out, a)
	}
	return out, nil
}

func (r *stubActivationRepo) CountActive(_ context.Context, licenseID uuid.UUID) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active[licenseID]), nil
}

type stubCatalog struct{}

func (stubCatalog) GetLicensingPolicy(_ context.Context, _ string) (ports.LicensingPolicy, error) {
	return ports.LicensingPolicy{
		ProductType:    "one_time_license",
		ProductName:    "Handler Test Product",
		KeyPrefix:      "HT",
		MaxActivations: 2,
	}, nil
}

type apiFixture struct {
	licenses *stubLicenseRepo
	signer   *security.JWTSigner
	server   http.Handler
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	signer, err := security.NewEphemeralJWTSigner("test-key")
	if err != nil {
		t.Fatalf("init signer: %v", err)
	}
	licenses := &stubLicenseRepo{licenses: make(map[string]*domain.License)}
	activations := &stubActivationRepo{
		licenses: licenses,
		active:   make(map[uuid.UUID]map[string]domain.Activation),
	}
	svc := application.NewService(application.Dependencies{
		Licenses:    licenses,
		Activations: activations,
		Catalog:     stubCatalog{},
	})
	return &apiFixture{
		licenses: licenses,
		signer:   signer,
		server:   NewRouter(NewHandler(svc, signer)),
	}
}

func (f *apiFixture) token(t *testing.T, userID uuid.UUID, role string) string {
	t.Helper()
	now := time.Now().UTC()
	token, err := f.signer.Sign(ports.AuthClaims{
		UserID:    userID,
		Email:     "seller@example.com",
		Role:      role,
		IssuedAt:  now,
		ExpiresAt: now.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func (f *apiFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedLicense() domain.License {
	license := domain.License{
		LicenseID:      uuid.New(),
		Key:            "HT-ABCD-EFGH-JKMN-PQRS",
		ProductID:      uuid.New(),
		ProductName:    "Handler Test Product",
		OrderID:        uuid.New(),
		UserID:         uuid.New(),
		CustomerEmail:  "buyer@example.com",
		Status:         domain.LicenseStatusActive,
		MaxActivations: 2,
		CreatedAt:      time.Now().UTC(),
	}
	f.licenses.add(license)
	return license
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s returned %d", path, rec.Code)
		}
	}

	rec := f.do(t, http.MethodGet, "/.well-known/jwks.json", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("jwks returned %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if _, ok := body["keys"]; !ok {
		t.Fatalf("jwks body missing keys: %v", body)
	}
}

func TestVerifyEndpoint(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	license := f.seedLicense()

	rec := f.do(t, http.MethodPost, "/licenses/v1/verify", "", map[string]any{"key": license.Key})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["valid"] != true {
		t.Fatalf("expected valid license, got %v", body)
	}

	rec = f.do(t, http.MethodPost, "/licenses/v1/verify", "", map[string]any{"key": "HT-XXXX-XXXX-XXXX-XXXX"})
	if rec.Code != http.StatusOK {
		t.Fatalf("verify unknown returned %d", rec.Code)
	}
	body = decodeEnvelope(t, rec)
	data, _ = body["data"].(map[string]any)
	if data["valid"] != false || data["reason"] != "license_not_found" {
		t.Fatalf("unknown key outcome = %v", body)
	}

	rec = f.do(t, http.MethodPost, "/licenses/v1/verify", "", map[string]any{"key": ""})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty key should be 400, got %d", rec.Code)
	}
}

func TestActivateAndDeactivateEndpoints(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	license := f.seedLicense()

	rec := f.do(t, http.MethodPost, "/licenses/v1/activate", "", map[string]any{
		"key":        license.Key,
		"machine_id": "machine-a",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("activate returned %d: %s", rec.Code, rec.Body.String())
	}

	f.do(t, http.MethodPost, "/licenses/v1/activate", "", map[string]any{"key": license.Key, "machine_id": "machine-b"})
	rec = f.do(t, http.MethodPost, "/licenses/v1/activate", "", map[string]any{"key": license.Key, "machine_id": "machine-c"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("over-ceiling activation should be 409, got %d", rec.Code)
	}
	body := decodeEnvelope(t, rec)
	if body["code"] != "MAX_ACTIVATIONS_REACHED" {
		t.Fatalf("unexpected error code: %v", body)
	}

	rec = f.do(t, http.MethodPost, "/licenses/v1/deactivate", "", map[string]any{"key": license.Key, "machine_id": "machine-a"})
	if rec.Code != http.StatusOK {
		t.Fatalf("deactivate returned %d: %s", rec.Code, rec.Body.String())
	}
	rec = f.do(t, http.MethodPost, "/licenses/v1/deactivate", "", map[string]any{"key": license.Key, "machine_id": "machine-a"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("repeated deactivate should be 404, got %d", rec.Code)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	license := f.seedLicense()

	rec := f.do(t, http.MethodGet, "/licenses/v1/licenses", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token should be 401, got %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/licenses/v1/licenses", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token should be 401, got %d", rec.Code)
	}

	token := f.token(t, license.UserID, "SELLER")
	rec = f.do(t, http.MethodGet, "/licenses/v1/licenses", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated list returned %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAdminTransitionEndpoints(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	license := f.seedLicense()
	adminToken := f.token(t, uuid.New(), "ADMIN")
	sellerToken := f.token(t, license.UserID, "SELLER")

	path := "/licenses/v1/licenses/" + license.LicenseID.String()

	rec := f.do(t, http.MethodPost, path+"/suspend", sellerToken, map[string]any{"reason": "nope"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("seller suspend should be 403, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, path+"/suspend", adminToken, map[string]any{"reason": "chargeback"})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin suspend returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, path+"/revoke", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin revoke returned %d: %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, path+"/reinstate", adminToken, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("reinstating a revoked license should be 409, got %d", rec.Code)
	}
}

func TestIssueEndpoint(t *testing.T) {
	t.Parallel()

	f := newAPIFixture(t)
	token := f.token(t, uuid.New(), "ADMIN")

	rec := f.do(t, http.MethodPost, "/licenses/v1/issue", token, map[string]any{
		"order_id":       uuid.NewString(),
		"product_id":     uuid.NewString(),
		"user_id":        uuid.NewString(),
		"customer_email": "buyer@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("issue returned %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeEnvelope(t, rec)
	data, _ := body["data"].(map[string]any)
	if data["created"] != true {
		t.Fatalf("expected created=true, got %v", body)
	}
}
