package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorFromContext(r.Context()); !ok {
		writeMissingBearerError(r.Context(), w, "issue_license")
		return
	}

	var req application.IssueLicenseInput
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "issue_license", err)
		return
	}

	result, err := h.service.IssueLicense(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "issue_license", err)
		return
	}
	statusCode := http.StatusOK
	if result.Created {
		statusCode = http.StatusCreated
	}
	writeSuccess(w, statusCode, result)
}

func (h *Handler) getLicense(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "get_license")
		return
	}
	licenseID, err := uuid.Parse(chi.URLParam(r, "license_id"))
	if err != nil {
		writeValidationError(r.Context(), w, "get_license", err)
		return
	}

	detail, err := h.service.GetLicense(r.Context(), actor, licenseID)
	if err != nil {
		writeMappedError(r.Context(), w, "get_license", err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}

func (h *Handler) listLicenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, "list_licenses")
		return
	}

	query := application.LicenseListQuery{
		UserID: r.URL.Query().Get("user_id"),
		Page:   parsePageParam(r.URL.Query().Get("page"), 1),
		Limit:  parsePageParam(r.URL.Query().Get("limit"), 20),
	}
	result, err := h.service.ListSellerLicenses(r.Context(), actor, query)
	if err != nil {
		writeMappedError(r.Context(), w, "list_licenses", err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

type statusChangeRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (h *Handler) suspend(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "suspend_license", h.service.SuspendLicense)
}

func (h *Handler) reinstate(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "reinstate_license", h.service.ReinstateLicense)
}

func (h *Handler) revoke(w http.ResponseWriter, r *http.Request) {
	h.changeStatus(w, r, "revoke_license", h.service.RevokeLicense)
}

func (h *Handler) changeStatus(
	w http.ResponseWriter,
	r *http.Request,
	operation string,
	fn func(ctx context.Context, actor application.Actor, licenseID uuid.UUID, reason string) (application.LicenseDetail, error),
) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeMissingBearerError(r.Context(), w, operation)
		return
	}
	licenseID, err := uuid.Parse(chi.URLParam(r, "license_id"))
	if err != nil {
		writeValidationError(r.Context(), w, operation, err)
		return
	}

	req := statusChangeRequest{}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeValidationError(r.Context(), w, operation, err)
			return
		}
	}

	detail, err := fn(r.Context(), actor, licenseID, req.Reason)
	if err != nil {
		writeMappedError(r.Context(), w, operation, err)
		return
	}
	writeSuccess(w, http.StatusOK, detail)
}
