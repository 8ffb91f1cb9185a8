package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/contracts"
	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/domain"
)

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, contracts.SuccessResponse{Status: "success", Data: data})
}

func writeMessage(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, contracts.SuccessResponse{Status: "success", Message: message})
}

func writeError(ctx context.Context, w http.ResponseWriter, statusCode int, code, message string) {
	writeJSON(w, statusCode, contracts.ErrorResponse{
		Status:    "error",
		Code:      code,
		Message:   message,
		RequestID: requestIDFromContext(ctx),
	})
}

func writeMappedError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	status, code, msg := mapDomainError(err)
	logOperationFailure(ctx, operation, status, code, msg, err)
	writeError(ctx, w, status, code, msg)
}

func writeValidationError(ctx context.Context, w http.ResponseWriter, operation string, err error) {
	logOperationFailure(ctx, operation, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), err)
	writeError(ctx, w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
}

func writeMissingBearerError(ctx context.Context, w http.ResponseWriter, operation string) {
	logOperationFailure(ctx, operation, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token", nil)
	writeError(ctx, w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
}

func mapDomainError(err error) (int, string, string) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized, "UNAUTHORIZED", "invalid or missing credentials"
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden, "FORBIDDEN", "caller may not perform this operation"
	case errors.Is(err, domain.ErrRateLimited):
		return http.StatusTooManyRequests, "RATE_LIMITED", "too many requests"
	case errors.Is(err, domain.ErrLicenseNotFound):
		return http.StatusNotFound, "LICENSE_NOT_FOUND", "license not found"
	case errors.Is(err, domain.ErrActivationNotFound):
		return http.StatusNotFound, "ACTIVATION_NOT_FOUND", "no active activation for this machine"
	case errors.Is(err, domain.ErrMaxActivationsReached):
		return http.StatusConflict, "MAX_ACTIVATIONS_REACHED", "activation limit reached"
	case errors.Is(err, domain.ErrLicenseRevoked):
		return http.StatusForbidden, "LICENSE_REVOKED", "license revoked"
	case errors.Is(err, domain.ErrLicenseSuspended):
		return http.StatusForbidden, "LICENSE_SUSPENDED", "license suspended"
	case errors.Is(err, domain.ErrLicenseExpired):
		return http.StatusForbidden, "LICENSE_EXPIRED", "license expired"
	case errors.Is(err, domain.ErrInvalidStateTransition):
		return http.StatusConflict, "INVALID_STATE_TRANSITION", "license status does not permit this transition"
	case errors.Is(err, domain.ErrKeyspaceExhausted):
		return http.StatusInternalServerError, "KEY_GENERATION_FAILED", "could not generate a unique license key"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT", err.Error()
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "resource not found"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
	}
}
