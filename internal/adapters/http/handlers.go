package http

import (
	"context"
	"net/http"
	"time"

	"github.com/viralforge/mesh/services/trust-compliance/M91-license-service/internal/application"
)

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ok")
}

func (h *Handler) readyz(w http.ResponseWriter, _ *http.Request) {
	writeMessage(w, http.StatusOK, "ready")
}

func (h *Handler) jwks(w http.ResponseWriter, r *http.Request) {
	keys, err := h.signer.PublicJWKs()
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := bearerTokenFromHeader(r.Header.Get("Authorization"))
		if err != nil {
			writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}

		claims, err := h.signer.ParseAndValidate(raw)
		if err != nil {
			writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		if !claims.ExpiresAt.IsZero() && time.Now().After(claims.ExpiresAt) {
			writeError(r.Context(), w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func actorFromContext(ctx context.Context) (application.Actor, bool) {
	claims, ok := claimsFromContext(ctx)
	if !ok {
		return application.Actor{}, false
	}
	return application.Actor{UserID: claims.UserID, Role: claims.Role}, true
}

// verify reports license validity to client installs. Business outcomes
// (unknown key, suspended, expired) travel in the body with HTTP 200 so
// offline-tolerant clients can distinguish them from transport failures.
func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	var req application.VerifyRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "verify_license", err)
		return
	}
	req.IPAddress = clientIP(r)

	result, err := h.service.VerifyLicense(r.Context(), req)
	if err != nil {
		status, code, msg := mapDomainError(err)
		if status < http.StatusInternalServerError {
			logOperationFailure(r.Context(), "verify_license", status, code, msg, err)
			writeError(r.Context(), w, status, code, msg)
			return
		}
		logOperationFailure(r.Context(), "verify_license", http.StatusOK, "INTERNAL_ERROR", "verification degraded", err)
		writeSuccess(w, http.StatusOK, application.VerifyResponse{
			Valid:  false,
			Reason: application.ReasonInternalError,
		})
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	var req application.ActivateRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "activate_machine", err)
		return
	}
	req.IPAddress = clientIP(r)
	req.UserAgent = r.UserAgent()

	result, err := h.service.ActivateMachine(r.Context(), req)
	if err != nil {
		writeMappedError(r.Context(), w, "activate_machine", err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	var req application.DeactivateRequest
	if err := decodeBody(r, &req); err != nil {
		writeValidationError(r.Context(), w, "deactivate_machine", err)
		return
	}
	req.IPAddress = clientIP(r)

	if err := h.service.DeactivateMachine(r.Context(), req); err != nil {
		writeMappedError(r.Context(), w, "deactivate_machine", err)
		return
	}
	writeMessage(w, http.StatusOK, "machine deactivated")
}
