package http

import (
	"context"
	"log/slog"
	"net/http"
)

const serviceName = "M91-License-Service"

func httpLogger() *slog.Logger {
	return slog.Default().With(
		"service", serviceName,
		"module", "http",
		"layer", "adapter",
	)
}

// logOperationFailure records a failed license API call; 5xx outcomes log
// at error level, everything the client can correct logs at warn.
func logOperationFailure(ctx context.Context, operation string, statusCode int, code, message string, err error) {
	attrs := []any{
		"operation", operation,
		"outcome", "failure",
		"status_code", statusCode,
		"error_code", code,
		"message", message,
		"request_id", requestIDFromContext(ctx),
	}
	if err != nil {
		attrs = append(attrs, "error", err.Error())
	}
	if statusCode >= http.StatusInternalServerError {
		httpLogger().ErrorContext(ctx, "license api request failed", attrs...)
		return
	}
	httpLogger().WarnContext(ctx, "license api request failed", attrs...)
}
