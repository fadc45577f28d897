package infra

import (
	"context"
	"net/http"

	logger_lib "github.com/s21platform/logger-lib"

	"github.com/s21platform/ticketchat-service/internal/config"
)

// LoggerHTTP makes logger available to handlers through config.KeyLogger.
func LoggerHTTP(next http.Handler, logger logger_lib.LoggerInterface) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithLogger(r.Context(), logger)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func WithLogger(ctx context.Context, logger logger_lib.LoggerInterface) context.Context {
	return context.WithValue(ctx, config.KeyLogger, logger)
}
