package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/exposed-backend/internal/apperr"
	"github.com/DoyleJ11/exposed-backend/internal/auth"
)

func requestLogger(log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				log.Info("request",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("remote", r.RemoteAddr),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}

// requireModerator rejects requests without a valid moderator cookie and
// stores the session id in the request context otherwise.
func requireModerator(sessions SessionAuth, log *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sid := sessions.SessionID(r)
			if sid == "" {
				writeError(w, r, log, apperr.New(apperr.KindAuthorization, "moderator login required"))
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSessionID(r.Context(), sid)))
		})
	}
}
