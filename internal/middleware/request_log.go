package middleware

import (
	"context"
	"net/http"
	"time"

	"clinic-appointments/internal/platform/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type logStateKey struct{}

// logState lo completan middlewares internos (AuthContext) sobre el request original.
type logState struct {
	userID string
}

func noteUser(ctx context.Context, userID string) {
	if st, ok := ctx.Value(logStateKey{}).(*logState); ok {
		st.userID = userID
	}
}

// RequestLog loguea una línea por request al terminar.
// Va antes de AuthContext: el usuario llega por logState, no por el context.
func RequestLog(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

			st := &logState{}
			r = r.WithContext(context.WithValue(r.Context(), logStateKey{}, st))

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"bytes":       ww.BytesWritten(),
				"duration_ms": time.Since(start).Milliseconds(),
				"remote_addr": r.RemoteAddr,
				"request_id":  chimw.GetReqID(r.Context()),
			}
			if st.userID != "" {
				fields["user_id"] = st.userID
			}

			switch {
			case status >= 500:
				log.Error("http request", fields)
			case status >= 400:
				log.Warn("http request", fields)
			default:
				log.Info("http request", fields)
			}
		})
	}
}
