package devbackend

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"touradmin/internal/session"
)

const sessionCookie = "token"

type ctxKey string

const ctxKeyUser ctxKey = "user"

func WithUser(ctx context.Context, u *session.User) context.Context {
	return context.WithValue(ctx, ctxKeyUser, u)
}

func UserFromContext(ctx context.Context) *session.User {
	v := ctx.Value(ctxKeyUser)
	if v == nil {
		return nil
	}
	u, _ := v.(*session.User)
	return u
}

// SessionAuth accepts the session token either as "Authorization: Bearer" or
// as the HttpOnly cookie set at login, so both client credential variants work.
func SessionAuth(secret string, users *Store, now func() time.Time) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			authz := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				token = strings.TrimSpace(authz[7:])
			} else if c, err := r.Cookie(sessionCookie); err == nil {
				token = c.Value
			}
			if token == "" {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized, no token")
				return
			}

			claims, err := VerifyToken(token, secret, now())
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized, token failed")
				return
			}
			u, err := users.User(claims.Subject)
			if err != nil {
				WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized, user not found")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), &u)))
		})
	}
}

func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u := UserFromContext(r.Context())
		if u == nil || !u.IsAdmin {
			WriteError(w, http.StatusForbidden, "FORBIDDEN", "Not authorized as an admin")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequestLogger logs one line per request with zap.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
