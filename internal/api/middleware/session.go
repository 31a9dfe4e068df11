package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/example/ec-checkout/internal/domain/cart"
	"github.com/google/uuid"
)

const SessionCookieName = "session_id"

// Session makes sure every visitor carries a session token, issuing a cookie
// on the first request.
func Session(ttl time.Duration, secure bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := ""
			if c, err := r.Cookie(SessionCookieName); err == nil {
				if _, err := uuid.Parse(c.Value); err == nil {
					token = c.Value
				}
			}
			if token == "" {
				token = uuid.New().String()
				http.SetCookie(w, &http.Cookie{
					Name:     SessionCookieName,
					Value:    token,
					Path:     "/",
					MaxAge:   int(ttl.Seconds()),
					HttpOnly: true,
					Secure:   secure,
					SameSite: http.SameSiteLaxMode,
				})
			}

			ctx := context.WithValue(r.Context(), SessionContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func GetSessionToken(ctx context.Context) string {
	token, _ := ctx.Value(SessionContextKey).(string)
	return token
}

// OwnerFromContext combines the identity and session token of a request.
func OwnerFromContext(ctx context.Context) cart.Owner {
	owner := cart.Owner{SessionToken: GetSessionToken(ctx)}
	if claims, ok := GetUserFromContext(ctx); ok {
		owner.ID = claims.UserID
		owner.Email = claims.Email
	}
	return owner
}
