package handler

import (
	"context"
	"net/http"

	"phone-auth-service/internal/apperr"
)

type contextKey string

const userIDKey contextKey = "userID"

// UserIDFromContext returns the authenticated user id injected by the
// Authenticate middleware.
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDKey).(string)
	return userID, ok && userID != ""
}

// Authenticate guards a route with the session pair from the cookies. A
// valid access token passes straight through; an expired one is refreshed by
// rotating the refresh token, with the replacement pair written back as
// cookies before the wrapped handler runs.
func (h *AuthHandler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accessToken := cookieValue(r, "accessToken")
		refreshToken := cookieValue(r, "refreshToken")
		if accessToken == "" && refreshToken == "" {
			h.respondError(w, apperr.Unauthenticated("You are not an authenticated user"))
			return
		}

		result, err := h.sessions.Authenticate(r.Context(), accessToken, refreshToken)
		if err != nil {
			h.clearSessionCookies(w)
			h.respondError(w, err)
			return
		}
		if result.Session != nil {
			h.setSessionCookies(w, result.Session)
		}

		ctx := context.WithValue(r.Context(), userIDKey, result.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func cookieValue(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return cookie.Value
}
