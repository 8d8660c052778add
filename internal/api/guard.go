package api

import (
	"errors"
	"net/http"

	"github.com/xtrntr/papertrade/internal/auth"
)

const sessionCookie = "session"

// Identity is the authenticated user a protected handler acts for.
type Identity struct {
	UserID int
}

// UserHandlerFunc is a handler that can only be reached with a resolved identity.
type UserHandlerFunc func(w http.ResponseWriter, r *http.Request, user Identity)

// RequireUser resolves the session cookie and calls next with the user it
// belongs to. Requests without a valid session are redirected to /login.
func (h *Handler) RequireUser(next UserHandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(sessionCookie)
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}

		userID, err := h.Auth.Resolve(r.Context(), cookie.Value)
		if errors.Is(err, auth.ErrInvalidSession) {
			clearSessionCookie(w, r)
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		if err != nil {
			serverError(w, r, false, err)
			return
		}

		next(w, r, Identity{UserID: userID})
	}
}

func setSessionCookie(w http.ResponseWriter, r *http.Request, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}
