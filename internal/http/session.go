package http

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Nithesh414/Bloom-Alert/internal/auth"
	"github.com/Nithesh414/Bloom-Alert/internal/models"
	"github.com/Nithesh414/Bloom-Alert/internal/observability"
)

const (
	sessionCookieName = "bloom_session"
	flashCookieName   = "bloom_flash"
)

// Flash categories.
const (
	flashSuccess = "success"
	flashError   = "error"
)

type flash struct {
	Category string `json:"c"`
	Message  string `json:"m"`
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, sess models.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		MaxAge:   int(time.Until(sess.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionToken(r *http.Request) string {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

// readFlashes decodes pending flashes; a tampered or stale cookie reads as empty.
func readFlashes(r *http.Request) []flash {
	c, err := r.Cookie(flashCookieName)
	if err != nil || c.Value == "" {
		return nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return nil
	}
	var out []flash
	if json.Unmarshal(raw, &out) != nil {
		return nil
	}
	return out
}

// addFlash queues a message for the next rendered page, keeping any still unread.
func (h *Handler) addFlash(w http.ResponseWriter, r *http.Request, category, message string) {
	pending := append(readFlashes(r), flash{Category: category, Message: message})
	raw, _ := json.Marshal(pending)
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookieName,
		Value:    base64.RawURLEncoding.EncodeToString(raw),
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlashes returns pending flashes and clears the cookie.
func (h *Handler) popFlashes(w http.ResponseWriter, r *http.Request) []flash {
	pending := readFlashes(r)
	if pending != nil {
		http.SetCookie(w, &http.Cookie{Name: flashCookieName, Value: "", Path: "/", MaxAge: -1})
	}
	return pending
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, to, category, message string) {
	h.addFlash(w, r, category, message)
	http.Redirect(w, r, to, http.StatusFound)
}

// authenticate resolves the session cookie. Lookup failures other than a missing
// session are logged and treated as unauthenticated.
func (h *Handler) authenticate(r *http.Request) (auth.Identity, bool) {
	id, err := h.auth.Authenticate(r.Context(), sessionToken(r))
	if err == nil {
		return id, true
	}
	if !errors.Is(err, auth.ErrNoSession) {
		observability.LoggerFromContext(r.Context()).Error("session lookup failed", zap.Error(err))
	}
	return auth.Identity{}, false
}

// RequirePageLogin redirects anonymous visitors to /auth with a flash message.
func (h *Handler) RequirePageLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.authenticate(r)
		if !ok {
			h.redirectWithFlash(w, r, "/auth", flashError, "Please login to continue.")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// RequireAPILogin answers anonymous API calls with 401 and a JSON error body.
func (h *Handler) RequireAPILogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.authenticate(r)
		if !ok {
			writeError(w, r, http.StatusUnauthorized, CodeUnauthenticated, "Login required", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// identity returns the caller attached by the login middleware.
func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}
