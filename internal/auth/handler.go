package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"agrosurvey/internal/app/apiresp"
)

type contextKey string

const adminContextKey contextKey = "auth_admin"

const SessionCookieName = "agrosurvey_session"

type Handler struct {
	svc          authService
	secureCookie bool
}

type authService interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) (*LoginResult, error)
	SessionAdmin(ctx context.Context, token string) (*Admin, error)
	Logout(ctx context.Context, token string) error
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type HandlerOption func(*Handler)

// WithSecureCookie marks the session cookie Secure. Enable behind TLS.
func WithSecureCookie(secure bool) HandlerOption {
	return func(h *Handler) { h.secureCookie = secure }
}

func NewHandler(svc authService, opts ...HandlerOption) *Handler {
	h := &Handler{svc: svc}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apiresp.WriteError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.svc.Login(r.Context(), req.Email, req.Password, readIP(r), r.UserAgent())
	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			apiresp.WriteError(w, r, http.StatusTooManyRequests, "too many attempts")
		case errors.Is(err, ErrInvalidCredentials):
			apiresp.WriteError(w, r, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrForbidden):
			apiresp.WriteError(w, r, http.StatusForbidden, "account is not active")
		case errors.Is(err, ErrAuthDisabled):
			apiresp.WriteError(w, r, http.StatusServiceUnavailable, "admin login is not available")
		default:
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
		}
		return
	}

	h.setSessionCookie(w, res.Token, res.ExpiresAt)
	apiresp.WriteOK(w, r, http.StatusOK, res.Admin)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	_ = h.svc.Logout(r.Context(), readSessionToken(r))

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	apiresp.WriteOK(w, r, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	admin, ok := CurrentAdmin(r.Context())
	if !ok {
		apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
		return
	}
	apiresp.WriteOK(w, r, http.StatusOK, admin)
}

func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		admin, err := h.svc.SessionAdmin(r.Context(), readSessionToken(r))
		if err != nil {
			if errors.Is(err, ErrUnauthorized) {
				apiresp.WriteError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}
			if errors.Is(err, ErrAuthDisabled) {
				apiresp.WriteError(w, r, http.StatusServiceUnavailable, "admin login is not available")
				return
			}
			apiresp.WriteError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithAdmin(r.Context(), admin)))
	})
}

func CurrentAdmin(ctx context.Context) (*Admin, bool) {
	a, ok := ctx.Value(adminContextKey).(*Admin)
	return a, ok && a != nil
}

// ContextWithAdmin injects an authenticated admin into context.
// Useful for tests and internal handlers.
func ContextWithAdmin(ctx context.Context, admin *Admin) context.Context {
	return context.WithValue(ctx, adminContextKey, admin)
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func readSessionToken(r *http.Request) string {
	c, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func readIP(r *http.Request) string {
	xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}
	return strings.TrimSpace(r.RemoteAddr)
}
