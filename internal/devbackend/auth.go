package devbackend

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"touradmin/internal/session"
)

type AuthHandlers struct {
	Store        *Store
	Secret       string
	SecureCookie bool
	Log          *zap.Logger
	Now          func() time.Time
}

func (h AuthHandlers) Register(w http.ResponseWriter, r *http.Request) {
	var req session.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	if strings.TrimSpace(req.FirstName) == "" || strings.TrimSpace(req.Email) == "" || len(req.Password) < 6 {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "First name, email and a password of at least 6 characters are required")
		return
	}

	u, err := h.Store.CreateUser(session.User{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		ContactNo: req.ContactNo,
		Address:   req.Address,
	}, req.Password)
	if errors.Is(err, ErrConflict) {
		WriteError(w, http.StatusBadRequest, "USER_EXISTS", "User already exists")
		return
	}
	if err != nil {
		h.Log.Error("register failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	h.issue(w, http.StatusCreated, "User registered successfully", u)
}

func (h AuthHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req session.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid json")
		return
	}
	u, err := h.Store.Authenticate(req.Email, req.Password)
	if err != nil {
		// 400 rather than 401: a wrong password is a form error, not a lost session.
		WriteError(w, http.StatusBadRequest, "INVALID_CREDENTIALS", "Invalid email or password")
		return
	}
	h.issue(w, http.StatusOK, "Login successful", u)
}

func (h AuthHandlers) Me(w http.ResponseWriter, r *http.Request) {
	u := UserFromContext(r.Context())
	if u == nil {
		WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Not authorized")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u})
}

func (h AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (h AuthHandlers) issue(w http.ResponseWriter, status int, msg string, u session.User) {
	now := h.Now()
	token, err := IssueToken(u.ID, u.IsAdmin, h.Secret, now)
	if err != nil {
		h.Log.Error("issue token failed", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "INTERNAL", "internal error")
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    token,
		Path:     "/",
		Expires:  now.Add(tokenTTL),
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, status, session.AuthResponse{Message: msg, Token: token, User: u})
}
