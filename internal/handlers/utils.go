package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/jason-s-yu/sudokuduel/internal/apperr"
	"github.com/jason-s-yu/sudokuduel/internal/auth"
	"github.com/jason-s-yu/sudokuduel/internal/models"
	"github.com/sirupsen/logrus"
)

const authCookie = "auth_token"

// extractCookieToken extracts a named cookie value from "Cookie" header, or returns empty if not found.
func extractCookieToken(cookieHeader, cookieName string) string {
	parts := strings.Split(cookieHeader, cookieName+"=")
	if len(parts) < 2 {
		return ""
	}
	token := parts[1]
	if idx := strings.Index(token, ";"); idx != -1 {
		token = token[:idx]
	}
	return token
}

// requestToken takes the token from a Bearer header, falling back to the
// auth_token cookie.
func requestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return extractCookieToken(r.Header.Get("Cookie"), authCookie)
}

func authenticate(iss *auth.Issuer, r *http.Request) (models.Identity, error) {
	tok := requestToken(r)
	if tok == "" {
		return models.Identity{}, auth.ErrInvalidToken
	}
	return iss.AuthenticateJWT(tok)
}

func setAuthCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     authCookie,
		Value:    token,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decodeJSON accepts an empty body as the zero value.
func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

type errorBody struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// statusFor maps an error kind onto an HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindStateConflict, apperr.KindConcurrency:
		return http.StatusConflict
	case apperr.KindCollaborator:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, logger *logrus.Logger, err error) {
	status := statusFor(err)
	code := apperr.CodeOf(err)
	if code == "" {
		code = "internal"
	}
	if status >= 500 && logger != nil {
		logger.WithError(err).Error("request failed")
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: code, Message: msg, Retryable: apperr.Retryable(err)})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeJSON(w, http.StatusUnauthorized, errorBody{Error: "unauthorized", Message: "missing or invalid auth token"})
}
