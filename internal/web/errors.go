package web

// errors.go provides unified error response handling for the web layer.
//
// It ensures all errors are:
//   - Logged with full technical details for debugging (server-side)
//   - Returned to clients as user-friendly messages with action suggestions
//   - Formatted as JSON or HTML depending on the request
//
// The error flow:
//  1. Handler encounters an error
//  2. Calls respondError(w, r, err)
//  3. The status code is derived from the error chain
//  4. core.NewUserError pairs the error with its user-friendly message
//  5. Technical error + context is logged with request ID for correlation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/JonMunkholm/groupsub/internal/core"
	"github.com/JonMunkholm/groupsub/internal/entity"
	"github.com/JonMunkholm/groupsub/internal/logging"
	"github.com/JonMunkholm/groupsub/internal/operator"
	"github.com/JonMunkholm/groupsub/internal/web/templates"
)

var (
	errInvalidID    = errors.New("invalid id")
	errInvalidBody  = errors.New("invalid request body")
	errUnknownGroup = errors.New("unknown group")
	errTermNotFound = errors.New("term not found")
	errRateLimited  = errors.New("rate limit exceeded")
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// pgUniqueViolation is the SQLSTATE of a duplicate package ident.
const pgUniqueViolation = "23505"

// statusFor picks the HTTP status for err.
func statusFor(err error) int {
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, operator.ErrPackageNotFound),
		errors.Is(err, operator.ErrSubscriptionNotFound),
		errors.Is(err, errTermNotFound):
		return http.StatusNotFound
	case errors.Is(err, entity.ErrInvalid),
		errors.Is(err, errInvalidID),
		errors.Is(err, errInvalidBody),
		errors.Is(err, errUnknownGroup):
		return http.StatusBadRequest
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		return http.StatusConflict
	case errors.Is(err, errRateLimited):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the technical error server-side and returns the mapped
// user message as JSON or HTML.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	uerr := core.NewUserError(err)

	logger := logging.WithFields(r.Context(),
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"code", uerr.User.Code,
	)
	if status >= http.StatusInternalServerError {
		logger.Error("request error", "error", uerr.Technical)
	} else {
		logger.Warn("request rejected", "error", uerr.Technical)
	}

	if wantsJSON(r) {
		respondErrorJSON(w, uerr.User, status)
		return
	}
	respondErrorHTML(w, r, uerr.User, status)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}

// respondErrorHTML renders the error alert fragment.
func respondErrorHTML(w http.ResponseWriter, r *http.Request, msg core.UserMessage, statusCode int) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(statusCode)
	_ = templates.ErrorAlert(msg).Render(r.Context(), w)
}

// wantsJSON checks if the client prefers JSON response.
func wantsJSON(r *http.Request) bool {
	if strings.Contains(r.Header.Get("Accept"), "application/json") {
		return true
	}
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		return true
	}
	// API routes default to JSON
	return strings.HasPrefix(r.URL.Path, "/api/")
}
