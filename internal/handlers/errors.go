package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"

	"gate-backend/internal/middleware"
	"gate-backend/internal/models"
	"gate-backend/internal/services"
	"gate-backend/pkg/utils"
)

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// statusFor maps a service error to its HTTP status.
func statusFor(err error) int {
	var (
		seqErr    *services.SequenceError
		valErr    *services.ValidationError
		ownErr    *services.OwnershipError
		windowErr *services.EditWindowExpiredError
		permErr   *services.PermissionError
		nfErr     *services.NotFoundError
		cfgErr    *services.ConfigurationError
		authErr   *services.AuthError
	)
	switch {
	case errors.As(err, &seqErr), errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.As(err, &ownErr), errors.As(err, &windowErr), errors.As(err, &permErr):
		return http.StatusForbidden
	case errors.As(err, &nfErr):
		return http.StatusNotFound
	case errors.Is(err, services.ErrTooManyAttempts):
		return http.StatusTooManyRequests
	case errors.Is(err, services.ErrAccountSuspended):
		return http.StatusForbidden
	case errors.As(err, &authErr):
		return http.StatusUnauthorized
	case errors.As(err, &cfgErr):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError sends err as JSON. Unexpected errors are logged and
// reported without their details.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := errorBody{Error: err.Error()}

	var valErr *services.ValidationError
	if errors.As(err, &valErr) {
		body.Field = valErr.Field
	}

	var cfgErr *services.ConfigurationError
	if status == http.StatusInternalServerError {
		log.Printf("[API] %s %s failed (id=%s): %v", r.Method, r.URL.Path, middleware.GetRequestID(r.Context()), err)
		if !errors.As(err, &cfgErr) {
			body.Error = "Internal server error"
		}
	}
	utils.JSON(w, status, body)
}

// actorOrAbort returns the authenticated caller or writes 401.
func actorOrAbort(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	actor, ok := middleware.GetActorFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return actor, ok
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func queryInt(r *http.Request, name string, fallback int) int {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// getIPAddress extracts the real IP address from the request
func getIPAddress(r *http.Request) string {
	// Check X-Forwarded-For header first (for proxies/load balancers)
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		// X-Forwarded-For can contain multiple IPs, take the first one
		ips := strings.Split(forwarded, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	// Check X-Real-IP header
	realIP := r.Header.Get("X-Real-IP")
	if realIP != "" {
		return realIP
	}

	// Fall back to RemoteAddr
	return r.RemoteAddr
}
