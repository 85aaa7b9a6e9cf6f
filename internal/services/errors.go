package services

import (
	"fmt"
	"time"

	"gate-backend/internal/models"
	"gate-backend/internal/timeutil"
)

// SequenceError rejects a movement that does not alternate with the
// vehicle's previous one.
type SequenceError struct {
	VehicleNo string
	Requested models.MovementType
	Prior     *models.MovementRef
	// Message replaces the default text for vehicle reassignment rejections.
	Message string
}

func (e *SequenceError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Prior == nil {
		return fmt.Sprintf("First entry for vehicle %s must be Gate-In. Cannot do %s without prior Gate-In.",
			e.VehicleNo, e.Requested)
	}
	at := timeutil.FormatIST(e.Prior.CreatedAt, timeutil.DateTimeMinuteLayout)
	return fmt.Sprintf("Vehicle %s already has %s on %s (entry %s). Must do %s first.",
		e.VehicleNo, e.Prior.MovementType, at, e.Prior.GateEntryNo, e.Prior.MovementType.Opposite())
}

// ConfigurationError means the environment cannot serve the request, for
// example a user with no warehouse or a failed sequence backend.
type ConfigurationError struct {
	Message string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// EditWindowExpiredError is returned for edits at or after created_at + window.
type EditWindowExpiredError struct {
	GateEntryNo string
	CreatedAt   time.Time
	Window      time.Duration
}

func (e *EditWindowExpiredError) Error() string {
	return fmt.Sprintf("Edit window expired for %s: entries can only be edited within %d hours of creation",
		e.GateEntryNo, int(e.Window.Hours()))
}

// OwnershipError is returned when a non-admin edits someone else's record.
type OwnershipError struct {
	Username string
	Owner    string
}

func (e *OwnershipError) Error() string {
	return "You can only edit your own entries"
}

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

type NotFoundError struct {
	Resource string
	Key      string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.Key)
}

func validationErr(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
