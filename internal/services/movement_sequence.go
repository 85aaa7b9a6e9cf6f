package services

import (
	"fmt"

	"gate-backend/internal/models"
)

// CheckSequence enforces alternation: with no prior movement only Gate-In is
// allowed, otherwise the opposite of the last movement.
func CheckSequence(vehicleNo string, requested models.MovementType, last *models.MovementRef) error {
	if requested != models.GateIn && requested != models.GateOut {
		return validationErr("movement_type", "movement type must be Gate-In or Gate-Out")
	}
	if requested == NextAllowed(last) {
		return nil
	}
	return &SequenceError{VehicleNo: vehicleNo, Requested: requested, Prior: last}
}

// NextAllowed returns the only movement type a vehicle may perform next.
func NextAllowed(last *models.MovementRef) models.MovementType {
	if last == nil {
		return models.GateIn
	}
	return last.MovementType.Opposite()
}

// CheckVehicleChange guards an edit that moves record to another vehicle.
// The record must be the latest of its current vehicle and newer than the
// target's latest, and its type must be the one the target may do next. Both
// histories then still alternate.
func CheckVehicleChange(record *models.MovementRef, change *VehicleChange) error {
	if change == nil {
		return nil
	}
	if change.LastFrom == nil || change.LastFrom.GateEntryNo != record.GateEntryNo {
		return &SequenceError{
			VehicleNo: change.From,
			Requested: record.MovementType,
			Prior:     change.LastFrom,
			Message: fmt.Sprintf("Entry %s is not the latest movement of vehicle %s. Only the latest entry can be moved to another vehicle.",
				record.GateEntryNo, change.From),
		}
	}
	if last := change.LastTo; last != nil &&
		(last.CreatedAt.After(record.CreatedAt) || (last.CreatedAt.Equal(record.CreatedAt) && last.ID > record.ID)) {
		return &SequenceError{
			VehicleNo: change.To,
			Requested: record.MovementType,
			Prior:     last,
			Message: fmt.Sprintf("Vehicle %s has a later entry %s. Entry %s cannot be moved before it.",
				change.To, last.GateEntryNo, record.GateEntryNo),
		}
	}
	return CheckSequence(change.To, record.MovementType, change.LastTo)
}
