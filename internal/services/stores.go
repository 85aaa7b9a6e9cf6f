package services

import (
	"context"
	"time"

	"gate-backend/internal/models"
)

// SequenceAllocator performs the atomic per-warehouse increment. found is
// false when the warehouse is not in the master table.
type SequenceAllocator interface {
	IncrementSequence(ctx context.Context, warehouseCode string) (value int64, found bool, err error)
}

// VehicleChange is passed to edit checks when a patch moves a record to
// another vehicle. LastFrom and LastTo are the latest records of each
// vehicle, read while both vehicle locks are held. It is nil otherwise.
type VehicleChange struct {
	From     string
	To       string
	LastFrom *models.MovementRef
	LastTo   *models.MovementRef
}

// MovementTx is a gate movement transaction holding the vehicle lock.
type MovementTx interface {
	SequenceAllocator
	LastMovement(ctx context.Context, vehicleNo string) (*models.GateMovement, error)
	Insert(ctx context.Context, m *models.GateMovement) error
	// LockDocument returns nil when the document does not exist.
	LockDocument(ctx context.Context, documentNo string) (*models.Document, error)
	MarkDocumentAssigned(ctx context.Context, documentNo, gateEntryNo string) error
	// Savepoint runs fn in a nested transaction; an error undoes only fn's writes.
	Savepoint(ctx context.Context, fn func(MovementTx) error) error
}

// MovementStore is the persistence boundary for gate movements.
type MovementStore interface {
	// WithVehicleLock runs fn in one transaction serialized per vehicle.
	// The transaction commits only if fn returns nil.
	WithVehicleLock(ctx context.Context, vehicleNo string, fn func(MovementTx) error) error
	LastMovement(ctx context.Context, vehicleNo string) (*models.GateMovement, error)
	FindByFilters(ctx context.Context, f models.MovementFilter) ([]*models.GateMovement, error)
	History(ctx context.Context, vehicleNo string, limit int) ([]*models.GateMovement, error)
	// EditMovements locks every row of gateEntryNo, calls check, then applies
	// patch with last_edited_at = editedAt and edit_count + 1 in one transaction.
	// A vehicle_no change also takes both vehicle locks before check runs.
	EditMovements(ctx context.Context, gateEntryNo string, check func([]*models.GateMovement, *VehicleChange) error,
		patch models.MovementPatch, editedAt time.Time) ([]*models.GateMovement, error)
	// AssignDocument locks the movement row and the document, calls check and
	// links them. Either argument to check may be nil when not found.
	AssignDocument(ctx context.Context, movementID int, documentNo string,
		check func(*models.GateMovement, *models.Document) error, editedAt time.Time) (*models.GateMovement, error)
	UnassignedDocuments(ctx context.Context, vehicleNo string, since time.Time) ([]*models.Document, error)
	RecentDocuments(ctx context.Context, vehicleNo string, since time.Time) ([]*models.Document, error)
}

// RawMaterialTx is a raw material transaction holding the vehicle lock.
type RawMaterialTx interface {
	SequenceAllocator
	LastEntry(ctx context.Context, vehicleNo string) (*models.RawMaterialEntry, error)
	Insert(ctx context.Context, e *models.RawMaterialEntry) error
}

type RawMaterialStore interface {
	WithVehicleLock(ctx context.Context, vehicleNo string, fn func(RawMaterialTx) error) error
	FindByFilters(ctx context.Context, f models.RawMaterialFilter) ([]*models.RawMaterialEntry, error)
	EditEntry(ctx context.Context, id int, check func(*models.RawMaterialEntry, *VehicleChange) error,
		patch models.RawMaterialPatch, editedAt time.Time) (*models.RawMaterialEntry, error)
	Statistics(ctx context.Context, since time.Time, warehouseCode string) (*models.RawMaterialStats, error)
}

// WarehouseStore resolves warehouse master data.
type WarehouseStore interface {
	Get(ctx context.Context, code string) (*models.Warehouse, error)
	List(ctx context.Context) ([]*models.Warehouse, error)
}
