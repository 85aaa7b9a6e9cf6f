package models

import "time"

// MovementType is the direction of a vehicle passing the gate.
type MovementType string

const (
	GateIn  MovementType = "Gate-In"
	GateOut MovementType = "Gate-Out"
)

// ParseMovementType accepts the canonical names and a few loose spellings.
func ParseMovementType(s string) (MovementType, bool) {
	switch normalizeRoleToken(s) {
	case "gate-in", "gatein", "in":
		return GateIn, true
	case "gate-out", "gateout", "out":
		return GateOut, true
	}
	return "", false
}

// Opposite returns the type that must follow t.
func (t MovementType) Opposite() MovementType {
	if t == GateIn {
		return GateOut
	}
	return GateIn
}

// Document types written by the service for rows without an imported document.
const (
	DocTypeEmptyVehicle   = "EMPTY VEHICLE"
	DocTypeManualPending  = "Manual Entry - Pending Assignment"
	ManualDocumentPrefix  = "MANUAL-"
	OperationalDriverName = "driver_name"
	OperationalKMReading  = "km_reading"
	OperationalLoaders    = "loader_names"
)

// GateMovement is one row of a gate entry. A batch entry shares its
// gate_entry_no and movement type across several document rows.
type GateMovement struct {
	ID               int          `json:"id"`
	GateEntryNo      string       `json:"gate_entry_no"`
	VehicleNo        string       `json:"vehicle_no"`
	MovementType     MovementType `json:"movement_type"`
	WarehouseCode    string       `json:"warehouse_code"`
	WarehouseName    string       `json:"warehouse_name"`
	SiteCode         string       `json:"site_code"`
	DocumentNo       string       `json:"document_no"`
	DocumentType     string       `json:"document_type"`
	SubDocumentType  string       `json:"sub_document_type"`
	DocumentDate     *time.Time   `json:"document_date,omitempty"`
	Remarks          *string      `json:"remarks,omitempty"`
	SecurityName     string       `json:"security_name"`
	SecurityUsername string       `json:"security_username"`
	DriverName       *string      `json:"driver_name"`
	KMReading        *string      `json:"km_reading"`
	LoaderNames      *string      `json:"loader_names"`
	CreatedAt        time.Time    `json:"created_at"`
	LastEditedAt     *time.Time   `json:"last_edited_at"`
	EditCount        int          `json:"edit_count"`
}

// OperationalFields returns the three operational values in display order.
func (m *GateMovement) OperationalFields() []OperationalField {
	return []OperationalField{
		{Name: OperationalDriverName, Value: m.DriverName},
		{Name: OperationalKMReading, Value: m.KMReading},
		{Name: OperationalLoaders, Value: m.LoaderNames},
	}
}

type OperationalField struct {
	Name  string
	Value *string
}

// CreateMovementRequest is the body of a new gate entry. DocumentNos selects
// batch mode; NoOfDocuments > 0 creates pending manual rows; neither creates
// a single empty-vehicle row.
type CreateMovementRequest struct {
	VehicleNo     string   `json:"vehicle_no"`
	MovementType  string   `json:"movement_type"`
	DocumentNos   []string `json:"document_nos"`
	NoOfDocuments int      `json:"no_of_documents"`
	Remarks       *string  `json:"remarks"`
	DriverName    *string  `json:"driver_name"`
	KMReading     *string  `json:"km_reading"`
	LoaderNames   *string  `json:"loader_names"`
}

// MovementPatch holds the editable fields. Nil means not supplied and a blank
// string means no change.
type MovementPatch struct {
	VehicleNo   *string `json:"vehicle_no"`
	Remarks     *string `json:"remarks"`
	DriverName  *string `json:"driver_name"`
	KMReading   *string `json:"km_reading"`
	LoaderNames *string `json:"loader_names"`
}

// DocumentResult reports the outcome for one document of a batch entry.
type DocumentResult struct {
	DocumentNo string `json:"document_no"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// CreateMovementResult is returned by create_movement.
type CreateMovementResult struct {
	GateEntryNo       string           `json:"gate_entry_no"`
	VehicleNo         string           `json:"vehicle_no"`
	MovementType      MovementType     `json:"movement_type"`
	CreatedAt         time.Time        `json:"created_at"`
	Date              string           `json:"date"`
	Time              string           `json:"time"`
	EditWindowExpires time.Time        `json:"edit_window_expires"`
	Records           []*GateMovement  `json:"records"`
	Documents         []DocumentResult `json:"documents,omitempty"`
	SuccessCount      int              `json:"success_count"`
	FailureCount      int              `json:"failure_count"`
}

// EditResult is returned by edit operations.
type EditResult struct {
	GateEntryNo   string    `json:"gate_entry_no"`
	RowsUpdated   int       `json:"rows_updated"`
	EditCount     int       `json:"edit_count"`
	LastEditedAt  time.Time `json:"last_edited_at"`
	UpdatedFields []string  `json:"updated_fields"`
}

// MovementFilter narrows query_movements. Zero values are ignored.
type MovementFilter struct {
	From          *time.Time `json:"from"`
	To            *time.Time `json:"to"`
	VehicleNo     string     `json:"vehicle_no"`
	MovementType  string     `json:"movement_type"`
	WarehouseCode string     `json:"warehouse_code"`
	SiteCode      string     `json:"site_code"`
	GateEntryNo   string     `json:"gate_entry_no"`
	Limit         int        `json:"limit"`
}

// MovementView is a stored movement decorated with its lifecycle state.
type MovementView struct {
	*GateMovement
	Date                     string   `json:"date"`
	Time                     string   `json:"time"`
	CanEdit                  bool     `json:"can_edit"`
	TimeRemaining            string   `json:"time_remaining"`
	IsOperationalComplete    bool     `json:"is_operational_complete"`
	MissingOperationalFields []string `json:"missing_operational_fields"`
}

// VehicleStatus answers get_vehicle_status.
type VehicleStatus struct {
	VehicleNo    string        `json:"vehicle_no"`
	LastMovement *GateMovement `json:"last_movement"`
	CanGateIn    bool          `json:"can_gate_in"`
	CanGateOut   bool          `json:"can_gate_out"`
	NextAllowed  MovementType  `json:"next_allowed"`
}

// OperationalSummary is the completeness report over recent movements.
type OperationalSummary struct {
	PeriodDays            int      `json:"period_days"`
	WarehouseCode         string   `json:"warehouse_code,omitempty"`
	TotalEntries          int      `json:"total_entries"`
	CompleteEntries       int      `json:"complete_entries"`
	IncompleteEntries     int      `json:"incomplete_entries"`
	CompletionPercentage  float64  `json:"completion_percentage"`
	MissingDriverName     int      `json:"missing_driver_name"`
	MissingKMReading      int      `json:"missing_km_reading"`
	MissingLoaderNames    int      `json:"missing_loader_names"`
	EditedEntries         int      `json:"edited_entries"`
	MultipleEditedEntries int      `json:"multiple_edited_entries"`
	Recommendations       []string `json:"recommendations"`
}

// MovementRef identifies the movement a sequence decision was made against.
type MovementRef struct {
	ID           int          `json:"id"`
	GateEntryNo  string       `json:"gate_entry_no"`
	MovementType MovementType `json:"movement_type"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (m *GateMovement) Ref() *MovementRef {
	if m == nil {
		return nil
	}
	return &MovementRef{ID: m.ID, GateEntryNo: m.GateEntryNo, MovementType: m.MovementType, CreatedAt: m.CreatedAt}
}
