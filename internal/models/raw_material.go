package models

import "time"

// RawMaterialEntry records raw material arriving or leaving through the gate.
type RawMaterialEntry struct {
	ID                    int          `json:"id"`
	GateEntryNo           string       `json:"gate_entry_no"`
	GateType              MovementType `json:"gate_type"`
	VehicleNo             string       `json:"vehicle_no"`
	DocumentNo            string       `json:"document_no"`
	NameOfParty           string       `json:"name_of_party"`
	DescriptionOfMaterial string       `json:"description_of_material"`
	Quantity              string       `json:"quantity"`
	SecurityName          string       `json:"security_name"`
	SecurityUsername      string       `json:"security_username"`
	WarehouseCode         string       `json:"warehouse_code"`
	SiteCode              string       `json:"site_code"`
	CreatedAt             time.Time    `json:"date_time"`
	LastEditedAt          *time.Time   `json:"last_edited_at"`
	EditCount             int          `json:"edit_count"`
}

type CreateRawMaterialRequest struct {
	GateType              string `json:"gate_type"`
	VehicleNo             string `json:"vehicle_no"`
	DocumentNo            string `json:"document_no"`
	NameOfParty           string `json:"name_of_party"`
	DescriptionOfMaterial string `json:"description_of_material"`
	Quantity              string `json:"quantity"`
}

// RawMaterialPatch: nil is not supplied, blank is no change.
type RawMaterialPatch struct {
	VehicleNo             *string `json:"vehicle_no"`
	DocumentNo            *string `json:"document_no"`
	NameOfParty           *string `json:"name_of_party"`
	DescriptionOfMaterial *string `json:"description_of_material"`
	Quantity              *string `json:"quantity"`
}

type RawMaterialFilter struct {
	From          *time.Time `json:"from"`
	To            *time.Time `json:"to"`
	VehicleNo     string     `json:"vehicle_no"`
	GateType      string     `json:"gate_type"`
	WarehouseCode string     `json:"warehouse_code"`
	SiteCode      string     `json:"site_code"`
	Limit         int        `json:"limit"`
}

type RawMaterialView struct {
	*RawMaterialEntry
	Date          string `json:"date"`
	Time          string `json:"time"`
	CanEdit       bool   `json:"can_edit"`
	TimeRemaining string `json:"time_remaining"`
}

type RawMaterialStats struct {
	PeriodDays     int `json:"period_days"`
	TotalEntries   int `json:"total_entries"`
	GateInCount    int `json:"gate_in_count"`
	GateOutCount   int `json:"gate_out_count"`
	UniqueVehicles int `json:"unique_vehicles"`
	EditedEntries  int `json:"edited_entries"`
}

func (e *RawMaterialEntry) Ref() *MovementRef {
	if e == nil {
		return nil
	}
	return &MovementRef{ID: e.ID, GateEntryNo: e.GateEntryNo, MovementType: e.GateType, CreatedAt: e.CreatedAt}
}
