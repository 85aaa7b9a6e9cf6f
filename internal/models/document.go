package models

import "time"

// Document is a shipping document imported from the ERP feed.
type Document struct {
	ID              int        `json:"id"`
	DocumentNo      string     `json:"document_no"`
	DocumentType    string     `json:"document_type"`
	SubDocumentType string     `json:"sub_document_type"`
	DocumentDate    *time.Time `json:"document_date,omitempty"`
	VehicleNo       string     `json:"vehicle_no"`
	WarehouseCode   string     `json:"warehouse_code"`
	CustomerName    string     `json:"customer_name"`
	TotalQuantity   float64    `json:"total_quantity"`
	GateEntryNo     *string    `json:"gate_entry_no,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`

	AgeHours float64 `json:"age_hours,omitempty"`
}

type AssignDocumentRequest struct {
	DocumentNo string `json:"document_no"`
}
