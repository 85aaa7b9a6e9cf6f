package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"gate-backend/internal/models"
	"gate-backend/internal/services"
	"gate-backend/internal/timeutil"
	"gate-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type GateMovementHandler struct {
	Service *services.GateMovementService
}

func NewGateMovementHandler(s *services.GateMovementService) *GateMovementHandler {
	return &GateMovementHandler{Service: s}
}

// movementQueryRequest is the body of the query endpoint. Dates are IST
// calendar days (YYYY-MM-DD) or RFC 3339 timestamps.
type movementQueryRequest struct {
	FromDate      string `json:"from_date"`
	ToDate        string `json:"to_date"`
	VehicleNo     string `json:"vehicle_no"`
	MovementType  string `json:"movement_type"`
	WarehouseCode string `json:"warehouse_code"`
	SiteCode      string `json:"site_code"`
	GateEntryNo   string `json:"gate_entry_no"`
	Limit         int    `json:"limit"`
}

// parseBound reads a date or timestamp. A bare date expands to the start or
// end of that IST day.
func parseBound(field, value string, endOfDay bool) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t, nil
	}
	t, err := timeutil.ParseInIST(timeutil.DateLayout, value)
	if err != nil {
		return nil, &services.ValidationError{Field: field, Message: "date must be YYYY-MM-DD"}
	}
	if endOfDay {
		t = timeutil.EndOfDay(t)
	}
	return &t, nil
}

// Create records a Gate-In or Gate-Out.
func (h *GateMovementHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var req models.CreateMovementRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.Service.CreateMovement(r.Context(), actor, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusCreated, result)
}

// Edit patches every row of a gate entry.
func (h *GateMovementHandler) Edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var patch models.MovementPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	result, err := h.Service.EditMovement(r.Context(), actor, mux.Vars(r)["gate_entry_no"], patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, result)
}

func (h *GateMovementHandler) Query(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var req movementQueryRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	from, err := parseBound("from_date", req.FromDate, false)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	to, err := parseBound("to_date", req.ToDate, true)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	views, err := h.Service.QueryMovements(r.Context(), actor, models.MovementFilter{
		From:          from,
		To:            to,
		VehicleNo:     req.VehicleNo,
		MovementType:  req.MovementType,
		WarehouseCode: req.WarehouseCode,
		SiteCode:      req.SiteCode,
		GateEntryNo:   req.GateEntryNo,
		Limit:         req.Limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, views)
}

func (h *GateMovementHandler) VehicleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.Service.GetVehicleStatus(r.Context(), mux.Vars(r)["vehicle_no"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, status)
}

func (h *GateMovementHandler) VehicleHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	views, err := h.Service.VehicleHistory(r.Context(), actor, mux.Vars(r)["vehicle_no"], queryInt(r, "limit", 0))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, views)
}

func (h *GateMovementHandler) UnassignedDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.UnassignedDocuments(r.Context(), mux.Vars(r)["vehicle_no"], queryInt(r, "hours_back", 0))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	utils.JSON(w, http.StatusOK, docs)
}

func (h *GateMovementHandler) RecentDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.Service.RecentDocuments(r.Context(), mux.Vars(r)["vehicle_no"])
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	utils.JSON(w, http.StatusOK, docs)
}

// AssignDocument links an imported document to a pending manual row.
func (h *GateMovementHandler) AssignDocument(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid movement ID", http.StatusBadRequest)
		return
	}
	var req models.AssignDocumentRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	row, err := h.Service.AssignDocument(r.Context(), actor, id, req.DocumentNo)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, row)
}

func (h *GateMovementHandler) OperationalSummary(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	summary, err := h.Service.OperationalSummary(r.Context(), actor, r.URL.Query().Get("warehouse_code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, summary)
}
