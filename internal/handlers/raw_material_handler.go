package handlers

import (
	"net/http"
	"strconv"

	"gate-backend/internal/models"
	"gate-backend/internal/services"
	"gate-backend/pkg/utils"

	"github.com/gorilla/mux"
)

type RawMaterialHandler struct {
	Service *services.RawMaterialService
}

func NewRawMaterialHandler(s *services.RawMaterialService) *RawMaterialHandler {
	return &RawMaterialHandler{Service: s}
}

type rawMaterialQueryRequest struct {
	FromDate      string `json:"from_date"`
	ToDate        string `json:"to_date"`
	VehicleNo     string `json:"vehicle_no"`
	GateType      string `json:"gate_type"`
	WarehouseCode string `json:"warehouse_code"`
	SiteCode      string `json:"site_code"`
	Limit         int    `json:"limit"`
}

func (h *RawMaterialHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var req models.CreateRawMaterialRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	entry, err := h.Service.CreateEntry(r.Context(), actor, &req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusCreated, entry)
}

func (h *RawMaterialHandler) Edit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid entry ID", http.StatusBadRequest)
		return
	}
	var patch models.RawMaterialPatch
	if !decodeJSON(w, r, &patch) {
		return
	}

	result, err := h.Service.EditEntry(r.Context(), actor, id, patch)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, result)
}

func (h *RawMaterialHandler) Query(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var req rawMaterialQueryRequest
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

	views, err := h.Service.QueryEntries(r.Context(), actor, models.RawMaterialFilter{
		From:          from,
		To:            to,
		VehicleNo:     req.VehicleNo,
		GateType:      req.GateType,
		WarehouseCode: req.WarehouseCode,
		SiteCode:      req.SiteCode,
		Limit:         req.Limit,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, views)
}

func (h *RawMaterialHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	stats, err := h.Service.Statistics(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, stats)
}
