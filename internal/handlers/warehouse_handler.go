package handlers

import (
	"context"
	"net/http"
	"strings"

	"gate-backend/internal/models"
	"gate-backend/internal/services"
	"gate-backend/pkg/utils"
)

// WarehouseAdmin reads and maintains the warehouse master table.
type WarehouseAdmin interface {
	List(ctx context.Context) ([]*models.Warehouse, error)
	Upsert(ctx context.Context, w *models.Warehouse) error
}

type WarehouseHandler struct {
	Store WarehouseAdmin
}

func NewWarehouseHandler(store WarehouseAdmin) *WarehouseHandler {
	return &WarehouseHandler{Store: store}
}

func (h *WarehouseHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if list == nil {
		list = []*models.Warehouse{}
	}
	utils.JSON(w, http.StatusOK, list)
}

type saveWarehouseRequest struct {
	WarehouseCode string `json:"warehouse_code"`
	WarehouseName string `json:"warehouse_name"`
	SiteCode      string `json:"site_code"`
	IsActive      *bool  `json:"is_active"`
}

// Save creates or updates a warehouse. Codes are stored upper case and
// is_active defaults to true.
func (h *WarehouseHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req saveWarehouseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	wh := &models.Warehouse{
		WarehouseCode: strings.ToUpper(strings.TrimSpace(req.WarehouseCode)),
		WarehouseName: strings.TrimSpace(req.WarehouseName),
		SiteCode:      strings.ToUpper(strings.TrimSpace(req.SiteCode)),
		IsActive:      req.IsActive == nil || *req.IsActive,
	}
	if wh.WarehouseCode == "" || wh.WarehouseName == "" {
		writeServiceError(w, r, &services.ValidationError{Field: "warehouse_code", Message: "warehouse code and name are required"})
		return
	}

	if err := h.Store.Upsert(r.Context(), wh); err != nil {
		writeServiceError(w, r, err)
		return
	}
	utils.JSON(w, http.StatusOK, wh)
}
