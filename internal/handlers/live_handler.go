package handlers

import (
	"net/http"
	"strings"

	"gate-backend/internal/live"
	"gate-backend/internal/models"
)

type LiveHandler struct {
	Hub *live.Hub
}

func NewLiveHandler(hub *live.Hub) *LiveHandler {
	return &LiveHandler{Hub: hub}
}

// Feed streams new gate entries over a websocket. IT and system admins may
// watch any warehouse; everyone else is held to their own.
func (h *LiveHandler) Feed(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	warehouse := actor.WarehouseCode
	if actor.Roles.HasAny(models.RoleITAdmin, models.RoleAdmin) {
		warehouse = r.URL.Query().Get("warehouse_code")
	}
	h.Hub.Serve(w, r, strings.ToUpper(strings.TrimSpace(warehouse)))
}
