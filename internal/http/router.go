package http

import (
	"net/http"

	"gate-backend/internal/handlers"
	"gate-backend/internal/middleware"
	"gate-backend/internal/models"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// gateWriters may record and correct gate entries. Viewers only read.
var gateWriters = []models.Role{
	models.RoleITAdmin,
	models.RoleSecurityAdmin,
	models.RoleAdmin,
	models.RoleSecurityGuard,
	models.RoleSecurity,
}

func NewRouter(
	authHandler *handlers.AuthHandler,
	userHandler *handlers.UserHandler,
	warehouseHandler *handlers.WarehouseHandler,
	gateHandler *handlers.GateMovementHandler,
	rawMaterialHandler *handlers.RawMaterialHandler,
	reportHandler *handlers.ReportHandler,
	liveHandler *handlers.LiveHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.MetricsMiddleware)

	writers := authMiddleware.RequireRole(gateWriters...)

	// Public API routes - Authentication
	r.HandleFunc("/auth/login", authHandler.Login).Methods("POST")

	authAPI := r.PathPrefix("/api/auth").Subrouter()
	authAPI.Use(authMiddleware.Authenticate)
	authAPI.HandleFunc("/me", authHandler.Me).Methods("GET")
	authAPI.HandleFunc("/totp/setup", authHandler.SetupTOTP).Methods("POST")
	authAPI.HandleFunc("/totp/enable", authHandler.EnableTOTP).Methods("POST")

	// Gate movements
	gateAPI := r.PathPrefix("/api/gate").Subrouter()
	gateAPI.Use(authMiddleware.Authenticate)
	gateAPI.Handle("/movements", writers(http.HandlerFunc(gateHandler.Create))).Methods("POST")
	gateAPI.HandleFunc("/movements/query", gateHandler.Query).Methods("POST")
	gateAPI.Handle("/movements/{id:[0-9]+}/assign-document", writers(http.HandlerFunc(gateHandler.AssignDocument))).Methods("POST")
	gateAPI.Handle("/movements/{gate_entry_no}", writers(http.HandlerFunc(gateHandler.Edit))).Methods("PUT")
	gateAPI.HandleFunc("/vehicles/{vehicle_no}/status", gateHandler.VehicleStatus).Methods("GET")
	gateAPI.HandleFunc("/vehicles/{vehicle_no}/history", gateHandler.VehicleHistory).Methods("GET")
	gateAPI.HandleFunc("/vehicles/{vehicle_no}/unassigned-documents", gateHandler.UnassignedDocuments).Methods("GET")
	gateAPI.HandleFunc("/vehicles/{vehicle_no}/documents", gateHandler.RecentDocuments).Methods("GET")
	gateAPI.HandleFunc("/operational-summary", gateHandler.OperationalSummary).Methods("GET")
	gateAPI.HandleFunc("/reports/daily", reportHandler.DailyReport).Methods("GET")
	gateAPI.HandleFunc("/live", liveHandler.Feed).Methods("GET")

	// Raw materials
	rawAPI := r.PathPrefix("/api/raw-materials").Subrouter()
	rawAPI.Use(authMiddleware.Authenticate)
	rawAPI.Handle("", writers(http.HandlerFunc(rawMaterialHandler.Create))).Methods("POST")
	rawAPI.HandleFunc("/query", rawMaterialHandler.Query).Methods("POST")
	rawAPI.HandleFunc("/statistics", rawMaterialHandler.Statistics).Methods("GET")
	rawAPI.Handle("/{id:[0-9]+}", writers(http.HandlerFunc(rawMaterialHandler.Edit))).Methods("PUT")

	// Admin
	adminAPI := r.PathPrefix("/api/admin").Subrouter()
	adminAPI.Use(authMiddleware.RequireAdmin)
	adminAPI.HandleFunc("/users", userHandler.ListUsers).Methods("GET")
	adminAPI.HandleFunc("/users", userHandler.CreateUser).Methods("POST")
	adminAPI.HandleFunc("/users/search", userHandler.SearchUsers).Methods("GET")
	adminAPI.HandleFunc("/users/{id:[0-9]+}", userHandler.GetUser).Methods("GET")
	adminAPI.HandleFunc("/users/{id:[0-9]+}", userHandler.UpdateUser).Methods("PUT")
	adminAPI.HandleFunc("/users/{id:[0-9]+}", userHandler.DeleteUser).Methods("DELETE")
	adminAPI.HandleFunc("/users/{id:[0-9]+}/reset-password", userHandler.ResetPassword).Methods("POST")
	adminAPI.HandleFunc("/dashboard", userHandler.DashboardStats).Methods("GET")
	adminAPI.HandleFunc("/warehouses", warehouseHandler.List).Methods("GET")
	adminAPI.Handle("/warehouses", authMiddleware.RequireRole(models.RoleITAdmin)(http.HandlerFunc(warehouseHandler.Save))).Methods("POST")

	// Health and metrics
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")
	r.Handle("/health/detailed", authMiddleware.RequireAdmin(http.HandlerFunc(healthHandler.DetailedHealth))).Methods("GET")
	r.Handle("/metrics", promhttp.Handler())

	return r
}
