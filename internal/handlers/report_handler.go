package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"gate-backend/internal/services"
	"gate-backend/internal/timeutil"
)

type ReportHandler struct {
	Service *services.ReportService
}

func NewReportHandler(s *services.ReportService) *ReportHandler {
	return &ReportHandler{Service: s}
}

// DailyReport serves a day's movements as PDF (default) or CSV.
// Query: date=YYYY-MM-DD (today), format=pdf|csv, warehouse_code, archive=true.
func (h *ReportHandler) DailyReport(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()

	date := timeutil.Now()
	if v := strings.TrimSpace(q.Get("date")); v != "" {
		parsed, err := timeutil.ParseInIST(timeutil.DateLayout, v)
		if err != nil {
			http.Error(w, "Invalid date format, use YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		date = parsed
	}

	format := strings.ToLower(q.Get("format"))
	if format == "" {
		format = "pdf"
	}
	if format != "pdf" && format != "csv" {
		http.Error(w, "format must be pdf or csv", http.StatusBadRequest)
		return
	}

	data, err := h.Service.GetDailyReportData(r.Context(), actor, date, q.Get("warehouse_code"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	var body []byte
	contentType := "application/pdf"
	if format == "csv" {
		contentType = "text/csv"
		body, err = h.Service.GenerateDailyCSV(data)
	} else {
		body, err = h.Service.GenerateDailyPDF(data)
	}
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if q.Get("archive") == "true" {
		key, err := h.Service.ArchiveReport(r.Context(), data, format, contentType, body)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.Header().Set("X-Archive-Key", key)
	}

	filename := fmt.Sprintf("gate_report_%s.%s", data.Date.Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Write(body)
}
