package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"time"

	"gate-backend/internal/models"
	"gate-backend/internal/timeutil"

	"github.com/jung-kurt/gofpdf/v2"
)

// ReportArchiver stores generated report files.
type ReportArchiver interface {
	Upload(ctx context.Context, key, contentType string, body []byte) error
}

// DailyReportData holds one IST day of gate movements for a warehouse.
type DailyReportData struct {
	Date           time.Time
	WarehouseCode  string
	Movements      []*models.GateMovement
	GateEntries    int
	GateInCount    int
	GateOutCount   int
	UniqueVehicles int
	Incomplete     int
}

// ReportService builds daily gate reports
type ReportService struct {
	Movements MovementStore
	Archive   ReportArchiver
	Limit     int
}

func NewReportService(movements MovementStore, archive ReportArchiver) *ReportService {
	return &ReportService{Movements: movements, Archive: archive, Limit: defaultQueryLimit}
}

// GetDailyReportData loads the movements of date, oldest first. Callers
// without a cross-warehouse role only see their own warehouse.
func (s *ReportService) GetDailyReportData(ctx context.Context, actor models.Actor, date time.Time, warehouseCode string) (*DailyReportData, error) {
	start := timeutil.StartOfDay(date)
	end := timeutil.EndOfDay(date)
	code := scopeWarehouse(actor, warehouseCode)

	rows, err := s.Movements.FindByFilters(ctx, models.MovementFilter{
		From:          &start,
		To:            &end,
		WarehouseCode: code,
		Limit:         s.Limit,
	})
	if err != nil {
		return nil, err
	}

	// Store returns newest first
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	data := &DailyReportData{Date: start, WarehouseCode: code, Movements: rows}
	entries := make(map[string]bool)
	vehicles := make(map[string]bool)
	for _, m := range rows {
		if !entries[m.GateEntryNo] {
			entries[m.GateEntryNo] = true
			if m.MovementType == models.GateIn {
				data.GateInCount++
			} else {
				data.GateOutCount++
			}
		}
		vehicles[m.VehicleNo] = true
		if !IsOperationalComplete(m) {
			data.Incomplete++
		}
	}
	data.GateEntries = len(entries)
	data.UniqueVehicles = len(vehicles)
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (d *DailyReportData) scopeLabel() string {
	if d.WarehouseCode == "" {
		return "All warehouses"
	}
	return d.WarehouseCode
}

// GenerateDailyPDF renders the report as a landscape A4 table.
func (s *ReportService) GenerateDailyPDF(data *DailyReportData) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 18)
	pdf.CellFormat(277, 12, "Gate Movement - Daily Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(277, 8, fmt.Sprintf("%s | %s", data.scopeLabel(), data.Date.Format("02-Jan-2006 (Monday)")), "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(277, 6, fmt.Sprintf("Generated: %s", timeutil.Now().Format("02-Jan-2006 03:04 PM")), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(277, 8, "Summary", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "", 11)
	pdf.CellFormat(69, 8, fmt.Sprintf("Gate Entries: %d", data.GateEntries), "1", 0, "C", false, 0, "")
	pdf.CellFormat(69, 8, fmt.Sprintf("Gate-In: %d / Gate-Out: %d", data.GateInCount, data.GateOutCount), "1", 0, "C", false, 0, "")
	pdf.CellFormat(69, 8, fmt.Sprintf("Vehicles: %d", data.UniqueVehicles), "1", 0, "C", false, 0, "")
	pdf.CellFormat(70, 8, fmt.Sprintf("Incomplete rows: %d", data.Incomplete), "1", 1, "C", false, 0, "")
	pdf.Ln(5)

	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(277, 8, "Movements", "1", 1, "L", true, 0, "")

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(200, 200, 200)
	pdf.CellFormat(10, 7, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(32, 7, "Gate Entry", "1", 0, "C", true, 0, "")
	pdf.CellFormat(18, 7, "Time", "1", 0, "C", true, 0, "")
	pdf.CellFormat(28, 7, "Vehicle", "1", 0, "C", true, 0, "")
	pdf.CellFormat(20, 7, "Type", "1", 0, "C", true, 0, "")
	pdf.CellFormat(35, 7, "Document", "1", 0, "C", true, 0, "")
	pdf.CellFormat(40, 7, "Doc Type", "1", 0, "C", true, 0, "")
	pdf.CellFormat(32, 7, "Driver", "1", 0, "C", true, 0, "")
	pdf.CellFormat(17, 7, "KM", "1", 0, "C", true, 0, "")
	pdf.CellFormat(45, 7, "Security", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for i, m := range data.Movements {
		if i%2 == 0 {
			pdf.SetFillColor(255, 255, 255)
		} else {
			pdf.SetFillColor(245, 245, 245)
		}
		pdf.CellFormat(10, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", true, 0, "")
		pdf.CellFormat(32, 6, m.GateEntryNo, "1", 0, "C", true, 0, "")
		pdf.CellFormat(18, 6, timeutil.ToIST(m.CreatedAt).Format("15:04"), "1", 0, "C", true, 0, "")
		pdf.CellFormat(28, 6, m.VehicleNo, "1", 0, "C", true, 0, "")
		pdf.CellFormat(20, 6, string(m.MovementType), "1", 0, "C", true, 0, "")
		pdf.CellFormat(35, 6, truncate(m.DocumentNo, 20), "1", 0, "L", true, 0, "")
		pdf.CellFormat(40, 6, truncate(m.DocumentType, 24), "1", 0, "L", true, 0, "")
		pdf.CellFormat(32, 6, truncate(deref(m.DriverName), 18), "1", 0, "L", true, 0, "")
		pdf.CellFormat(17, 6, deref(m.KMReading), "1", 0, "C", true, 0, "")
		pdf.CellFormat(45, 6, truncate(m.SecurityName, 26), "1", 1, "L", true, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GenerateDailyCSV renders the report as CSV with a short summary header.
func (s *ReportService) GenerateDailyCSV(data *DailyReportData) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	w.Write([]string{"Daily Gate Report", data.scopeLabel(), data.Date.Format(timeutil.DateLayout)})
	w.Write([]string{""})
	w.Write([]string{"Gate Entries", fmt.Sprintf("%d", data.GateEntries)})
	w.Write([]string{"Gate-In", fmt.Sprintf("%d", data.GateInCount)})
	w.Write([]string{"Gate-Out", fmt.Sprintf("%d", data.GateOutCount)})
	w.Write([]string{"Vehicles", fmt.Sprintf("%d", data.UniqueVehicles)})
	w.Write([]string{""})

	w.Write([]string{"#", "Gate Entry No", "Date", "Time", "Vehicle No", "Type", "Warehouse",
		"Document No", "Document Type", "Driver", "KM Reading", "Loaders", "Remarks", "Security", "Edits"})
	for i, m := range data.Movements {
		ist := timeutil.ToIST(m.CreatedAt)
		w.Write([]string{
			fmt.Sprintf("%d", i+1),
			m.GateEntryNo,
			ist.Format(timeutil.DateLayout),
			ist.Format(timeutil.TimeLayout),
			m.VehicleNo,
			string(m.MovementType),
			m.WarehouseCode,
			m.DocumentNo,
			m.DocumentType,
			deref(m.DriverName),
			deref(m.KMReading),
			deref(m.LoaderNames),
			deref(m.Remarks),
			m.SecurityUsername,
			fmt.Sprintf("%d", m.EditCount),
		})
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

// ArchiveKey is the object key a daily report is stored under.
func ArchiveKey(data *DailyReportData, ext string) string {
	scope := data.WarehouseCode
	if scope == "" {
		scope = "all"
	}
	return fmt.Sprintf("reports/%s/%s.%s", scope, data.Date.Format(timeutil.DateLayout), ext)
}

// ArchiveReport uploads a generated report and returns its key.
func (s *ReportService) ArchiveReport(ctx context.Context, data *DailyReportData, ext, contentType string, body []byte) (string, error) {
	if s.Archive == nil {
		return "", &ConfigurationError{Message: "report archive is not configured"}
	}
	key := ArchiveKey(data, ext)
	if err := s.Archive.Upload(ctx, key, contentType, body); err != nil {
		return "", err
	}
	log.Printf("[Report] Archived %s", key)
	return key, nil
}
