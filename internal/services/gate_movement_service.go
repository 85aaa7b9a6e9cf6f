package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gate-backend/internal/metrics"
	"gate-backend/internal/models"
	"gate-backend/internal/timeutil"
)

const (
	MaxManualDocuments    = 50
	defaultQueryLimit     = 5000
	defaultHistoryLimit   = 200
	summaryPeriodDays     = 7
	recentDocumentsWindow = 48 * time.Hour
)

// MovementNotifier is told about every committed gate entry.
type MovementNotifier interface {
	MovementCreated(result *models.CreateMovementResult)
}

type GateMovementService struct {
	Store               MovementStore
	Warehouses          WarehouseStore
	Numbers             GateNumberGenerator
	Policy              EditPolicy
	Notifier            MovementNotifier
	QueryLimit          int
	UnassignedHoursBack int
	Now                 func() time.Time
}

func NewGateMovementService(store MovementStore, warehouses WarehouseStore, numbers GateNumberGenerator, policy EditPolicy) *GateMovementService {
	return &GateMovementService{
		Store:               store,
		Warehouses:          warehouses,
		Numbers:             numbers,
		Policy:              policy,
		QueryLimit:          defaultQueryLimit,
		UnassignedHoursBack: 8,
		Now:                 timeutil.Now,
	}
}

func (s *GateMovementService) now() time.Time {
	if s.Now == nil {
		return timeutil.Now()
	}
	return s.Now()
}

// isItemError reports whether err concerns one document of a batch rather
// than the batch as a whole.
func isItemError(err error) bool {
	var nf *NotFoundError
	var ve *ValidationError
	return errors.As(err, &nf) || errors.As(err, &ve)
}

// resolveWarehouse loads the actor's warehouse. A missing assignment or an
// unknown code is a ConfigurationError.
func (s *GateMovementService) resolveWarehouse(ctx context.Context, actor models.Actor) (*models.Warehouse, error) {
	code := strings.ToUpper(strings.TrimSpace(actor.WarehouseCode))
	if code == "" {
		return nil, &ConfigurationError{Message: fmt.Sprintf("user %s has no warehouse assigned", actor.Username)}
	}
	wh, err := s.Warehouses.Get(ctx, code)
	if err != nil {
		return nil, &ConfigurationError{Message: "warehouse lookup failed for " + code, Err: err}
	}
	if wh == nil {
		return nil, &ConfigurationError{Message: fmt.Sprintf("warehouse %s is not configured", code)}
	}
	return wh, nil
}

// CreateMovement validates the sequence, issues a gate entry number and
// stores the entry rows in a single transaction holding the vehicle lock.
func (s *GateMovementService) CreateMovement(ctx context.Context, actor models.Actor, req *models.CreateMovementRequest) (*models.CreateMovementResult, error) {
	movementType, ok := models.ParseMovementType(req.MovementType)
	if !ok {
		return nil, validationErr("movement_type", "movement type must be Gate-In or Gate-Out")
	}
	vehicleNo, err := NormalizeVehicleNo(req.VehicleNo)
	if err != nil {
		return nil, err
	}
	if req.NoOfDocuments < 0 || req.NoOfDocuments > MaxManualDocuments {
		return nil, validationErr("no_of_documents", "number of documents must be between 0 and %d", MaxManualDocuments)
	}
	documentNos := dedupeDocumentNos(req.DocumentNos)

	driver, km, loaders, err := normalizeOperational(req.DriverName, req.KMReading, req.LoaderNames)
	if err != nil {
		return nil, err
	}

	wh, err := s.resolveWarehouse(ctx, actor)
	if err != nil {
		return nil, err
	}

	var remarks *string
	if !isBlank(req.Remarks) {
		r := strings.TrimSpace(*req.Remarks)
		remarks = &r
	}

	result := &models.CreateMovementResult{VehicleNo: vehicleNo, MovementType: movementType}

	err = s.Store.WithVehicleLock(ctx, vehicleNo, func(tx MovementTx) error {
		last, err := tx.LastMovement(ctx, vehicleNo)
		if err != nil {
			return err
		}
		if err := CheckSequence(vehicleNo, movementType, last.Ref()); err != nil {
			metrics.SequenceRejections.Inc()
			return err
		}

		gateEntryNo, err := s.Numbers.Next(ctx, tx, wh.WarehouseCode)
		if err != nil {
			return err
		}

		now := s.now()
		base := models.GateMovement{
			GateEntryNo:      gateEntryNo,
			VehicleNo:        vehicleNo,
			MovementType:     movementType,
			WarehouseCode:    wh.WarehouseCode,
			WarehouseName:    wh.WarehouseName,
			SiteCode:         wh.SiteCode,
			Remarks:          remarks,
			SecurityName:     actor.FullName,
			SecurityUsername: actor.Username,
			DriverName:       driver,
			KMReading:        km,
			LoaderNames:      loaders,
			CreatedAt:        now,
		}
		// Operational data captured at the gate counts as its first recording.
		if driver != nil || km != nil || loaders != nil {
			base.LastEditedAt = &now
		}

		result.GateEntryNo = gateEntryNo
		result.CreatedAt = now
		result.Records = nil
		result.Documents = nil

		switch {
		case len(documentNos) > 0:
			return s.insertDocumentRows(ctx, tx, base, documentNos, result)
		case req.NoOfDocuments > 0:
			return s.insertManualRows(ctx, tx, base, req.NoOfDocuments, remarks == nil, result)
		default:
			row := base
			row.DocumentType = models.DocTypeEmptyVehicle
			row.SubDocumentType = models.DocTypeEmptyVehicle
			if err := tx.Insert(ctx, &row); err != nil {
				return err
			}
			result.Records = append(result.Records, &row)
			result.SuccessCount = 1
			return nil
		}
	})
	if err != nil {
		return nil, err
	}

	ist := timeutil.ToIST(result.CreatedAt)
	result.Date = ist.Format(timeutil.DateLayout)
	result.Time = ist.Format(timeutil.TimeLayout)
	result.EditWindowExpires = ist.Add(s.Policy.Window)

	metrics.GateMovementsCreated.WithLabelValues(string(movementType)).Inc()
	log.Printf("[Gate] %s %s for %s by %s (%d rows)", result.GateEntryNo, movementType, vehicleNo, actor.Username, len(result.Records))

	if s.Notifier != nil {
		s.Notifier.MovementCreated(result)
	}
	return result, nil
}

// insertDocumentRows runs each document under its own savepoint. Document
// level failures are reported and skipped; any other error aborts the batch.
func (s *GateMovementService) insertDocumentRows(ctx context.Context, tx MovementTx, base models.GateMovement, documentNos []string, result *models.CreateMovementResult) error {
	var failures []string
	for _, docNo := range documentNos {
		var inserted *models.GateMovement
		err := tx.Savepoint(ctx, func(sp MovementTx) error {
			doc, err := sp.LockDocument(ctx, docNo)
			if err != nil {
				return err
			}
			if doc == nil {
				return &NotFoundError{Resource: "document", Key: docNo}
			}
			if doc.GateEntryNo != nil && *doc.GateEntryNo != "" {
				return validationErr("document_no", "document %s is already assigned to gate entry %s", docNo, *doc.GateEntryNo)
			}

			row := base
			row.DocumentNo = doc.DocumentNo
			row.DocumentType = doc.DocumentType
			row.SubDocumentType = doc.SubDocumentType
			row.DocumentDate = doc.DocumentDate
			if err := sp.Insert(ctx, &row); err != nil {
				return err
			}
			if err := sp.MarkDocumentAssigned(ctx, doc.DocumentNo, base.GateEntryNo); err != nil {
				return err
			}
			inserted = &row
			return nil
		})

		switch {
		case err == nil:
			result.Records = append(result.Records, inserted)
			result.Documents = append(result.Documents, models.DocumentResult{DocumentNo: docNo, Success: true})
			result.SuccessCount++
		case isItemError(err):
			result.Documents = append(result.Documents, models.DocumentResult{DocumentNo: docNo, Error: err.Error()})
			result.FailureCount++
			failures = append(failures, err.Error())
		default:
			return err
		}
	}

	if result.SuccessCount == 0 {
		return validationErr("document_nos", "no document could be processed: %s", strings.Join(failures, "; "))
	}
	return nil
}

func (s *GateMovementService) insertManualRows(ctx context.Context, tx MovementTx, base models.GateMovement, count int, defaultRemarks bool, result *models.CreateMovementResult) error {
	for i := 1; i <= count; i++ {
		row := base
		row.DocumentType = models.DocTypeManualPending
		row.SubDocumentType = "Manual Entry"
		if defaultRemarks {
			r := fmt.Sprintf("Manual %s for %s - Document %d of %d", base.MovementType, base.VehicleNo, i, count)
			row.Remarks = &r
		}
		if err := tx.Insert(ctx, &row); err != nil {
			return err
		}
		result.Records = append(result.Records, &row)
	}
	result.SuccessCount = count
	return nil
}

func dedupeDocumentNos(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, raw := range in {
		docNo := strings.TrimSpace(raw)
		if docNo == "" || seen[docNo] {
			continue
		}
		seen[docNo] = true
		out = append(out, docNo)
	}
	return out
}

// EditMovement applies a partial update to every row of a gate entry.
func (s *GateMovementService) EditMovement(ctx context.Context, actor models.Actor, gateEntryNo string, patch models.MovementPatch) (*models.EditResult, error) {
	gateEntryNo = strings.TrimSpace(gateEntryNo)
	if gateEntryNo == "" {
		return nil, validationErr("gate_entry_no", "gate entry number is required")
	}

	normalized, fields, err := NormalizeMovementPatch(patch)
	if err != nil {
		return nil, err
	}

	now := s.now()
	rows, err := s.Store.EditMovements(ctx, gateEntryNo, func(rows []*models.GateMovement, change *VehicleChange) error {
		if len(rows) == 0 {
			return &NotFoundError{Resource: "gate entry", Key: gateEntryNo}
		}
		first := rows[0]
		if err := s.Policy.Authorize(actor, first.SecurityUsername, gateEntryNo, first.CreatedAt, now); err != nil {
			return err
		}
		return CheckVehicleChange(rows[len(rows)-1].Ref(), change)
	}, normalized, now)
	if err != nil {
		recordEditRejection(err)
		return nil, err
	}

	metrics.RecordEdits.WithLabelValues("gate_movement").Inc()
	log.Printf("[Gate] %s edited by %s: %s", gateEntryNo, actor.Username, strings.Join(fields, ", "))

	editCount := 0
	for _, r := range rows {
		if r.EditCount > editCount {
			editCount = r.EditCount
		}
	}
	return &models.EditResult{
		GateEntryNo:   gateEntryNo,
		RowsUpdated:   len(rows),
		EditCount:     editCount,
		LastEditedAt:  now,
		UpdatedFields: fields,
	}, nil
}

func recordEditRejection(err error) {
	var windowErr *EditWindowExpiredError
	var ownerErr *OwnershipError
	var seqErr *SequenceError
	switch {
	case errors.As(err, &seqErr):
		metrics.SequenceRejections.Inc()
	case errors.As(err, &windowErr):
		metrics.EditRejections.WithLabelValues("window_expired").Inc()
	case errors.As(err, &ownerErr):
		metrics.EditRejections.WithLabelValues("ownership").Inc()
	}
}

// scopeWarehouse pins callers other than IT and system admins to their own
// warehouse.
func scopeWarehouse(actor models.Actor, requested string) string {
	if actor.Roles.Has(models.RoleITAdmin) || actor.Roles.Has(models.RoleAdmin) {
		return strings.ToUpper(strings.TrimSpace(requested))
	}
	return strings.ToUpper(strings.TrimSpace(actor.WarehouseCode))
}

func (s *GateMovementService) clampLimit(limit int) int {
	ceiling := s.QueryLimit
	if ceiling <= 0 {
		ceiling = defaultQueryLimit
	}
	if limit <= 0 || limit > ceiling {
		return ceiling
	}
	return limit
}

// QueryMovements returns matching movements decorated with lifecycle state.
func (s *GateMovementService) QueryMovements(ctx context.Context, actor models.Actor, filter models.MovementFilter) ([]*models.MovementView, error) {
	if filter.MovementType != "" {
		mt, ok := models.ParseMovementType(filter.MovementType)
		if !ok {
			return nil, validationErr("movement_type", "movement type must be Gate-In or Gate-Out")
		}
		filter.MovementType = string(mt)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, validationErr("to", "end of range is before its start")
	}
	filter.VehicleNo = strings.ToUpper(strings.TrimSpace(filter.VehicleNo))
	filter.WarehouseCode = scopeWarehouse(actor, filter.WarehouseCode)
	if !actor.Roles.Has(models.RoleITAdmin) {
		filter.SiteCode = ""
	}
	filter.Limit = s.clampLimit(filter.Limit)

	rows, err := s.Store.FindByFilters(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]*models.MovementView, 0, len(rows))
	for _, m := range rows {
		views = append(views, s.view(actor, m, now))
	}
	return views, nil
}

func (s *GateMovementService) view(actor models.Actor, m *models.GateMovement, now time.Time) *models.MovementView {
	ist := timeutil.ToIST(m.CreatedAt)
	return &models.MovementView{
		GateMovement:             m,
		Date:                     ist.Format(timeutil.DateLayout),
		Time:                     ist.Format(timeutil.TimeLayout),
		CanEdit:                  s.Policy.CanActorEdit(actor, m.SecurityUsername, m.CreatedAt, now),
		TimeRemaining:            FormatRemaining(s.Policy.TimeRemaining(m.CreatedAt, now)),
		IsOperationalComplete:    IsOperationalComplete(m),
		MissingOperationalFields: MissingOperationalFields(m),
	}
}

// GetVehicleStatus reports the last movement and which type may come next.
func (s *GateMovementService) GetVehicleStatus(ctx context.Context, rawVehicleNo string) (*models.VehicleStatus, error) {
	vehicleNo, err := NormalizeVehicleNo(rawVehicleNo)
	if err != nil {
		return nil, err
	}
	last, err := s.Store.LastMovement(ctx, vehicleNo)
	if err != nil {
		return nil, err
	}
	next := NextAllowed(last.Ref())
	return &models.VehicleStatus{
		VehicleNo:    vehicleNo,
		LastMovement: last,
		CanGateIn:    next == models.GateIn,
		CanGateOut:   next == models.GateOut,
		NextAllowed:  next,
	}, nil
}

// VehicleHistory lists a vehicle's movements newest first.
func (s *GateMovementService) VehicleHistory(ctx context.Context, actor models.Actor, rawVehicleNo string, limit int) ([]*models.MovementView, error) {
	vehicleNo, err := NormalizeVehicleNo(rawVehicleNo)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	rows, err := s.Store.History(ctx, vehicleNo, limit)
	if err != nil {
		return nil, err
	}
	now := s.now()
	views := make([]*models.MovementView, 0, len(rows))
	for _, m := range rows {
		views = append(views, s.view(actor, m, now))
	}
	return views, nil
}

// UnassignedDocuments lists imported documents for the vehicle that no gate
// entry has claimed within the last hoursBack hours.
func (s *GateMovementService) UnassignedDocuments(ctx context.Context, rawVehicleNo string, hoursBack int) ([]*models.Document, error) {
	vehicleNo, err := NormalizeVehicleNo(rawVehicleNo)
	if err != nil {
		return nil, err
	}
	if hoursBack <= 0 {
		hoursBack = s.UnassignedHoursBack
	}
	if hoursBack <= 0 || hoursBack > 168 {
		return nil, validationErr("hours_back", "hours_back must be between 1 and 168")
	}

	now := s.now()
	docs, err := s.Store.UnassignedDocuments(ctx, vehicleNo, now.Add(-time.Duration(hoursBack)*time.Hour))
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		ref := d.CreatedAt
		if d.DocumentDate != nil {
			ref = *d.DocumentDate
		}
		d.AgeHours = now.Sub(ref).Hours()
	}
	return docs, nil
}

// RecentDocuments lists every imported document for the vehicle from the
// last 48 hours, assigned or not.
func (s *GateMovementService) RecentDocuments(ctx context.Context, rawVehicleNo string) ([]*models.Document, error) {
	vehicleNo, err := NormalizeVehicleNo(rawVehicleNo)
	if err != nil {
		return nil, err
	}
	now := s.now()
	docs, err := s.Store.RecentDocuments(ctx, vehicleNo, now.Add(-recentDocumentsWindow))
	if err != nil {
		return nil, err
	}
	for _, d := range docs {
		d.AgeHours = now.Sub(d.CreatedAt).Hours()
	}
	return docs, nil
}

// AssignDocument attaches an imported document to a pending manual row. It
// counts as an edit: the window and ownership rules apply and edit_count
// is incremented.
func (s *GateMovementService) AssignDocument(ctx context.Context, actor models.Actor, movementID int, documentNo string) (*models.GateMovement, error) {
	documentNo = strings.TrimSpace(documentNo)
	if documentNo == "" {
		return nil, validationErr("document_no", "document number is required")
	}

	now := s.now()
	row, err := s.Store.AssignDocument(ctx, movementID, documentNo, func(m *models.GateMovement, doc *models.Document) error {
		if m == nil {
			return &NotFoundError{Resource: "manual entry", Key: fmt.Sprint(movementID)}
		}
		if err := s.Policy.Authorize(actor, m.SecurityUsername, m.GateEntryNo, m.CreatedAt, now); err != nil {
			return err
		}
		if doc == nil {
			return &NotFoundError{Resource: "document", Key: documentNo}
		}
		if doc.GateEntryNo != nil && *doc.GateEntryNo != "" {
			return validationErr("document_no", "document %s is already assigned to gate entry %s", documentNo, *doc.GateEntryNo)
		}
		if m.DocumentType != models.DocTypeManualPending {
			return validationErr("id", "this manual entry has already been assigned a document")
		}
		return nil
	}, now)
	if err != nil {
		recordEditRejection(err)
		return nil, err
	}

	metrics.RecordEdits.WithLabelValues("document_assignment").Inc()
	log.Printf("[Gate] Document %s assigned to %s by %s", documentNo, row.GateEntryNo, actor.Username)
	return row, nil
}

// OperationalSummary reports operational data completeness over the last
// week. Non-admin callers see only their warehouse.
func (s *GateMovementService) OperationalSummary(ctx context.Context, actor models.Actor, warehouseCode string) (*models.OperationalSummary, error) {
	from := timeutil.DaysAgo(s.now(), summaryPeriodDays)
	filter := models.MovementFilter{
		From:          &from,
		WarehouseCode: scopeWarehouse(actor, warehouseCode),
		Limit:         s.clampLimit(0),
	}
	rows, err := s.Store.FindByFilters(ctx, filter)
	if err != nil {
		return nil, err
	}

	summary := Summarize(rows)
	summary.WarehouseCode = filter.WarehouseCode
	return summary, nil
}

// Summarize computes completeness counters and recommendations for rows.
func Summarize(rows []*models.GateMovement) *models.OperationalSummary {
	summary := &models.OperationalSummary{
		PeriodDays:      summaryPeriodDays,
		TotalEntries:    len(rows),
		Recommendations: []string{},
	}
	for _, m := range rows {
		missing := MissingOperationalFields(m)
		if len(missing) == 0 {
			summary.CompleteEntries++
		}
		for _, f := range missing {
			switch f {
			case models.OperationalDriverName:
				summary.MissingDriverName++
			case models.OperationalKMReading:
				summary.MissingKMReading++
			case models.OperationalLoaders:
				summary.MissingLoaderNames++
			}
		}
		if m.EditCount > 0 {
			summary.EditedEntries++
		}
		if m.EditCount > 1 {
			summary.MultipleEditedEntries++
		}
	}
	summary.IncompleteEntries = summary.TotalEntries - summary.CompleteEntries
	if summary.TotalEntries == 0 {
		return summary
	}

	total := float64(summary.TotalEntries)
	summary.CompletionPercentage = float64(int(float64(summary.CompleteEntries)/total*10000+0.5)) / 100

	if summary.CompletionPercentage < 50 {
		summary.Recommendations = append(summary.Recommendations, "Consider capturing operational data during initial gate entry")
	}
	if float64(summary.MissingDriverName) > total*0.3 {
		summary.Recommendations = append(summary.Recommendations, "Focus on capturing driver names during vehicle entry")
	}
	if float64(summary.MissingKMReading) > total*0.4 {
		summary.Recommendations = append(summary.Recommendations, "Emphasize KM reading collection for journey tracking")
	}
	if float64(summary.MissingLoaderNames) > total*0.5 {
		summary.Recommendations = append(summary.Recommendations, "Improve loader name documentation for operational efficiency")
	}
	return summary
}
