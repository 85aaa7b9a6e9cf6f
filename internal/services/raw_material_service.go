package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"gate-backend/internal/metrics"
	"gate-backend/internal/models"
	"gate-backend/internal/timeutil"
)

const rawMaterialStatsDays = 30

type RawMaterialService struct {
	Store      RawMaterialStore
	Warehouses WarehouseStore
	Numbers    GateNumberGenerator
	Policy     EditPolicy
	QueryLimit int
	Now        func() time.Time
}

func NewRawMaterialService(store RawMaterialStore, warehouses WarehouseStore, numbers GateNumberGenerator, policy EditPolicy) *RawMaterialService {
	return &RawMaterialService{
		Store:      store,
		Warehouses: warehouses,
		Numbers:    numbers,
		Policy:     policy,
		QueryLimit: defaultQueryLimit,
		Now:        timeutil.Now,
	}
}

func (s *RawMaterialService) now() time.Time {
	if s.Now == nil {
		return timeutil.Now()
	}
	return s.Now()
}

// CreateEntry stores a raw material receipt. Gate type alternation is checked
// against the vehicle's raw material history under the vehicle lock.
func (s *RawMaterialService) CreateEntry(ctx context.Context, actor models.Actor, req *models.CreateRawMaterialRequest) (*models.RawMaterialEntry, error) {
	gateType, ok := models.ParseMovementType(req.GateType)
	if !ok {
		return nil, validationErr("gate_type", "gate type must be Gate-In or Gate-Out")
	}
	vehicleNo, err := NormalizeVehicleNo(req.VehicleNo)
	if err != nil {
		return nil, err
	}
	party := strings.TrimSpace(req.NameOfParty)
	if party == "" {
		return nil, validationErr("name_of_party", "name of party is required")
	}
	material := strings.TrimSpace(req.DescriptionOfMaterial)
	if material == "" {
		return nil, validationErr("description_of_material", "description of material is required")
	}
	quantity := strings.TrimSpace(req.Quantity)
	if quantity == "" {
		return nil, validationErr("quantity", "quantity is required")
	}

	code := strings.ToUpper(strings.TrimSpace(actor.WarehouseCode))
	if code == "" {
		return nil, &ConfigurationError{Message: fmt.Sprintf("user %s has no warehouse assigned", actor.Username)}
	}
	siteCode := actor.SiteCode
	if s.Warehouses != nil {
		wh, err := s.Warehouses.Get(ctx, code)
		if err != nil {
			return nil, &ConfigurationError{Message: "warehouse lookup failed for " + code, Err: err}
		}
		if wh == nil {
			return nil, &ConfigurationError{Message: fmt.Sprintf("warehouse %s is not configured", code)}
		}
		siteCode = wh.SiteCode
	}

	entry := &models.RawMaterialEntry{
		GateType:              gateType,
		VehicleNo:             vehicleNo,
		DocumentNo:            strings.TrimSpace(req.DocumentNo),
		NameOfParty:           party,
		DescriptionOfMaterial: material,
		Quantity:              quantity,
		SecurityName:          actor.FullName,
		SecurityUsername:      actor.Username,
		WarehouseCode:         code,
		SiteCode:              siteCode,
	}

	err = s.Store.WithVehicleLock(ctx, vehicleNo, func(tx RawMaterialTx) error {
		last, err := tx.LastEntry(ctx, vehicleNo)
		if err != nil {
			return err
		}
		if err := CheckSequence(vehicleNo, gateType, last.Ref()); err != nil {
			metrics.SequenceRejections.Inc()
			return err
		}
		entry.GateEntryNo, err = s.Numbers.Next(ctx, tx, code)
		if err != nil {
			return err
		}
		entry.CreatedAt = s.now()
		return tx.Insert(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[RawMaterial] %s %s for %s by %s", entry.GateEntryNo, gateType, vehicleNo, actor.Username)
	return entry, nil
}

// EditEntry applies a partial update. Only the creator or an admin may edit,
// and only inside the edit window.
func (s *RawMaterialService) EditEntry(ctx context.Context, actor models.Actor, id int, patch models.RawMaterialPatch) (*models.EditResult, error) {
	normalized, fields, err := NormalizeRawMaterialPatch(patch)
	if err != nil {
		return nil, err
	}

	now := s.now()
	entry, err := s.Store.EditEntry(ctx, id, func(e *models.RawMaterialEntry, change *VehicleChange) error {
		if e == nil {
			return &NotFoundError{Resource: "raw materials entry", Key: fmt.Sprint(id)}
		}
		if err := s.Policy.Authorize(actor, e.SecurityUsername, e.GateEntryNo, e.CreatedAt, now); err != nil {
			return err
		}
		return CheckVehicleChange(e.Ref(), change)
	}, normalized, now)
	if err != nil {
		recordEditRejection(err)
		return nil, err
	}

	metrics.RecordEdits.WithLabelValues("raw_material").Inc()
	log.Printf("[RawMaterial] Entry %d edited by %s: %s", id, actor.Username, strings.Join(fields, ", "))

	return &models.EditResult{
		GateEntryNo:   entry.GateEntryNo,
		RowsUpdated:   1,
		EditCount:     entry.EditCount,
		LastEditedAt:  now,
		UpdatedFields: fields,
	}, nil
}

// QueryEntries filters raw material entries. Security admins and guards see
// their own warehouse; IT admins may filter by site and warehouse.
func (s *RawMaterialService) QueryEntries(ctx context.Context, actor models.Actor, filter models.RawMaterialFilter) ([]*models.RawMaterialView, error) {
	if filter.GateType != "" {
		gt, ok := models.ParseMovementType(filter.GateType)
		if !ok {
			return nil, validationErr("gate_type", "gate type must be Gate-In or Gate-Out")
		}
		filter.GateType = string(gt)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, validationErr("to", "end of range is before its start")
	}
	filter.VehicleNo = strings.ToUpper(strings.TrimSpace(filter.VehicleNo))
	filter.WarehouseCode = scopeWarehouse(actor, filter.WarehouseCode)
	if !actor.Roles.Has(models.RoleITAdmin) {
		filter.SiteCode = ""
	}

	ceiling := s.QueryLimit
	if ceiling <= 0 {
		ceiling = defaultQueryLimit
	}
	if filter.Limit <= 0 || filter.Limit > ceiling {
		filter.Limit = ceiling
	}

	rows, err := s.Store.FindByFilters(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]*models.RawMaterialView, 0, len(rows))
	for _, e := range rows {
		ist := timeutil.ToIST(e.CreatedAt)
		views = append(views, &models.RawMaterialView{
			RawMaterialEntry: e,
			Date:             ist.Format(timeutil.DateLayout),
			Time:             ist.Format(timeutil.TimeLayout),
			CanEdit:          s.Policy.CanActorEdit(actor, e.SecurityUsername, e.CreatedAt, now),
			TimeRemaining:    FormatRemaining(s.Policy.TimeRemaining(e.CreatedAt, now)),
		})
	}
	return views, nil
}

// Statistics summarizes the last 30 days for the caller's scope.
func (s *RawMaterialService) Statistics(ctx context.Context, actor models.Actor) (*models.RawMaterialStats, error) {
	since := timeutil.DaysAgo(s.now(), rawMaterialStatsDays)
	stats, err := s.Store.Statistics(ctx, since, scopeWarehouse(actor, ""))
	if err != nil {
		return nil, err
	}
	stats.PeriodDays = rawMaterialStatsDays
	return stats, nil
}
