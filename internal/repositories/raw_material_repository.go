package repositories

import (
	"context"
	"fmt"
	"time"

	"gate-backend/internal/models"
	"gate-backend/internal/services"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const rawMaterialColumns = `
	id, gate_entry_no, gate_type, vehicle_no, document_no, name_of_party,
	description_of_material, quantity, security_name, security_username,
	warehouse_code, site_code, created_at, last_edited_at, edit_count
`

type RawMaterialRepository struct {
	DB *pgxpool.Pool
}

func NewRawMaterialRepository(db *pgxpool.Pool) *RawMaterialRepository {
	return &RawMaterialRepository{DB: db}
}

func scanRawMaterial(row pgx.Row) (*models.RawMaterialEntry, error) {
	var e models.RawMaterialEntry
	var gateType string
	err := row.Scan(&e.ID, &e.GateEntryNo, &gateType, &e.VehicleNo, &e.DocumentNo, &e.NameOfParty,
		&e.DescriptionOfMaterial, &e.Quantity, &e.SecurityName, &e.SecurityUsername,
		&e.WarehouseCode, &e.SiteCode, &e.CreatedAt, &e.LastEditedAt, &e.EditCount)
	if err != nil {
		return nil, err
	}
	e.GateType = models.MovementType(gateType)
	return &e, nil
}

func (r *RawMaterialRepository) WithVehicleLock(ctx context.Context, vehicleNo string, fn func(services.RawMaterialTx) error) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := advisoryLock(ctx, tx, "rm:"+vehicleNo); err != nil {
		return err
	}
	if err := fn(&rawMaterialTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *RawMaterialRepository) FindByFilters(ctx context.Context, f models.RawMaterialFilter) ([]*models.RawMaterialEntry, error) {
	var w whereBuilder
	if f.From != nil {
		w.add("created_at >= $%d", *f.From)
	}
	if f.To != nil {
		w.add("created_at <= $%d", *f.To)
	}
	if f.VehicleNo != "" {
		w.add(`vehicle_no ILIKE $%d ESCAPE '\'`, likePattern(f.VehicleNo))
	}
	if f.GateType != "" {
		w.add("gate_type = $%d", f.GateType)
	}
	if f.WarehouseCode != "" {
		w.add("warehouse_code = $%d", f.WarehouseCode)
	}
	if f.SiteCode != "" {
		w.add("site_code = $%d", f.SiteCode)
	}

	query := fmt.Sprintf(`SELECT %s FROM raw_material_entries %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		rawMaterialColumns, w.clause(), w.next())
	rows, err := r.DB.Query(ctx, query, append(w.args, f.Limit)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.RawMaterialEntry
	for rows.Next() {
		e, err := scanRawMaterial(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EditEntry locks the row, lets check veto the edit and applies the patch.
func (r *RawMaterialRepository) EditEntry(ctx context.Context, id int, check func(*models.RawMaterialEntry, *services.VehicleChange) error,
	patch models.RawMaterialPatch, editedAt time.Time) (*models.RawMaterialEntry, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	current, err := scanRawMaterial(tx.QueryRow(ctx,
		`SELECT `+rawMaterialColumns+` FROM raw_material_entries WHERE id = $1 FOR UPDATE`, id))
	if isNoRows(err) {
		current, err = nil, nil
	}
	if err != nil {
		return nil, err
	}

	var change *services.VehicleChange
	if current != nil && patch.VehicleNo != nil && *patch.VehicleNo != current.VehicleNo {
		change = &services.VehicleChange{From: current.VehicleNo, To: *patch.VehicleNo}
		if err := advisoryLocks(ctx, tx, "rm:"+change.From, "rm:"+change.To); err != nil {
			return nil, err
		}
		lastFrom, err := lastRawMaterial(ctx, tx, change.From)
		if err != nil {
			return nil, err
		}
		lastTo, err := lastRawMaterial(ctx, tx, change.To)
		if err != nil {
			return nil, err
		}
		change.LastFrom, change.LastTo = lastFrom.Ref(), lastTo.Ref()
	}

	if err := check(current, change); err != nil {
		return nil, err
	}

	updated, err := scanRawMaterial(tx.QueryRow(ctx, `
		UPDATE raw_material_entries
		SET vehicle_no = COALESCE($2, vehicle_no),
		    document_no = COALESCE($3, document_no),
		    name_of_party = COALESCE($4, name_of_party),
		    description_of_material = COALESCE($5, description_of_material),
		    quantity = COALESCE($6, quantity),
		    last_edited_at = $7,
		    edit_count = edit_count + 1
		WHERE id = $1
		RETURNING `+rawMaterialColumns,
		id, patch.VehicleNo, patch.DocumentNo, patch.NameOfParty, patch.DescriptionOfMaterial, patch.Quantity, editedAt,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *RawMaterialRepository) Statistics(ctx context.Context, since time.Time, warehouseCode string) (*models.RawMaterialStats, error) {
	var w whereBuilder
	w.add("created_at >= $%d", since)
	if warehouseCode != "" {
		w.add("warehouse_code = $%d", warehouseCode)
	}

	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE gate_type = 'Gate-In'),
		       COUNT(*) FILTER (WHERE gate_type = 'Gate-Out'),
		       COUNT(DISTINCT vehicle_no),
		       COUNT(*) FILTER (WHERE edit_count > 0)
		FROM raw_material_entries ` + w.clause()

	var stats models.RawMaterialStats
	err := r.DB.QueryRow(ctx, query, w.args...).Scan(
		&stats.TotalEntries, &stats.GateInCount, &stats.GateOutCount, &stats.UniqueVehicles, &stats.EditedEntries)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

type rawMaterialTx struct {
	tx pgx.Tx
}

func (t *rawMaterialTx) IncrementSequence(ctx context.Context, warehouseCode string) (int64, bool, error) {
	return incrementSequence(ctx, t.tx, warehouseCode)
}

func lastRawMaterial(ctx context.Context, q querier, vehicleNo string) (*models.RawMaterialEntry, error) {
	e, err := scanRawMaterial(q.QueryRow(ctx, `SELECT `+rawMaterialColumns+`
		FROM raw_material_entries
		WHERE vehicle_no = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, vehicleNo))
	if isNoRows(err) {
		return nil, nil
	}
	return e, err
}

func (t *rawMaterialTx) LastEntry(ctx context.Context, vehicleNo string) (*models.RawMaterialEntry, error) {
	return lastRawMaterial(ctx, t.tx, vehicleNo)
}

func (t *rawMaterialTx) Insert(ctx context.Context, e *models.RawMaterialEntry) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO raw_material_entries (
			gate_entry_no, gate_type, vehicle_no, document_no, name_of_party,
			description_of_material, quantity, security_name, security_username,
			warehouse_code, site_code, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, edit_count`,
		e.GateEntryNo, string(e.GateType), e.VehicleNo, e.DocumentNo, e.NameOfParty,
		e.DescriptionOfMaterial, e.Quantity, e.SecurityName, e.SecurityUsername,
		e.WarehouseCode, e.SiteCode, e.CreatedAt,
	).Scan(&e.ID, &e.EditCount)
}
