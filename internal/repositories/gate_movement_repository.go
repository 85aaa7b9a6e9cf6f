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

const movementColumns = `
	id, gate_entry_no, vehicle_no, movement_type, warehouse_code, warehouse_name, site_code,
	document_no, document_type, sub_document_type, document_date, remarks,
	security_name, security_username, driver_name, km_reading, loader_names,
	created_at, last_edited_at, edit_count
`

const documentColumns = `
	id, document_no, document_type, sub_document_type, document_date, vehicle_no,
	warehouse_code, customer_name, total_quantity::float8, gate_entry_no, created_at
`

type GateMovementRepository struct {
	DB *pgxpool.Pool
}

func NewGateMovementRepository(db *pgxpool.Pool) *GateMovementRepository {
	return &GateMovementRepository{DB: db}
}

func scanMovement(row pgx.Row) (*models.GateMovement, error) {
	var m models.GateMovement
	var movementType string
	err := row.Scan(
		&m.ID, &m.GateEntryNo, &m.VehicleNo, &movementType, &m.WarehouseCode, &m.WarehouseName, &m.SiteCode,
		&m.DocumentNo, &m.DocumentType, &m.SubDocumentType, &m.DocumentDate, &m.Remarks,
		&m.SecurityName, &m.SecurityUsername, &m.DriverName, &m.KMReading, &m.LoaderNames,
		&m.CreatedAt, &m.LastEditedAt, &m.EditCount,
	)
	if err != nil {
		return nil, err
	}
	m.MovementType = models.MovementType(movementType)
	return &m, nil
}

func collectMovements(rows pgx.Rows) ([]*models.GateMovement, error) {
	defer rows.Close()
	var out []*models.GateMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (*models.Document, error) {
	var d models.Document
	err := row.Scan(
		&d.ID, &d.DocumentNo, &d.DocumentType, &d.SubDocumentType, &d.DocumentDate, &d.VehicleNo,
		&d.WarehouseCode, &d.CustomerName, &d.TotalQuantity, &d.GateEntryNo, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func lastMovement(ctx context.Context, q querier, vehicleNo string) (*models.GateMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM gate_movements
		WHERE vehicle_no = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1`
	m, err := scanMovement(q.QueryRow(ctx, query, vehicleNo))
	if isNoRows(err) {
		return nil, nil
	}
	return m, err
}

func lockDocument(ctx context.Context, q querier, documentNo string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE document_no = $1 FOR UPDATE`
	d, err := scanDocument(q.QueryRow(ctx, query, documentNo))
	if isNoRows(err) {
		return nil, nil
	}
	return d, err
}

// WithVehicleLock opens a transaction and takes the per-vehicle advisory
// lock before handing it to fn.
func (r *GateMovementRepository) WithVehicleLock(ctx context.Context, vehicleNo string, fn func(services.MovementTx) error) error {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := advisoryLock(ctx, tx, "gate:"+vehicleNo); err != nil {
		return err
	}
	if err := fn(&movementTx{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *GateMovementRepository) LastMovement(ctx context.Context, vehicleNo string) (*models.GateMovement, error) {
	return lastMovement(ctx, r.DB, vehicleNo)
}

// FindByFilters returns movements newest first.
func (r *GateMovementRepository) FindByFilters(ctx context.Context, f models.MovementFilter) ([]*models.GateMovement, error) {
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
	if f.MovementType != "" {
		w.add("movement_type = $%d", f.MovementType)
	}
	if f.WarehouseCode != "" {
		w.add("warehouse_code = $%d", f.WarehouseCode)
	}
	if f.SiteCode != "" {
		w.add("site_code = $%d", f.SiteCode)
	}
	if f.GateEntryNo != "" {
		w.add("gate_entry_no = $%d", f.GateEntryNo)
	}

	query := fmt.Sprintf(`SELECT %s FROM gate_movements %s ORDER BY created_at DESC, id DESC LIMIT $%d`,
		movementColumns, w.clause(), w.next())
	rows, err := r.DB.Query(ctx, query, append(w.args, f.Limit)...)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

func (r *GateMovementRepository) History(ctx context.Context, vehicleNo string, limit int) ([]*models.GateMovement, error) {
	query := `SELECT ` + movementColumns + `
		FROM gate_movements
		WHERE vehicle_no = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.DB.Query(ctx, query, vehicleNo, limit)
	if err != nil {
		return nil, err
	}
	return collectMovements(rows)
}

// EditMovements locks the rows of one gate entry, lets check veto the edit,
// then applies the patch to all of them.
func (r *GateMovementRepository) EditMovements(ctx context.Context, gateEntryNo string, check func([]*models.GateMovement, *services.VehicleChange) error,
	patch models.MovementPatch, editedAt time.Time) ([]*models.GateMovement, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT `+movementColumns+`
		FROM gate_movements
		WHERE gate_entry_no = $1
		ORDER BY id
		FOR UPDATE`, gateEntryNo)
	if err != nil {
		return nil, err
	}
	current, err := collectMovements(rows)
	if err != nil {
		return nil, err
	}

	var change *services.VehicleChange
	if patch.VehicleNo != nil && len(current) > 0 && *patch.VehicleNo != current[0].VehicleNo {
		change = &services.VehicleChange{From: current[0].VehicleNo, To: *patch.VehicleNo}
		if err := advisoryLocks(ctx, tx, "gate:"+change.From, "gate:"+change.To); err != nil {
			return nil, err
		}
		lastFrom, err := lastMovement(ctx, tx, change.From)
		if err != nil {
			return nil, err
		}
		lastTo, err := lastMovement(ctx, tx, change.To)
		if err != nil {
			return nil, err
		}
		change.LastFrom, change.LastTo = lastFrom.Ref(), lastTo.Ref()
	}

	if err := check(current, change); err != nil {
		return nil, err
	}

	updated, err := tx.Query(ctx, `
		UPDATE gate_movements
		SET vehicle_no = COALESCE($2, vehicle_no),
		    remarks = COALESCE($3, remarks),
		    driver_name = COALESCE($4, driver_name),
		    km_reading = COALESCE($5, km_reading),
		    loader_names = COALESCE($6, loader_names),
		    last_edited_at = $7,
		    edit_count = edit_count + 1
		WHERE gate_entry_no = $1
		RETURNING `+movementColumns,
		gateEntryNo, patch.VehicleNo, patch.Remarks, patch.DriverName, patch.KMReading, patch.LoaderNames, editedAt,
	)
	if err != nil {
		return nil, err
	}
	result, err := collectMovements(updated)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return result, nil
}

// AssignDocument links a document to a pending manual row in one transaction.
func (r *GateMovementRepository) AssignDocument(ctx context.Context, movementID int, documentNo string,
	check func(*models.GateMovement, *models.Document) error, editedAt time.Time) (*models.GateMovement, error) {
	tx, err := r.DB.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	m, err := scanMovement(tx.QueryRow(ctx, `SELECT `+movementColumns+` FROM gate_movements WHERE id = $1 FOR UPDATE`, movementID))
	if isNoRows(err) {
		m, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	doc, err := lockDocument(ctx, tx, documentNo)
	if err != nil {
		return nil, err
	}
	if err := check(m, doc); err != nil {
		return nil, err
	}

	updated, err := scanMovement(tx.QueryRow(ctx, `
		UPDATE gate_movements
		SET document_no = $2,
		    document_type = COALESCE(NULLIF($3, ''), 'Assigned Document'),
		    sub_document_type = $4,
		    document_date = $5,
		    remarks = 'Assigned document ' || $2::text || ' | Original: ' || COALESCE(remarks, ''),
		    last_edited_at = $6,
		    edit_count = edit_count + 1
		WHERE id = $1
		RETURNING `+movementColumns,
		movementID, doc.DocumentNo, doc.DocumentType, doc.SubDocumentType, doc.DocumentDate, editedAt,
	))
	if err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `UPDATE documents SET gate_entry_no = $2 WHERE document_no = $1`, doc.DocumentNo, updated.GateEntryNo); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *GateMovementRepository) UnassignedDocuments(ctx context.Context, vehicleNo string, since time.Time) ([]*models.Document, error) {
	return r.listDocuments(ctx, `SELECT `+documentColumns+`
		FROM documents
		WHERE vehicle_no = $1
		  AND (gate_entry_no IS NULL OR gate_entry_no = '')
		  AND created_at >= $2
		ORDER BY created_at DESC`, vehicleNo, since)
}

func (r *GateMovementRepository) RecentDocuments(ctx context.Context, vehicleNo string, since time.Time) ([]*models.Document, error) {
	return r.listDocuments(ctx, `SELECT `+documentColumns+`
		FROM documents
		WHERE vehicle_no = $1 AND created_at >= $2
		ORDER BY created_at DESC`, vehicleNo, since)
}

func (r *GateMovementRepository) listDocuments(ctx context.Context, query string, args ...interface{}) ([]*models.Document, error) {
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// movementTx implements services.MovementTx on a pgx transaction.
type movementTx struct {
	tx pgx.Tx
}

func (t *movementTx) IncrementSequence(ctx context.Context, warehouseCode string) (int64, bool, error) {
	return incrementSequence(ctx, t.tx, warehouseCode)
}

func (t *movementTx) LastMovement(ctx context.Context, vehicleNo string) (*models.GateMovement, error) {
	return lastMovement(ctx, t.tx, vehicleNo)
}

func (t *movementTx) Insert(ctx context.Context, m *models.GateMovement) error {
	query := `
		INSERT INTO gate_movements (
			gate_entry_no, vehicle_no, movement_type, warehouse_code, warehouse_name, site_code,
			document_no, document_type, sub_document_type, document_date, remarks,
			security_name, security_username, driver_name, km_reading, loader_names, created_at,
			last_edited_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING id, edit_count
	`
	return t.tx.QueryRow(ctx, query,
		m.GateEntryNo, m.VehicleNo, string(m.MovementType), m.WarehouseCode, m.WarehouseName, m.SiteCode,
		m.DocumentNo, m.DocumentType, m.SubDocumentType, m.DocumentDate, m.Remarks,
		m.SecurityName, m.SecurityUsername, m.DriverName, m.KMReading, m.LoaderNames, m.CreatedAt,
		m.LastEditedAt,
	).Scan(&m.ID, &m.EditCount)
}

func (t *movementTx) LockDocument(ctx context.Context, documentNo string) (*models.Document, error) {
	return lockDocument(ctx, t.tx, documentNo)
}

func (t *movementTx) MarkDocumentAssigned(ctx context.Context, documentNo, gateEntryNo string) error {
	_, err := t.tx.Exec(ctx, `UPDATE documents SET gate_entry_no = $2 WHERE document_no = $1`, documentNo, gateEntryNo)
	return err
}

// Savepoint runs fn inside a nested pgx transaction (a SQL savepoint).
func (t *movementTx) Savepoint(ctx context.Context, fn func(services.MovementTx) error) error {
	sp, err := t.tx.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(&movementTx{tx: sp}); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return rbErr
		}
		return err
	}
	return sp.Commit(ctx)
}
