package repositories

import (
	"context"

	"gate-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WarehouseRepository struct {
	DB *pgxpool.Pool
}

func NewWarehouseRepository(db *pgxpool.Pool) *WarehouseRepository {
	return &WarehouseRepository{DB: db}
}

func scanWarehouse(row pgx.Row) (*models.Warehouse, error) {
	var w models.Warehouse
	if err := row.Scan(&w.WarehouseCode, &w.WarehouseName, &w.SiteCode, &w.IsActive, &w.CreatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// Get returns nil when the code is not in the master table.
func (r *WarehouseRepository) Get(ctx context.Context, code string) (*models.Warehouse, error) {
	w, err := scanWarehouse(r.DB.QueryRow(ctx,
		`SELECT warehouse_code, warehouse_name, site_code, is_active, created_at
         FROM warehouses WHERE warehouse_code = $1`, code))
	if isNoRows(err) {
		return nil, nil
	}
	return w, err
}

func (r *WarehouseRepository) List(ctx context.Context) ([]*models.Warehouse, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT warehouse_code, warehouse_name, site_code, is_active, created_at
         FROM warehouses ORDER BY warehouse_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []*models.Warehouse
	for rows.Next() {
		w, err := scanWarehouse(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, w)
	}
	return list, rows.Err()
}

// Upsert creates or renames a warehouse.
func (r *WarehouseRepository) Upsert(ctx context.Context, w *models.Warehouse) error {
	return r.DB.QueryRow(ctx,
		`INSERT INTO warehouses (warehouse_code, warehouse_name, site_code, is_active)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (warehouse_code) DO UPDATE
         SET warehouse_name = EXCLUDED.warehouse_name,
             site_code = EXCLUDED.site_code,
             is_active = EXCLUDED.is_active
         RETURNING created_at`,
		w.WarehouseCode, w.WarehouseName, w.SiteCode, w.IsActive,
	).Scan(&w.CreatedAt)
}
