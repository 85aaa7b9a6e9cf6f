package repositories

import (
	"context"
	"time"

	"gate-backend/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserRepository struct {
	DB *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{DB: db}
}

const userSelect = `
	SELECT u.id, u.username, u.full_name, u.password_hash, u.roles,
	       COALESCE(u.warehouse_code, ''), COALESCE(w.warehouse_name, ''), u.site_code,
	       u.is_active, u.totp_secret, u.totp_enabled, u.created_at, u.updated_at
	FROM users u
	LEFT JOIN warehouses w ON w.warehouse_code = u.warehouse_code
`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.FullName, &u.PasswordHash, &u.RawRoles,
		&u.WarehouseCode, &u.WarehouseName, &u.SiteCode,
		&u.IsActive, &u.TOTPSecret, &u.TOTPEnabled, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.LoadRoles()
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]*models.User, error) {
	defer rows.Close()
	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Create inserts the user. Site code follows the assigned warehouse.
func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	return r.DB.QueryRow(ctx,
		`INSERT INTO users(username, full_name, password_hash, roles, warehouse_code, site_code, is_active)
         VALUES($1, $2, $3, $4, NULLIF($5, ''),
                COALESCE((SELECT site_code FROM warehouses WHERE warehouse_code = $5), ''), $6)
         RETURNING id, site_code, created_at, updated_at`,
		u.Username, u.FullName, u.PasswordHash, u.RawRoles, u.WarehouseCode, u.IsActive,
	).Scan(&u.ID, &u.SiteCode, &u.CreatedAt, &u.UpdatedAt)
}

func (r *UserRepository) Get(ctx context.Context, id int) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, userSelect+` WHERE u.id = $1`, id))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := scanUser(r.DB.QueryRow(ctx, userSelect+` WHERE LOWER(u.username) = LOWER($1)`, username))
	if isNoRows(err) {
		return nil, nil
	}
	return u, err
}

// List returns all users
func (r *UserRepository) List(ctx context.Context) ([]*models.User, error) {
	rows, err := r.DB.Query(ctx, userSelect+` ORDER BY u.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

// Search matches username or full name.
func (r *UserRepository) Search(ctx context.Context, query string, limit int) ([]*models.User, error) {
	rows, err := r.DB.Query(ctx,
		userSelect+` WHERE u.username ILIKE '%' || $1 || '%' OR u.full_name ILIKE '%' || $1 || '%'
		ORDER BY u.username LIMIT $2`, query, limit)
	if err != nil {
		return nil, err
	}
	return collectUsers(rows)
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	return r.DB.QueryRow(ctx,
		`UPDATE users
         SET full_name = $2,
             roles = $3,
             warehouse_code = NULLIF($4, ''),
             site_code = COALESCE((SELECT site_code FROM warehouses WHERE warehouse_code = $4), ''),
             is_active = $5,
             updated_at = NOW()
         WHERE id = $1
         RETURNING site_code, updated_at`,
		u.ID, u.FullName, u.RawRoles, u.WarehouseCode, u.IsActive,
	).Scan(&u.SiteCode, &u.UpdatedAt)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id int, hash string) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1`, id, hash)
	return err
}

func (r *UserRepository) Delete(ctx context.Context, id int) (bool, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetTOTPSecret stores a new secret and leaves 2FA disabled until verified.
func (r *UserRepository) SetTOTPSecret(ctx context.Context, id int, secret string) error {
	_, err := r.DB.Exec(ctx,
		`UPDATE users SET totp_secret = $2, totp_enabled = FALSE, updated_at = NOW() WHERE id = $1`, id, secret)
	return err
}

func (r *UserRepository) EnableTOTP(ctx context.Context, id int) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET totp_enabled = TRUE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// DashboardStats aggregates user and movement counts since dayStart.
func (r *UserRepository) DashboardStats(ctx context.Context, dayStart time.Time) (*models.DashboardStats, error) {
	stats := &models.DashboardStats{UsersByRole: map[string]int{}}

	err := r.DB.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM users),
			(SELECT COUNT(*) FROM users WHERE is_active),
			(SELECT COUNT(*) FROM warehouses WHERE is_active),
			(SELECT COUNT(*) FROM gate_movements WHERE created_at >= $1),
			(SELECT COUNT(*) FROM gate_movements WHERE created_at >= $1 AND movement_type = 'Gate-In'),
			(SELECT COUNT(*) FROM gate_movements WHERE created_at >= $1 AND movement_type = 'Gate-Out'),
			(SELECT COUNT(*) FROM raw_material_entries WHERE created_at >= $1)
	`, dayStart).Scan(&stats.TotalUsers, &stats.ActiveUsers, &stats.TotalWarehouses,
		&stats.MovementsToday, &stats.GateInToday, &stats.GateOutToday, &stats.RawMaterialsToday)
	if err != nil {
		return nil, err
	}

	// roles is a comma separated list, so count each user once per role.
	rows, err := r.DB.Query(ctx, `SELECT roles FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		for _, name := range models.ParseRoles(raw).Names() {
			stats.UsersByRole[name]++
		}
	}
	return stats, rows.Err()
}
