package models

import "time"

type User struct {
	ID            int       `json:"id"`
	Username      string    `json:"username"`
	FullName      string    `json:"full_name"`
	PasswordHash  string    `json:"-"` // Never expose in JSON
	RawRoles      string    `json:"-"`
	Roles         RoleSet   `json:"-"`
	WarehouseCode string    `json:"warehouse_code"`
	WarehouseName string    `json:"warehouse_name,omitempty"`
	SiteCode      string    `json:"site_code"`
	IsActive      bool      `json:"is_active"`
	TOTPSecret    string    `json:"-"`
	TOTPEnabled   bool      `json:"totp_enabled"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`

	RoleNames []string `json:"roles"`
}

// LoadRoles parses RawRoles into Roles. Repositories call it after every scan.
func (u *User) LoadRoles() {
	u.Roles = ParseRoles(u.RawRoles)
	u.RoleNames = u.Roles.Names()
}

func (u *User) IsAdmin() bool {
	return u.Roles.IsAdmin()
}

// Actor is the authenticated caller as seen by the services.
type Actor struct {
	UserID        int
	Username      string
	FullName      string
	Roles         RoleSet
	WarehouseCode string
	SiteCode      string
}

func (a Actor) IsAdmin() bool {
	return a.Roles.IsAdmin()
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

// AuthResponse represents the response after successful authentication
type AuthResponse struct {
	Token       string `json:"token,omitempty"`
	User        *User  `json:"user,omitempty"`
	Requires2FA bool   `json:"requires_2fa,omitempty"`
}

// CreateUserRequest represents the request body for registering a user
type CreateUserRequest struct {
	Username      string `json:"username"`
	FullName      string `json:"full_name"`
	Password      string `json:"password"`
	Roles         string `json:"roles"`
	WarehouseCode string `json:"warehouse_code"`
}

// UpdateUserRequest carries the fields an admin may change. Nil means unchanged.
type UpdateUserRequest struct {
	FullName      *string `json:"full_name"`
	Roles         *string `json:"roles"`
	WarehouseCode *string `json:"warehouse_code"`
	IsActive      *bool   `json:"is_active"`
}

type ResetPasswordRequest struct {
	NewPassword string `json:"new_password"`
}

// DashboardStats is the admin overview of users and movements.
type DashboardStats struct {
	TotalUsers        int            `json:"total_users"`
	ActiveUsers       int            `json:"active_users"`
	UsersByRole       map[string]int `json:"users_by_role"`
	TotalWarehouses   int            `json:"total_warehouses"`
	MovementsToday    int            `json:"movements_today"`
	GateInToday       int            `json:"gate_in_today"`
	GateOutToday      int            `json:"gate_out_today"`
	RawMaterialsToday int            `json:"raw_materials_today"`
}
