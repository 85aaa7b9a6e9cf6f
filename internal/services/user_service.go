package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image/png"
	"log"
	"regexp"
	"strings"
	"time"

	"gate-backend/internal/auth"
	"gate-backend/internal/models"
	"gate-backend/internal/timeutil"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpIssuer = "GateEntry"

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,80}$`)

type UserStore interface {
	Create(ctx context.Context, u *models.User) error
	Get(ctx context.Context, id int) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)
	Search(ctx context.Context, query string, limit int) ([]*models.User, error)
	Update(ctx context.Context, u *models.User) error
	UpdatePassword(ctx context.Context, id int, hash string) error
	Delete(ctx context.Context, id int) (bool, error)
	SetTOTPSecret(ctx context.Context, id int, secret string) error
	EnableTOTP(ctx context.Context, id int) error
	DashboardStats(ctx context.Context, dayStart time.Time) (*models.DashboardStats, error)
}

// LoginLimiter tracks failed logins. Implementations degrade to allowing
// everything when their backend is unavailable.
type LoginLimiter interface {
	Blocked(ctx context.Context, key string) bool
	RecordFailure(ctx context.Context, key string)
	Reset(ctx context.Context, key string)
}

type TokenIssuer interface {
	GenerateToken(user *models.User) (string, error)
}

// AuthError is a login failure shown to the caller as is.
type AuthError struct {
	Message string
}

func (e *AuthError) Error() string {
	return e.Message
}

var (
	ErrInvalidCredentials = &AuthError{Message: "invalid username or password"}
	ErrAccountSuspended   = &AuthError{Message: "account suspended, please contact administrator"}
	ErrTooManyAttempts    = &AuthError{Message: "too many failed attempts, please try again later"}
	ErrInvalidTOTPCode    = &AuthError{Message: "invalid verification code"}
	ErrNoTOTPSecret       = &AuthError{Message: "2FA setup not initiated"}
)

// PermissionError is an administrative action outside the caller's scope.
type PermissionError struct {
	Message string
}

func (e *PermissionError) Error() string {
	return e.Message
}

type UserService struct {
	Repo       UserStore
	Warehouses WarehouseStore
	Tokens     TokenIssuer
	Limiter    LoginLimiter
}

func NewUserService(repo UserStore, warehouses WarehouseStore, tokens TokenIssuer, limiter LoginLimiter) *UserService {
	return &UserService{
		Repo:       repo,
		Warehouses: warehouses,
		Tokens:     tokens,
		Limiter:    limiter,
	}
}

// Login verifies the password and, when enabled, the TOTP code. A user
// with 2FA who omits the code gets Requires2FA instead of a token.
func (s *UserService) Login(ctx context.Context, req *models.LoginRequest, ip string) (*models.AuthResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		return nil, validationErr("", "username and password are required")
	}

	key := username + "|" + ip
	if s.Limiter != nil && s.Limiter.Blocked(ctx, key) {
		return nil, ErrTooManyAttempts
	}

	user, err := s.Repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.VerifyPassword(user.PasswordHash, req.Password) {
		s.fail(ctx, key)
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrAccountSuspended
	}

	if user.TOTPEnabled {
		code := strings.TrimSpace(req.TOTPCode)
		if code == "" {
			return &models.AuthResponse{Requires2FA: true}, nil
		}
		if !totp.Validate(code, user.TOTPSecret) {
			s.fail(ctx, key)
			return nil, ErrInvalidTOTPCode
		}
	}

	if s.Limiter != nil {
		s.Limiter.Reset(ctx, key)
	}

	token, err := s.Tokens.GenerateToken(user)
	if err != nil {
		return nil, err
	}
	log.Printf("[Auth] %s logged in from %s", user.Username, ip)
	return &models.AuthResponse{Token: token, User: user}, nil
}

func (s *UserService) fail(ctx context.Context, key string) {
	if s.Limiter != nil {
		s.Limiter.RecordFailure(ctx, key)
	}
}

// checkScope: IT admins manage everyone, other admins only their own
// warehouse and never IT admin accounts.
func checkScope(actor models.Actor, warehouseCode string, roles models.RoleSet) error {
	if actor.Roles.Has(models.RoleITAdmin) {
		return nil
	}
	if !actor.IsAdmin() {
		return &PermissionError{Message: "admin role required"}
	}
	if roles.Has(models.RoleITAdmin) {
		return &PermissionError{Message: "only IT admins can manage IT admin accounts"}
	}
	if !strings.EqualFold(warehouseCode, actor.WarehouseCode) {
		return &PermissionError{Message: "you can only manage users of your own warehouse"}
	}
	return nil
}

func (s *UserService) validWarehouse(ctx context.Context, code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return "", nil
	}
	wh, err := s.Warehouses.Get(ctx, code)
	if err != nil {
		return "", err
	}
	if wh == nil {
		return "", validationErr("warehouse_code", "unknown warehouse %s", code)
	}
	return code, nil
}

func validatePassword(pw string) error {
	if len(pw) < 8 {
		return validationErr("password", "password must be at least 8 characters")
	}
	return nil
}

// Register creates a user account.
func (s *UserService) Register(ctx context.Context, actor models.Actor, req *models.CreateUserRequest) (*models.User, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	if !usernameRegex.MatchString(username) {
		return nil, validationErr("username", "username must be 3-80 letters, digits, dots, dashes or underscores")
	}
	if err := validatePassword(req.Password); err != nil {
		return nil, err
	}
	roles := models.ParseRoles(req.Roles)
	if len(roles) == 0 {
		return nil, validationErr("roles", "at least one valid role is required")
	}
	warehouse, err := s.validWarehouse(ctx, req.WarehouseCode)
	if err != nil {
		return nil, err
	}
	if err := checkScope(actor, warehouse, roles); err != nil {
		return nil, err
	}

	existing, err := s.Repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, validationErr("username", "username %s already exists", username)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Username:      username,
		FullName:      strings.TrimSpace(req.FullName),
		PasswordHash:  hash,
		RawRoles:      roles.String(),
		WarehouseCode: warehouse,
		IsActive:      true,
	}
	user.LoadRoles()
	if err := s.Repo.Create(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("[Admin] %s registered user %s (%s)", actor.Username, user.Username, user.RawRoles)
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id int) (*models.User, error) {
	u, err := s.Repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &NotFoundError{Resource: "user", Key: fmt.Sprint(id)}
	}
	return u, nil
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	u, err := s.Repo.GetByUsername(ctx, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, &NotFoundError{Resource: "user", Key: username}
	}
	return u, nil
}

// ViewUser returns a user the actor is allowed to see.
func (s *UserService) ViewUser(ctx context.Context, actor models.Actor, id int) (*models.User, error) {
	u, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(scopeUsers(actor, []*models.User{u})) == 0 {
		return nil, &PermissionError{Message: "you can only view users of your own warehouse"}
	}
	return u, nil
}

// ListUsers returns every user for IT admins and the caller's warehouse otherwise.
func (s *UserService) ListUsers(ctx context.Context, actor models.Actor) ([]*models.User, error) {
	users, err := s.Repo.List(ctx)
	if err != nil {
		return nil, err
	}
	return scopeUsers(actor, users), nil
}

func (s *UserService) SearchUsers(ctx context.Context, actor models.Actor, query string) ([]*models.User, error) {
	query = strings.TrimSpace(query)
	if len(query) < 2 {
		return nil, validationErr("q", "search term must be at least 2 characters")
	}
	users, err := s.Repo.Search(ctx, query, 50)
	if err != nil {
		return nil, err
	}
	return scopeUsers(actor, users), nil
}

func scopeUsers(actor models.Actor, users []*models.User) []*models.User {
	if actor.Roles.Has(models.RoleITAdmin) {
		return users
	}
	scoped := make([]*models.User, 0, len(users))
	for _, u := range users {
		if strings.EqualFold(u.WarehouseCode, actor.WarehouseCode) {
			scoped = append(scoped, u)
		}
	}
	return scoped
}

// ModifyUser changes name, roles, warehouse or active flag.
func (s *UserService) ModifyUser(ctx context.Context, actor models.Actor, id int, req *models.UpdateUserRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkScope(actor, user.WarehouseCode, user.Roles); err != nil {
		return nil, err
	}

	if req.FullName != nil {
		user.FullName = strings.TrimSpace(*req.FullName)
	}
	if req.Roles != nil {
		roles := models.ParseRoles(*req.Roles)
		if len(roles) == 0 {
			return nil, validationErr("roles", "at least one valid role is required")
		}
		user.RawRoles = roles.String()
		user.LoadRoles()
	}
	if req.WarehouseCode != nil {
		code, err := s.validWarehouse(ctx, *req.WarehouseCode)
		if err != nil {
			return nil, err
		}
		user.WarehouseCode = code
	}
	if req.IsActive != nil {
		if user.ID == actor.UserID && !*req.IsActive {
			return nil, validationErr("is_active", "you cannot deactivate your own account")
		}
		user.IsActive = *req.IsActive
	}
	if err := checkScope(actor, user.WarehouseCode, user.Roles); err != nil {
		return nil, err
	}

	if err := s.Repo.Update(ctx, user); err != nil {
		return nil, err
	}
	log.Printf("[Admin] %s modified user %s", actor.Username, user.Username)
	return user, nil
}

func (s *UserService) ResetPassword(ctx context.Context, actor models.Actor, id int, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.GetUser(ctx, id)
	if err != nil {
		return err
	}
	if err := checkScope(actor, user.WarehouseCode, user.Roles); err != nil {
		return err
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.Repo.UpdatePassword(ctx, id, hash); err != nil {
		return err
	}
	log.Printf("[Admin] %s reset password for %s", actor.Username, user.Username)
	return nil
}

func (s *UserService) DeleteUser(ctx context.Context, actor models.Actor, id int) error {
	if id == actor.UserID {
		return validationErr("id", "you cannot delete your own account")
	}
	if !actor.Roles.Has(models.RoleITAdmin) {
		return &PermissionError{Message: "only IT admins can delete users"}
	}
	deleted, err := s.Repo.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !deleted {
		return &NotFoundError{Resource: "user", Key: fmt.Sprint(id)}
	}
	log.Printf("[Admin] %s deleted user %d", actor.Username, id)
	return nil
}

func (s *UserService) DashboardStats(ctx context.Context, now time.Time) (*models.DashboardStats, error) {
	return s.Repo.DashboardStats(ctx, timeutil.StartOfDay(now))
}

// GenerateTOTPSetup creates a new secret and QR code. 2FA stays disabled
// until EnableTOTP confirms a code.
func (s *UserService) GenerateTOTPSetup(ctx context.Context, userID int) (*models.TOTPSetupResponse, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Username,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, err
	}

	if err := s.Repo.SetTOTPSecret(ctx, user.ID, key.Secret()); err != nil {
		return nil, err
	}

	qrImage, err := key.Image(200, 200)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, qrImage); err != nil {
		return nil, err
	}

	return &models.TOTPSetupResponse{
		Secret:      key.Secret(),
		QRCode:      "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Issuer:      totpIssuer,
		AccountName: user.Username,
	}, nil
}

func (s *UserService) EnableTOTP(ctx context.Context, userID int, code string) error {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TOTPSecret == "" {
		return ErrNoTOTPSecret
	}
	if !totp.Validate(strings.TrimSpace(code), user.TOTPSecret) {
		return ErrInvalidTOTPCode
	}
	return s.Repo.EnableTOTP(ctx, userID)
}
