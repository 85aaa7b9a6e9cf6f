package middleware

import (
	"context"
	"net/http"
	"strings"

	"gate-backend/internal/auth"
	"gate-backend/internal/models"
)

type contextKey string

const ActorKey contextKey = "actor"

// UserLoader reads the current user row so role and status changes apply
// without waiting for the token to expire.
type UserLoader interface {
	Get(ctx context.Context, id int) (*models.User, error)
}

type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	users      UserLoader
}

func NewAuthMiddleware(jwtManager *auth.JWTManager, users UserLoader) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		users:      users,
	}
}

// Authenticate is a middleware that validates JWT tokens
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, status, msg := m.authenticate(r)
		if user == nil {
			http.Error(w, msg, status)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), ActorFromUser(user))))
	})
}

func (m *AuthMiddleware) authenticate(r *http.Request) (*models.User, int, string) {
	token := bearerToken(r)
	if token == "" {
		// Browsers cannot set headers on websocket upgrades
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		return nil, http.StatusUnauthorized, "Authorization header required"
	}

	claims, err := m.jwtManager.ValidateToken(token)
	if err != nil {
		return nil, http.StatusUnauthorized, "Invalid or expired token"
	}

	// Check database for current user status
	user, err := m.users.Get(r.Context(), claims.UserID)
	if err != nil || user == nil {
		return nil, http.StatusUnauthorized, "User not found"
	}
	if !user.IsActive {
		return nil, http.StatusForbidden, "Account suspended. Please contact administrator."
	}
	return user, 0, ""
}

func bearerToken(r *http.Request) string {
	parts := strings.Split(r.Header.Get("Authorization"), " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// RequireRole admits only users holding one of roles. It authenticates
// first unless an earlier middleware already did.
func (m *AuthMiddleware) RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		check := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, _ := GetActorFromContext(r.Context())
			if !actor.Roles.HasAny(roles...) {
				http.Error(w, "Forbidden: Insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
		authenticated := m.Authenticate(check)

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetActorFromContext(r.Context()); ok {
				check.ServeHTTP(w, r)
				return
			}
			authenticated.ServeHTTP(w, r)
		})
	}
}

// RequireAdmin admits IT, security and system admins.
func (m *AuthMiddleware) RequireAdmin(next http.Handler) http.Handler {
	return m.RequireRole(models.RoleITAdmin, models.RoleSecurityAdmin, models.RoleAdmin)(next)
}

func ActorFromUser(u *models.User) models.Actor {
	return models.Actor{
		UserID:        u.ID,
		Username:      u.Username,
		FullName:      u.FullName,
		Roles:         u.Roles,
		WarehouseCode: u.WarehouseCode,
		SiteCode:      u.SiteCode,
	}
}

func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, ActorKey, actor)
}

// GetActorFromContext extracts the authenticated caller from request context
func GetActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(ActorKey).(models.Actor)
	return actor, ok
}
