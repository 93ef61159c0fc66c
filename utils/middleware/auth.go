package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils/auth"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
	"gorm.io/gorm"
)

// AuthMiddleware authenticates bearer access tokens. Role, status and token
// version are read from the user row on every request, so demotions and
// logouts take effect before the token expires.
type AuthMiddleware struct {
	jwtManager *auth.JWTManager
	blacklist  *auth.BlacklistService
	db         *gorm.DB
}

func NewAuthMiddleware(jwtManager *auth.JWTManager, db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{
		jwtManager: jwtManager,
		blacklist:  auth.NewBlacklistService(db),
		db:         db,
	}
}

// Required accepts any authenticated, active user
func (m *AuthMiddleware) Required() fiber.Handler {
	return m.RequireRole()
}

// RequireAdmin accepts admins only
func (m *AuthMiddleware) RequireAdmin() fiber.Handler {
	return m.RequireRole(model.RoleAdmin)
}

// RequireRole accepts users holding one of roles; no roles means any role
func (m *AuthMiddleware) RequireRole(roles ...string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok, err := m.authenticate(c)
		if !ok {
			return err
		}
		if len(roles) > 0 && !hasRole(user.Role, roles) {
			if len(roles) == 1 && roles[0] == model.RoleAdmin {
				return response.Forbidden(c, "Admin access required")
			}
			return response.Forbidden(c, "Insufficient role")
		}
		return c.Next()
	}
}

func hasRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func bearerToken(c *fiber.Ctx) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(c.Get(fiber.HeaderAuthorization)), " ")
	token = strings.TrimSpace(token)
	if !found || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", false
	}
	return token, true
}

// authenticate resolves the caller and stores it in locals. When ok is false
// the rejection has already been written and err is what the handler returns.
func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*model.User, bool, error) {
	if c.Get(fiber.HeaderAuthorization) == "" {
		return nil, false, response.Unauthorized(c, "Missing authorization token")
	}
	raw, ok := bearerToken(c)
	if !ok {
		return nil, false, response.Unauthorized(c, "Invalid authorization format")
	}

	claims, err := m.jwtManager.Parse(raw)
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return nil, false, response.Unauthorized(c, "Token has expired")
	case err != nil:
		return nil, false, response.Unauthorized(c, "Invalid token")
	case claims.TokenType != auth.TokenTypeAccess:
		return nil, false, response.Unauthorized(c, "Invalid token type")
	}

	ctx := c.UserContext()
	revoked, err := m.blacklist.IsTokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, false, response.InternalServerError(c, "Failed to check token status")
	}
	if revoked {
		return nil, false, response.Unauthorized(c, "Token has been revoked")
	}

	var user model.User
	if err := m.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, response.Unauthorized(c, "User not found")
		}
		return nil, false, response.InternalServerError(c, "Failed to load user")
	}
	if user.TokenVersion != claims.TokenVersion {
		return nil, false, response.Unauthorized(c, "Token has been invalidated")
	}
	if !user.IsActive() {
		return nil, false, response.Forbidden(c, "Account is disabled")
	}

	c.Locals("user_id", user.ID)
	c.Locals("user_role", user.Role)
	c.Locals("claims", claims)
	c.Locals("user", &user)
	return &user, true, nil
}

// GetUserID extracts user ID from context
func GetUserID(c *fiber.Ctx) (uint, bool) {
	id, ok := c.Locals("user_id").(uint)
	return id, ok
}

// GetUser extracts full user object from context
func GetUser(c *fiber.Ctx) (*model.User, bool) {
	u, ok := c.Locals("user").(*model.User)
	return u, ok
}

// GetClaims extracts full claims from context
func GetClaims(c *fiber.Ctx) (*auth.Claims, bool) {
	claims, ok := c.Locals("claims").(*auth.Claims)
	return claims, ok
}
