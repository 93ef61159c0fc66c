package auth

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils"
	authutil "github.com/sahilchouksey/exam-prep-api/utils/auth"
	"github.com/sahilchouksey/exam-prep-api/utils/middleware"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
	"github.com/sahilchouksey/exam-prep-api/utils/validation"
)

// RefreshRequest represents a token refresh request
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// RefreshToken exchanges a refresh token for a new pair. Each refresh token
// works once; presenting a used one again revokes every session of its user.
func (h *AuthHandler) RefreshToken(c *fiber.Ctx) error {
	var req RefreshRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	ctx := c.UserContext()

	claims, err := h.jwtManager.ParseRefresh(req.RefreshToken)
	switch {
	case errors.Is(err, authutil.ErrWrongTokenType):
		return response.Unauthorized(c, "Invalid token type")
	case err != nil:
		return response.Unauthorized(c, "Invalid or expired refresh token")
	}

	var user model.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		return response.Unauthorized(c, "User not found")
	}
	if user.TokenVersion != claims.TokenVersion {
		return response.Unauthorized(c, "Token has been invalidated")
	}
	if !user.IsActive() {
		return response.Forbidden(c, "Account is disabled")
	}

	fresh, err := h.blacklistService.Consume(ctx, claims.ID, user.ID, expiryOf(claims), "token_refresh")
	if err != nil {
		return response.InternalServerError(c, "Failed to rotate refresh token")
	}
	if !fresh {
		utils.L().Warn("refresh token reused, revoking all sessions", "user_id", user.ID, "jti", claims.ID)
		if err := h.blacklistService.RevokeAllUserTokens(ctx, user.ID); err != nil {
			utils.L().Error("failed to revoke sessions after token reuse", "user_id", user.ID, "error", err)
		}
		return response.Unauthorized(c, "Token has been revoked")
	}

	tokens, err := h.issueTokens(&user)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}
	return response.Success(c, tokens)
}

// LogoutRequest optionally carries the refresh token issued with the access token
type LogoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Logout revokes the access token used for the request
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, ok := middleware.GetClaims(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	ctx := c.UserContext()
	if err := h.blacklistService.RevokeToken(ctx, claims.ID, claims.UserID, expiryOf(claims), "logout"); err != nil {
		return response.InternalServerError(c, "Failed to logout")
	}

	// A refresh token belonging to someone else, or an unparseable one, is ignored
	var req LogoutRequest
	if len(c.Body()) > 0 && c.BodyParser(&req) == nil && req.RefreshToken != "" {
		if rc, err := h.jwtManager.ParseRefresh(req.RefreshToken); err == nil && rc.UserID == claims.UserID {
			if err := h.blacklistService.RevokeToken(ctx, rc.ID, rc.UserID, expiryOf(rc), "logout"); err != nil {
				return response.InternalServerError(c, "Failed to logout")
			}
		}
	}

	return response.SuccessWithMessage(c, "Successfully logged out", nil)
}

// LogoutAll invalidates every token issued to the caller
func (h *AuthHandler) LogoutAll(c *fiber.Ctx) error {
	userID, ok := middleware.GetUserID(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}

	if err := h.blacklistService.RevokeAllUserTokens(c.UserContext(), userID); err != nil {
		if errors.Is(err, authutil.ErrUserNotFound) {
			return response.Unauthorized(c, "User not found")
		}
		return response.InternalServerError(c, "Failed to logout")
	}

	return response.SuccessWithMessage(c, "Logged out of all sessions", nil)
}

func expiryOf(claims *authutil.Claims) time.Time {
	if claims.ExpiresAt != nil {
		return claims.ExpiresAt.Time
	}
	return time.Now().Add(24 * time.Hour)
}
