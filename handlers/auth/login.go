package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/model"
	"github.com/sahilchouksey/exam-prep-api/utils"
	authutil "github.com/sahilchouksey/exam-prep-api/utils/auth"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
	"github.com/sahilchouksey/exam-prep-api/utils/validation"
	"gorm.io/gorm"
)

// LoginRequest represents a user login request
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	User UserResponse `json:"user"`
	TokenPair
}

// Login handles user login
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	if err := h.validator.ValidateStruct(req); err != nil {
		return response.ValidationError(c, validation.FormatValidationErrors(err))
	}

	ctx := c.UserContext()
	ip := c.IP()

	var user model.User
	if err := h.db.WithContext(ctx).Where("email = ?", req.Email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return response.InternalServerError(c, "Failed to load user")
		}
		// Unknown emails count against the IP too
		h.recordFailure(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}

	if err := authutil.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		h.recordFailure(ctx, ip)
		return response.Unauthorized(c, "Invalid email or password")
	}

	if !user.IsActive() {
		return response.Forbidden(c, "Account is disabled")
	}

	if err := h.bruteForceProtection.RecordSuccessfulAttempt(ctx, ip); err != nil {
		utils.L().Warn("failed to clear login failures", "ip", ip, "error", err)
	}

	// Upgrade hashes made at an older cost while the plain password is at hand
	if authutil.NeedsRehash(user.PasswordHash) {
		if hash, err := authutil.HashPassword(req.Password); err == nil {
			if err := h.db.WithContext(ctx).Model(&user).Update("password_hash", hash).Error; err != nil {
				utils.L().Warn("password rehash failed", "user_id", user.ID, "error", err)
			}
		}
	}

	tokens, err := h.issueTokens(&user)
	if err != nil {
		return response.InternalServerError(c, "Failed to generate tokens")
	}

	return response.Success(c, LoginResponse{
		User:      toUserResponse(&user),
		TokenPair: *tokens,
	})
}

func (h *AuthHandler) recordFailure(ctx context.Context, ip string) {
	if err := h.bruteForceProtection.RecordFailedAttempt(ctx, ip); err != nil {
		utils.L().Warn("failed to record login failure", "ip", ip, "error", err)
	}
}
