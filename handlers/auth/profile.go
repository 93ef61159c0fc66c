package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sahilchouksey/exam-prep-api/utils/middleware"
	"github.com/sahilchouksey/exam-prep-api/utils/response"
)

// GetProfile returns the current user
func (h *AuthHandler) GetProfile(c *fiber.Ctx) error {
	user, ok := middleware.GetUser(c)
	if !ok {
		return response.Unauthorized(c, "Not authenticated")
	}
	return response.Success(c, toUserResponse(user))
}
