package server

import (
	"fundsphere/internal/models"
	"fundsphere/internal/service"

	"github.com/gofiber/fiber/v2"
)

type updateProfileRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// GetProfile handles GET /api/profile
// @Summary The caller's profile
// @Tags profile
// @Produce json
// @Success 200 {object} models.User
// @Router /profile [get]
func (s *Server) GetProfile(c *fiber.Ctx) error {
	user, err := s.userService.GetUserByID(c.UserContext(), currentActor(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(user)
}

// UpdateProfile handles PATCH /api/profile
// @Summary Update username or email
// @Tags profile
// @Accept json
// @Produce json
// @Param request body updateProfileRequest true "Changes"
// @Success 200 {object} object{msg=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse
// @Router /profile [patch]
func (s *Server) UpdateProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.userService.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:   currentActor(c).ID,
		Username: req.Username,
		Email:    req.Email,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":  "User profile updated",
		"user": user,
	})
}

// DeactivateProfile handles PATCH /api/profile/deactivate
// @Summary Deactivate the caller's account
// @Tags profile
// @Produce json
// @Success 200 {object} object{msg=string,user=models.User}
// @Router /profile/deactivate [patch]
func (s *Server) DeactivateProfile(c *fiber.Ctx) error {
	user, err := s.userService.Deactivate(c.UserContext(), currentActor(c).ID)
	if err != nil {
		return respondError(c, err)
	}
	s.clearSessionCookie(c)
	return c.JSON(fiber.Map{
		"msg":  "Your account has been deactivated",
		"user": user,
	})
}
