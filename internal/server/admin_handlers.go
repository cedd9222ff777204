package server

import (
	"context"
	"fmt"

	"fundsphere/internal/models"

	"github.com/gofiber/fiber/v2"
)

type changeRoleRequest struct {
	Role string `json:"role"`
}

type deleteUsersRequest struct {
	IDs []string `json:"ids"`
}

// ListUsers handles GET /api/admin/users
// @Summary List users except the caller
// @Tags admin
// @Produce json
// @Success 200 {object} object{total=int,users=[]models.User}
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/users [get]
func (s *Server) ListUsers(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), handlerTimeout)
	defer cancel()

	users, err := s.adminService.ListUsers(ctx, currentActor(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"total": len(users),
		"users": users,
	})
}

// ChangeUserRole handles PATCH /api/admin/users/:userId/role
// @Summary Switch a user between user and moderator
// @Tags admin
// @Accept json
// @Produce json
// @Param userId path string true "User ID"
// @Param request body changeRoleRequest true "Role"
// @Success 200 {object} object{msg=string,user=models.User}
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/users/{userId}/role [patch]
func (s *Server) ChangeUserRole(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	var req changeRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("Invalid request body"))
	}

	user, err := s.adminService.ChangeRole(c.UserContext(), userID, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":  fmt.Sprintf("User role updated to '%s'", user.Role),
		"user": user,
	})
}

// ActivateUser handles PATCH /api/admin/users/:userId/activate
// @Summary Activate an account
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} object{msg=string,user=models.User}
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/users/{userId}/activate [patch]
func (s *Server) ActivateUser(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	user, err := s.adminService.Activate(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":  "User account activated successfully",
		"user": user,
	})
}

// DeactivateUser handles PATCH /api/admin/users/:userId/deactivate
// @Summary Deactivate a non-admin account
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} object{msg=string,user=models.User}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/users/{userId}/deactivate [patch]
func (s *Server) DeactivateUser(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	user, err := s.adminService.Deactivate(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"msg":  "User account deactivated successfully",
		"user": user,
	})
}

// DeleteUsers handles DELETE /api/admin/users
// @Summary Delete several users and their campaigns
// @Tags admin
// @Accept json
// @Produce json
// @Param request body deleteUsersRequest true "User IDs"
// @Success 200 {object} object{msg=string}
// @Failure 400 {object} models.ErrorResponse
// @Router /admin/users [delete]
func (s *Server) DeleteUsers(c *fiber.Ctx) error {
	var req deleteUsersRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, models.NewValidationError("No users selected"))
	}

	deleted, err := s.adminService.DeleteUsers(c.UserContext(), currentActor(c), req.IDs)
	if err != nil {
		return respondError(c, err)
	}
	noun := "users"
	if deleted == 1 {
		noun = "user"
	}
	return c.JSON(fiber.Map{
		"msg": fmt.Sprintf("Deleted %d %s successfully.", deleted, noun),
	})
}

// DeleteUser handles DELETE /api/admin/users/:userId
// @Summary Delete a user and their campaigns
// @Tags admin
// @Produce json
// @Param userId path string true "User ID"
// @Success 200 {object} object{msg=string}
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /admin/users/{userId} [delete]
func (s *Server) DeleteUser(c *fiber.Ctx) error {
	userID, err := parseID(c, "userId")
	if err != nil {
		return nil
	}
	user, err := s.adminService.DeleteUser(c.UserContext(), currentActor(c), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"msg": fmt.Sprintf("User %s deleted successfully.", user.Username),
	})
}
