package server

import (
	"context"
	"errors"
	"time"

	"fundsphere/internal/middleware"
	"fundsphere/internal/models"
	"fundsphere/internal/service"

	"github.com/gofiber/fiber/v2"
)

const (
	localUser   = "user"
	localUserID = middleware.LocalUserID
	localClaims = "session"
)

// AuthRequired resolves the session token to an active user and stores it
// in locals.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := middleware.TokenFromRequest(c)
		if token == "" {
			return respondError(c, models.NewUnauthorizedError("No token, authorization denied"))
		}

		claims, err := s.tokens.Parse(token)
		if err != nil {
			return respondError(c, models.NewUnauthorizedError("Invalid token or expired"))
		}
		if s.cache.IsTokenRevoked(c.UserContext(), claims.JTI) {
			return respondError(c, models.NewUnauthorizedError("Token has been revoked"))
		}

		user, err := s.stores.Users.GetByID(c.UserContext(), claims.UserID)
		if err != nil {
			var appErr *models.AppError
			if errors.As(err, &appErr) && appErr.Code == models.CodeNotFound {
				return respondError(c, models.NewUnauthorizedError("User not found"))
			}
			return respondError(c, err)
		}
		if !user.IsActive() {
			return respondError(c, models.NewForbiddenError("Your account has been deactivated"))
		}

		c.Locals(localUser, user)
		c.Locals(localUserID, user.ID)
		c.Locals(localClaims, claims)
		c.SetUserContext(context.WithValue(c.UserContext(), middleware.UserIDKey, user.ID))
		return c.Next()
	}
}

// AdminRequired rejects non-admin users with 403.
// Must be placed after AuthRequired so that the user is available in locals.
func (s *Server) AdminRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := currentUser(c)
		if user == nil {
			return respondError(c, models.NewUnauthorizedError("Authentication required"))
		}
		if !user.IsAdmin() {
			return respondError(c, models.NewForbiddenError("Admin access required"))
		}
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) *models.User {
	user, _ := c.Locals(localUser).(*models.User)
	return user
}

func currentActor(c *fiber.Ctx) service.Actor {
	return service.ActorFor(currentUser(c))
}

func (s *Server) setSessionCookie(c *fiber.Ctx, token string, expires time.Time) {
	c.Cookie(s.sessionCookie(token, expires))
}

func (s *Server) clearSessionCookie(c *fiber.Ctx) {
	c.Cookie(s.sessionCookie("", time.Unix(0, 0)))
}

func (s *Server) sessionCookie(value string, expires time.Time) *fiber.Cookie {
	sameSite := fiber.CookieSameSiteLaxMode
	if s.config.IsProduction() {
		sameSite = fiber.CookieSameSiteNoneMode
	}
	return &fiber.Cookie{
		Name:     middleware.SessionCookie,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   s.config.IsProduction(),
		SameSite: sameSite,
	}
}

// issueSession signs a token for user and sets it as the session cookie.
func (s *Server) issueSession(c *fiber.Ctx, user *models.User) error {
	token, claims, err := s.tokens.Issue(user.ID)
	if err != nil {
		return models.NewInternalError(err)
	}
	s.setSessionCookie(c, token, claims.ExpiresAt)
	return nil
}
