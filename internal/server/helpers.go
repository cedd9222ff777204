package server

import (
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"fundsphere/internal/middleware"
	"fundsphere/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// errResponseWritten is a sentinel indicating the HTTP response was already
// committed by a helper. Handlers must return nil (not this error) to avoid
// Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

func statusForCode(code string) int {
	switch code {
	case models.CodeValidation:
		return fiber.StatusBadRequest
	case models.CodeUnauthorized:
		return fiber.StatusUnauthorized
	case models.CodeForbidden:
		return fiber.StatusForbidden
	case models.CodeNotFound:
		return fiber.StatusNotFound
	case models.CodeConflict:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// respondError writes err as the standard error body. Errors that are not an
// AppError become a generic 500; wrapped causes are only logged.
func respondError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if !errors.As(err, &appErr) {
		appErr = models.NewInternalError(err)
	}
	status := statusForCode(appErr.Code)
	if status >= fiber.StatusInternalServerError {
		middleware.Logger.ErrorContext(c.UserContext(), "request error",
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return c.Status(status).JSON(models.ErrorResponse{Error: appErr.Message, Code: appErr.Code})
}

// errorHandler renders errors that reach Fiber: unknown routes, body limit
// violations, recovered panics and anything a handler returned directly.
func errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		switch fe.Code {
		case fiber.StatusNotFound:
			return c.Status(fe.Code).JSON(models.ErrorResponse{Error: "Route Not Found", Code: models.CodeNotFound})
		case fiber.StatusMethodNotAllowed:
			return c.Status(fe.Code).JSON(models.ErrorResponse{Error: "Method Not Allowed", Code: models.CodeNotFound})
		case fiber.StatusRequestEntityTooLarge:
			return c.Status(fe.Code).JSON(models.ErrorResponse{Error: "Request body too large", Code: models.CodeValidation})
		case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
			return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: fe.Message, Code: models.CodeValidation})
		}
	}
	return respondError(c, err)
}

// parseID extracts a UUID route parameter. On failure it writes a 400 JSON
// response and returns errResponseWritten.
// Callers should check: if err != nil { return nil }
func parseID(c *fiber.Ctx, param string) (string, error) {
	raw := strings.TrimSpace(c.Params(param))
	if _, err := uuid.Parse(raw); err != nil {
		_ = respondError(c, models.NewValidationError("Invalid "+humanizeParam(param)))
		return "", errResponseWritten
	}
	return raw, nil
}

// humanizeParam converts a route param name into a human-readable label.
// Examples: "id" -> "ID", "userId" -> "user ID".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return param
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	words = append(words, s[start:])
	return words
}
