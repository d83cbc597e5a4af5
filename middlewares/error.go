package middlewares

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"crm-backend/services"
)

// ErrorHandler centralizes error responses and keeps messages sanitized.
func ErrorHandler(log zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// 1) Fiber errors (use their status code + message)
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
		}

		// 2) Service errors, by kind
		switch services.KindOf(err) {
		case services.KindValidation:
			var ve *services.ValidationError
			errors.As(err, &ve)
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"message": "validation failed",
				"errors":  ve.Fields,
			})
		case services.KindNotFound:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "customer not found"})
		case services.KindDuplicateEmail:
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"message": "customer with this email already exists"})
		}

		// 3) Unknown errors (500)
		log.Error().
			Err(err).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("internal error")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"message": "internal server error",
		})
	}
}
