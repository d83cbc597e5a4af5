package middlewares

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

// CORS allows the single front-end origin to call the API with credentials.
// Preflight requests are answered 200 with an empty body.
func CORS(origin string) fiber.Handler {
	handler := cors.New(cors.Config{
		AllowOrigins:     origin,
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Content-Type, Authorization",
		AllowCredentials: true,
	})

	return func(c *fiber.Ctx) error {
		preflight := c.Method() == fiber.MethodOptions &&
			c.Get(fiber.HeaderOrigin) != "" &&
			c.Get(fiber.HeaderAccessControlRequestMethod) != ""
		if err := handler(c); err != nil {
			return err
		}
		if preflight {
			c.Status(fiber.StatusOK)
			c.Response().ResetBody()
		}
		return nil
	}
}
